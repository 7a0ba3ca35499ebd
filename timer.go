package querycache

import "time"

// Timer is the part of *time.Timer the schedulers use.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped;
// tests pass a fake to control time.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// TimerOption configures Debouncer and Prefetcher.
type TimerOption func(*timerConfig)

type timerConfig struct {
	afterFunc AfterFunc
	logger    Logger
}

// WithAfterFunc replaces the timer source.
func WithAfterFunc(af AfterFunc) TimerOption {
	return func(c *timerConfig) { c.afterFunc = af }
}

// WithTimerLogger sets the logger used for scheduler diagnostics.
func WithTimerLogger(l Logger) TimerOption {
	return func(c *timerConfig) { c.logger = l }
}

func newTimerConfig(opts []TimerOption) timerConfig {
	c := timerConfig{afterFunc: realAfterFunc, logger: NopLogger{}}
	for _, o := range opts {
		o(&c)
	}
	if c.afterFunc == nil {
		c.afterFunc = realAfterFunc
	}
	if c.logger == nil {
		c.logger = NopLogger{}
	}
	return c
}
