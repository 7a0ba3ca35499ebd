package querycache

import "time"

const (
	DefaultStaleTime     = 5 * time.Minute
	DefaultGCTime        = 10 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultGenRetention  = 24 * time.Hour
	DefaultNamespace     = "qc"
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
