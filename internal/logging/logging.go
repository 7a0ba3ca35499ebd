// Package logging builds the process logger for the binaries from a backend
// name: zap, logrus or slog.
package logging

import (
	"fmt"
	"io"
	stdslog "log/slog"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/querycache"
	qclogrus "github.com/unkn0wn-root/querycache/log/logrus"
	qcslog "github.com/unkn0wn-root/querycache/log/slog"
	qczap "github.com/unkn0wn-root/querycache/log/zap"
)

// Logger is the selected backend. Slog is set only for the slog backend.
type Logger struct {
	querycache.Logger
	Slog *stdslog.Logger
	sync func() error
}

// Sync flushes buffered entries.
func (l Logger) Sync() error {
	if l.sync == nil {
		return nil
	}
	return l.sync()
}

// New returns a logger writing to stderr. debug enables debug level and,
// for zap, the console encoder.
func New(backend string, debug bool) (Logger, error) {
	return newLogger(backend, debug, os.Stderr)
}

func newLogger(backend string, debug bool, w io.Writer) (Logger, error) {
	switch strings.ToLower(backend) {
	case "", "zap":
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		level := zapcore.InfoLevel
		if debug {
			enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
			level = zapcore.DebugLevel
		}
		zl := zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
		return Logger{Logger: qczap.ZapLogger{L: zl}, sync: zl.Sync}, nil

	case "logrus":
		l := logrus.New()
		l.SetOutput(w)
		l.SetFormatter(&logrus.JSONFormatter{})
		if debug {
			l.SetLevel(logrus.DebugLevel)
		}
		return Logger{Logger: qclogrus.LogrusLogger{E: logrus.NewEntry(l)}}, nil

	case "slog":
		level := stdslog.LevelInfo
		if debug {
			level = stdslog.LevelDebug
		}
		sl := stdslog.New(stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: level}))
		return Logger{Logger: qcslog.Logger{L: sl}, Slog: sl}, nil

	default:
		return Logger{}, fmt.Errorf("logging: unknown backend %q", backend)
	}
}
