// Package logging builds the zap logger shared by the worker and the starter
// and adapts it to the Temporal SDK logger interface.
package logging

import (
	"fmt"

	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production JSON logger at level ("debug", "info", "warn",
// "error"), or a development console logger when level is "dev".
func New(level string) (*zap.Logger, error) {
	if level == "dev" {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

// TemporalAdapter lets the Temporal client, workflows and activities log
// through zap.
type TemporalAdapter struct {
	zl *zap.Logger
}

var (
	_ log.Logger          = (*TemporalAdapter)(nil)
	_ log.WithLogger      = (*TemporalAdapter)(nil)
	_ log.WithSkipCallers = (*TemporalAdapter)(nil)
)

// NewTemporalAdapter wraps zl. One caller frame is skipped so zap reports the
// SDK call site.
func NewTemporalAdapter(zl *zap.Logger) *TemporalAdapter {
	return &TemporalAdapter{zl: zl.WithOptions(zap.AddCallerSkip(1))}
}

func (a *TemporalAdapter) Debug(msg string, keyvals ...interface{}) {
	a.zl.Debug(msg, fields(keyvals)...)
}

func (a *TemporalAdapter) Info(msg string, keyvals ...interface{}) {
	a.zl.Info(msg, fields(keyvals)...)
}

func (a *TemporalAdapter) Warn(msg string, keyvals ...interface{}) {
	a.zl.Warn(msg, fields(keyvals)...)
}

func (a *TemporalAdapter) Error(msg string, keyvals ...interface{}) {
	a.zl.Error(msg, fields(keyvals)...)
}

func (a *TemporalAdapter) With(keyvals ...interface{}) log.Logger {
	return &TemporalAdapter{zl: a.zl.With(fields(keyvals)...)}
}

func (a *TemporalAdapter) WithCallerSkip(depth int) log.Logger {
	return &TemporalAdapter{zl: a.zl.WithOptions(zap.AddCallerSkip(depth))}
}

// fields turns alternating key/value pairs into zap fields. A dangling key
// is kept under "extra".
func fields(keyvals []interface{}) []zap.Field {
	out := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 == len(keyvals) {
			out = append(out, zap.Any("extra", keyvals[i]))
			break
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			out = append(out, zap.NamedError(key, err))
			continue
		}
		out = append(out, zap.Any(key, keyvals[i+1]))
	}
	return out
}
