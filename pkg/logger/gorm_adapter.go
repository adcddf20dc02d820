package logger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Queries against the local mirror are expected to be sub-millisecond;
// anything slower than this is worth a warning.
const defaultSlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's logging through the zerolog setup so mirror db
// queries land in the same stream as the rest of the client, request id
// included. Satisfies gorm's logger.Interface.
type GormLogger struct {
	SlowThreshold time.Duration
	LogLevel      gormlogger.LogLevel
}

// NewGormLogger returns an adapter at Warn level, so routine mirror traffic
// stays out of the log until explicitly raised.
func NewGormLogger() *GormLogger {
	return &GormLogger{
		SlowThreshold: defaultSlowQueryThreshold,
		LogLevel:      gormlogger.Warn,
	}
}

// LogMode returns a copy at the given level
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.LogLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		Info(ctx).Msgf(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		Warn(ctx).Msgf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		Error(ctx).Msgf(msg, data...)
	}
}

// Trace logs one executed query. Failures log at error (a missing mirror row
// is a normal outcome, not an error), slow queries at warn, everything else
// at info.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	event := l.queryEvent(ctx, elapsed, err)
	if event == nil {
		return
	}

	sql, rows := fc()
	event.
		Str("sql", sql).
		Float64("elapsed_ms", float64(elapsed.Nanoseconds())/1e6).
		Int64("rows", rows).
		Msg("mirror db query")
}

// queryEvent picks the log event for a query, or nil when the configured
// level filters it out.
func (l *GormLogger) queryEvent(ctx context.Context, elapsed time.Duration, err error) *zerolog.Event {
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		if l.LogLevel < gormlogger.Error {
			return nil
		}
		return Error(ctx).Err(err)
	case l.SlowThreshold != 0 && elapsed > l.SlowThreshold:
		if l.LogLevel < gormlogger.Warn {
			return nil
		}
		return Warn(ctx).Bool("slow_query", true).Dur("threshold", l.SlowThreshold)
	default:
		if l.LogLevel < gormlogger.Info {
			return nil
		}
		return Info(ctx)
	}
}
