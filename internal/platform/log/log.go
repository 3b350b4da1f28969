// Package log provides a vendor-neutral Logger interface backed by zap, with
// context propagation and identifier masking for the internal-error
// category of the error taxonomy.
package log

import (
	"context"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the common interface every component logs through.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Debug(args ...any)
	Debugf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	WithFields(fields ...any) Logger
	Sync() error
}

// ZapLogger adapts *zap.SugaredLogger to Logger.
type ZapLogger struct {
	*zap.SugaredLogger
}

func (z *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{SugaredLogger: z.SugaredLogger.With(fields...)}
}

// New builds the process-wide logger. ENV_NAME=production selects the
// JSON production encoder; anything else gets the colorized development
// one. LOG_LEVEL overrides the default (info in prod, debug otherwise).
func New(envName, logLevel string) Logger {
	var cfg zap.Config

	if envName == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if logLevel != "" {
		var lvl zapcore.Level
		if err := lvl.Set(logLevel); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		// Logging isn't up yet; fail loudly to stderr and fall back to
		// a no-op-safe production logger so callers never get nil.
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		logger = zap.NewNop()
	}

	return &ZapLogger{SugaredLogger: logger.Sugar()}
}

type ctxKey struct{}

// WithContext attaches l to ctx so downstream command/query code can pull
// it back out via FromContext.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the Logger attached by WithContext, or a process
// default if none was attached (e.g. in tests that build a bare context).
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}

	return defaultLogger
}

var defaultLogger = New("development", "info")

// Redact masks a phone number down to its last four digits and truncates
// opaque identifiers; logged identifiers must not leak PII.
func Redact(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}

		return -1
	}, phone)

	if len(digits) <= 4 {
		return "***" + digits
	}

	return "***" + digits[len(digits)-4:]
}

// RedactID truncates an opaque identifier (UUID, checkout id) to its
// first 8 characters for log lines, enough to correlate without fully
// exposing the value.
func RedactID(id string) string {
	if len(id) <= 8 {
		return id
	}

	return id[:8] + "…"
}
