// Package logger is the zerolog wrapper shared by every ledger binary.
// Fields travel on the context so a request or job carries its request,
// affiliate and payout ids through every layer it calls.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/angelmondragon/partnerledger-backend/pkg/env"
)

const redacted = "[redacted]"

// Keys whose values never reach the log stream, matched case-insensitively.
var sensitiveKeys = map[string]struct{}{
	"authorization":    {},
	"stripe_signature": {},
	"webhook_secret":   {},
	"api_key":          {},
	"password":         {},
	"token":            {},
}

// Options configures the structured logger. Level is a zerolog level name;
// empty or unknown means info. Format is "json" or "console"; empty falls
// back to PARTNERLEDGER_LOG_FORMAT.
type Options struct {
	ServiceName string
	Level       string
	WarnStack   bool
	Format      string
	Output      io.Writer
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

type fieldsKey struct{}

func New(opts Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = env.Get("json", "PARTNERLEDGER_LOG_FORMAT", "LOG_FORMAT")
	}
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	root := zerolog.New(out).Level(ParseLevel(opts.Level)).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{root: zerolog.Nop()}
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if scoped, ok := ctx.Value(fieldsKey{}).(zerolog.Logger); ok {
			return scoped
		}
	}
	return l.root
}

// WithField returns a child context whose log lines carry key=value. The
// parent context is left untouched.
func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	builder := l.from(ctx).With()
	for key, value := range fields {
		if _, hide := sensitiveKeys[strings.ToLower(key)]; hide {
			value = redacted
		}
		builder = builder.Interface(key, value)
	}
	return context.WithValue(ctx, fieldsKey{}, builder.Logger())
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

// WithActor tags lines with the authenticated staff or partner user.
func (l *Logger) WithActor(ctx context.Context, userID, role string) context.Context {
	return l.WithFields(ctx, map[string]any{"user_id": userID, "actor_role": role})
}

func (l *Logger) WithAffiliateID(ctx context.Context, affiliateID string) context.Context {
	return l.WithField(ctx, "affiliate_id", affiliateID)
}

func (l *Logger) WithPayoutID(ctx context.Context, payoutID string) context.Context {
	return l.WithField(ctx, "payout_id", payoutID)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.event(ctx, zerolog.DebugLevel).Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.event(ctx, zerolog.InfoLevel).Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	e := l.event(ctx, zerolog.WarnLevel)
	if l.warnStack {
		e = e.Str("stack", stack())
	}
	e.Msg(msg)
}

// Error always records a stack.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	e := l.event(ctx, zerolog.ErrorLevel)
	if err != nil {
		e = e.Err(err)
	}
	e.Str("stack", stack()).Msg(msg)
}

// event starts a line at level and stamps it with the active span, so log
// lines can be joined to traces exported by pkg/traces.
func (l *Logger) event(ctx context.Context, level zerolog.Level) *zerolog.Event {
	scoped := l.from(ctx)
	e := scoped.WithLevel(level)
	if ctx == nil {
		return e
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		e = e.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	return e
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
