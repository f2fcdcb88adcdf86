package log

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var _ Log = (*Logger)(nil)

var (
	innerLogger          *Logger
	loggerInitializeOnce sync.Once
)

type Logger struct {
	zapLogger *zap.Logger
	zapLevel  zap.AtomicLevel
}

// New builds a JSON logger writing to stderr. The first logger built becomes
// the one returned by Provide.
func New(level Level) *Logger {
	logger := build(level)
	loggerInitializeOnce.Do(func() { innerLogger = logger })
	return logger
}

func build(level Level) *Logger {
	zapLevel := zap.NewAtomicLevelAt(toZapLevel(level))
	config := zap.Config{
		Level:       zapLevel,
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		DisableCaller:    true,
	}

	zapLogger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return &Logger{
		zapLogger: zapLogger,
		zapLevel:  zapLevel,
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{
		zapLogger: zap.NewNop(),
		zapLevel:  zap.NewAtomicLevelAt(zap.FatalLevel),
	}
}

// NewFromCore wraps an existing zap core. Tests use it with zaptest/observer.
func NewFromCore(core zapcore.Core, level Level) *Logger {
	return &Logger{
		zapLogger: zap.New(core),
		zapLevel:  zap.NewAtomicLevelAt(toZapLevel(level)),
	}
}

// Provide returns the process-wide logger, building an info-level one if
// nothing has been configured yet.
func Provide() *Logger {
	loggerInitializeOnce.Do(func() { innerLogger = build(LevelInfo) })
	return innerLogger
}

func (l *Logger) Log(level Level, msg string, fields ...Field) {
	if !l.checkLevel(level) {
		return
	}
	l.zapLogger.Log(toZapLevel(level), msg, toZapFields(fields...)...)
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.Log(LevelDebug, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.Log(LevelInfo, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...Field) {
	l.Log(LevelWarn, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.Log(LevelError, msg, fields...)
}

func (l *Logger) Fatal(msg string, fields ...Field) {
	l.zapLogger.Fatal(msg, toZapFields(fields...)...)
}

func (l *Logger) With(fields ...Field) Log {
	return &Logger{
		zapLogger: l.zapLogger.With(toZapFields(fields...)...),
		zapLevel:  l.zapLevel,
	}
}

type requestIDKey struct{}

// ContextWithRequestID tags ctx so that WithContext adds a request_id field.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func (l *Logger) WithContext(ctx context.Context) Log {
	if ctx == nil {
		return l
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return l.With(String("request_id", id))
	}
	return l
}

// SetLevel is shared by every logger derived through With.
func (l *Logger) SetLevel(level Level) {
	l.zapLevel.SetLevel(toZapLevel(level))
}

func (l *Logger) GetLevel() Level {
	return fromZapLevel(l.zapLevel.Level())
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zapLogger.Sync()
}

func (l *Logger) checkLevel(level Level) bool {
	return l.zapLevel.Enabled(toZapLevel(level))
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelInfo:
		return zap.InfoLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	case LevelFatal:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

func fromZapLevel(level zapcore.Level) Level {
	switch level {
	case zap.DebugLevel:
		return LevelDebug
	case zap.InfoLevel:
		return LevelInfo
	case zap.WarnLevel:
		return LevelWarn
	case zap.ErrorLevel:
		return LevelError
	case zap.FatalLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

func toZapFields(fields ...Field) []zap.Field {
	zapFields := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch f.Type {
		case BoolType:
			zapFields[i] = zap.Bool(f.Key, f.Value.(bool))
		case DurationType:
			zapFields[i] = zap.Duration(f.Key, f.Value.(time.Duration))
		case Float64Type:
			zapFields[i] = zap.Float64(f.Key, f.Value.(float64))
		case IntType:
			zapFields[i] = zap.Int(f.Key, f.Value.(int))
		case Int64Type:
			zapFields[i] = zap.Int64(f.Key, f.Value.(int64))
		case StringType:
			zapFields[i] = zap.String(f.Key, f.Value.(string))
		case StringerType:
			zapFields[i] = zap.Stringer(f.Key, f.Value.(fmt.Stringer))
		case TimeType:
			zapFields[i] = zap.Time(f.Key, f.Value.(time.Time))
		case Uint64Type:
			zapFields[i] = zap.Uint64(f.Key, f.Value.(uint64))
		case ErrorType:
			zapFields[i] = zap.NamedError(f.Key, f.Value.(error))
		default:
			zapFields[i] = zap.Any(f.Key, f.Value)
		}
	}
	return zapFields
}
