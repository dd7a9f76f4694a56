package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	logger     *zap.SugaredLogger
	loggerOnce sync.Once
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	develop    bool
)

// initLogger builds the global logger on first use. Production builds use
// the JSON encoder on stderr; Init(true) switches to the console encoder.
func initLogger() {
	loggerOnce.Do(func() {
		var cfg zap.Config
		if develop {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
		}
		cfg.Level = level
		cfg.DisableStacktrace = true

		l, err := cfg.Build(zap.AddCallerSkip(2))
		if err != nil {
			l = zap.NewNop()
		}
		logger = l.Sugar()
	})
}

// Init selects the encoder and level. It must run before the first log
// call to take effect on the encoder; the level can change at any time.
func Init(debug bool) {
	develop = debug
	if debug {
		SetLevel(LevelDebug)
	}
	initLogger()
}

func SetLevel(l Level) {
	switch l {
	case LevelDebug:
		level.SetLevel(zapcore.DebugLevel)
	case LevelError:
		level.SetLevel(zapcore.ErrorLevel)
	default:
		level.SetLevel(zapcore.InfoLevel)
	}
}

// Replace swaps the global logger, mainly for tests (zaptest/observer).
func Replace(l *zap.Logger) {
	initLogger()
	logger = l.WithOptions(zap.AddCallerSkip(2)).Sugar()
}

// Sync flushes buffered entries; call it once before exit.
func Sync() {
	initLogger()
	_ = logger.Sync()
}

func Debug(msg string, kv ...any) {
	logWithLevel(zapcore.DebugLevel, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(zapcore.InfoLevel, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(zapcore.WarnLevel, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	extended := append([]any{zap.Error(err)}, kv...)
	logWithLevel(zapcore.ErrorLevel, msg, extended...)
}

func logWithLevel(lvl zapcore.Level, msg string, kv ...any) {
	initLogger()
	switch lvl {
	case zapcore.DebugLevel:
		logger.Debugw(msg, kv...)
	case zapcore.WarnLevel:
		logger.Warnw(msg, kv...)
	case zapcore.ErrorLevel:
		logger.Errorw(msg, kv...)
	default:
		logger.Infow(msg, kv...)
	}
}
