package log

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// InitLogger replaces the global logger. Debug mode uses a console
// development logger, otherwise a production JSON logger at info level.
func InitLogger(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		// keep stdout free for the TUI and the summary printer
		cfg.OutputPaths = []string{"stderr"}
	}

	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	SetLogger(l)
}

// SetLogger installs l as the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Sugar returns the sugared form of the global logger.
func Sugar() *zap.SugaredLogger {
	return L().Sugar()
}

func Sync() {
	_ = L().Sync()
}

func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}
