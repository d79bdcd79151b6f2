package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	mu           sync.RWMutex
)

func init() { // работает и до вызова Init (тесты, ранний старт)
	globalLogger = zap.NewNop()
}

// Init настраивает глобальный логгер. format: "json" (по умолчанию) или "console".
func Init(level, format string) error {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	globalLogger = logger
	return nil
}

// Logger возвращает глобальный логгер
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return globalLogger
}

// Sync сбрасывает буферизованные записи лога
func Sync() error {
	return Logger().Sync()
}

// WithModule возвращает дочерний логгер с именем модуля
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Identity возвращает поле лога с отпечатком email адреса.
// Сами адреса в лог не попадают.
func Identity(identity string) zap.Field {
	sum := sha256.Sum256([]byte(identity))
	return zap.String("identity_fp", hex.EncodeToString(sum[:6]))
}

// Info пишет информационное сообщение в глобальный логгер
func Info(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

// Error пишет сообщение об ошибке в глобальный логгер
func Error(msg string, fields ...zap.Field) {
	Logger().Error(msg, fields...)
}

// Warn пишет предупреждение в глобальный логгер
func Warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, fields...)
}
