package logger

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorLogger глобальный логгер для кода без DI (pkg/db).
var ErrorLogger *zap.Logger

var (
	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// New собирает production-логгер нужного уровня и заодно
// инициализирует глобальный ErrorLogger.
func New(level, service string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, errors.Wrapf(err, "logger: bad level %q", level)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if service != "" {
		SetServiceName(service)
	}
	l = l.With(zap.String("service", serviceName))

	ErrorLogger = l
	return l, nil
}

// Error до вызова New пишет в zap.L() (no-op по умолчанию).
func Error(format string, args ...interface{}) {
	l := ErrorLogger
	if l == nil {
		l = zap.L()
	}
	l.Error(fmt.Sprintf(format, args...))
}
