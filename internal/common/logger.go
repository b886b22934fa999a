package common

import (
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger: slog on top of a zap core.
// The returned func flushes buffered entries and should be deferred by main.
func NewLogger(cfg LogConfig) (*slog.Logger, func(), error) {
	var zc zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		level = zapcore.InfoLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	zl, err := zc.Build()
	if err != nil {
		return nil, func() {}, err
	}
	logger := slog.New(zapslog.NewHandler(zl.Core()))
	return logger, func() { _ = zl.Sync() }, nil
}
