package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON production logger at the given level. An empty level
// means info.
func New(verbosity string) (*zap.Logger, error) {
	return build(zap.NewProductionConfig(), verbosity)
}

// NewConsole builds a human-readable logger for interactive commands.
func NewConsole(verbosity string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.Development = false
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return build(config, verbosity)
}

func build(config zap.Config, verbosity string) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(verbosity)
	if err != nil {
		return nil, err
	}
	config.Level = level
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return config.Build()
}
