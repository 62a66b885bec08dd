// Package logger wraps go.uber.org/zap with the production/development
// split the rest of this corpus uses for its API processes.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide logger. Init replaces it; until Init is called it
// is a no-op logger so packages can log during early startup without a nil
// check.
var Log *zap.Logger = zap.NewNop()

// Init builds the logger for the given stage ("local", "dev", "prod").
// Non-local stages get JSON output with ISO8601 timestamps; local gets a
// colorized console encoder.
func Init(stage string) {
	var cfg zap.Config
	if stage == "prod" || stage == "dev" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	Log = built
}

func Info(msg string, fields ...zap.Field)  { Log.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Log.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Log.Error(msg, fields...) }
func Debug(msg string, fields ...zap.Field) { Log.Debug(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { Log.Fatal(msg, fields...) }

func With(fields ...zap.Field) *zap.Logger { return Log.With(fields...) }

func Sync() error {
	if Log == nil {
		return nil
	}
	return Log.Sync()
}
