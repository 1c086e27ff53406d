package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Logs always go to stderr so that stdout only
// carries results (normalized text, tables or --json-output).
func New(json bool, debug bool) (*zap.Logger, error) {
	return Config(json, debug).Build()
}

// Config returns the zap configuration used by New. Stack traces and caller
// information are only attached in debug mode.
func Config(json bool, debug bool) zap.Config {
	encoderCfg := zapcore.EncoderConfig{
		MessageKey:  "step",
		LevelKey:    "level",
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		TimeKey:     "time",
		EncodeTime:  zapcore.RFC3339TimeEncoder,
	}

	cfg := zap.Config{
		Encoding:          "console",
		Level:             zap.NewAtomicLevelAt(zapcore.InfoLevel),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		DisableCaller:     true,
	}

	if json {
		cfg.Encoding = "json"
		encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderCfg.EncodeDuration = zapcore.StringDurationEncoder
	}

	if debug {
		cfg.Level.SetLevel(zapcore.DebugLevel)
		cfg.DisableStacktrace = false
		cfg.DisableCaller = false
		encoderCfg.CallerKey = "caller"
		encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
	}

	cfg.EncoderConfig = encoderCfg
	return cfg
}
