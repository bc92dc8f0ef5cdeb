package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/localwebapp/internal/shared/id"
)

// Logger is the process-wide logger handed out by the CLI
type Logger struct {
	*zap.Logger
}

// Config selects level, format and sinks
type Config struct {
	Level       string
	Development bool
	OutputPaths []string
}

// New builds a logger from cfg
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.MessageKey = "message"
	zapCfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	zapCfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	zapCfg.Sampling = nil
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stderr"}
	if len(cfg.OutputPaths) > 0 {
		zapCfg.OutputPaths = cfg.OutputPaths
	}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &Logger{Logger: logger}, nil
}

// FromSettings builds a logger from LOG_LEVEL and LOG_DEV. An empty level
// means info, or debug in development. An unusable level yields Nop.
func FromSettings(level string, development bool) *Logger {
	if level == "" {
		level = "info"
		if development {
			level = "debug"
		}
	}
	logger, err := New(Config{Level: level, Development: development})
	if err != nil {
		return Nop()
	}
	return logger
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// OrNop returns l, or a no-op logger when l is nil
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// ParseLevel parses debug, info, warn or error
func ParseLevel(level string) (zapcore.Level, error) {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

// AppID tags a log entry with the application it concerns
func AppID(appID string) zap.Field {
	return zap.String("app_id", appID)
}

// Trace tags a log entry with a command trace
func Trace(trace id.TraceID) zap.Field {
	return zap.String("trace", trace.String())
}
