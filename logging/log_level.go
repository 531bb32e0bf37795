package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// ParseLogLevel maps a LOG_LEVEL value to a zap level. Matching is
// case-insensitive; empty or unknown values return def.
func ParseLogLevel(value string, def zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return def
	}
}
