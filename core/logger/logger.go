// Package logger declares the logging contract used by the matching core.
// Implementations live in infra/logger.
package logger

// Fields carries structured key/value pairs.
type Fields = map[string]any

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields Fields)
	Infof(format string, args ...any)
	// Infow logs a message with structured fields. Decision and escalation
	// records use it so that log pipelines can index them.
	Infow(msg string, fields Fields)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
