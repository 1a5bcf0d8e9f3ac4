// Package core defines the domain model and cross-cutting interfaces shared
// by every component of the exchange connector runtime.
package core

// ILogger is the structured logging contract used throughout the connector.
// The concrete implementation (pkg/logging.ZapLogger) bridges to zap and the
// OpenTelemetry log pipeline; components depend only on this interface so
// that a per-Connector logger handle replaces the teacher's global loggers.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
