package observability

import "go.uber.org/zap"

// Logger is the logging surface used by core components.
// Both *zap.Logger and the gofulmen loggers satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return zap.NewNop()
}

// CoreLogger returns the logger core components should use: the server
// logger when running as a service, the CLI logger otherwise.
func CoreLogger() Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	if CLILogger != nil {
		return CLILogger
	}
	return NopLogger()
}
