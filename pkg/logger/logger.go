package logger

// Field is a structured key/value attached to a log line.
type Field struct {
	Key   string
	Value any
}

// Logger is the logging surface shared by every package in this module.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Err wraps an error in the conventional "err" field.
func Err(err error) Field {
	return Field{Key: "err", Value: err}
}
