// Package logsink holds the destination for the human-readable messages the
// mirror engine and scheduler produce: one line per created directory, copied
// file, deleted entry and error.
package logsink

// Sink accepts messages and persists them. Calls are synchronous so the
// order of lines matches the order of operations.
type Sink interface {
	Info(msg string)
	Error(msg string)
	// Dir is the directory the messages are written into.
	Dir() string
	// FileName is the base name of the destination inside Dir.
	FileName() string
}
