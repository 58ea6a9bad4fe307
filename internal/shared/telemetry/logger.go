package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger is the structured logging capability handed to services.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// JSONLogger writes one JSON object per line.
type JSONLogger struct {
	mu  sync.Mutex
	out io.Writer
	now func() time.Time
}

// NewJSONLogger returns a logger writing to out. A nil out writes to stdout.
func NewJSONLogger(out io.Writer) *JSONLogger {
	return &JSONLogger{out: out, now: time.Now}
}

// Default returns the process-wide stdout logger.
func Default() Logger {
	return std
}

var std = NewJSONLogger(nil)

// Info writes an info-level log line with the given fields.
func Info(msg string, fields map[string]any) {
	std.Info(msg, fields)
}

// Error writes an error-level log line with the given fields.
func Error(msg string, fields map[string]any) {
	std.Error(msg, fields)
}

// Info implements Logger.
func (l *JSONLogger) Info(msg string, fields map[string]any) {
	l.write("info", msg, fields)
}

// Error implements Logger.
func (l *JSONLogger) Error(msg string, fields map[string]any) {
	l.write("error", msg, fields)
}

func (l *JSONLogger) write(level, msg string, fields map[string]any) {
	out := l.out
	if out == nil {
		// resolved per call so tests can swap os.Stdout
		out = os.Stdout
	}
	ts := l.now().UTC().Format(time.RFC3339)

	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = ts
	entry["level"] = level
	entry["msg"] = msg

	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(out, `{"ts":"%s","level":"error","msg":"logger marshal failed","err":%q}`+"\n", ts, err.Error())
		return
	}
	fmt.Fprintln(out, string(data))
}

// Nop discards everything.
type Nop struct{}

func (Nop) Info(string, map[string]any)  {}
func (Nop) Error(string, map[string]any) {}
