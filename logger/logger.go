// Package logger provides the structured, levelled logger used across the
// service. Entries are fanned out to one or more output handlers (console,
// arbitrary writers, OpenTelemetry log export) and carry the active trace and
// span ids when tracing is enabled.
package logger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO", "":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Field represents a key-value pair in a structured log entry.
type Field struct {
	Key   string
	Value interface{}
}

// F is a shorthand for creating a Field.
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Err is a shorthand for an "error" field. A nil error yields an empty value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Entry represents a log entry with metadata.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	Service   string                 `json:"service"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`

	severity Level
	ctx      context.Context
}

// Severity returns the entry's level.
func (e Entry) Severity() Level {
	return e.severity
}

// OutputHandler represents a destination for log entries.
type OutputHandler interface {
	// Handle processes a log entry
	Handle(entry Entry) error
	// Close performs any cleanup necessary
	Close() error
}

// Formatter defines the interface for formatting log entries.
type Formatter interface {
	Format(entry Entry) ([]byte, error)
}

// JsonFormatter formats log entries as JSON.
type JsonFormatter struct {
	Pretty bool
}

// Format converts the log entry to JSON.
func (f *JsonFormatter) Format(entry Entry) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if f.Pretty {
		b, err = json.MarshalIndent(entry, "", "  ")
	} else {
		b, err = json.Marshal(entry)
	}
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter formats log entries as human-readable text.
type TextFormatter struct {
	IncludeTimestamp bool
	TimestampFormat  string
	IncludeCaller    bool
}

// Format converts the log entry to text. Fields are printed in key order so
// output is stable.
func (f *TextFormatter) Format(entry Entry) ([]byte, error) {
	var parts []string

	if f.IncludeTimestamp {
		format := f.TimestampFormat
		if format == "" {
			format = time.RFC3339
		}
		parts = append(parts, entry.Timestamp.Format(format))
	}

	parts = append(parts, fmt.Sprintf("[%s]", entry.Level))

	if entry.Service != "" {
		parts = append(parts, fmt.Sprintf("[%s]", entry.Service))
	}
	if f.IncludeCaller && entry.Caller != "" {
		parts = append(parts, fmt.Sprintf("(%s)", entry.Caller))
	}

	parts = append(parts, entry.Message)

	if len(entry.Fields) > 0 {
		keys := make([]string, 0, len(entry.Fields))
		for k := range entry.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kv := make([]string, 0, len(keys))
		for _, k := range keys {
			kv = append(kv, fmt.Sprintf("%s=%v", k, entry.Fields[k]))
		}
		parts = append(parts, fmt.Sprintf("{%s}", strings.Join(kv, ", ")))
	}

	if entry.TraceID != "" {
		parts = append(parts, fmt.Sprintf("trace=%s", entry.TraceID))
	}

	return []byte(strings.Join(parts, " ") + "\n"), nil
}

// WriterHandler writes formatted entries to an io.Writer.
type WriterHandler struct {
	out       io.Writer
	formatter Formatter
	mu        sync.Mutex
}

// NewWriterHandler creates a handler writing to out.
func NewWriterHandler(out io.Writer, formatter Formatter) *WriterHandler {
	return &WriterHandler{out: out, formatter: formatter}
}

// NewConsoleHandler creates a new handler that outputs to stdout.
func NewConsoleHandler(formatter Formatter) *WriterHandler {
	return NewWriterHandler(os.Stdout, formatter)
}

// Handle writes the log entry.
func (h *WriterHandler) Handle(entry Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(b)
	return err
}

// Close implements the OutputHandler interface.
func (h *WriterHandler) Close() error {
	return nil
}

// Logger represents the main logger instance. A nil *Logger discards
// everything.
type Logger struct {
	handlers    []OutputHandler
	level       Level
	serviceName string
	callDepth   int
	tracing     bool
	mu          sync.RWMutex
}

// LoggerOption defines a functional option for configuring Logger.
type LoggerOption func(*Logger)

// WithHandler adds an OutputHandler to the logger.
func WithHandler(handler OutputHandler) LoggerOption {
	return func(l *Logger) {
		l.handlers = append(l.handlers, handler)
	}
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *Logger) {
		l.level = level
	}
}

// WithService sets the service name.
func WithService(name string) LoggerOption {
	return func(l *Logger) {
		l.serviceName = name
	}
}

// WithTracing enables trace ID and span ID in logs.
func WithTracing() LoggerOption {
	return func(l *Logger) {
		l.tracing = true
	}
}

// WithCallDepth sets the call depth for caller information.
func WithCallDepth(depth int) LoggerOption {
	return func(l *Logger) {
		l.callDepth = depth
	}
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) *Logger {
	l := &Logger{
		level:     InfoLevel,
		callDepth: 3,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Nop returns a logger without handlers.
func Nop() *Logger {
	return NewLogger()
}

// AddHandler adds a handler to the logger.
func (l *Logger) AddHandler(handler OutputHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) getCaller() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		return "unknown:0"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

// getTraceInfo extracts trace and span IDs from the OpenTelemetry span in ctx.
func (l *Logger) getTraceInfo(ctx context.Context) (string, string) {
	if !l.tracing || ctx == nil {
		return "", ""
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}

func (l *Logger) log(ctx context.Context, level Level, message string, fields ...Field) {
	if l == nil {
		return
	}

	l.mu.RLock()
	minLevel := l.level
	handlers := l.handlers
	l.mu.RUnlock()

	if level < minLevel || len(handlers) == 0 {
		return
	}

	fieldsMap := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		fieldsMap[field.Key] = field.Value
	}

	traceID, spanID := l.getTraceInfo(ctx)

	entry := Entry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		Fields:    fieldsMap,
		Service:   l.serviceName,
		Caller:    l.getCaller(),
		TraceID:   traceID,
		SpanID:    spanID,
		severity:  level,
		ctx:       ctx,
	}

	for _, h := range handlers {
		if err := h.Handle(entry); err != nil {
			fmt.Fprintf(os.Stderr, "logger: handler failed: %v\n", err)
		}
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, DebugLevel, message, fields...)
}

// Info logs an info message.
func (l *Logger) Info(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, InfoLevel, message, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, WarnLevel, message, fields...)
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, message string, fields ...Field) {
	l.log(ctx, ErrorLevel, message, fields...)
}

// Close closes all handlers.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, h := range l.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.handlers = nil
	return errors.Join(errs...)
}
