package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel maps a settings value such as "warn" to a Level.
func ParseLevel(s string) (Level, error) {
	for level, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return level, nil
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	encoder *logfmt.Encoder
	output  io.Writer
	level   Level
	mu      sync.Mutex
}

func New(output io.Writer) *Logger {
	if output == nil {
		output = os.Stderr
	}
	return &Logger{
		encoder: logfmt.NewEncoder(output),
		output:  output,
		level:   LevelInfo,
	}
}

func NewDefault() *Logger {
	return New(os.Stderr)
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) log(level Level, msg string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	_ = l.encoder.EncodeKeyval("time", time.Now().Format(time.RFC3339))
	_ = l.encoder.EncodeKeyval("level", level.String())
	_ = l.encoder.EncodeKeyval("msg", msg)

	for k, v := range fields {
		_ = l.encoder.EncodeKeyval(k, v)
	}

	_ = l.encoder.EndRecord()
}

func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(LevelInfo, msg, fields)
}

func (l *Logger) Error(msg string, err error, fields map[string]any) {
	if fields == nil {
		fields = make(map[string]any)
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.log(LevelError, msg, fields)
}

func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(LevelWarn, msg, fields)
}

var defaultLogger = NewDefault()

// Default returns the process-wide logger used by the package-level helpers.
func Default() *Logger {
	return defaultLogger
}

// SetDefault replaces the process-wide logger. Not safe to call while other
// goroutines are logging.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

func Debug(msg string, fields map[string]any) {
	defaultLogger.Debug(msg, fields)
}

func Info(msg string, fields map[string]any) {
	defaultLogger.Info(msg, fields)
}

func Error(msg string, err error, fields map[string]any) {
	defaultLogger.Error(msg, err, fields)
}

func Warn(msg string, fields map[string]any) {
	defaultLogger.Warn(msg, fields)
}
