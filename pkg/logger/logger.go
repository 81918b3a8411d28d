package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a thin structured-logging facade over zerolog.
type Logger struct {
	zl zerolog.Logger
}

type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	Output string // stdout, stderr, or file path
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	var output io.Writer
	switch cfg.Output {
	case "", "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), msg, fields) }

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f(ev)
	}
	ev.Msg(msg)
}

// Field attaches one structured key/value to a log event.
type Field func(*zerolog.Event)

func String(key, value string) Field {
	return func(ev *zerolog.Event) { ev.Str(key, value) }
}

func Int(key string, value int) Field {
	return func(ev *zerolog.Event) { ev.Int(key, value) }
}

func Float64(key string, value float64) Field {
	return func(ev *zerolog.Event) { ev.Float64(key, value) }
}

func Bool(key string, value bool) Field {
	return func(ev *zerolog.Event) { ev.Bool(key, value) }
}

func Duration(key string, value time.Duration) Field {
	return func(ev *zerolog.Event) { ev.Dur(key, value) }
}

func Time(key string, value time.Time) Field {
	return func(ev *zerolog.Event) { ev.Time(key, value) }
}

func Strings(key string, value []string) Field {
	return func(ev *zerolog.Event) { ev.Strs(key, value) }
}

func Any(key string, value interface{}) Field {
	return func(ev *zerolog.Event) { ev.Interface(key, value) }
}

func Error(err error) Field {
	return func(ev *zerolog.Event) { ev.Err(err) }
}
