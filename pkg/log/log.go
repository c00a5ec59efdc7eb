package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger is the global logger instance
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	fileMu sync.Mutex
	file   *lumberjack.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// File, when set, sends output to a rotated log file instead of Output
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a level name to a zerolog level. Unknown names are info.
func ParseLevel(l Level) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(string(l)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// SetLevel changes the global level without touching the output
func SetLevel(l Level) {
	zerolog.SetGlobalLevel(ParseLevel(l))
}

// Init initializes the global logger. A log file opened by an earlier Init
// is closed.
func Init(cfg Config) {
	SetLevel(cfg.Level)

	fileMu.Lock()
	defer fileMu.Unlock()

	if file != nil {
		_ = file.Close()
		file = nil
	}

	output := cfg.Output
	if cfg.File != "" {
		file = newFileOutput(cfg)
		output = file
	}
	if output == nil {
		output = os.Stdout
	}

	// Files always get JSON
	if cfg.JSONOutput || cfg.File != "" {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// Close closes the log file, if any
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if file == nil {
		return nil
	}
	err := file.Close()
	file = nil
	return err
}

func newFileOutput(cfg Config) *lumberjack.Logger {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithPublisher creates a child logger for an event publisher
func WithPublisher(name string) zerolog.Logger {
	return Logger.With().Str("component", "events").Str("publisher", name).Logger()
}

// WithSubscriber creates a child logger for an event subscriber
func WithSubscriber(name string) zerolog.Logger {
	return Logger.With().Str("component", "subscribers").Str("subscriber", name).Logger()
}

// Info logs msg at info level on the global logger
func Info(msg string) {
	Logger.Info().Msg(msg)
}
