package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once     sync.Once
	root     zerolog.Logger
	logLevel = "info"
	logDir   string
)

// Configure sets the log level and the directory for the rotating log file.
// Must be called before the first Default()/New() call to take effect.
func Configure(level, dir string) {
	logLevel = level
	logDir = dir
}

func build() {
	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	writers := []io.Writer{console}
	if logDir != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "csfiles.log"),
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	root = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()
}

// Default returns the root logger.
func Default() zerolog.Logger {
	once.Do(build)
	return root
}

// New returns a logger tagged with a component name.
func New(component string) zerolog.Logger {
	once.Do(build)
	return root.With().Str("component", component).Logger()
}
