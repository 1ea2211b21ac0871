package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Setup builds the process logger. format is "text" or "json".
func Setup(level, format string) (*logrus.Logger, error) {
	return SetupWithWriter(os.Stderr, level, format)
}

// SetupWithWriter is Setup with a custom output.
func SetupWithWriter(w io.Writer, level, format string) (*logrus.Logger, error) {
	lvl := logrus.InfoLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parsing log level: %w", err)
		}
		lvl = parsed
	}

	var formatter logrus.Formatter
	switch format {
	case "", "text":
		formatter = &logrus.TextFormatter{DisableTimestamp: true}
	case "json":
		formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyLevel: "loglevel",
			},
		}
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return &logrus.Logger{
		Formatter: formatter,
		Out:       w,
		Hooks:     make(logrus.LevelHooks),
		Level:     lvl,
	}, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.Out = io.Discard
	return logger
}
