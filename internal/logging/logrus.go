package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// New builds the root logger from the logging configuration.
// format is either "json" or "text".
func New(level, format string, output io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetLevel(lvl)
	logger.SetOutput(output)

	switch format {
	case "json", "":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return logger, nil
}

// Get returns an entry tagged with the component name
func Get(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"component": component,
	})
}

// Discard returns a logger that drops everything, for tests
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
