// Package logger holds the process-wide logrus logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var _log = logrus.New()

// Init sets the output and level of the global logger. Debug uses a text formatter,
// every other level logs JSON.
func Init(level string, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	_log.SetOutput(out)
	_log.SetLevel(lvl)
	if lvl >= logrus.DebugLevel {
		_log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		_log.SetFormatter(&logrus.JSONFormatter{})
	}
	return nil
}

// Logger returns the global logger.
func Logger() *logrus.Logger {
	return _log
}

// Log returns a standard logger entry to use across packages.
func Log() *logrus.Entry {
	return logrus.NewEntry(_log)
}

// WithFields returns a logger entry with provided fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log().WithFields(fields)
}
