package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

var Log *Logger

type Logger struct {
	*logrus.Logger
}

// ErrorWithReturnWrap logs the error and returns it wrapped with the
// formatted message, so call sites can log and propagate in one step.
func (l *Logger) ErrorWithReturnWrap(err error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	l.WithError(err).Error(msg)
	return fmt.Errorf("%s: %w", msg, err)
}

func Init() {
	Log = &Logger{logrus.New()}
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
}

// Get returns the global logger, initializing it on first use so tests
// and helpers never hit a nil logger.
func Get() *Logger {
	if Log == nil {
		Init()
	}
	return Log
}
