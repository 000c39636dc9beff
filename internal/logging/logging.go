// Package logging sets up the process-wide logrus logger from the CLI's
// -v <0..5> verbosity flag, grounded on the example pack's logrus-based
// daemon loggers.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a text-formatted logrus logger writing to stderr, with
// verbosity mapped onto logrus levels: 0 is Error-and-above, 5 is Trace.
func New(verbosity int) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(levelFor(verbosity))
	return log
}

func levelFor(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.ErrorLevel
	case verbosity == 1:
		return logrus.WarnLevel
	case verbosity == 2:
		return logrus.InfoLevel
	case verbosity == 3:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}
