package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Logger is the interface for logging.
// Unformatted calls take a message followed by key/value pairs, e.g.
// logger.Info("Dispatched request", "id", id, "url", url).
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}

func Init(level, format string) {
	log.SetOutput(os.Stdout)
	if strings.EqualFold(format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	// default info
	l, err := log.ParseLevel(level)
	if err != nil {
		l = log.InfoLevel
	}
	log.SetLevel(l)
}

func L() *log.Logger { return log.StandardLogger() }

// NewDefaultLogger creates a default logger
func NewDefaultLogger() Logger {
	return &kvLogger{entry: log.NewEntry(log.StandardLogger())}
}

// New wraps a logrus logger. Handy in tests with a buffer as output.
func New(l *log.Logger) Logger {
	return &kvLogger{entry: log.NewEntry(l)}
}

// NewDiscard returns a logger that drops everything.
func NewDiscard() Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return New(l)
}

type kvLogger struct {
	entry *log.Entry
}

// split turns (msg, k1, v1, k2, v2, ...) into a message and logrus fields.
// A dangling key is kept under "extra".
func split(args []interface{}) (string, log.Fields) {
	if len(args) == 0 {
		return "", nil
	}
	msg := fmt.Sprint(args[0])
	rest := args[1:]
	if len(rest) == 0 {
		return msg, nil
	}
	fields := make(log.Fields, len(rest)/2+1)
	for i := 0; i < len(rest); i += 2 {
		if i+1 >= len(rest) {
			fields["extra"] = rest[i]
			break
		}
		fields[fmt.Sprint(rest[i])] = rest[i+1]
	}
	return msg, fields
}

func (l *kvLogger) with(args []interface{}) (*log.Entry, string) {
	msg, fields := split(args)
	if len(fields) == 0 {
		return l.entry, msg
	}
	return l.entry.WithFields(fields), msg
}

func (l *kvLogger) Debug(args ...interface{}) {
	e, msg := l.with(args)
	e.Debug(msg)
}

func (l *kvLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *kvLogger) Info(args ...interface{}) {
	e, msg := l.with(args)
	e.Info(msg)
}

func (l *kvLogger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *kvLogger) Warn(args ...interface{}) {
	e, msg := l.with(args)
	e.Warn(msg)
}

func (l *kvLogger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *kvLogger) Error(args ...interface{}) {
	e, msg := l.with(args)
	e.Error(msg)
}

func (l *kvLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *kvLogger) Fatal(args ...interface{}) {
	e, msg := l.with(args)
	e.Fatal(msg)
}

func (l *kvLogger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }
