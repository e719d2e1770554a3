// Package rmanlog is the logging backend used by every component of the
// backup manager. It wraps logrus with the line format the CLI reference
// documents for errors (LEVEL: message / DETAIL / HINT) while still giving
// every other level a terse, single-line form for operators tailing the log.
package rmanlog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ossc-db/pg_rman/internal/rmanerr"
)

var std = newLogger(os.Stderr, "info")

// Config selects the destination and verbosity for the process-wide logger.
type Config struct {
	Path  string // empty means stderr only
	Level string // debug|info|warn|error; defaults to info
}

type levelFormatter struct{}

func (levelFormatter) Format(e *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(e.Level.String())
	return []byte(fmt.Sprintf("%s: %s\n", level, e.Message)), nil
}

func newLogger(out io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(levelFormatter{})
	l.SetOutput(out)
	l.SetLevel(parseLevel(level))
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Init points the process-wide logger at cfg, opening cfg.Path for append if
// set. Log lines always also go to stderr so an interactive invocation never
// loses output because a log file couldn't be created.
func Init(cfg Config) error {
	if cfg.Path == "" {
		std = newLogger(os.Stderr, cfg.Level)
		return nil
	}
	f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		std = newLogger(os.Stderr, cfg.Level)
		Warnf("could not open log file %s, logging to stderr only: %v", cfg.Path, err)
		return nil
	}
	std = newLogger(io.MultiWriter(os.Stderr, f), cfg.Level)
	return nil
}

func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }

// Errorf logs a plain error line. Use ReportError for a *rmanerr.Error so the
// DETAIL/HINT lines are preserved.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// ReportError prints the taxonomy error's LEVEL/DETAIL/HINT block exactly as
// the CLI reference specifies, to both the logger sink and stderr.
func ReportError(err error) {
	if e, ok := err.(*rmanerr.Error); ok {
		fmt.Fprint(os.Stderr, e.Report())
		std.Error(e.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	std.Error(err.Error())
}

// Notice prints an informational notice such as a cancellation notice.
func Notice(msg string) {
	fmt.Fprintf(os.Stderr, "NOTICE: %s\n", msg)
	std.Info(msg)
}
