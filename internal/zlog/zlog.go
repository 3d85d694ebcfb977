// Package zlog provides the package-level Debugf/Infof/Errorf helpers used
// throughout zenfs, in the style of rclone's fs.Debugf/fs.Infof/fs.Errorf:
// every call site names the "subject" of the log line (a path, a mount
// prefix, a backend) plus a printf-style message.
package zlog

import (
	"github.com/sirupsen/logrus"
)

// Subject is anything that can name itself in a log line. Paths, *mount.Mount
// and backend names all satisfy this via their String method.
type Subject interface {
	String() string
}

// stringSubject lets callers pass a bare string as a Subject.
type stringSubject string

func (s stringSubject) String() string { return string(s) }

// Str wraps a plain string so it can be passed where a Subject is expected.
func Str(s string) Subject { return stringSubject(s) }

var log = logrus.StandardLogger()

// SetLevel adjusts the package-wide log level, e.g. from a CLI -v flag.
func SetLevel(level logrus.Level) {
	log.SetLevel(level)
}

func entry(o Subject) *logrus.Entry {
	if o == nil {
		return logrus.NewEntry(log)
	}
	return log.WithField("subject", o.String())
}

// Debugf logs a debug-level message about o.
func Debugf(o Subject, format string, args ...any) {
	entry(o).Debugf(format, args...)
}

// Infof logs an info-level message about o.
func Infof(o Subject, format string, args ...any) {
	entry(o).Infof(format, args...)
}

// Errorf logs an error-level message about o.
func Errorf(o Subject, format string, args ...any) {
	entry(o).Errorf(format, args...)
}
