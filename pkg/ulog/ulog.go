// Package ulog is a small structured-logging facade: it keeps packages
// from depending directly on a concrete logging library, while giving
// the CLI a single place to wire colors and verbosity.
package ulog

import (
	"github.com/sirupsen/logrus"
)

// View is the logging interface threaded through decoder construction.
type View interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	IsDebugEnabled() bool
}

// logrusView adapts a *logrus.Logger to View.
type logrusView struct {
	l *logrus.Logger
}

// New returns a View backed by logrus, logging to the given level.
func New(level logrus.Level) View {
	l := logrus.New()
	l.SetLevel(level)
	return &logrusView{l: l}
}

func (v *logrusView) Debugf(format string, args ...interface{}) { v.l.Debugf(format, args...) }
func (v *logrusView) Infof(format string, args ...interface{})  { v.l.Infof(format, args...) }
func (v *logrusView) Warnf(format string, args ...interface{})  { v.l.Warnf(format, args...) }
func (v *logrusView) Errorf(format string, args ...interface{}) { v.l.Errorf(format, args...) }
func (v *logrusView) IsDebugEnabled() bool                      { return v.l.IsLevelEnabled(logrus.DebugLevel) }

type discard struct{}

func (discard) Debugf(string, ...interface{}) {}
func (discard) Infof(string, ...interface{})  {}
func (discard) Warnf(string, ...interface{})  {}
func (discard) Errorf(string, ...interface{}) {}
func (discard) IsDebugEnabled() bool          { return false }

// Discard is a View that drops everything, used as the zero-value
// default for decoders constructed without an explicit logger.
var Discard View = discard{}
