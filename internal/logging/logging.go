// Package logging provides the SDK's leveled logger.
//
// The SDK never returns errors to the host application, so the log stream is
// the primary failure-observability channel. Hosts can install their own
// logrus.Logger to route SDK output into the game's logging pipeline.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger with the SDK's level toggles. The verbose
// level is separate from debug: verbose logs full event payloads and is far
// noisier than ordinary debug output.
type Logger struct {
	mu      sync.RWMutex
	log     *logrus.Logger
	info    bool
	verbose bool
}

// New returns a logger writing to w at warning level. Info and verbose
// logging start disabled, matching the default of a production game build.
func New(w io.Writer) *Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	return &Logger{log: l}
}

// Default returns a logger writing to stderr.
func Default() *Logger {
	return New(os.Stderr)
}

// Wrap adopts a host-supplied logrus.Logger.
func Wrap(base *logrus.Logger) *Logger {
	return &Logger{log: base}
}

// SetInfoLog toggles info-level output.
func (l *Logger) SetInfoLog(enabled bool) {
	l.mu.Lock()
	l.info = enabled
	l.mu.Unlock()
}

// SetVerboseLog toggles verbose event-payload output.
func (l *Logger) SetVerboseLog(enabled bool) {
	l.mu.Lock()
	l.verbose = enabled
	if enabled {
		l.log.SetLevel(logrus.DebugLevel)
	} else {
		l.log.SetLevel(logrus.InfoLevel)
	}
	l.mu.Unlock()
}

func (l *Logger) infoEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.info
}

func (l *Logger) verboseEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.verbose
}

// Debug logs developer diagnostics.
func (l *Logger) Debug(args ...any) {
	l.log.Debug(args...)
}

// Debugf logs formatted developer diagnostics.
func (l *Logger) Debugf(format string, args ...any) {
	l.log.Debugf(format, args...)
}

// Info logs informational messages when info logging is enabled.
func (l *Logger) Info(args ...any) {
	if l.infoEnabled() {
		l.log.Info(args...)
	}
}

// Infof logs formatted informational messages when info logging is enabled.
func (l *Logger) Infof(format string, args ...any) {
	if l.infoEnabled() {
		l.log.Infof(format, args...)
	}
}

// Verbose logs full event payloads when verbose logging is enabled.
func (l *Logger) Verbose(args ...any) {
	if l.verboseEnabled() {
		l.log.Debug(args...)
	}
}

// Warning always logs. Validation rejections and degraded operations land
// here.
func (l *Logger) Warning(args ...any) {
	l.log.Warn(args...)
}

// Warningf always logs.
func (l *Logger) Warningf(format string, args ...any) {
	l.log.Warnf(format, args...)
}

// Error always logs.
func (l *Logger) Error(args ...any) {
	l.log.Error(args...)
}

// Errorf always logs.
func (l *Logger) Errorf(format string, args ...any) {
	l.log.Errorf(format, args...)
}
