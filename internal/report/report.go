// Package report is the error-reporting collaborator: resolution failures
// and other recoverable problems are funneled here instead of aborting the
// interaction loop.
package report

import (
	"log/slog"
	"sync"
)

// Reporter receives recoverable errors.
type Reporter interface {
	Report(err error)
}

// Logger reports errors through slog.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a reporter writing to logger, or slog.Default() if nil.
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

// Report implements Reporter.
func (l *Logger) Report(err error) {
	if err == nil {
		return
	}
	l.logger.Error("map state error", slog.String("error", err.Error()))
}

// Recorder keeps reported errors in memory.
type Recorder struct {
	mu   sync.Mutex
	errs []error
}

// Report implements Reporter.
func (r *Recorder) Report(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

// Errors returns everything reported so far.
func (r *Recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}
