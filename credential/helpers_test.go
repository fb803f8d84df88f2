package credential_test

import (
	"sync"

	"github.com/lexfrei/go-eero/observability"
)

// recordingLogger captures warning messages.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
}

func (l *recordingLogger) Debug(string, ...observability.Field) {}
func (l *recordingLogger) Info(string, ...observability.Field)  {}
func (l *recordingLogger) Error(string, ...observability.Field) {}

func (l *recordingLogger) Warn(msg string, _ ...observability.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

//nolint:ireturn // Satisfies observability.Logger
func (l *recordingLogger) With(...observability.Field) observability.Logger { return l }
