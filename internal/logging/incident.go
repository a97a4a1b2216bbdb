// Package logging writes the internal incident log: one line per
// incident, "[ISO-8601 timestamp] message", appended to a file.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type IncidentLog struct {
	mu   sync.Mutex
	path string
}

func NewIncidentLog(path string) *IncidentLog {
	return &IncidentLog{path: path}
}

// Report appends one formatted incident line. Logging must never take a
// request down, so a failure to write falls back to the process log.
func (l *IncidentLog) Report(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	entry := "[" + time.Now().Format(time.RFC3339) + "] " + message + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		log.Printf("incident log unavailable (%v): %s", err, message)
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("incident log unavailable (%v): %s", err, message)
		return
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		log.Printf("incident log write failed (%v): %s", err, message)
	}
}
