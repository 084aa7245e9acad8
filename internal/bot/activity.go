package bot

import (
	"sync"
	"time"

	"github.com/dmbot/dmbot/internal/core"
)

// Activity levels.
const (
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// DefaultActivitySize is the ring capacity when none is configured.
const DefaultActivitySize = 1000

// ActivityLog is a fixed-size ring of recent activity entries.
type ActivityLog struct {
	mu      sync.RWMutex
	entries []core.ActivityEntry
	next    int
	full    bool
}

// NewActivityLog returns a ring holding at most size entries.
func NewActivityLog(size int) *ActivityLog {
	if size <= 0 {
		size = DefaultActivitySize
	}
	return &ActivityLog{entries: make([]core.ActivityEntry, size)}
}

// Add appends an entry, overwriting the oldest when full.
func (a *ActivityLog) Add(at time.Time, level, message string) core.ActivityEntry {
	entry := core.ActivityEntry{Timestamp: at.UTC(), Level: level, Message: message}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[a.next] = entry
	a.next = (a.next + 1) % len(a.entries)
	if a.next == 0 {
		a.full = true
	}
	return entry
}

// Len returns the number of stored entries.
func (a *ActivityLog) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lenLocked()
}

// Recent returns up to n entries, oldest first. n <= 0 returns all.
func (a *ActivityLog) Recent(n int) []core.ActivityEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	count := a.lenLocked()
	if n <= 0 || n > count {
		n = count
	}

	out := make([]core.ActivityEntry, 0, n)
	start := a.next - n
	if start < 0 {
		start += len(a.entries)
	}
	for i := 0; i < n; i++ {
		out = append(out, a.entries[(start+i)%len(a.entries)])
	}
	return out
}

// ErrorRate is the number of error and warning entries among the last window
// entries, divided by window. A log shorter than window is not scaled up.
func (a *ActivityLog) ErrorRate(window int) float64 {
	if window <= 0 {
		return 0
	}
	var bad int
	for _, e := range a.Recent(window) {
		if e.Level == LevelError || e.Level == LevelWarning {
			bad++
		}
	}
	return float64(bad) / float64(window)
}

func (a *ActivityLog) lenLocked() int {
	if a.full {
		return len(a.entries)
	}
	return a.next
}
