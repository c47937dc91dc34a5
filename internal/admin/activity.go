package admin

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Activity is one admin log entry.
type Activity struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// ActivityLog keeps the most recent entries, newest first.
type ActivityLog struct {
	mu      sync.Mutex
	max     int
	entries []Activity
	now     func() time.Time
}

// NewActivityLog creates a log holding at most max entries.
func NewActivityLog(max int) *ActivityLog {
	if max <= 0 {
		max = 50
	}
	return &ActivityLog{max: max, now: func() time.Time { return time.Now().UTC() }}
}

// Add records an entry and returns it.
func (l *ActivityLog) Add(action, detail string) Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	a := Activity{ID: uuid.NewString(), Time: l.now(), Action: action, Detail: detail}
	l.entries = append([]Activity{a}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
	return a
}

// Entries returns a copy of the log, newest first.
func (l *ActivityLog) Entries() []Activity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Activity, len(l.entries))
	copy(out, l.entries)
	return out
}
