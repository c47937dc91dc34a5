// Package admin keeps visitor statistics and the admin activity log.
//
// Statistics come from real websocket sessions: every connected browser is a
// session belonging to a visitor id that the browser keeps between visits.
package admin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sample is one point of the visitor history.
type Sample struct {
	Time     time.Time `json:"time"`
	Visitors int       `json:"visitors"`
}

// Stats is a snapshot of visitor statistics.
type Stats struct {
	Current        int      `json:"current"`
	PeakToday      int      `json:"peak_today"`
	UniqueVisitors int      `json:"unique_visitors"`
	History        []Sample `json:"history"`
}

// Visitors tracks connected sessions and derived statistics.
type Visitors struct {
	mu       sync.Mutex
	window   time.Duration
	interval time.Duration
	now      func() time.Time

	sessions  map[string]string    // session id -> visitor id
	lastSeen  map[string]time.Time // visitor id -> last connect or sample
	peakToday int
	peakDay   string
	history   []Sample
}

// NewVisitors keeps unique-visitor and history data for window, sampling
// every interval when served.
func NewVisitors(window, interval time.Duration) *Visitors {
	return &Visitors{
		window:   window,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]string),
		lastSeen: make(map[string]time.Time),
	}
}

// Connect registers a session for visitorID and returns the session id.
// An empty visitorID gets a fresh one.
func (v *Visitors) Connect(visitorID string) (sessionID, visitor string) {
	if visitorID == "" {
		visitorID = uuid.NewString()
	}
	sessionID = uuid.NewString()

	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	v.sessions[sessionID] = visitorID
	v.lastSeen[visitorID] = now
	v.rollDayLocked(now)
	if n := len(v.sessions); n > v.peakToday {
		v.peakToday = n
	}
	return sessionID, visitorID
}

// Disconnect ends a session. Unknown ids are ignored.
func (v *Visitors) Disconnect(sessionID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if visitor, ok := v.sessions[sessionID]; ok {
		v.lastSeen[visitor] = v.now()
		delete(v.sessions, sessionID)
	}
}

// rollDayLocked resets the daily peak at UTC midnight.
func (v *Visitors) rollDayLocked(now time.Time) {
	day := now.Format(time.DateOnly)
	if day != v.peakDay {
		v.peakDay = day
		v.peakToday = len(v.sessions)
	}
}

// Sample appends the current count to the history and drops data older
// than the window.
func (v *Visitors) Sample() {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	v.rollDayLocked(now)

	for _, visitor := range v.sessions {
		v.lastSeen[visitor] = now
	}
	v.history = append(v.history, Sample{Time: now, Visitors: len(v.sessions)})

	cutoff := now.Add(-v.window)
	drop := 0
	for drop < len(v.history) && v.history[drop].Time.Before(cutoff) {
		drop++
	}
	v.history = v.history[drop:]

	for visitor, seen := range v.lastSeen {
		if seen.Before(cutoff) {
			delete(v.lastSeen, visitor)
		}
	}
}

// Stats returns the current statistics. UniqueVisitors counts distinct
// visitor ids seen within the window.
func (v *Visitors) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	v.rollDayLocked(now)

	cutoff := now.Add(-v.window)
	unique := 0
	for _, seen := range v.lastSeen {
		if !seen.Before(cutoff) {
			unique++
		}
	}

	history := make([]Sample, len(v.history))
	copy(history, v.history)
	return Stats{
		Current:        len(v.sessions),
		PeakToday:      v.peakToday,
		UniqueVisitors: unique,
		History:        history,
	}
}

// Serve samples every interval until ctx is done.
func (v *Visitors) Serve(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.Sample()
		}
	}
}

func (v *Visitors) String() string { return "visitors" }
