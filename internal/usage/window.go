package usage

import (
	"sync"
	"time"
)

// burstEvent is one accepted request inside the rolling burst window.
type burstEvent struct {
	at     time.Time
	tokens int64
}

// userWindow holds one user's in-process rate state. All access goes
// through the window's own mutex, which also serializes the full
// check-then-increment sequence in the tracker so concurrent requests from
// the same user cannot both slip under a ceiling.
type userWindow struct {
	mu sync.Mutex

	dayStart  time.Time
	dailyUsed int64
	dailyCost float64
	burstTail []burstEvent
	burstUsed int64

	// Alert latches, reset at day rollover so each fires at most once a day.
	dailyWarned  bool
	limitAlerted bool
	costAlerted  bool
}

// rollover resets the daily counters when now has crossed into a new local
// day, and prunes burst events older than burstWindow. Callers must hold
// the mutex.
func (w *userWindow) rollover(now time.Time, burstWindow time.Duration) {
	day := startOfDay(now)
	if !day.Equal(w.dayStart) {
		w.dayStart = day
		w.dailyUsed = 0
		w.dailyCost = 0
		w.dailyWarned = false
		w.limitAlerted = false
		w.costAlerted = false
	}

	cutoff := now.Add(-burstWindow)
	kept := w.burstTail[:0]
	used := int64(0)
	for _, event := range w.burstTail {
		if event.at.After(cutoff) {
			kept = append(kept, event)
			used += event.tokens
		}
	}
	w.burstTail = kept
	w.burstUsed = used
}

// record charges accepted tokens and cost against the window. Callers must
// hold the mutex.
func (w *userWindow) record(now time.Time, tokens int64, cost float64) {
	w.dailyUsed += tokens
	w.dailyCost += cost
	w.burstTail = append(w.burstTail, burstEvent{at: now, tokens: tokens})
	w.burstUsed += tokens
}

// startOfDay returns local midnight of t's day.
func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// windows is the per-user window registry.
type windows struct {
	mu      sync.Mutex
	entries map[string]*userWindow
}

func newWindows() *windows {
	return &windows{entries: make(map[string]*userWindow)}
}

// forUser returns the user's window, creating it on first use.
func (ws *windows) forUser(userID string) *userWindow {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	w, ok := ws.entries[userID]
	if !ok {
		w = &userWindow{}
		ws.entries[userID] = w
	}
	return w
}
