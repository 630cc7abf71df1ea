package scada

import "sync"

// Tracker remembers the last value signature seen per series so unchanged
// SCADA gauges are not re-emitted on every scrape.
type Tracker struct {
	mu   sync.Mutex
	last map[string]string
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]string)}
}

// Changed records signature for key and reports whether it differs from the
// previous one. The first sighting of a key counts as a change.
func (t *Tracker) Changed(key, signature string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.last[key]; ok && prev == signature {
		return false
	}
	t.last[key] = signature
	return true
}

// Len returns the number of tracked series.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.last)
}
