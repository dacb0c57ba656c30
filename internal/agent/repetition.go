// internal/agent/repetition.go
package agent

import (
	"fmt"
	"strings"
	"sync"
)

// RepetitionEntry pairs the screen a plan was chosen on with the plan.
type RepetitionEntry struct {
	Step        int
	Fingerprint string
	Action      string
}

// RepetitionContext records one entry per planned cycle so the provider can
// notice it is repeating itself on an unchanged screen.
type RepetitionContext struct {
	mu      sync.RWMutex
	limit   int
	step    int
	entries []RepetitionEntry
}

// NewRepetitionContext keeps at most limit entries.
func NewRepetitionContext(limit int) *RepetitionContext {
	if limit <= 0 {
		limit = 50
	}
	return &RepetitionContext{limit: limit}
}

// Record appends exactly one entry.
func (r *RepetitionContext) Record(fingerprint, action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step++
	r.entries = append(r.entries, RepetitionEntry{Step: r.step, Fingerprint: fingerprint, Action: action})
	if over := len(r.entries) - r.limit; over > 0 {
		r.entries = append([]RepetitionEntry(nil), r.entries[over:]...)
	}
}

// Entries returns a copy, oldest first.
func (r *RepetitionContext) Entries() []RepetitionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RepetitionEntry(nil), r.entries...)
}

func (r *RepetitionContext) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *RepetitionContext) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = 0
	r.entries = nil
}

// String renders one line per entry. Consecutive entries on the same screen
// are marked unchanged.
func (r *RepetitionContext) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return ""
	}

	var b strings.Builder
	prev := ""
	for i, e := range r.entries {
		marker := ""
		if i > 0 && e.Fingerprint == prev {
			marker = " (unchanged)"
		}
		fmt.Fprintf(&b, "step %d | screen %s%s | %s\n", e.Step, e.Fingerprint, marker, e.Action)
		prev = e.Fingerprint
	}
	return strings.TrimRight(b.String(), "\n")
}
