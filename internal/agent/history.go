// internal/agent/history.go
package agent

import (
	"sync"

	"github.com/xkilldash9x/uipilot/api/schemas"
)

// History is a FIFO of conversation turns capped at a fixed length.
type History struct {
	mu    sync.RWMutex
	limit int
	turns []schemas.ConversationTurn
}

// NewHistory creates a History holding at most limit turns.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 20
	}
	return &History{limit: limit, turns: make([]schemas.ConversationTurn, 0, limit)}
}

// Append adds turns in order, dropping the oldest entries beyond the cap.
func (h *History) Append(turns ...schemas.ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turns...)
	if over := len(h.turns) - h.limit; over > 0 {
		kept := make([]schemas.ConversationTurn, h.limit, h.limit)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

// Snapshot returns a copy of the turns, oldest first.
func (h *History) Snapshot() []schemas.ConversationTurn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make([]schemas.ConversationTurn, len(h.turns))
	copy(cp, h.turns)
	return cp
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = h.turns[:0]
}
