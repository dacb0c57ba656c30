// File: internal/agent/history_test.go
package agent_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/agent"
	"github.com/xkilldash9x/uipilot/internal/config"
)

func turn(i int) schemas.ConversationTurn {
	return schemas.ConversationTurn{Role: schemas.RoleUser, Content: fmt.Sprintf("turn-%d", i)}
}

func TestHistory_FIFOEviction(t *testing.T) {
	h := agent.NewHistory(20)
	for i := 0; i < 25; i++ {
		h.Append(turn(i))
		assert.LessOrEqual(t, h.Len(), 20)
	}

	got := h.Snapshot()
	require.Len(t, got, 20)
	assert.Equal(t, "turn-5", got[0].Content, "the five oldest turns are evicted")
	assert.Equal(t, "turn-24", got[19].Content)
}

func TestHistory_SnapshotIsACopy(t *testing.T) {
	h := agent.NewHistory(3)
	h.Append(turn(1))
	snap := h.Snapshot()
	snap[0].Content = "mutated"
	assert.Equal(t, "turn-1", h.Snapshot()[0].Content)
}

func TestHistory_AppendBatchBeyondCap(t *testing.T) {
	h := agent.NewHistory(2)
	h.Append(turn(1), turn(2), turn(3))
	assert.Equal(t, []schemas.ConversationTurn{turn(2), turn(3)}, h.Snapshot())
	h.Clear()
	assert.Zero(t, h.Len())
}

func TestRepetitionContext(t *testing.T) {
	r := agent.NewRepetitionContext(3)
	r.Record("aaa", "touch(1,1)")
	r.Record("aaa", "touch(1,1)")
	r.Record("bbb", "gesture(back)")

	lines := strings.Split(r.String(), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "step 1 | screen aaa | touch(1,1)", lines[0])
	assert.Equal(t, "step 2 | screen aaa (unchanged) | touch(1,1)", lines[1])
	assert.Equal(t, "step 3 | screen bbb | gesture(back)", lines[2])

	t.Run("oldest entries roll off but steps keep counting", func(t *testing.T) {
		r.Record("ccc", "done")
		entries := r.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, 2, entries[0].Step)
		assert.Equal(t, 4, entries[2].Step)
	})

	t.Run("clear resets numbering", func(t *testing.T) {
		r.Clear()
		assert.Empty(t, r.String())
		r.Record("x", "y")
		assert.Equal(t, 1, r.Entries()[0].Step)
	})
}

func TestRetryPolicy(t *testing.T) {
	t.Run("defaults retry forever at a fixed delay", func(t *testing.T) {
		p := agent.NewRetryPolicy(config.NewDefaultConfig().Agent())
		for n := 1; n <= 100; n++ {
			assert.False(t, p.Exhausted(n))
			assert.Equal(t, 2*time.Second, p.Delay(n))
		}
	})

	t.Run("exponential backoff is capped", func(t *testing.T) {
		p := agent.RetryPolicy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
		assert.Equal(t, time.Second, p.Delay(1))
		assert.Equal(t, 2*time.Second, p.Delay(2))
		assert.Equal(t, 4*time.Second, p.Delay(3))
		assert.Equal(t, 5*time.Second, p.Delay(4))
		assert.Equal(t, 5*time.Second, p.Delay(60))
	})

	t.Run("ceiling", func(t *testing.T) {
		p := agent.RetryPolicy{MaxConsecutiveFailures: 3}
		assert.False(t, p.Exhausted(2))
		assert.True(t, p.Exhausted(3))
	})
}

func TestDefaultSystemInstructions(t *testing.T) {
	text := agent.DefaultSystemInstructions()
	for _, kind := range []string{"touch", "long_touch", "double_tap", "swipe", "drag_and_drop", "scroll", "input", "wait", "gesture", "open_application", "done"} {
		assert.Contains(t, text, `"type":"`+kind+`"`)
	}
}
