// internal/snapshot/snapshotter_test.go
package snapshot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// scriptedSource returns trees in order, repeating the last one.
type scriptedSource struct {
	mu    sync.Mutex
	trees []*schemas.UIElement
	errs  []error
	calls int
}

func (s *scriptedSource) CaptureTree(ctx context.Context) (*schemas.UIElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.trees)-1)
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.trees[i], err
}

func (s *scriptedSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig() config.SnapshotConfig {
	return config.SnapshotConfig{
		LoadingTimeout: 200 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
		LoadingPattern: "(?i)progress|loading",
		MaxDepth:       64,
	}
}

func el(class string, bounds schemas.Rect, children ...*schemas.UIElement) *schemas.UIElement {
	return &schemas.UIElement{ClassName: class, Bounds: bounds, Visible: true, Children: children}
}

func newTestSnapshotter(t *testing.T, src schemas.TreeSource, cfg config.SnapshotConfig) *Snapshotter {
	t.Helper()
	s, err := New(src, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func sampleTree() *schemas.UIElement {
	return el("FrameLayout", schemas.Rect{Left: 0, Top: 0, Right: 1080, Bottom: 2400},
		el("TextView", schemas.Rect{Left: 0, Top: 100, Right: 1080, Bottom: 200}),
		el("LinearLayout", schemas.Rect{Left: 0, Top: 200, Right: 1080, Bottom: 800},
			&schemas.UIElement{ClassName: "EditText", Bounds: schemas.Rect{Left: 40, Top: 300, Right: 1041, Bottom: 401}, Visible: true, Editable: true},
			&schemas.UIElement{ClassName: "Button", Text: "Send", Bounds: schemas.Rect{Left: 900, Top: 500, Right: 1000, Bottom: 600}, Visible: true, Clickable: true},
		),
	)
}

func TestCapture_TreeConversion(t *testing.T) {
	src := &scriptedSource{trees: []*schemas.UIElement{sampleTree()}}
	s := newTestSnapshotter(t, src, fastConfig())

	snap, err := s.Capture(context.Background())
	require.NoError(t, err)

	t.Run("element count equals the number of live nodes", func(t *testing.T) {
		assert.Equal(t, 5, snap.ElementCount)
		assert.Equal(t, 5, snap.Root.Count())
	})

	t.Run("centers are bound midpoints", func(t *testing.T) {
		edit := snap.Root.Children[1].Children[0]
		assert.Equal(t, schemas.Point{X: 540, Y: 350}, edit.Center)
		assert.Equal(t, edit.Bounds.Center(), edit.Center, "recomputing a center yields the same value")
	})

	t.Run("serialized form decodes back to the same tree", func(t *testing.T) {
		var decoded schemas.ElementNode
		require.NoError(t, json.Unmarshal([]byte(snap.Serialized), &decoded))
		if diff := cmp.Diff(snap.Root, &decoded); diff != "" {
			t.Errorf("serialized tree mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("document order is preserved", func(t *testing.T) {
		assert.Equal(t, "TextView", snap.Root.Children[0].ClassName)
		assert.Equal(t, "Send", snap.Root.Children[1].Children[1].Text)
	})

	t.Run("fingerprint is stable for identical screens", func(t *testing.T) {
		again, err := s.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, snap.Fingerprint, again.Fingerprint)
		assert.Len(t, snap.Fingerprint, 12)
	})
}

func TestCapture_Unavailable(t *testing.T) {
	t.Run("no active root", func(t *testing.T) {
		src := &scriptedSource{trees: []*schemas.UIElement{nil}}
		s := newTestSnapshotter(t, src, fastConfig())
		_, err := s.Capture(context.Background())
		assert.ErrorIs(t, err, schemas.ErrScreenUnavailable)
	})

	t.Run("platform error", func(t *testing.T) {
		src := &scriptedSource{trees: []*schemas.UIElement{nil}, errs: []error{errors.New("device offline")}}
		s := newTestSnapshotter(t, src, fastConfig())
		_, err := s.Capture(context.Background())
		assert.ErrorIs(t, err, schemas.ErrScreenUnavailable)
		assert.Contains(t, err.Error(), "device offline")
	})

	t.Run("interrupted while waiting for loading", func(t *testing.T) {
		loading := el("FrameLayout", schemas.Rect{Right: 10, Bottom: 10}, el("ProgressBar", schemas.Rect{Right: 5, Bottom: 5}))
		src := &scriptedSource{trees: []*schemas.UIElement{loading}}
		cfg := fastConfig()
		cfg.LoadingTimeout = 5 * time.Second
		s := newTestSnapshotter(t, src, cfg)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := s.Capture(ctx)
		assert.ErrorIs(t, err, schemas.ErrScreenUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestCapture_LoadingWait(t *testing.T) {
	loading := el("FrameLayout", schemas.Rect{Right: 100, Bottom: 100},
		&schemas.UIElement{ClassName: "TextView", Text: "Loading…", Bounds: schemas.Rect{Right: 50, Bottom: 20}, Visible: true})
	loaded := sampleTree()

	t.Run("polls until the indicator clears", func(t *testing.T) {
		src := &scriptedSource{trees: []*schemas.UIElement{loading, loading, loaded}}
		s := newTestSnapshotter(t, src, fastConfig())

		snap, err := s.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 5, snap.ElementCount)
		assert.Equal(t, 3, src.Calls())
	})

	t.Run("gives up after the loading timeout", func(t *testing.T) {
		src := &scriptedSource{trees: []*schemas.UIElement{loading}}
		cfg := fastConfig()
		cfg.LoadingTimeout = 60 * time.Millisecond
		s := newTestSnapshotter(t, src, cfg)

		start := time.Now()
		snap, err := s.Capture(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
		assert.Equal(t, 2, snap.ElementCount)
	})

	t.Run("hidden indicators do not block", func(t *testing.T) {
		hidden := el("FrameLayout", schemas.Rect{Right: 10, Bottom: 10},
			&schemas.UIElement{ClassName: "ProgressBar", Visible: false})
		src := &scriptedSource{trees: []*schemas.UIElement{hidden}}
		s := newTestSnapshotter(t, src, fastConfig())

		_, err := s.Capture(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, src.Calls())
	})
}

func TestCapture_TraversalFailureYieldsEmptySnapshot(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		root := el("FrameLayout", schemas.Rect{Right: 10, Bottom: 10})
		child := el("View", schemas.Rect{Right: 5, Bottom: 5})
		root.Children = []*schemas.UIElement{child}
		child.Children = []*schemas.UIElement{root}

		s := newTestSnapshotter(t, &scriptedSource{trees: []*schemas.UIElement{root}}, fastConfig())
		snap, err := s.Capture(context.Background())
		require.NoError(t, err)
		assert.True(t, snap.IsEmpty())
		assert.Equal(t, "{}", snap.Serialized)
		assert.Zero(t, snap.ElementCount)
	})

	t.Run("too deep", func(t *testing.T) {
		cfg := fastConfig()
		cfg.MaxDepth = 3
		root := el("L0", schemas.Rect{})
		cur := root
		for i := 0; i < 5; i++ {
			next := el("L", schemas.Rect{})
			cur.Children = []*schemas.UIElement{next}
			cur = next
		}
		s := newTestSnapshotter(t, &scriptedSource{trees: []*schemas.UIElement{root}}, cfg)
		snap, err := s.Capture(context.Background())
		require.NoError(t, err)
		assert.True(t, snap.IsEmpty())
	})
}

func TestNew_RejectsBadPattern(t *testing.T) {
	cfg := fastConfig()
	cfg.LoadingPattern = "(unclosed"
	_, err := New(&scriptedSource{}, cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}
