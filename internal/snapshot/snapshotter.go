// internal/snapshot/snapshotter.go
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

const emptySerialized = "{}"

var errTooDeep = errors.New("element tree exceeds maximum depth")

// Snapshotter captures the current interface tree as an immutable
// ScreenSnapshot.
type Snapshotter struct {
	source  schemas.TreeSource
	cfg     config.SnapshotConfig
	loading *regexp.Regexp
	logger  *zap.Logger
}

// New creates a Snapshotter reading from source.
func New(source schemas.TreeSource, cfg config.SnapshotConfig, logger *zap.Logger) (*Snapshotter, error) {
	pattern := cfg.LoadingPattern
	if pattern == "" {
		pattern = "(?i)progress|loading"
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid loading indicator pattern: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 512
	}
	return &Snapshotter{
		source:  source,
		cfg:     cfg,
		loading: re,
		logger:  logger.Named("snapshot"),
	}, nil
}

// Capture waits for loading indicators to clear, then walks the tree depth
// first. It returns schemas.ErrScreenUnavailable when there is no active root
// or the wait is interrupted. A tree that cannot be walked produces an empty
// snapshot rather than an error.
func (s *Snapshotter) Capture(ctx context.Context) (*schemas.ScreenSnapshot, error) {
	root, err := s.source.CaptureTree(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", schemas.ErrScreenUnavailable, err)
	}
	if root == nil {
		return nil, schemas.ErrScreenUnavailable
	}

	root, err = s.awaitLoaded(ctx, root)
	if err != nil {
		return nil, err
	}

	node, count, err := s.traverse(root)
	if err != nil {
		s.logger.Warn("Element tree traversal failed, returning empty snapshot.", zap.Error(err))
		return newSnapshot(nil, 0, emptySerialized), nil
	}

	serialized, err := json.ConfigCompatibleWithStandardLibrary.MarshalToString(node)
	if err != nil {
		s.logger.Warn("Snapshot serialization failed, returning empty snapshot.", zap.Error(err))
		return newSnapshot(nil, 0, emptySerialized), nil
	}

	s.logger.Debug("Captured screen snapshot.", zap.Int("elements", count), zap.Int("bytes", len(serialized)))
	return newSnapshot(node, count, serialized), nil
}

func newSnapshot(root *schemas.ElementNode, count int, serialized string) *schemas.ScreenSnapshot {
	return &schemas.ScreenSnapshot{
		Root:         root,
		Serialized:   serialized,
		ElementCount: count,
		Fingerprint:  Fingerprint(serialized),
		CapturedAt:   time.Now(),
	}
}

// Fingerprint is a short stable digest of a serialized snapshot.
func Fingerprint(serialized string) string {
	sum := sha256.Sum256([]byte(serialized))
	return hex.EncodeToString(sum[:])[:12]
}

// awaitLoaded polls while a visible loading indicator is present, giving up
// after LoadingTimeout and returning the latest sample.
func (s *Snapshotter) awaitLoaded(ctx context.Context, root *schemas.UIElement) (*schemas.UIElement, error) {
	if s.cfg.LoadingTimeout <= 0 || !s.hasLoadingIndicator(root) {
		return root, nil
	}

	deadline := time.NewTimer(s.cfg.LoadingTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	start := time.Now()
	for s.hasLoadingIndicator(root) {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: interrupted while waiting for loading to finish: %w", schemas.ErrScreenUnavailable, ctx.Err())
		case <-deadline.C:
			s.logger.Info("Loading indicator still present after timeout; capturing anyway.",
				zap.Duration("waited", time.Since(start)))
			return root, nil
		case <-ticker.C:
			next, err := s.source.CaptureTree(ctx)
			if err != nil || next == nil {
				s.logger.Debug("Resample during loading wait returned no root.", zap.Error(err))
				continue
			}
			root = next
		}
	}
	s.logger.Debug("Loading indicators cleared.", zap.Duration("waited", time.Since(start)))
	return root, nil
}

func (s *Snapshotter) hasLoadingIndicator(root *schemas.UIElement) bool {
	stack := []*schemas.UIElement{root}
	seen := make(map[*schemas.UIElement]struct{})
	for len(stack) > 0 {
		el := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if el == nil {
			continue
		}
		if _, dup := seen[el]; dup {
			continue
		}
		seen[el] = struct{}{}

		if el.Visible && (s.loading.MatchString(el.ClassName) ||
			s.loading.MatchString(el.Text) ||
			s.loading.MatchString(el.ContentDescription)) {
			return true
		}
		stack = append(stack, el.Children...)
	}
	return false
}

// traverse converts the live tree in document order, resolving centers.
func (s *Snapshotter) traverse(root *schemas.UIElement) (node *schemas.ElementNode, count int, err error) {
	defer func() {
		if r := recover(); r != nil {
			node, count, err = nil, 0, fmt.Errorf("panic during traversal: %v", r)
		}
	}()

	onPath := make(map[*schemas.UIElement]bool)
	var walk func(el *schemas.UIElement, depth int) (*schemas.ElementNode, error)
	walk = func(el *schemas.UIElement, depth int) (*schemas.ElementNode, error) {
		if depth > s.cfg.MaxDepth {
			return nil, errTooDeep
		}
		if onPath[el] {
			return nil, fmt.Errorf("element tree contains a cycle at %q", el.Ref)
		}
		onPath[el] = true
		defer delete(onPath, el)

		count++
		n := &schemas.ElementNode{
			ClassName:          el.ClassName,
			Text:               el.Text,
			ContentDescription: el.ContentDescription,
			Center:             el.Bounds.Center(),
			Bounds:             el.Bounds,
			Visible:            el.Visible,
			Clickable:          el.Clickable,
			Editable:           el.Editable,
		}
		for _, child := range el.Children {
			if child == nil {
				continue
			}
			c, err := walk(child, depth+1)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, c)
		}
		return n, nil
	}

	node, err = walk(root, 0)
	if err != nil {
		return nil, 0, err
	}
	return node, count, nil
}
