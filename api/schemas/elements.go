package schemas

import "time"

// UIElement is a live node reported by a Platform. Ref is opaque to everything
// except the platform that produced it and is used to address the node again
// in PerformAction.
type UIElement struct {
	Ref                string
	ClassName          string
	Text               string
	ContentDescription string
	Bounds             Rect
	Visible            bool
	Clickable          bool
	Editable           bool
	// MultiLine is only meaningful for editable nodes.
	MultiLine bool
	Children  []*UIElement
}

// ElementNode is the snapshot form of a UIElement with its center resolved.
type ElementNode struct {
	ClassName          string         `json:"class,omitempty"`
	Text               string         `json:"text,omitempty"`
	ContentDescription string         `json:"description,omitempty"`
	Center             Point          `json:"center"`
	Bounds             Rect           `json:"bounds"`
	Visible            bool           `json:"visible"`
	Clickable          bool           `json:"clickable"`
	Editable           bool           `json:"editable"`
	Children           []*ElementNode `json:"children,omitempty"`
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *ElementNode) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += c.Count()
	}
	return total
}

// ScreenSnapshot is an immutable capture of the interface tree. Root is nil
// for an empty snapshot, which serializes as "{}".
type ScreenSnapshot struct {
	Root         *ElementNode
	Serialized   string
	ElementCount int
	Fingerprint  string
	CapturedAt   time.Time
}

// IsEmpty reports whether the snapshot holds no elements.
func (s *ScreenSnapshot) IsEmpty() bool {
	return s == nil || s.Root == nil
}
