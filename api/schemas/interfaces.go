package schemas

import "context"

// Platform is the capability surface of the automated interface.
//
//go:generate mockery --name Platform --output ../../internal/mocks --outpkg mocks
type Platform interface {
	// CaptureTree returns the current root element, or nil when no window is
	// active.
	CaptureTree(ctx context.Context) (*UIElement, error)
	// DispatchGesture starts a gesture. The returned channel receives exactly
	// one status once the platform reports completion or cancellation. It must
	// be buffered so a status nobody waits for does not block the platform.
	DispatchGesture(ctx context.Context, g Gesture) (<-chan GestureStatus, error)
	// PerformAction applies an element level action to a node from the most
	// recent CaptureTree.
	PerformAction(ctx context.Context, el *UIElement, action ElementAction, args map[string]string) error
	InvokeGlobalAction(ctx context.Context, action GlobalAction) error
	LaunchApplication(ctx context.Context, packageID string) error
}

// TreeSource is the read-only part of Platform used for capturing snapshots.
type TreeSource interface {
	CaptureTree(ctx context.Context) (*UIElement, error)
}

// PlanProvider turns a planning request into raw response text expected to
// contain one JSON plan object.
type PlanProvider interface {
	Plan(ctx context.Context, req PlanRequest) (string, error)
}
