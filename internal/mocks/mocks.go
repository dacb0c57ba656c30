// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/uipilot/api/schemas"
)

// -- Platform Mock --

// MockPlatform mocks schemas.Platform. Return values may be given as
// functions with the method's signature to compute them per call.
type MockPlatform struct {
	mock.Mock
}

var _ schemas.Platform = (*MockPlatform)(nil)

func (m *MockPlatform) CaptureTree(ctx context.Context) (*schemas.UIElement, error) {
	args := m.Called(ctx)
	if fn, ok := args.Get(0).(func(context.Context) (*schemas.UIElement, error)); ok {
		return fn(ctx)
	}
	var root *schemas.UIElement
	if args.Get(0) != nil {
		root = args.Get(0).(*schemas.UIElement)
	}
	return root, args.Error(1)
}

func (m *MockPlatform) DispatchGesture(ctx context.Context, g schemas.Gesture) (<-chan schemas.GestureStatus, error) {
	args := m.Called(ctx, g)
	if fn, ok := args.Get(0).(func(context.Context, schemas.Gesture) (<-chan schemas.GestureStatus, error)); ok {
		return fn(ctx, g)
	}
	var ch <-chan schemas.GestureStatus
	if args.Get(0) != nil {
		ch = args.Get(0).(<-chan schemas.GestureStatus)
	}
	return ch, args.Error(1)
}

func (m *MockPlatform) PerformAction(ctx context.Context, el *schemas.UIElement, action schemas.ElementAction, params map[string]string) error {
	args := m.Called(ctx, el, action, params)
	return args.Error(0)
}

func (m *MockPlatform) InvokeGlobalAction(ctx context.Context, action schemas.GlobalAction) error {
	args := m.Called(ctx, action)
	return args.Error(0)
}

func (m *MockPlatform) LaunchApplication(ctx context.Context, packageID string) error {
	args := m.Called(ctx, packageID)
	return args.Error(0)
}

// CompletedGesture returns a DispatchGesture stub whose gestures complete
// immediately.
func CompletedGesture() func(context.Context, schemas.Gesture) (<-chan schemas.GestureStatus, error) {
	return GestureWithStatus(schemas.GestureStatus{State: schemas.GestureCompleted})
}

// GestureWithStatus returns a DispatchGesture stub delivering status at once.
func GestureWithStatus(status schemas.GestureStatus) func(context.Context, schemas.Gesture) (<-chan schemas.GestureStatus, error) {
	return func(context.Context, schemas.Gesture) (<-chan schemas.GestureStatus, error) {
		ch := make(chan schemas.GestureStatus, 1)
		ch <- status
		return ch, nil
	}
}

// -- Plan Provider Mock --

// MockPlanProvider mocks schemas.PlanProvider.
type MockPlanProvider struct {
	mock.Mock
}

var _ schemas.PlanProvider = (*MockPlanProvider)(nil)

func (m *MockPlanProvider) Plan(ctx context.Context, req schemas.PlanRequest) (string, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, schemas.PlanRequest) (string, error)); ok {
		return fn(ctx, req)
	}
	return args.String(0), args.Error(1)
}

// -- Cycle Recorder Mock --

// MockCycleRecorder mocks schemas.CycleRecorder.
type MockCycleRecorder struct {
	mock.Mock
}

var _ schemas.CycleRecorder = (*MockCycleRecorder)(nil)

func (m *MockCycleRecorder) RecordCycle(ctx context.Context, rec schemas.CycleRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
