package schemas

import "errors"

// ErrScreenUnavailable is returned when no interface root can be captured or
// the capture was interrupted. It is the only condition that ends a run
// without a done action.
var ErrScreenUnavailable = errors.New("screen capture unavailable")

// ErrorCode classifies a failed action for feedback and journaling.
type ErrorCode string

const (
	CodeElementNotFound   ErrorCode = "ELEMENT_NOT_FOUND"
	CodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	CodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	CodeUnknownAction     ErrorCode = "UNKNOWN_ACTION_TYPE"
	CodeGestureCancelled  ErrorCode = "GESTURE_CANCELLED"
	CodeTimeoutError      ErrorCode = "TIMEOUT_ERROR"
	CodeCancelled         ErrorCode = "CANCELLED"
)

// Sentinels wrapped by InvalidAction.Err.
var (
	ErrUnknownActionType = errors.New("unknown action type")
	ErrMalformedAction   = errors.New("malformed action")
)
