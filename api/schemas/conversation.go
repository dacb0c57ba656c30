package schemas

import "strings"

// Role identifies the author of a ConversationTurn.
type Role string

const (
	RoleUser              Role = "user"
	RoleAssistant         Role = "assistant"
	RoleExecutionFeedback Role = "execution_feedback"
)

// ConversationTurn is a single entry of the bounded planning history.
type ConversationTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PlanRequest is everything a PlanProvider receives for one cycle. History is
// a copy owned by the callee.
type PlanRequest struct {
	SystemInstructions string
	History            []ConversationTurn
	Snapshot           string
	Command            string
	RepetitionContext  string
}

// ExecutionOutcome reports how an ActionPlan run ended.
type ExecutionOutcome struct {
	Success bool
	// Feedback is set on failure and names the action type and index.
	Feedback string
	// MacroComplete is set when a done action was reached.
	MacroComplete bool
	ErrorCode     ErrorCode
	// FailedIndex is -1 unless a specific action failed.
	FailedIndex int
	// Executed counts the actions that ran to completion.
	Executed int
}

// UserMessage renders the per-cycle user turn from the request.
func (r PlanRequest) UserMessage() string {
	var b strings.Builder
	b.WriteString("USER COMMAND:\n")
	b.WriteString(r.Command)
	b.WriteString("\n\nCURRENT SCREEN:\n")
	b.WriteString(r.Snapshot)
	b.WriteString("\n\nPREVIOUS STEPS:\n")
	if r.RepetitionContext == "" {
		b.WriteString("(none)")
	} else {
		b.WriteString(r.RepetitionContext)
	}
	return b.String()
}
