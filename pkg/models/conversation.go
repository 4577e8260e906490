package models

// Intent labels whether a turn continues the prior conversation.
type Intent string

const (
	IntentFresh    Intent = "fresh"
	IntentFollowUp Intent = "follow_up"
)

// Turn is one prior exchange supplied by the client as context.
type Turn struct {
	Prompt  string           `json:"prompt"`
	SQL     string           `json:"sql,omitempty"`
	Message string           `json:"message,omitempty"`
	Result  []map[string]any `json:"result,omitempty"`
}

// Classification is the intent classifier's verdict for a turn.
type Classification struct {
	Intent         Intent `json:"intent"`
	RequiresSchema bool   `json:"requires_schema"`
	NeedsSQL       bool   `json:"needs_sql"`
	// FailedOpen is set when the verdict is the conservative default
	// rather than the model's answer.
	FailedOpen bool `json:"-"`
}

// ConservativeClassification is used whenever the model's verdict is unusable.
func ConservativeClassification() Classification {
	return Classification{
		Intent:         IntentFresh,
		RequiresSchema: true,
		NeedsSQL:       true,
		FailedOpen:     true,
	}
}

// Outcome is a terminal state of the generation state machine.
type Outcome string

const (
	OutcomeAnswered    Outcome = "answered"
	OutcomeAcceptedSQL Outcome = "accepted_sql"
	OutcomeBlocked     Outcome = "blocked"
	OutcomeRejected    Outcome = "rejected"
)

// GenerateRequest is a natural-language question from a user.
type GenerateRequest struct {
	Prompt     string `json:"prompt"`
	UserID     string `json:"user_id"`
	PriorTurns []Turn `json:"context,omitempty"`
}

// GenerationResult is the terminal state reached for a GenerateRequest.
type GenerationResult struct {
	Outcome        Outcome `json:"outcome"`
	Intent         Intent  `json:"intent"`
	RequiresSchema bool    `json:"requires_schema"`
	NeedsSQL       bool    `json:"needs_sql"`
	Explanation    string  `json:"explanation,omitempty"`
	SQL            string  `json:"sql,omitempty"`
	Message        string  `json:"message,omitempty"`
	Blocked        bool    `json:"blocked"`
	Repaired       bool    `json:"repaired"`
	Error          bool    `json:"error"`
}

// ExecutionResult is the row set returned by the execution gateway.
type ExecutionResult struct {
	Columns   []ResultColumn   `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
}

// ResultColumn describes one column of an execution result.
type ResultColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ExecuteRequest asks the gateway to run SQL against the caller's tenant.
type ExecuteRequest struct {
	SQL    string `json:"sql"`
	UserID string `json:"user_id"`
}
