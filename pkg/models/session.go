package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a QuerySession. The terminal states
// are mutually exclusive: exactly one of them is set when the session ends.
type SessionStatus string

const (
	// SessionPending means the session is still being driven by the engine.
	SessionPending SessionStatus = "pending"
	// SessionSucceeded means a validated statement was produced and executed.
	SessionSucceeded SessionStatus = "succeeded"
	// SessionExhausted means the retry budget was spent without a valid statement.
	SessionExhausted SessionStatus = "exhausted"
	// SessionRejected means a non-recoverable failure (policy rejection,
	// execution failure, service outage) ended the session regardless of
	// remaining budget.
	SessionRejected SessionStatus = "rejected"
)

// FailureKind classifies why an attempt (or the whole session) failed.
type FailureKind string

const (
	FailureParse            FailureKind = "parse_failure"
	FailureSchemaValidation FailureKind = "schema_validation_failure"
	FailurePolicyRejection  FailureKind = "policy_rejection"
	FailureExecution        FailureKind = "execution_failure"
	FailureBudgetExhausted  FailureKind = "budget_exhausted"
	FailureServiceDown      FailureKind = "service_unavailable"
)

// FailureReason carries a structured validation or execution verdict.
// Recoverable failures feed the repair loop; non-recoverable ones end the
// session immediately.
type FailureReason struct {
	Kind        FailureKind `json:"kind"`
	Message     string      `json:"message"`
	Recoverable bool        `json:"recoverable"`
}

func (f *FailureReason) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// ColumnInfo describes one result column with its database type name.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ResultSet is the normalized tabular shape of an execution result.
type ResultSet struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// GenerationAttempt records one pass through the drafting/validation cycle.
type GenerationAttempt struct {
	Index     int            `json:"index"`
	Prompt    string         `json:"prompt"`
	RawOutput string         `json:"raw_output"`
	SQL       string         `json:"sql,omitempty"`
	Failure   *FailureReason `json:"failure,omitempty"`
	Result    *ResultSet     `json:"result,omitempty"`
}

// QuerySession tracks a single question through the pipeline. Sessions are
// created per incoming question and never shared across concurrent questions;
// the Schema pointer is the snapshot frozen at session start. Failure is the
// session-level reason for a non-succeeded terminal status; per-attempt
// failures stay on the attempts.
type QuerySession struct {
	ID        uuid.UUID           `json:"id"`
	Question  string              `json:"question"`
	Schema    *SchemaDescriptor   `json:"-"`
	Attempts  []GenerationAttempt `json:"attempts"`
	Status    SessionStatus       `json:"status"`
	Failure   *FailureReason      `json:"failure,omitempty"`
	FinalSQL  string              `json:"final_sql,omitempty"`
	Result    *ResultSet          `json:"result,omitempty"`
	Summary   string              `json:"summary,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// LastFailure returns the failure of the most recent attempt, if any.
func (s *QuerySession) LastFailure() *FailureReason {
	for i := len(s.Attempts) - 1; i >= 0; i-- {
		if s.Attempts[i].Failure != nil {
			return s.Attempts[i].Failure
		}
	}
	return nil
}

// ScoredExample pairs a retrieved training example with its similarity score.
// Scores are comparable only within one retrieval call.
type ScoredExample struct {
	Example TrainingExample `json:"example"`
	Score   float64         `json:"score"`
}

// RetrievalResult is what the retrieval engine hands to the prompt composer.
type RetrievalResult struct {
	Examples  []ScoredExample  `json:"examples"`
	Fragments []SchemaFragment `json:"fragments"`
}
