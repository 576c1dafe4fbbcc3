package models

import (
	"time"

	"github.com/google/uuid"
)

// Provenance describes how a training example entered the corpus.
type Provenance string

const (
	// ProvenanceSeeded marks examples loaded from a seed corpus file.
	ProvenanceSeeded Provenance = "seeded"
	// ProvenanceUserConfirmed marks examples promoted by the feedback loop
	// after a caller confirmed a generated statement.
	ProvenanceUserConfirmed Provenance = "user-confirmed"
)

// TrainingExample is a vetted (question, SQL) pair used both as a few-shot
// demonstration and as a retrieval target. The embedding is derived from the
// current question and SQL text and is recomputed whenever either changes.
type TrainingExample struct {
	ID         uuid.UUID  `json:"id"`
	Question   string     `json:"question"`
	SQL        string     `json:"sql"`
	Embedding  []float32  `json:"-"`
	SchemaTag  string     `json:"schema_tag,omitempty"`
	Provenance Provenance `json:"provenance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EmbeddingText returns the text the example's embedding is computed from.
// The combined document format keeps question and SQL in one vector so a
// question-only query still lands near examples with matching SQL shape.
func (e *TrainingExample) EmbeddingText() string {
	return "Question: " + e.Question + "\nSQL: " + e.SQL
}
