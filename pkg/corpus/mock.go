package corpus

import (
	"context"

	"github.com/google/uuid"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// MockStore is a configurable Store mock for testing. Set the function
// fields to control behavior; calls are recorded for verification.
type MockStore struct {
	UpsertFunc        func(ctx context.Context, example *models.TrainingExample) error
	SearchFunc        func(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error)
	RemoveFunc        func(ctx context.Context, id uuid.UUID) error
	ListFunc          func(ctx context.Context) ([]*models.TrainingExample, error)
	StatsFunc         func(ctx context.Context) (map[models.Provenance]int, error)
	EmbedQuestionFunc func(ctx context.Context, question string) ([]float32, error)

	// Upserted records every example passed to Upsert.
	Upserted []*models.TrainingExample
}

func (m *MockStore) Upsert(ctx context.Context, example *models.TrainingExample) error {
	m.Upserted = append(m.Upserted, example)
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, example)
	}
	return nil
}

func (m *MockStore) Search(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, queryEmbedding, k, minScore)
	}
	return nil, nil
}

func (m *MockStore) Remove(ctx context.Context, id uuid.UUID) error {
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, id)
	}
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]*models.TrainingExample, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) Stats(ctx context.Context) (map[models.Provenance]int, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return nil, nil
}

func (m *MockStore) EmbedQuestion(ctx context.Context, question string) ([]float32, error) {
	if m.EmbedQuestionFunc != nil {
		return m.EmbedQuestionFunc(ctx, question)
	}
	return nil, nil
}

// Ensure MockStore implements Store at compile time.
var _ Store = (*MockStore)(nil)
