package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/corpus"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
)

func retrievalSnapshot() *models.SchemaDescriptor {
	return models.NewSchemaDescriptor([]models.Table{
		{
			Schema:  "public",
			Name:    "customers",
			Columns: []models.Column{{Name: "id", DataType: "integer", IsPrimary: true}},
		},
	})
}

func newTestEngine(store corpus.Store) Engine {
	cfg := config.RetrievalConfig{TopK: 5, MinScore: 0.30, MaxFragments: 8}
	return NewEngine(store, schema.NewFragmentSelector(cfg.MaxFragments), cfg, zap.NewNop())
}

func TestEngine_Retrieve(t *testing.T) {
	var gotK int
	var gotMinScore float64
	store := &corpus.MockStore{
		EmbedQuestionFunc: func(ctx context.Context, question string) ([]float32, error) {
			return []float32{0.1, 0.2, 0.3}, nil
		},
		SearchFunc: func(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error) {
			gotK = k
			gotMinScore = minScore
			return []models.ScoredExample{
				{Example: models.TrainingExample{Question: "How many customers?", SQL: "SELECT COUNT(*) FROM customers"}, Score: 0.92},
			}, nil
		},
	}
	engine := newTestEngine(store)

	result, err := engine.Retrieve(context.Background(), "count our customers", retrievalSnapshot())
	require.NoError(t, err)

	assert.Equal(t, 5, gotK)
	assert.InDelta(t, 0.30, gotMinScore, 1e-9)
	require.Len(t, result.Examples, 1)
	assert.Equal(t, "SELECT COUNT(*) FROM customers", result.Examples[0].Example.SQL)
	require.Len(t, result.Fragments, 1)
	assert.Equal(t, "customers", result.Fragments[0].Table.Name)
}

func TestEngine_NoExamplesAboveFloor(t *testing.T) {
	store := &corpus.MockStore{
		SearchFunc: func(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error) {
			return nil, nil
		},
	}
	engine := newTestEngine(store)

	result, err := engine.Retrieve(context.Background(), "count our customers", retrievalSnapshot())
	require.NoError(t, err)

	// An empty example list is a valid retrieval result, not an error.
	assert.Empty(t, result.Examples)
	assert.NotEmpty(t, result.Fragments)
}

func TestEngine_EmbeddingFailure(t *testing.T) {
	store := &corpus.MockStore{
		EmbedQuestionFunc: func(ctx context.Context, question string) ([]float32, error) {
			return nil, errors.New("embedding service unavailable")
		},
	}
	engine := newTestEngine(store)

	_, err := engine.Retrieve(context.Background(), "count our customers", retrievalSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed question")
}

func TestEngine_SearchFailure(t *testing.T) {
	store := &corpus.MockStore{
		SearchFunc: func(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error) {
			return nil, errors.New("index unavailable")
		},
	}
	engine := newTestEngine(store)

	_, err := engine.Retrieve(context.Background(), "count our customers", retrievalSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search corpus")
}
