package corpus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// fakeRepo is an in-memory TrainingExampleRepository.
type fakeRepo struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*models.TrainingExample
	upserts  int
	failNext error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[uuid.UUID]*models.TrainingExample{}}
}

func (r *fakeRepo) Upsert(ctx context.Context, example *models.TrainingExample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	stored := *example
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	r.rows[example.ID] = &stored
	r.upserts++
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.TrainingExample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[id]; ok {
		return row, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeRepo) List(ctx context.Context) ([]*models.TrainingExample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.TrainingExample, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeRepo) CountByProvenance(ctx context.Context) (map[models.Provenance]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[models.Provenance]int{}
	for _, row := range r.rows {
		counts[row.Provenance]++
	}
	return counts, nil
}

// fakeEmbedder maps known texts to fixed vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error) {
	if vec, ok := e.vectors[input]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (e *fakeEmbedder) CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, input := range inputs {
		vec, err := e.CreateEmbedding(ctx, input, model)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func newTestStore(t *testing.T, repo *fakeRepo, embedder *fakeEmbedder) Store {
	t.Helper()
	store, err := NewStore(context.Background(), repo, embedder, "test-embedding", zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestStore_UpsertIsDurableBeforeSearchable(t *testing.T) {
	repo := newFakeRepo()
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	store := newTestStore(t, repo, embedder)

	example := &models.TrainingExample{
		Question:   "How many users?",
		SQL:        "SELECT COUNT(*) FROM users",
		Provenance: models.ProvenanceSeeded,
	}
	require.NoError(t, store.Upsert(context.Background(), example))

	assert.Equal(t, 1, repo.upserts)
	assert.NotEqual(t, uuid.Nil, example.ID)
	assert.NotEmpty(t, example.Embedding)
}

func TestStore_FailedDurableWriteNotSearchable(t *testing.T) {
	repo := newFakeRepo()
	repo.failNext = assert.AnError
	embedder := &fakeEmbedder{}
	store := newTestStore(t, repo, embedder)

	example := &models.TrainingExample{Question: "q", SQL: "SELECT 1"}
	require.Error(t, store.Upsert(context.Background(), example))

	results, err := store.Search(context.Background(), []float32{0, 0, 1}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchRoundTrip(t *testing.T) {
	question := "How many users signed up today?"
	example := &models.TrainingExample{
		Question: question,
		SQL:      "SELECT COUNT(*) FROM users WHERE created_at >= current_date",
	}

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		example.EmbeddingText(): {1, 0, 0},
		question:                {0.95, 0.05, 0},
	}}
	repo := newFakeRepo()
	store := newTestStore(t, repo, embedder)

	require.NoError(t, store.Upsert(context.Background(), example))

	// Fill with unrelated examples.
	for _, other := range []string{"a", "b", "c"} {
		require.NoError(t, store.Upsert(context.Background(), &models.TrainingExample{
			Question: other, SQL: "SELECT " + other,
		}))
	}

	queryEmbedding, err := store.EmbedQuestion(context.Background(), question)
	require.NoError(t, err)

	results, err := store.Search(context.Background(), queryEmbedding, 5, 0.30)
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.Equal(t, example.ID, results[0].Example.ID)
	assert.Greater(t, results[0].Score, 0.30)
}

func TestStore_SearchHonorsKAndFloor(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	repo := newFakeRepo()
	store := newTestStore(t, repo, embedder)

	// All examples embed to {0,0,1}; the query matches them all perfectly.
	for _, q := range []string{"q1", "q2", "q3", "q4", "q5", "q6", "q7"} {
		require.NoError(t, store.Upsert(context.Background(), &models.TrainingExample{
			Question: q, SQL: "SELECT 1",
		}))
	}

	results, err := store.Search(context.Background(), []float32{0, 0, 1}, 3, 0.30)
	require.NoError(t, err)
	assert.Len(t, results, 3)

	// An orthogonal query clears nothing above the floor.
	results, err = store.Search(context.Background(), []float32{1, 0, 0}, 3, 0.30)
	require.NoError(t, err)
	assert.Empty(t, results)

	// k of zero returns nothing.
	results, err = store.Search(context.Background(), []float32{0, 0, 1}, 0, 0.30)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchOrderedDescending(t *testing.T) {
	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	repo := newFakeRepo()
	store := newTestStore(t, repo, embedder)

	examples := map[string][]float32{
		"close":   {0.9, 0.1, 0},
		"closer":  {0.99, 0.01, 0},
		"distant": {0.5, 0.5, 0.5},
	}
	for q, vec := range examples {
		e := &models.TrainingExample{Question: q, SQL: "SELECT 1"}
		embedder.vectors[e.EmbeddingText()] = vec
		require.NoError(t, store.Upsert(context.Background(), e))
	}

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "closer", results[0].Example.Question)
	assert.Equal(t, "close", results[1].Example.Question)
	assert.Equal(t, "distant", results[2].Example.Question)
	assert.True(t, results[0].Score >= results[1].Score)
	assert.True(t, results[1].Score >= results[2].Score)
}

func TestStore_RemoveUnknownID(t *testing.T) {
	store := newTestStore(t, newFakeRepo(), &fakeEmbedder{})
	err := store.Remove(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_ConcurrentSearchDuringUpserts(t *testing.T) {
	embedder := &fakeEmbedder{}
	repo := newFakeRepo()
	store := newTestStore(t, repo, embedder)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Upsert(context.Background(), &models.TrainingExample{
				Question: string(rune('a' + n)),
				SQL:      "SELECT 1",
			})
		}(i)
		go func() {
			defer wg.Done()
			_, err := store.Search(context.Background(), []float32{0, 0, 1}, 5, 0)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	results, err := store.Search(context.Background(), []float32{0, 0, 1}, 100, 0.5)
	require.NoError(t, err)
	assert.Len(t, results, 8)
}

func TestStore_StatsByProvenance(t *testing.T) {
	store := newTestStore(t, newFakeRepo(), &fakeEmbedder{})

	require.NoError(t, store.Upsert(context.Background(), &models.TrainingExample{
		Question: "a", SQL: "SELECT 1", Provenance: models.ProvenanceSeeded,
	}))
	require.NoError(t, store.Upsert(context.Background(), &models.TrainingExample{
		Question: "b", SQL: "SELECT 2", Provenance: models.ProvenanceUserConfirmed,
	}))
	require.NoError(t, store.Upsert(context.Background(), &models.TrainingExample{
		Question: "c", SQL: "SELECT 3", Provenance: models.ProvenanceUserConfirmed,
	}))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.ProvenanceSeeded])
	assert.Equal(t, 2, stats[models.ProvenanceUserConfirmed])
}
