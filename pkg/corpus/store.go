// Package corpus implements the training corpus store: durable persistence of
// vetted (question, SQL) pairs plus in-process similarity search over their
// embeddings.
package corpus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/repositories"
)

// Embedder computes embedding vectors for text. Deterministic for identical
// input and model version.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string, model string) ([]float32, error)
	CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error)
}

// Store is the training corpus store contract.
type Store interface {
	// Upsert inserts or replaces an example by id, recomputing its embedding
	// from the current question and SQL text. The write is durable before
	// Upsert returns.
	Upsert(ctx context.Context, example *models.TrainingExample) error

	// Search returns up to k examples with similarity >= minScore, ordered
	// descending by similarity, ties broken by most recent creation time.
	Search(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error)

	// Remove deletes an example, apperrors.ErrNotFound on unknown id.
	Remove(ctx context.Context, id uuid.UUID) error

	// List returns all examples, newest first.
	List(ctx context.Context) ([]*models.TrainingExample, error)

	// Stats returns example counts grouped by provenance.
	Stats(ctx context.Context) (map[models.Provenance]int, error)

	// EmbedQuestion computes the retrieval embedding for a raw question.
	EmbedQuestion(ctx context.Context, question string) ([]float32, error)
}

type store struct {
	repo           repositories.TrainingExampleRepository
	embedder       Embedder
	embeddingModel string
	logger         *zap.Logger

	// writeMu serializes mutations so concurrent upserts against the same id
	// resolve last-writer-wins with durable ordering. Searches only take the
	// index RLock and never block on unrelated writes in flight.
	writeMu sync.Mutex

	mu    sync.RWMutex
	index map[uuid.UUID]*models.TrainingExample
}

// NewStore creates a corpus store and loads the durable corpus into the
// in-memory index.
func NewStore(ctx context.Context, repo repositories.TrainingExampleRepository, embedder Embedder, embeddingModel string, logger *zap.Logger) (Store, error) {
	s := &store{
		repo:           repo,
		embedder:       embedder,
		embeddingModel: embeddingModel,
		logger:         logger.Named("corpus"),
		index:          make(map[uuid.UUID]*models.TrainingExample),
	}

	examples, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	for _, e := range examples {
		s.index[e.ID] = e
	}

	s.logger.Info("Loaded training corpus", zap.Int("examples", len(examples)))
	return s, nil
}

func (s *store) Upsert(ctx context.Context, example *models.TrainingExample) error {
	if example.ID == uuid.Nil {
		example.ID = uuid.New()
	}

	embedding, err := s.embedder.CreateEmbedding(ctx, example.EmbeddingText(), s.embeddingModel)
	if err != nil {
		return fmt.Errorf("failed to embed training example: %w", err)
	}
	example.Embedding = embedding

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Durable write first; the index only ever reflects persisted state.
	if err := s.repo.Upsert(ctx, example); err != nil {
		return err
	}

	stored := *example
	s.mu.Lock()
	s.index[example.ID] = &stored
	s.mu.Unlock()

	s.logger.Debug("Upserted training example",
		zap.String("id", example.ID.String()),
		zap.String("provenance", string(example.Provenance)))

	return nil
}

func (s *store) Search(ctx context.Context, queryEmbedding []float32, k int, minScore float64) ([]models.ScoredExample, error) {
	if k <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	scored := make([]models.ScoredExample, 0, len(s.index))
	for _, e := range s.index {
		score := CosineSimilarity(queryEmbedding, e.Embedding)
		if score >= minScore {
			scored = append(scored, models.ScoredExample{Example: *e, Score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Example.CreatedAt.After(scored[j].Example.CreatedAt)
	})

	if len(scored) > k {
		scored = scored[:k]
	}

	return scored, nil
}

func (s *store) Remove(ctx context.Context, id uuid.UUID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()

	return nil
}

func (s *store) List(ctx context.Context) ([]*models.TrainingExample, error) {
	return s.repo.List(ctx)
}

func (s *store) Stats(ctx context.Context) (map[models.Provenance]int, error) {
	return s.repo.CountByProvenance(ctx)
}

func (s *store) EmbedQuestion(ctx context.Context, question string) ([]float32, error) {
	return s.embedder.CreateEmbedding(ctx, question, s.embeddingModel)
}
