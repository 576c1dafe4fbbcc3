package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/corpus"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
)

// Engine assembles the retrieval context for one question: similar solved
// examples from the training corpus plus the relevant schema fragments.
type Engine interface {
	Retrieve(ctx context.Context, question string, snapshot *models.SchemaDescriptor) (*models.RetrievalResult, error)
}

type engine struct {
	store     corpus.Store
	fragments *schema.FragmentSelector
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// NewEngine creates a retrieval Engine.
func NewEngine(store corpus.Store, fragments *schema.FragmentSelector, cfg config.RetrievalConfig, logger *zap.Logger) Engine {
	return &engine{
		store:     store,
		fragments: fragments,
		cfg:       cfg,
		logger:    logger.Named("retrieval"),
	}
}

// Retrieve embeds the question, searches the corpus, and selects schema
// fragments. A question with no similar examples above the floor yields an
// empty example list rather than padding with poor matches.
func (e *engine) Retrieve(ctx context.Context, question string, snapshot *models.SchemaDescriptor) (*models.RetrievalResult, error) {
	queryEmbedding, err := e.store.EmbedQuestion(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	examples, err := e.store.Search(ctx, queryEmbedding, e.cfg.TopK, e.cfg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("failed to search corpus: %w", err)
	}

	fragments := e.fragments.Select(snapshot, question)

	e.logger.Debug("Retrieved context",
		zap.Int("examples", len(examples)),
		zap.Int("fragments", len(fragments)))

	return &models.RetrievalResult{
		Examples:  examples,
		Fragments: fragments,
	}, nil
}
