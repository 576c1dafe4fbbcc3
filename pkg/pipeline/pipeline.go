package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/feedback"
	"github.com/askdb-inc/askdb-engine/pkg/generation"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/prompt"
	"github.com/askdb-inc/askdb-engine/pkg/retrieval"
	"github.com/askdb-inc/askdb-engine/pkg/schema"
)

// Pipeline is the question-to-result facade: retrieval, prompt composition,
// generation with repair, execution, and the feedback loop behind two calls.
type Pipeline interface {
	// Ask drives one question to a terminal session. The returned session
	// carries the full attempt history whatever the outcome; the error is
	// non-nil only for infrastructure failures that prevented a verdict.
	Ask(ctx context.Context, question string, history []prompt.Turn) (*models.QuerySession, error)

	// Confirm promotes a succeeded session's statement into the corpus.
	Confirm(ctx context.Context, session *models.QuerySession) (*models.TrainingExample, error)
}

type pipeline struct {
	catalog    *schema.Catalog
	retriever  retrieval.Engine
	engine     generation.Engine
	feedback   feedback.Service
	summarizer *Summarizer // nil disables result summaries
	logger     *zap.Logger
}

// New wires the pipeline. Pass a nil summarizer to skip natural-language
// result summaries.
func New(catalog *schema.Catalog, retriever retrieval.Engine, engine generation.Engine, fb feedback.Service, summarizer *Summarizer, logger *zap.Logger) Pipeline {
	return &pipeline{
		catalog:    catalog,
		retriever:  retriever,
		engine:     engine,
		feedback:   fb,
		summarizer: summarizer,
		logger:     logger.Named("pipeline"),
	}
}

func (p *pipeline) Ask(ctx context.Context, question string, history []prompt.Turn) (*models.QuerySession, error) {
	snapshot, err := p.catalog.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema snapshot: %w", err)
	}

	session := generation.NewSession(question, snapshot)

	retrieved, err := p.retriever.Retrieve(ctx, question, snapshot)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	if err := p.engine.Run(ctx, session, retrieved, history); err != nil {
		return nil, err
	}

	if session.Status == models.SessionSucceeded && p.summarizer != nil {
		summary, err := p.summarizer.Summarize(ctx, session.Question, session.FinalSQL, session.Result)
		if err != nil {
			// A missing summary never fails a succeeded session.
			p.logger.Warn("Result summary failed", zap.Error(err))
		} else {
			session.Summary = summary
		}
	}

	return session, nil
}

func (p *pipeline) Confirm(ctx context.Context, session *models.QuerySession) (*models.TrainingExample, error) {
	return p.feedback.Confirm(ctx, session)
}
