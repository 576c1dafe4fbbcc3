package feedback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
	"github.com/askdb-inc/askdb-engine/pkg/corpus"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

// Service promotes confirmed question/SQL pairs into the training corpus.
type Service interface {
	// Confirm stores the session's final statement as a user-confirmed
	// training example. Only succeeded sessions can be confirmed; the
	// example id is derived from the (question, SQL) pair, so confirming
	// the same session twice upserts the same row.
	Confirm(ctx context.Context, session *models.QuerySession) (*models.TrainingExample, error)
}

type service struct {
	store  corpus.Store
	policy sqlcheck.Policy
	logger *zap.Logger
}

// NewService creates the feedback Service.
func NewService(store corpus.Store, policy sqlcheck.Policy, logger *zap.Logger) Service {
	return &service{
		store:  store,
		policy: policy,
		logger: logger.Named("feedback"),
	}
}

func (s *service) Confirm(ctx context.Context, session *models.QuerySession) (*models.TrainingExample, error) {
	if session.Status != models.SessionSucceeded || session.FinalSQL == "" {
		return nil, fmt.Errorf("cannot confirm session %s with status %q: %w",
			session.ID, session.Status, apperrors.ErrSessionNotFinal)
	}

	// The question is free text; screen it for injection payloads before it
	// becomes retrieval context for future prompts.
	if check := sqlcheck.CheckForInjection("question", session.Question); check != nil {
		return nil, fmt.Errorf("question failed injection screening (fingerprint %s)", check.Fingerprint)
	}

	// The statement passed validation when the session succeeded, but the
	// corpus outlives the session; re-check shape and policy at the boundary.
	result := sqlcheck.ValidateAndNormalize(session.FinalSQL)
	if result.Error != nil {
		return nil, fmt.Errorf("confirmed SQL rejected: %w", result.Error)
	}
	if _, err := s.policy.Check(result.NormalizedSQL); err != nil {
		return nil, fmt.Errorf("confirmed SQL rejected: %w", err)
	}

	example := &models.TrainingExample{
		ID:         corpus.ExampleID(session.Question, result.NormalizedSQL),
		Question:   session.Question,
		SQL:        result.NormalizedSQL,
		Provenance: models.ProvenanceUserConfirmed,
	}

	if err := s.store.Upsert(ctx, example); err != nil {
		return nil, fmt.Errorf("failed to store confirmed example: %w", err)
	}

	s.logger.Info("Confirmed training example",
		zap.String("example_id", example.ID.String()),
		zap.String("session_id", session.ID.String()))
	return example, nil
}
