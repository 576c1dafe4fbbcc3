// Package repositories provides pgx-backed persistence for the training corpus.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askdb-inc/askdb-engine/pkg/apperrors"
	"github.com/askdb-inc/askdb-engine/pkg/database"
	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// TrainingExampleRepository provides durable storage for training examples.
// Every mutation is committed before the call returns so a crash cannot lose
// a confirmed correction.
type TrainingExampleRepository interface {
	// Upsert inserts or replaces the example by id.
	Upsert(ctx context.Context, example *models.TrainingExample) error

	// GetByID returns the example or apperrors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.TrainingExample, error)

	// List returns all examples ordered by creation time descending.
	List(ctx context.Context) ([]*models.TrainingExample, error)

	// Delete removes the example by id, apperrors.ErrNotFound when absent.
	Delete(ctx context.Context, id uuid.UUID) error

	// CountByProvenance returns example counts grouped by provenance.
	CountByProvenance(ctx context.Context) (map[models.Provenance]int, error)
}

type trainingExampleRepository struct {
	db *database.DB
}

// NewTrainingExampleRepository creates a new TrainingExampleRepository.
func NewTrainingExampleRepository(db *database.DB) TrainingExampleRepository {
	return &trainingExampleRepository{db: db}
}

var _ TrainingExampleRepository = (*trainingExampleRepository)(nil)

func (r *trainingExampleRepository) Upsert(ctx context.Context, example *models.TrainingExample) error {
	if example.CreatedAt.IsZero() {
		example.CreatedAt = time.Now()
	}

	sql := `
		INSERT INTO training_examples (id, question, sql_text, embedding, schema_tag, provenance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET question = EXCLUDED.question,
		    sql_text = EXCLUDED.sql_text,
		    embedding = EXCLUDED.embedding,
		    schema_tag = EXCLUDED.schema_tag,
		    provenance = EXCLUDED.provenance`

	_, err := r.db.Exec(ctx, sql,
		example.ID, example.Question, example.SQL, example.Embedding,
		example.SchemaTag, string(example.Provenance), example.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert training example: %w", err)
	}

	return nil
}

func (r *trainingExampleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.TrainingExample, error) {
	sql := `
		SELECT id, question, sql_text, embedding, schema_tag, provenance, created_at
		FROM training_examples
		WHERE id = $1`

	row := r.db.QueryRow(ctx, sql, id)
	example, err := scanTrainingExample(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get training example: %w", err)
	}

	return example, nil
}

func (r *trainingExampleRepository) List(ctx context.Context) ([]*models.TrainingExample, error) {
	sql := `
		SELECT id, question, sql_text, embedding, schema_tag, provenance, created_at
		FROM training_examples
		ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to list training examples: %w", err)
	}
	defer rows.Close()

	examples := make([]*models.TrainingExample, 0)
	for rows.Next() {
		example, err := scanTrainingExample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training example: %w", err)
		}
		examples = append(examples, example)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating training examples: %w", err)
	}

	return examples, nil
}

func (r *trainingExampleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM training_examples WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete training example: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *trainingExampleRepository) CountByProvenance(ctx context.Context) (map[models.Provenance]int, error) {
	rows, err := r.db.Query(ctx, `SELECT provenance, COUNT(*) FROM training_examples GROUP BY provenance`)
	if err != nil {
		return nil, fmt.Errorf("failed to count training examples: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Provenance]int)
	for rows.Next() {
		var provenance string
		var count int
		if err := rows.Scan(&provenance, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.Provenance(provenance)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

func scanTrainingExample(row pgx.Row) (*models.TrainingExample, error) {
	var e models.TrainingExample
	var provenance string
	err := row.Scan(&e.ID, &e.Question, &e.SQL, &e.Embedding, &e.SchemaTag, &provenance, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Provenance = models.Provenance(provenance)
	return &e, nil
}
