package corpus

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// exampleNamespace is the UUIDv5 namespace for deterministic example ids.
// Deriving the id from the (question, SQL) pair makes both reseeding and
// repeated feedback confirmation idempotent.
var exampleNamespace = uuid.MustParse("7f3c1d8a-52f1-4b46-9e06-6de53a0edc91")

// ExampleID returns the deterministic id for a (question, SQL) pair.
func ExampleID(question, sql string) uuid.UUID {
	return uuid.NewSHA1(exampleNamespace, []byte(question+"\n"+sql))
}

// SeedFile is the YAML seed corpus format.
type SeedFile struct {
	Examples []SeedExample `yaml:"examples"`
}

// SeedExample is one seed entry.
type SeedExample struct {
	Question  string `yaml:"question"`
	SQL       string `yaml:"sql"`
	SchemaTag string `yaml:"schema_tag,omitempty"`
}

// Seeder loads a seed corpus file into a store.
type Seeder struct {
	store  Store
	logger *zap.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(store Store, logger *zap.Logger) *Seeder {
	return &Seeder{store: store, logger: logger.Named("seeder")}
}

// SeedFromFile parses a YAML seed corpus and upserts every entry with seeded
// provenance. Ids are deterministic, so running the seeder twice leaves the
// corpus unchanged. Returns the number of entries written.
func (s *Seeder) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	seeded := 0
	for _, entry := range file.Examples {
		if entry.Question == "" || entry.SQL == "" {
			s.logger.Warn("Skipping seed entry with empty question or sql")
			continue
		}

		example := &models.TrainingExample{
			ID:         ExampleID(entry.Question, entry.SQL),
			Question:   entry.Question,
			SQL:        entry.SQL,
			SchemaTag:  entry.SchemaTag,
			Provenance: models.ProvenanceSeeded,
		}

		if err := s.store.Upsert(ctx, example); err != nil {
			return seeded, fmt.Errorf("failed to seed example %q: %w", entry.Question, err)
		}
		seeded++
	}

	s.logger.Info("Seeded training corpus", zap.Int("examples", seeded), zap.String("path", path))
	return seeded, nil
}
