package schema

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// Describer reads table metadata from a target database.
type Describer interface {
	DescribeSchema(ctx context.Context) ([]models.Table, error)
}

// Catalog caches an immutable schema snapshot of the target database.
//
// Query sessions pin the snapshot that was current when they started, so a
// concurrent Refresh never changes what an in-flight session validates
// against.
type Catalog struct {
	describer Describer
	logger    *zap.Logger

	mu       sync.RWMutex
	current  *models.SchemaDescriptor
	loadedAt time.Time
}

// NewCatalog creates a Catalog. Call Refresh before the first Snapshot.
func NewCatalog(describer Describer, logger *zap.Logger) *Catalog {
	return &Catalog{
		describer: describer,
		logger:    logger.Named("schema"),
	}
}

// Refresh reads the target database metadata and installs a new snapshot.
// In-flight sessions keep the descriptor they started with.
func (c *Catalog) Refresh(ctx context.Context) error {
	tables, err := c.describer.DescribeSchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to describe schema: %w", err)
	}

	descriptor := models.NewSchemaDescriptor(tables)

	c.mu.Lock()
	c.current = descriptor
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("Refreshed schema snapshot", zap.Int("tables", len(tables)))
	return nil
}

// Snapshot returns the current immutable schema descriptor, refreshing it
// lazily on first use.
func (c *Catalog) Snapshot(ctx context.Context) (*models.SchemaDescriptor, error) {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()

	if current != nil {
		return current, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, nil
}

// LoadedAt reports when the current snapshot was taken.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
