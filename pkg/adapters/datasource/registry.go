package datasource

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/config"
)

// Factory creates a Connector for one dialect.
type Factory func(ctx context.Context, cfg config.TargetConfig, logger *zap.Logger) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register is called by each adapter's init() function.
// Thread-safe for concurrent init() calls.
func Register(dialect string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[dialect] = factory
}

// RegisteredDialects returns the dialect names with a registered factory.
func RegisteredDialects() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	dialects := make([]string, 0, len(registry))
	for name := range registry {
		dialects = append(dialects, name)
	}
	return dialects
}

// Open creates a Connector for the configured target dialect.
func Open(ctx context.Context, cfg config.TargetConfig, logger *zap.Logger) (Connector, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported target type %q (registered: %v)", cfg.Type, RegisteredDialects())
	}
	return factory(ctx, cfg, logger)
}
