package logging

import (
	"go.uber.org/zap"
)

// NewLogger builds the process logger. Local runs get the human-readable
// development encoder; everything else gets production JSON.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	return zap.NewProduction()
}
