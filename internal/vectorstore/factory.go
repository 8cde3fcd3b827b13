package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// New constructs the configured Store backend.
func New(provider string, qcfg QdrantConfig, ccfg ChromemConfig, logger *zap.Logger) (Store, error) {
	switch provider {
	case "qdrant":
		return NewQdrantStore(qcfg, logger)
	case "chromem":
		return NewChromemStore(ccfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, provider)
	}
}
