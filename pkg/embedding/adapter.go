// Package embedding adapts provider embeddings to the fixed dimension the
// graph store indexes.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/llm"
)

// ErrDimensionExceedsStore means the provider model emits more dimensions
// than the store index holds. Padding can widen a vector but nothing can
// shrink one without destroying similarity, so this is a configuration error
// the deployment must fix.
var ErrDimensionExceedsStore = errors.New("embedding model dimension exceeds store dimension")

// Embedder is the minimal surface services need. Adapter implements it;
// tests substitute fakes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	StoreDimensions() int
}

// Adapter wraps an embedding client and guarantees every returned vector has
// exactly the store's indexed dimension. Models emitting fewer dimensions
// are right-padded with zeros, which preserves cosine similarity ordering
// between vectors padded the same way.
type Adapter struct {
	client    llm.LLMClient
	storeDims int
	logger    *zap.Logger

	mu        sync.Mutex
	modelDims int // Native model dimension, learned from the first successful call
}

var _ Embedder = (*Adapter)(nil)

// NewAdapter creates an Adapter targeting the given store dimension.
func NewAdapter(client llm.LLMClient, storeDims int, logger *zap.Logger) *Adapter {
	return &Adapter{
		client:    client,
		storeDims: storeDims,
		logger:    logger.Named("embedding"),
	}
}

// StoreDimensions returns the fixed output dimension.
func (a *Adapter) StoreDimensions() int {
	return a.storeDims
}

// Embed generates an embedding for text, padded to the store dimension.
// Provider failures are wrapped as apperrors.ErrEmbeddingUnavailable so
// callers can distinguish "provider down" from their own bugs.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := a.client.CreateEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEmbeddingUnavailable, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty vector", apperrors.ErrEmbeddingUnavailable)
	}

	if err := a.checkDimensions(len(vec)); err != nil {
		return nil, err
	}

	return PadVector(vec, a.storeDims)
}

// checkDimensions validates the native dimension against the store and
// caches it after the first call. A model swap mid-flight would corrupt the
// index, so a change in native dimension is also rejected.
func (a *Adapter) checkDimensions(native int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if native > a.storeDims {
		return fmt.Errorf("%w: model emits %d, store holds %d", ErrDimensionExceedsStore, native, a.storeDims)
	}

	if a.modelDims == 0 {
		a.modelDims = native
		a.logger.Info("Embedding model dimension discovered",
			zap.Int("model_dims", native),
			zap.Int("store_dims", a.storeDims))
		return nil
	}

	if native != a.modelDims {
		return fmt.Errorf("embedding dimension changed from %d to %d; was the model swapped?", a.modelDims, native)
	}
	return nil
}

// PadVector right-pads vec with zeros to dims. Already-full vectors are
// returned as a copy unchanged; longer vectors are an error.
func PadVector(vec []float32, dims int) ([]float32, error) {
	if len(vec) > dims {
		return nil, fmt.Errorf("%w: vector has %d dimensions, store holds %d", ErrDimensionExceedsStore, len(vec), dims)
	}
	padded := make([]float32, dims)
	copy(padded, vec)
	return padded, nil
}
