package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the LLM worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent LLM calls (default: 4)
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxConcurrent: 4,
	}
}

// WorkerPool executes LLM calls with bounded parallelism so a large catalog
// doesn't flood the provider with concurrent requests.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new LLM worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 4
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("llm-worker-pool"),
	}
}

// WorkItem is one LLM call to run through the pool.
type WorkItem[T any] struct {
	Key     string                               // For logging/tracking
	Execute func(ctx context.Context) (T, error) // The work to be executed
}

// WorkResult pairs a work item's key with its outcome.
type WorkResult[T any] struct {
	Key    string
	Result T
	Err    error
}

// Process runs every item through a fixed set of workers and returns results
// indexed by submission order, so callers that resolve conflicts by
// first-seen position get deterministic output. A failed item never stops
// the rest; its error lands in the matching WorkResult. Once ctx is
// cancelled, items that have not yet started report ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	results := make([]WorkResult[T], len(items))
	jobs := make(chan int)

	workers := pool.config.MaxConcurrent
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				item := items[i]
				if err := ctx.Err(); err != nil {
					results[i] = WorkResult[T]{Key: item.Key, Err: err}
					continue
				}
				out, err := item.Execute(ctx)
				if err != nil {
					pool.logger.Debug("Work item failed",
						zap.String("key", item.Key),
						zap.Error(err))
				}
				results[i] = WorkResult[T]{Key: item.Key, Result: out, Err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
