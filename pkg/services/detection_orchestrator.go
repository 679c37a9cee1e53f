package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
)

// DetectionOrchestrator runs relationship detection in the background, one
// run per table at a time. The at-most-one guarantee is a compare-and-set on
// the persisted detection status, so it holds across process restarts and
// concurrent triggers alike. A failed run stays failed until an operator or
// a re-import triggers again; there is no automatic retry.
type DetectionOrchestrator interface {
	DetectionTrigger

	// Status returns the current detection status and, for failed runs, the
	// error message.
	Status(ctx context.Context, key models.TableKey) (models.DetectionStatus, string, error)

	// Shutdown waits for in-flight runs to finish, up to the context
	// deadline.
	Shutdown(ctx context.Context) error
}

type detectionOrchestrator struct {
	detector RelationshipDetector
	metadata repositories.MetadataRepository
	timeout  time.Duration
	logger   *zap.Logger

	wg sync.WaitGroup
}

var _ DetectionOrchestrator = (*detectionOrchestrator)(nil)

// NewDetectionOrchestrator creates the orchestrator. timeout bounds a single
// detection run; zero means one hour.
func NewDetectionOrchestrator(
	detector RelationshipDetector,
	metadata repositories.MetadataRepository,
	timeout time.Duration,
	logger *zap.Logger,
) DetectionOrchestrator {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &detectionOrchestrator{
		detector: detector,
		metadata: metadata,
		timeout:  timeout,
		logger:   logger.Named("detection-orchestrator"),
	}
}

// Trigger attempts to start a detection run for the table. Returns false
// when a run is already in flight; that caller lost the CAS race and the
// trigger is a no-op.
func (o *detectionOrchestrator) Trigger(ctx context.Context, key models.TableKey) (bool, error) {
	started, err := o.metadata.TryStartDetection(ctx, key)
	if err != nil {
		return false, err
	}
	if !started {
		return false, nil
	}

	o.wg.Add(1)
	go o.run(key)
	return true, nil
}

// finishWriteTimeout bounds the terminal status write at the end of a run.
const finishWriteTimeout = 30 * time.Second

// run executes one detection pass detached from the triggering request.
func (o *detectionOrchestrator) run(key models.TableKey) {
	defer o.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	log := o.logger.With(zap.String("table", key.String()))
	start := time.Now()

	result, err := o.detector.DetectForTable(ctx, key)

	// The terminal write must not share the run context: when the run timed
	// out, a write on the expired context would fail and leave the status
	// in_progress, blocking every future trigger's compare-and-set.
	finishCtx, finishCancel := context.WithTimeout(context.WithoutCancel(ctx), finishWriteTimeout)
	defer finishCancel()

	if err != nil {
		log.Error("Detection run failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		if finishErr := o.metadata.FinishDetection(finishCtx, key, models.DetectionFailed, err.Error()); finishErr != nil {
			log.Error("Failed to record detection failure", zap.Error(finishErr))
		}
		return
	}

	log.Info("Detection run completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("edges_persisted", result.EdgesPersisted))
	if finishErr := o.metadata.FinishDetection(finishCtx, key, models.DetectionCompleted, ""); finishErr != nil {
		log.Error("Failed to record detection completion", zap.Error(finishErr))
	}
}

func (o *detectionOrchestrator) Status(ctx context.Context, key models.TableKey) (models.DetectionStatus, string, error) {
	return o.metadata.GetDetectionStatus(ctx, key)
}

func (o *detectionOrchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
