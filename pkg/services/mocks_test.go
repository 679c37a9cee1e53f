package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/schemascope/schemascope-engine/pkg/apperrors"
	"github.com/schemascope/schemascope-engine/pkg/models"
	"github.com/schemascope/schemascope-engine/pkg/repositories"
)

// fakeMetadataRepository is an in-memory MetadataRepository for service
// tests. It mirrors the Postgres implementation's contract, including the
// detection compare-and-set.
type fakeMetadataRepository struct {
	mu             sync.Mutex
	tables         map[string]*models.TableNode
	columns        map[string][]*models.ColumnNode
	importStatus   map[string]string
	detection      map[string]models.DetectionStatus
	detectionError map[string]string

	failGetColumns map[string]error
}

var _ repositories.MetadataRepository = (*fakeMetadataRepository)(nil)

func newFakeMetadataRepository() *fakeMetadataRepository {
	return &fakeMetadataRepository{
		tables:         make(map[string]*models.TableNode),
		columns:        make(map[string][]*models.ColumnNode),
		importStatus:   make(map[string]string),
		detection:      make(map[string]models.DetectionStatus),
		detectionError: make(map[string]string),
		failGetColumns: make(map[string]error),
	}
}

func (f *fakeMetadataRepository) SaveTable(ctx context.Context, table *models.TableNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *table
	k := table.Key.String()
	f.tables[k] = &cp
	if _, ok := f.importStatus[k]; !ok {
		f.importStatus[k] = models.ImportStatusNotImported
		f.detection[k] = models.DetectionNotStarted
	}
	return nil
}

func (f *fakeMetadataRepository) GetTable(ctx context.Context, key models.TableKey) (*models.TableNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table, ok := f.tables[key.String()]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound)
	}
	cp := *table
	return &cp, nil
}

func (f *fakeMetadataRepository) ListTables(ctx context.Context) ([]models.TableKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []models.TableKey
	for _, t := range f.tables {
		keys = append(keys, t.Key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (f *fakeMetadataRepository) ListImportedTables(ctx context.Context) ([]models.TableKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []models.TableKey
	for k, t := range f.tables {
		if f.importStatus[k] == models.ImportStatusImported {
			keys = append(keys, t.Key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys, nil
}

func (f *fakeMetadataRepository) DeleteTable(ctx context.Context, key models.TableKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key.String()
	delete(f.tables, k)
	delete(f.columns, k)
	delete(f.importStatus, k)
	delete(f.detection, k)
	delete(f.detectionError, k)
	return nil
}

func (f *fakeMetadataRepository) SaveColumns(ctx context.Context, key models.TableKey, columns []*models.ColumnNode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cps := make([]*models.ColumnNode, len(columns))
	for i, c := range columns {
		cp := *c
		cps[i] = &cp
	}
	f.columns[key.String()] = cps
	return nil
}

func (f *fakeMetadataRepository) GetColumns(ctx context.Context, key models.TableKey) ([]*models.ColumnNode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.failGetColumns[key.String()]; err != nil {
		return nil, err
	}

	cols := f.columns[key.String()]
	cps := make([]*models.ColumnNode, len(cols))
	for i, c := range cols {
		cp := *c
		cps[i] = &cp
	}
	return cps, nil
}

func (f *fakeMetadataRepository) SetImportStatus(ctx context.Context, key models.TableKey, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key.String()
	if _, ok := f.tables[k]; !ok {
		return fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound)
	}
	f.importStatus[k] = status
	return nil
}

func (f *fakeMetadataRepository) GetDetectionStatus(ctx context.Context, key models.TableKey) (models.DetectionStatus, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key.String()
	if _, ok := f.tables[k]; !ok {
		return "", "", fmt.Errorf("table %s: %w", key, apperrors.ErrNotFound)
	}
	return f.detection[k], f.detectionError[k], nil
}

func (f *fakeMetadataRepository) TryStartDetection(ctx context.Context, key models.TableKey) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	k := key.String()
	if _, ok := f.tables[k]; !ok {
		return false, nil
	}
	if f.detection[k] == models.DetectionInProgress {
		return false, nil
	}
	f.detection[k] = models.DetectionInProgress
	f.detectionError[k] = ""
	return true, nil
}

func (f *fakeMetadataRepository) FinishDetection(ctx context.Context, key models.TableKey, status models.DetectionStatus, errMsg string) error {
	// A dead context fails the write, like any real database call would.
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if status != models.DetectionCompleted && status != models.DetectionFailed {
		return fmt.Errorf("invalid terminal detection status %q", status)
	}
	k := key.String()
	f.detection[k] = status
	f.detectionError[k] = errMsg
	return nil
}

func (f *fakeMetadataRepository) ResetAbandonedDetections(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for k, status := range f.detection {
		if status == models.DetectionInProgress {
			f.detection[k] = models.DetectionFailed
			f.detectionError[k] = "detection interrupted by restart"
			n++
		}
	}
	return n, nil
}

// markImported sets up a table as fully imported, skipping the import flow.
func (f *fakeMetadataRepository) markImported(table *models.TableNode, columns []*models.ColumnNode) {
	_ = f.SaveTable(context.Background(), table)
	_ = f.SaveColumns(context.Background(), table.Key, columns)
	f.mu.Lock()
	f.importStatus[table.Key.String()] = models.ImportStatusImported
	f.mu.Unlock()
}

// fakeEmbedder returns deterministic vectors without a provider.
type fakeEmbedder struct {
	dims  int
	embed func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embed != nil {
		return f.embed(ctx, text)
	}
	return make([]float32, f.dims), nil
}

func (f *fakeEmbedder) StoreDimensions() int { return f.dims }

// fakeTrigger records detection trigger calls.
type fakeTrigger struct {
	mu      sync.Mutex
	calls   []models.TableKey
	started bool
	err     error
}

func (f *fakeTrigger) Trigger(ctx context.Context, key models.TableKey) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.started, f.err
}
