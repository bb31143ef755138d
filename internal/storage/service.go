package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage/aggregate"
	"github.com/vejrdk/weatherarchive/internal/storage/archive"
	"github.com/vejrdk/weatherarchive/internal/storage/config"
	"github.com/vejrdk/weatherarchive/internal/storage/export"
	"github.com/vejrdk/weatherarchive/internal/storage/parallel"
	"github.com/vejrdk/weatherarchive/internal/storage/relational"
	"github.com/vejrdk/weatherarchive/internal/storage/retention"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Store is the storage engine facade. It owns both backends, the file
// retention manager, and the optional batch summary, and runs the periodic
// retention sweep.
type Store struct {
	config *config.Config
	log    *slog.Logger

	file       *fileBackend
	rel        *relationalBackend
	relStore   *relational.Store
	fileSweeps *retention.Manager
	exporter   *export.Exporter
	summary    *aggregate.BatchSummary

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RetentionReport reports one full retention pass across both backends.
type RetentionReport struct {
	Cutoff          time.Time
	RowsSoftDeleted int64
	Files           retention.SweepResult
}

// RestoreReport reports one full restore pass across both backends.
type RestoreReport struct {
	RowsRestored int64
	Files        retention.SweepResult
}

// New creates a Store from the configuration. The relational database is
// opened (and its schema ensured) immediately; directory roots are created
// if absent.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, errors.Wrap(errors.ErrIO, err.Error())
	}

	advisor := parallel.New(parallel.WithMax(cfg.Parallelism.MaxWorkers))

	relStore, err := relational.Open(ctx, cfg.Database.Path, cfg.Database.MemoryLimit)
	if err != nil {
		return nil, err
	}

	reader := archive.NewReader(cfg.ActiveDir, advisor)
	s := &Store{
		config: cfg,
		log:    logging.Component("storage"),
		file: &fileBackend{
			writer: archive.NewWriter(cfg.ActiveDir, advisor),
			reader: reader,
		},
		rel:        &relationalBackend{store: relStore},
		relStore:   relStore,
		fileSweeps: retention.New(advisor),
		exporter:   export.New(reader),
	}
	if cfg.Summary.Enabled {
		s.summary = aggregate.NewBatchSummary(cfg.Summary.Accuracy)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// Start launches the periodic retention sweep when enabled.
func (s *Store) Start() error {
	if s.running.Load() {
		return fmt.Errorf("storage already running")
	}
	s.running.Store(true)

	if s.config.Retention.Enabled {
		s.wg.Add(1)
		go s.retentionWorker()
	}

	s.log.Info("storage started",
		"active_dir", s.config.ActiveDir,
		"archive_dir", s.config.ArchiveDir,
		"retention", s.config.Retention.Enabled)
	return nil
}

// Stop stops background workers and closes the relational store.
func (s *Store) Stop() error {
	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()
	s.wg.Wait()
	return s.relStore.Close()
}

// backend maps the caller-supplied flag to a backend.
func (s *Store) backend(useRelational bool) Backend {
	if useRelational {
		return s.rel
	}
	return s.file
}

// Ingest persists a batch into the backend selected by useRelational.
// File-backend batches may complete partially (IngestResult.Err carries the
// detail); relational batches are all-or-nothing.
func (s *Store) Ingest(ctx context.Context, records []types.WeatherRecord, useRelational bool) (IngestResult, error) {
	backend := s.backend(useRelational)
	result, err := backend.Ingest(ctx, records)
	if err != nil {
		return result, err
	}

	if s.summary != nil {
		s.summary.AddRecords(records)
	}

	s.log.Debug("batch ingested",
		"backend", result.Backend, "records", result.Records, "skipped", result.Skipped)
	return result, nil
}

// Search returns records matching the request from the backend its flag
// selects. Results from the file backend are in partition arrival order;
// callers needing time order must sort.
func (s *Store) Search(ctx context.Context, req types.SearchRequest) ([]types.WeatherRecord, error) {
	return s.backend(req.UseRelational).Search(ctx, req.Coordinates, req.From, req.To)
}

// RunRetention soft-deletes relational rows older than the cutoff and
// mirrors old partition files into the archive tree. The two backends age
// independently; a failure in one does not roll back the other.
func (s *Store) RunRetention(ctx context.Context, cutoff time.Time) (RetentionReport, error) {
	report := RetentionReport{Cutoff: cutoff}

	rows, err := s.relStore.SoftDelete(ctx, cutoff)
	if err != nil {
		return report, err
	}
	report.RowsSoftDeleted = rows

	files, err := s.fileSweeps.ArchiveOldFiles(ctx, s.config.ActiveDir, s.config.ArchiveDir, cutoff)
	report.Files = files
	if err != nil {
		return report, err
	}
	return report, files.Err()
}

// RestoreAll clears the relational delete flags and moves archived
// partition files back into the active tree.
func (s *Store) RestoreAll(ctx context.Context) (RestoreReport, error) {
	var report RestoreReport

	rows, err := s.relStore.Restore(ctx)
	if err != nil {
		return report, err
	}
	report.RowsRestored = rows

	files, err := s.fileSweeps.RestoreFiles(ctx, s.config.ArchiveDir, s.config.ActiveDir)
	report.Files = files
	if err != nil {
		return report, err
	}
	return report, files.Err()
}

// SeedLocations bulk-loads city and location rows into the relational
// store.
func (s *Store) SeedLocations(ctx context.Context, cities []types.City, locations []types.Location) error {
	return s.relStore.SeedLocations(ctx, cities, locations)
}

// Export writes the matching file-archive records to a Parquet file under
// the configured export directory and returns its path.
func (s *Store) Export(ctx context.Context, coords []types.Coordinate, from, to time.Time, name string) (string, int64, error) {
	path := filepath.Join(s.config.Export.Dir, name)
	rows, err := s.exporter.ExportRange(ctx, coords, from, to, path, nil)
	return path, rows, err
}

// Summary returns per-field measurement statistics accumulated since
// startup, or nil when summaries are disabled.
func (s *Store) Summary() []aggregate.FieldStats {
	if s.summary == nil {
		return nil
	}
	return s.summary.Results()
}

// retentionWorker periodically sweeps both backends.
func (s *Store) retentionWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Retention.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-s.config.Retention.MaxAge)
			if _, err := s.RunRetention(s.ctx, cutoff); err != nil {
				s.log.Error("retention sweep failed", "error", err)
			}
		}
	}
}

// IsRunning returns whether the store has been started.
func (s *Store) IsRunning() bool {
	return s.running.Load()
}
