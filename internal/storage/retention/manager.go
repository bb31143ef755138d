// Package retention mirrors partition files between the active and
// archived directory trees. A file's age is decided by the calendar day
// encoded in its partition path (year directory + MMDD stem), which is
// durable under copies, unlike filesystem timestamps.
//
// Directory traversal uses an explicit queue instead of recursion, and
// moves fan out over a worker pool bounded by the parallelism advisor.
package retention

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage/parallel"
	"github.com/vejrdk/weatherarchive/internal/storage/partition"
)

// Manager moves partition files between the active and archived trees.
type Manager struct {
	advisor *parallel.Advisor
	log     *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Stats holds cumulative retention statistics.
type Stats struct {
	LastRunTime  time.Time
	FilesMoved   int64
	FilesSkipped int64
	Errors       int64
}

// SweepResult reports one archive or restore pass.
type SweepResult struct {
	// FilesMoved is the number of files relocated.
	FilesMoved int

	// FilesSkipped counts files left in place: unparseable names, dates
	// newer than the cutoff, or non-partition files.
	FilesSkipped int

	// Errors collects per-file move failures. The sweep continues past
	// them.
	Errors []error
}

// Err returns the aggregated move failures, or nil.
func (r SweepResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	var merr *multierror.Error
	merr = multierror.Append(merr, r.Errors...)
	return errors.Wrap(errors.ErrPartialBatch, merr.Error())
}

// New creates a retention manager.
func New(advisor *parallel.Advisor) *Manager {
	return &Manager{
		advisor: advisor,
		log:     logging.Component("retention"),
	}
}

// ArchiveOldFiles mirrors every partition file older than the cutoff from
// activeRoot into the parallel tree under archiveRoot, creating destination
// directories as needed. Files dated on or after the cutoff day, and files
// whose names do not parse as partitions, are skipped.
func (m *Manager) ArchiveOldFiles(ctx context.Context, activeRoot, archiveRoot string, before time.Time) (SweepResult, error) {
	cutoff := truncateDay(before)
	candidates, skipped, err := m.collect(ctx, activeRoot, func(date time.Time) bool {
		return date.Before(cutoff)
	})
	if err != nil {
		return SweepResult{}, err
	}

	result, err := m.moveAll(ctx, candidates, activeRoot, archiveRoot)
	result.FilesSkipped += skipped
	m.record(result)
	m.log.Info("archive sweep finished",
		"cutoff", cutoff, "moved", result.FilesMoved,
		"skipped", result.FilesSkipped, "errors", len(result.Errors))
	return result, err
}

// RestoreFiles mirrors every file under archiveRoot back into activeRoot.
// A pre-existing destination file is replaced by the rename itself; there
// is no delete-then-move window to lose the file in.
func (m *Manager) RestoreFiles(ctx context.Context, archiveRoot, activeRoot string) (SweepResult, error) {
	candidates, skipped, err := m.collect(ctx, archiveRoot, func(time.Time) bool { return true })
	if err != nil {
		return SweepResult{}, err
	}

	result, err := m.moveAll(ctx, candidates, archiveRoot, activeRoot)
	result.FilesSkipped += skipped
	m.record(result)
	m.log.Info("restore sweep finished",
		"moved", result.FilesMoved, "skipped", result.FilesSkipped,
		"errors", len(result.Errors))
	return result, err
}

// collect walks root with an explicit queue and returns the relative paths
// of partition files whose path-encoded date satisfies include.
func (m *Manager) collect(ctx context.Context, root string, include func(time.Time) bool) (candidates []string, skipped int, err error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, errors.Wrap(errors.ErrIO, err.Error())
	}

	queue := []string{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, 0, errors.Wrap(errors.ErrIO, err.Error())
		}

		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				queue = append(queue, path)
				continue
			}
			if filepath.Ext(entry.Name()) != partition.Ext {
				skipped++
				continue
			}

			date, err := partition.ParseFileDate(filepath.Base(dir), entry.Name())
			if err != nil {
				m.log.Warn("file does not parse as a partition, skipping", "path", path)
				skipped++
				continue
			}
			if !include(date) {
				skipped++
				continue
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return nil, 0, errors.Wrap(errors.ErrIO, err.Error())
			}
			candidates = append(candidates, rel)
		}
	}

	return candidates, skipped, nil
}

// moveAll relocates the candidate files concurrently, bounded by the
// advisor. Per-file failures are collected; the sweep continues.
func (m *Manager) moveAll(ctx context.Context, candidates []string, srcRoot, dstRoot string) (SweepResult, error) {
	var (
		mu     sync.Mutex
		result SweepResult
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.advisor.Compute())

	for _, rel := range candidates {
		rel := rel
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := moveFile(filepath.Join(srcRoot, rel), filepath.Join(dstRoot, rel))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				m.log.Warn("file move failed", "file", rel, "error", err)
				result.Errors = append(result.Errors, errors.Wrapf(err, "move %s", rel))
				return nil
			}
			result.FilesMoved++
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, rel := range candidates {
		pruneEmptyDirs(srcRoot, filepath.Dir(rel))
	}
	return result, nil
}

// moveFile renames src to dst, creating the destination directory tree.
// Rename replaces an existing destination atomically; when src and dst are
// on different filesystems it falls back to copy-then-delete-source.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}

	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return errors.Wrap(errors.ErrIO, err.Error())
	}

	// Source is removed only after the copy is durable at the destination.
	if err := os.Remove(src); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}
	return nil
}

// pruneEmptyDirs removes now-empty directories between root/rel and root.
func pruneEmptyDirs(root, rel string) {
	for rel != "." && rel != string(filepath.Separator) {
		dir := filepath.Join(root, rel)
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		rel = filepath.Dir(rel)
	}
}

func (m *Manager) record(result SweepResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.LastRunTime = time.Now()
	m.stats.FilesMoved += int64(result.FilesMoved)
	m.stats.FilesSkipped += int64(result.FilesSkipped)
	m.stats.Errors += int64(len(result.Errors))
}

// Stats returns current statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
