// Package archive implements the partitioned flat-file backend: an
// append-only tree of 40-byte binary records laid out as
// {baseDir}/{lat}-{long}/{year}/{MMDD}.bin.
package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage/parallel"
	"github.com/vejrdk/weatherarchive/internal/storage/partition"
	"github.com/vejrdk/weatherarchive/internal/storage/record"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Writer appends encoded records to partition files. Writes to distinct
// partitions run concurrently; writes to the same partition file are
// serialized through a per-key mutex so concurrent batches targeting the
// same coordinate+day never interleave bytes.
type Writer struct {
	baseDir string
	advisor *parallel.Advisor
	locks   *keyLocks
	log     *slog.Logger

	stats WriterStats
}

// WriterStats holds cumulative writer statistics.
type WriterStats struct {
	BatchesWritten    atomic.Int64
	RecordsWritten    atomic.Int64
	PartitionsWritten atomic.Int64
	PartitionsSkipped atomic.Int64
	BytesWritten      atomic.Int64
}

// WriteResult reports the outcome of one batch.
type WriteResult struct {
	// Records is the number of records successfully appended.
	Records int

	// Partitions is the number of partition files written.
	Partitions int

	// SkippedPartitions is the number of partition files that failed and
	// were skipped; their records are counted in SkippedRecords.
	SkippedPartitions int
	SkippedRecords    int

	// Err aggregates per-partition failures. Nil when the whole batch
	// succeeded; otherwise it wraps ErrPartialBatch.
	Err error
}

// NewWriter creates a Writer rooted at baseDir.
func NewWriter(baseDir string, advisor *parallel.Advisor) *Writer {
	return &Writer{
		baseDir: baseDir,
		advisor: advisor,
		locks:   newKeyLocks(),
		log:     logging.Component("archive_writer"),
	}
}

// WriteBatch groups records by partition key and appends each group to its
// partition file, creating directories as needed. Partition groups are
// written concurrently, bounded by the parallelism advisor. A partition
// that cannot be created or written is logged and skipped; the batch
// continues. No retry, and no rollback of bytes already appended to a
// failed file.
func (w *Writer) WriteBatch(ctx context.Context, records []types.WeatherRecord) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}

	// Partition phase: group by (directory, file). Grouping is commutative,
	// so arrival order within a partition is preserved but nothing more.
	groups := make(map[partition.Key][]types.WeatherRecord)
	for _, r := range records {
		key := partition.Resolve(r.Coordinate, r.Timestamp)
		groups[key] = append(groups[key], r)
	}

	var (
		mu     sync.Mutex
		result WriteResult
		merr   *multierror.Error
	)

	// Write phase: one task per partition group.
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.advisor.Compute())

	for key, group := range groups {
		key, group := key, group
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			n, err := w.writePartition(key, group)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				w.log.Warn("partition write failed, skipping",
					"partition", key.Rel(), "records", len(group), "error", err)
				w.stats.PartitionsSkipped.Add(1)
				result.SkippedPartitions++
				result.SkippedRecords += len(group)
				merr = multierror.Append(merr, errors.Wrapf(err, "partition %s", key.Rel()))
				return nil
			}
			result.Partitions++
			result.Records += len(group)
			w.stats.PartitionsWritten.Add(1)
			w.stats.RecordsWritten.Add(int64(len(group)))
			w.stats.BytesWritten.Add(int64(n))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	w.stats.BatchesWritten.Add(1)
	if merr != nil {
		result.Err = errors.Wrap(errors.ErrPartialBatch, merr.Error())
	}
	return result, nil
}

// writePartition appends a group of records to one partition file. The
// per-key lock serializes concurrent batches targeting the same file.
func (w *Writer) writePartition(key partition.Key, records []types.WeatherRecord) (int, error) {
	unlock := w.locks.lock(key.Rel())
	defer unlock()

	path := key.Path(w.baseDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, errors.Wrap(errors.ErrIO, err.Error())
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, errors.Wrap(errors.ErrIO, err.Error())
	}
	defer f.Close()

	buf := make([]byte, 0, len(records)*record.Size)
	for _, r := range records {
		buf = record.AppendEncoded(buf, r)
	}

	n, err := f.Write(buf)
	if err != nil {
		return n, errors.Wrap(errors.ErrIO, err.Error())
	}
	return n, nil
}

// Stats returns a snapshot of cumulative writer statistics.
func (w *Writer) Stats() (batches, records, partitions, skipped, bytes int64) {
	return w.stats.BatchesWritten.Load(),
		w.stats.RecordsWritten.Load(),
		w.stats.PartitionsWritten.Load(),
		w.stats.PartitionsSkipped.Load(),
		w.stats.BytesWritten.Load()
}

// keyLocks is a registry of per-partition mutexes. Entries are created on
// first use and kept for the writer's lifetime; the key space (coordinates
// x days actively written) is small enough that eviction is not worth it.
type keyLocks struct {
	m sync.Map // string -> *sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{}
}

func (k *keyLocks) lock(key string) (unlock func()) {
	v, _ := k.m.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
