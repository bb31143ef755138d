package archive

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage/parallel"
	"github.com/vejrdk/weatherarchive/internal/storage/partition"
	"github.com/vejrdk/weatherarchive/internal/storage/record"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// PartitionData is the raw content of one partition file. Decoding is the
// caller's concern: the Date field supplies the calendar day the codec
// needs to reconstruct full timestamps.
type PartitionData struct {
	Coordinate types.Coordinate
	Date       time.Time
	Data       []byte
}

// Records returns the record count implied by the payload length.
func (p PartitionData) Records() int {
	return len(p.Data) / record.Size
}

// Reader locates partition files for coordinate/date-range queries.
// Reads are read-only and fan out across coordinate x year pairs, bounded
// by the parallelism advisor.
type Reader struct {
	baseDir string
	advisor *parallel.Advisor
	log     *slog.Logger
}

// NewReader creates a Reader rooted at baseDir.
func NewReader(baseDir string, advisor *parallel.Advisor) *Reader {
	return &Reader{
		baseDir: baseDir,
		advisor: advisor,
		log:     logging.Component("archive_reader"),
	}
}

// Read returns the raw bytes of every partition file belonging to one of
// the given coordinates whose calendar day falls within [from, to]
// inclusive. A coordinate with partition directories but no files in range
// yields an empty result; a coordinate with no partitions at all yields
// ErrNoPartitions. Files whose size is not a whole number of records are
// logged and skipped.
func (r *Reader) Read(ctx context.Context, coords []types.Coordinate, from, to time.Time) ([]PartitionData, error) {
	from = truncateDay(from)
	to = truncateDay(to)

	type task struct {
		coord types.Coordinate
		year  string
	}

	var tasks []task
	found := make([]bool, len(coords))
	for i, c := range coords {
		if _, err := os.Stat(filepath.Join(r.baseDir, c.String())); err == nil {
			found[i] = true
		}
		for year := from.Year(); year <= to.Year(); year++ {
			tasks = append(tasks, task{coord: c, year: strconv.Itoa(year)})
		}
	}

	for i, c := range coords {
		if !found[i] {
			return nil, errors.Wrap(errors.ErrNoPartitions, c.String())
		}
	}

	var (
		mu      sync.Mutex
		results []PartitionData
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.advisor.Compute())

	for _, t := range tasks {
		t := t
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			parts, err := r.readYear(t.coord, t.year, from, to)
			if err != nil {
				return err
			}

			mu.Lock()
			results = append(results, parts...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// readYear lists one coordinate/year directory and collects the partition
// files whose date falls in range.
func (r *Reader) readYear(coord types.Coordinate, year string, from, to time.Time) ([]PartitionData, error) {
	dir := filepath.Join(r.baseDir, coord.String(), year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrIO, err.Error())
	}

	var parts []PartitionData
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != partition.Ext {
			continue
		}

		date, err := partition.ParseFileDate(year, entry.Name())
		if err != nil {
			r.log.Warn("unparseable partition file name, skipping",
				"dir", dir, "file", entry.Name())
			continue
		}
		if date.Before(from) || date.After(to) {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, errors.Wrap(errors.ErrIO, err.Error())
		}
		if _, err := record.Count(len(data)); err != nil {
			r.log.Warn("partition file has truncated record, skipping",
				"dir", dir, "file", entry.Name(), "bytes", len(data))
			continue
		}

		parts = append(parts, PartitionData{
			Coordinate: coord,
			Date:       date,
			Data:       data,
		})
	}

	return parts, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
