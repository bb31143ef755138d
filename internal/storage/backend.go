package storage

import (
	"context"
	"time"

	"github.com/vejrdk/weatherarchive/internal/storage/archive"
	"github.com/vejrdk/weatherarchive/internal/storage/record"
	"github.com/vejrdk/weatherarchive/internal/storage/relational"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Backend is one of the two interchangeable stores. The Store facade picks
// a backend per request from the caller-supplied flag; callers never branch
// on the flag themselves.
type Backend interface {
	// Name identifies the backend in logs and stats.
	Name() string

	// Ingest persists a batch of records.
	Ingest(ctx context.Context, records []types.WeatherRecord) (IngestResult, error)

	// Search returns records for the coordinates within the inclusive
	// date range.
	Search(ctx context.Context, coords []types.Coordinate, from, to time.Time) ([]types.WeatherRecord, error)
}

// IngestResult reports one ingested batch.
type IngestResult struct {
	// Backend is the name of the backend that handled the batch.
	Backend string

	// Records is the number of records persisted.
	Records int

	// Skipped is the number of records dropped (failed partitions on the
	// file backend, unresolvable locations on the relational backend).
	Skipped int

	// Err carries partial-failure detail when Skipped > 0 on the file
	// backend. The batch as a whole still succeeded.
	Err error
}

// fileBackend adapts the partition writer/reader pair.
type fileBackend struct {
	writer *archive.Writer
	reader *archive.Reader
}

func (b *fileBackend) Name() string { return "file" }

func (b *fileBackend) Ingest(ctx context.Context, records []types.WeatherRecord) (IngestResult, error) {
	res, err := b.writer.WriteBatch(ctx, records)
	if err != nil {
		return IngestResult{Backend: b.Name()}, err
	}
	return IngestResult{
		Backend: b.Name(),
		Records: res.Records,
		Skipped: res.SkippedRecords,
		Err:     res.Err,
	}, nil
}

func (b *fileBackend) Search(ctx context.Context, coords []types.Coordinate, from, to time.Time) ([]types.WeatherRecord, error) {
	parts, err := b.reader.Read(ctx, coords, from, to)
	if err != nil {
		return nil, err
	}

	var records []types.WeatherRecord
	for _, p := range parts {
		decoded, err := record.DecodeAll(p.Data, p.Date)
		if err != nil {
			return nil, err
		}
		for i := range decoded {
			// The partition path carries the full-precision coordinate;
			// prefer it over the narrowed in-record floats.
			decoded[i].Coordinate = p.Coordinate
		}
		records = append(records, decoded...)
	}
	return records, nil
}

// relationalBackend adapts the DuckDB store.
type relationalBackend struct {
	store *relational.Store
}

func (b *relationalBackend) Name() string { return "relational" }

func (b *relationalBackend) Ingest(ctx context.Context, records []types.WeatherRecord) (IngestResult, error) {
	res, err := b.store.LoadBatch(ctx, records)
	if err != nil {
		return IngestResult{Backend: b.Name()}, err
	}
	return IngestResult{
		Backend: b.Name(),
		Records: res.Resolved,
		Skipped: res.SkippedNoLocation,
	}, nil
}

func (b *relationalBackend) Search(ctx context.Context, coords []types.Coordinate, from, to time.Time) ([]types.WeatherRecord, error) {
	return b.store.Search(ctx, coords, from, to)
}
