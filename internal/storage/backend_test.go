package storage

import (
	"context"
	"testing"
	"time"

	"github.com/vejrdk/weatherarchive/internal/storage/archive"
	"github.com/vejrdk/weatherarchive/internal/storage/parallel"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

func testAdvisor() *parallel.Advisor {
	return parallel.New(
		parallel.WithCores(4),
		parallel.WithMemoryProbe(func() (uint64, error) { return 8 << 30, nil }),
	)
}

func testFileBackend(t *testing.T) *fileBackend {
	t.Helper()
	base := t.TempDir()
	advisor := testAdvisor()
	return &fileBackend{
		writer: archive.NewWriter(base, advisor),
		reader: archive.NewReader(base, advisor),
	}
}

func TestFileBackend_IngestSearch(t *testing.T) {
	b := testFileBackend(t)
	coord := types.Coordinate{Latitude: 55.3, Longitude: 11.9}
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var records []types.WeatherRecord
	for h := 0; h < 6; h++ {
		records = append(records, types.WeatherRecord{
			Coordinate:   coord,
			Timestamp:    day.Add(time.Duration(h) * time.Hour),
			Measurements: types.Measurements{Temperature: float32(h)},
		})
	}

	res, err := b.Ingest(context.Background(), records)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Backend != "file" || res.Records != 6 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}

	found, err := b.Search(context.Background(), []types.Coordinate{coord}, day, day)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 6 {
		t.Fatalf("got %d records, want 6", len(found))
	}
	for _, r := range found {
		// Full-precision coordinate restored from the partition path.
		if r.Coordinate != coord {
			t.Errorf("coordinate = %+v, want %+v", r.Coordinate, coord)
		}
	}
}

func TestStore_BackendSelection(t *testing.T) {
	s := &Store{
		file: &fileBackend{},
		rel:  &relationalBackend{},
	}
	if got := s.backend(false).Name(); got != "file" {
		t.Errorf("backend(false) = %q", got)
	}
	if got := s.backend(true).Name(); got != "relational" {
		t.Errorf("backend(true) = %q", got)
	}
}
