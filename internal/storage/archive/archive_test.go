package archive

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/storage/parallel"
	"github.com/vejrdk/weatherarchive/internal/storage/record"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

func testAdvisor() *parallel.Advisor {
	return parallel.New(
		parallel.WithCores(4),
		parallel.WithMemoryProbe(func() (uint64, error) { return 8 << 30, nil }),
	)
}

func hourlyRecords(coord types.Coordinate, day time.Time, hours int) []types.WeatherRecord {
	records := make([]types.WeatherRecord, 0, hours)
	for h := 0; h < hours; h++ {
		records = append(records, types.WeatherRecord{
			Coordinate: coord,
			Timestamp:  day.Add(time.Duration(h) * time.Hour),
			Measurements: types.Measurements{
				Temperature:      float32(h),
				RelativeHumidity: 80,
			},
		})
	}
	return records
}

func TestWriteReadDay(t *testing.T) {
	base := t.TempDir()
	coord := types.Coordinate{Latitude: 55.3, Longitude: 11.9}
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	w := NewWriter(base, testAdvisor())
	res, err := w.WriteBatch(context.Background(), hourlyRecords(coord, day, 24))
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("partial batch: %v", res.Err)
	}
	if res.Records != 24 || res.Partitions != 1 {
		t.Fatalf("result = %+v, want 24 records in 1 partition", res)
	}

	// Exactly one file at the expected path, sized to the record count.
	path := filepath.Join(base, "55.30000000-11.90000000", "2024", "0401.bin")
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat partition: %v", err)
	}
	if fi.Size() != 24*record.Size {
		t.Errorf("partition size = %d, want %d", fi.Size(), 24*record.Size)
	}

	r := NewReader(base, testAdvisor())
	parts, err := r.Read(context.Background(), []types.Coordinate{coord}, day, day)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("got %d partitions, want 1", len(parts))
	}
	if parts[0].Records() != 24 {
		t.Fatalf("partition holds %d records, want 24", parts[0].Records())
	}

	decoded, err := record.DecodeAll(parts[0].Data, parts[0].Date)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	minutes := make([]float32, len(decoded))
	for i, d := range decoded {
		minutes[i] = d.MinuteOfDay()
	}
	if !sort.SliceIsSorted(minutes, func(i, j int) bool { return minutes[i] < minutes[j] }) {
		t.Errorf("minutes not in arrival order: %v", minutes)
	}
	for h, m := range minutes {
		if m != float32(h*100) {
			t.Errorf("record %d: minuteOfDay = %v, want %v", h, m, h*100)
		}
	}
}

func TestWriteBatch_SplitsPartitions(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base, testAdvisor())

	a := types.Coordinate{Latitude: 55.3, Longitude: 11.9}
	b := types.Coordinate{Latitude: 56.0, Longitude: 10.0}
	day1 := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)

	batch := append(hourlyRecords(a, day1, 2), hourlyRecords(a, day2, 3)...)
	batch = append(batch, hourlyRecords(b, day1, 4)...)

	res, err := w.WriteBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if res.Partitions != 3 || res.Records != 9 {
		t.Fatalf("result = %+v, want 9 records in 3 partitions", res)
	}

	wantSizes := []struct {
		rel  string
		size int64
	}{
		{filepath.Join("55.30000000-11.90000000", "2024", "0401.bin"), 2 * record.Size},
		{filepath.Join("55.30000000-11.90000000", "2024", "0402.bin"), 3 * record.Size},
		{filepath.Join("56.00000000-10.00000000", "2024", "0401.bin"), 4 * record.Size},
	}
	for _, want := range wantSizes {
		fi, err := os.Stat(filepath.Join(base, want.rel))
		if err != nil {
			t.Fatalf("stat %s: %v", want.rel, err)
		}
		if fi.Size() != want.size {
			t.Errorf("%s: size = %d, want %d", want.rel, fi.Size(), want.size)
		}
	}
}

func TestWriteBatch_Empty(t *testing.T) {
	w := NewWriter(t.TempDir(), testAdvisor())
	res, err := w.WriteBatch(context.Background(), nil)
	if err != nil || res.Records != 0 || res.Partitions != 0 {
		t.Fatalf("empty batch: %+v, %v", res, err)
	}
}

func TestWriteBatch_ConcurrentSamePartition(t *testing.T) {
	base := t.TempDir()
	w := NewWriter(base, testAdvisor())
	coord := types.Coordinate{Latitude: 55.3, Longitude: 11.9}
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	const batches = 8
	var wg sync.WaitGroup
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := w.WriteBatch(context.Background(), hourlyRecords(coord, day, 12)); err != nil {
				t.Errorf("WriteBatch: %v", err)
			}
		}()
	}
	wg.Wait()

	// Every record must land intact: right total size, every slot decodable.
	path := filepath.Join(base, "55.30000000-11.90000000", "2024", "0401.bin")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read partition: %v", err)
	}
	if len(data) != batches*12*record.Size {
		t.Fatalf("partition size = %d, want %d", len(data), batches*12*record.Size)
	}
	decoded, err := record.DecodeAll(data, day)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	for i, d := range decoded {
		if m := d.MinuteOfDay(); m < 0 || m > 1100 || int(m)%100 != 0 {
			t.Fatalf("record %d: corrupt minuteOfDay %v", i, m)
		}
	}
}

func TestRead_UnknownCoordinate(t *testing.T) {
	r := NewReader(t.TempDir(), testAdvisor())
	coord := types.Coordinate{Latitude: 1, Longitude: 2}
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.Read(context.Background(), []types.Coordinate{coord}, day, day)
	if !errors.Is(err, errors.ErrNoPartitions) {
		t.Fatalf("expected ErrNoPartitions, got %v", err)
	}
}

func TestRead_EmptyRange(t *testing.T) {
	base := t.TempDir()
	coord := types.Coordinate{Latitude: 55.3, Longitude: 11.9}
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	w := NewWriter(base, testAdvisor())
	if _, err := w.WriteBatch(context.Background(), hourlyRecords(coord, day, 3)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	// Known coordinate, but no files in the requested window.
	r := NewReader(base, testAdvisor())
	parts, err := r.Read(context.Background(),
		[]types.Coordinate{coord},
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(parts) != 0 {
		t.Errorf("got %d partitions, want 0", len(parts))
	}
}

func TestRead_RangeSpansYears(t *testing.T) {
	base := t.TempDir()
	coord := types.Coordinate{Latitude: 55.3, Longitude: 11.9}

	w := NewWriter(base, testAdvisor())
	for _, day := range []time.Time{
		time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), // outside range
	} {
		if _, err := w.WriteBatch(context.Background(), hourlyRecords(coord, day, 1)); err != nil {
			t.Fatalf("WriteBatch: %v", err)
		}
	}

	r := NewReader(base, testAdvisor())
	parts, err := r.Read(context.Background(),
		[]types.Coordinate{coord},
		time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d partitions, want 2", len(parts))
	}
}

func TestRead_SkipsTruncatedFile(t *testing.T) {
	base := t.TempDir()
	coord := types.Coordinate{Latitude: 55.3, Longitude: 11.9}
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	w := NewWriter(base, testAdvisor())
	if _, err := w.WriteBatch(context.Background(), hourlyRecords(coord, day, 2)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	// A second file in the same year with a torn tail record.
	bad := filepath.Join(base, coord.String(), "2024", "0402.bin")
	if err := os.WriteFile(bad, make([]byte, record.Size+7), 0644); err != nil {
		t.Fatalf("write bad file: %v", err)
	}

	r := NewReader(base, testAdvisor())
	parts, err := r.Read(context.Background(), []types.Coordinate{coord}, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(parts) != 1 || !parts[0].Date.Equal(day) {
		t.Fatalf("expected only the intact partition, got %+v", parts)
	}
}
