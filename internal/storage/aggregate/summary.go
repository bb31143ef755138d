// Package aggregate maintains running statistics over ingested
// measurements. Summaries are observational: they feed logs and stats,
// never correctness.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Fields lists the summarized measurement fields in canonical order.
var Fields = []string{
	"temperature",
	"relative_humidity",
	"rain",
	"wind_speed",
	"wind_direction",
	"wind_gust",
	"global_tilted_irradiance",
}

// FieldStats is the result for one measurement field.
type FieldStats struct {
	Field string
	Count int64
	Min   float64
	Max   float64
	Avg   float64
	P50   float64
	P95   float64
	P99   float64
}

// fieldSummary accumulates one field's running statistics.
type fieldSummary struct {
	count  int64
	sum    float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

// BatchSummary summarizes the measurements of one or more ingested batches.
// Safe for concurrent use.
type BatchSummary struct {
	mu     sync.Mutex
	fields [7]fieldSummary
}

// NewBatchSummary creates a summary with the given DDSketch relative
// accuracy (0.01 = 1% error).
func NewBatchSummary(accuracy float64) *BatchSummary {
	s := &BatchSummary{}
	for i := range s.fields {
		s.fields[i].min = math.MaxFloat64
		s.fields[i].max = -math.MaxFloat64
		if sketch, err := ddsketch.NewDefaultDDSketch(accuracy); err == nil {
			s.fields[i].sketch = sketch
		}
	}
	return s
}

// Add folds one record's measurements into the summary.
func (s *BatchSummary) Add(m types.Measurements) {
	values := [7]float64{
		float64(m.Temperature),
		float64(m.RelativeHumidity),
		float64(m.Rain),
		float64(m.WindSpeed),
		float64(m.WindDirection),
		float64(m.WindGust),
		float64(m.GlobalTiltedIrradiance),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.fields {
		f := &s.fields[i]
		v := values[i]

		f.count++
		f.sum += v
		if v < f.min {
			f.min = v
		}
		if v > f.max {
			f.max = v
		}
		if f.sketch != nil {
			f.sketch.Add(v)
		}
	}
}

// AddRecords folds a whole batch into the summary.
func (s *BatchSummary) AddRecords(records []types.WeatherRecord) {
	for _, r := range records {
		s.Add(r.Measurements)
	}
}

// Count returns the number of records summarized.
func (s *BatchSummary) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields[0].count
}

// Results returns per-field statistics in canonical field order.
func (s *BatchSummary) Results() []FieldStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]FieldStats, len(Fields))
	for i, name := range Fields {
		f := &s.fields[i]
		r := FieldStats{Field: name, Count: f.count}

		if f.count > 0 {
			r.Min = f.min
			r.Max = f.max
			r.Avg = f.sum / float64(f.count)
		}
		if f.sketch != nil && f.count > 0 {
			r.P50, _ = f.sketch.GetValueAtQuantile(0.50)
			r.P95, _ = f.sketch.GetValueAtQuantile(0.95)
			r.P99, _ = f.sketch.GetValueAtQuantile(0.99)
		}

		results[i] = r
	}
	return results
}
