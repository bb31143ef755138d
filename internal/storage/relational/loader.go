package relational

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// stageChunk bounds the number of rows per staging INSERT statement.
const stageChunk = 500

// LoadResult reports the outcome of one bulk load.
type LoadResult struct {
	// Resolved is the number of input records with a matching location.
	Resolved int

	// SkippedNoLocation counts records dropped because no location row
	// matches their coordinate. Locations are never auto-created.
	SkippedNoLocation int

	// Staged is the number of rows staged after in-batch deduplication.
	Staged int

	// Inserted is the number of rows the merge actually inserted; rows
	// already present for a (timestamp, location) pair are left untouched.
	Inserted int64
}

// stagedRow is one deduplicated, rounded row bound for the merge.
type stagedRow struct {
	timestamp  time.Time
	locationID int64
	values     [7]float64
}

// LoadBatch resolves locations, stages rows into a temp table, and merges
// them into WeatherDatas with an insert-if-absent keyed on
// (DateAndTime, LocationId). Staging and merge run inside one transaction:
// any failure rolls back the whole batch. Re-ingesting an existing pair is
// a no-op, never an overwrite.
func (s *Store) LoadBatch(ctx context.Context, records []types.WeatherRecord) (LoadResult, error) {
	var result LoadResult
	if len(records) == 0 {
		return result, nil
	}

	cache, err := s.locationCache(ctx)
	if err != nil {
		s.stats.Errors.Add(1)
		return result, err
	}

	// Resolve and deduplicate. Measurements are rounded to two decimals
	// before staging (domain policy). First occurrence of a
	// (timestamp, location) pair within the batch wins.
	seen := make(map[string]struct{})
	staged := make([]stagedRow, 0, len(records))
	for _, r := range records {
		locID, ok := cache[r.Coordinate.String()]
		if !ok {
			s.log.Warn("no location for coordinate, skipping record",
				"coordinate", r.Coordinate.String(), "timestamp", r.Timestamp)
			s.stats.RecordsSkipped.Add(1)
			result.SkippedNoLocation++
			continue
		}
		result.Resolved++

		ts := r.Timestamp.UTC().Truncate(time.Minute)
		key := fmt.Sprintf("%d/%d", ts.Unix(), locID)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		staged = append(staged, stagedRow{
			timestamp:  ts,
			locationID: locID,
			values: [7]float64{
				round2(r.Temperature),
				round2(r.RelativeHumidity),
				round2(r.Rain),
				round2(r.WindSpeed),
				round2(r.WindDirection),
				round2(r.WindGust),
				round2(r.GlobalTiltedIrradiance),
			},
		})
	}

	result.Staged = len(staged)
	if len(staged) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.stats.Errors.Add(1)
		return result, errors.Wrap(errors.ErrQuery, err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`CREATE OR REPLACE TEMP TABLE stage_weather (
			DateAndTime            TIMESTAMP NOT NULL,
			LocationId             BIGINT NOT NULL,
			Temperature            DOUBLE,
			RelativeHumidity       DOUBLE,
			Rain                   DOUBLE,
			WindSpeed              DOUBLE,
			WindDirection          DOUBLE,
			WindGust               DOUBLE,
			GlobalTiltedIrradiance DOUBLE
		)`); err != nil {
		s.stats.Errors.Add(1)
		return result, errors.Wrap(errors.ErrQuery, fmt.Sprintf("create staging table: %v", err))
	}

	for start := 0; start < len(staged); start += stageChunk {
		end := start + stageChunk
		if end > len(staged) {
			end = len(staged)
		}
		if err := stageRows(ctx, tx, staged[start:end]); err != nil {
			s.stats.Errors.Add(1)
			return result, err
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO WeatherDatas
			(DateAndTime, LocationId, IsDeleted, Temperature, RelativeHumidity, Rain,
			 WindSpeed, WindDirection, WindGust, GlobalTiltedIrradiance)
		 SELECT s.DateAndTime, s.LocationId, FALSE, s.Temperature, s.RelativeHumidity, s.Rain,
			 s.WindSpeed, s.WindDirection, s.WindGust, s.GlobalTiltedIrradiance
		 FROM stage_weather s
		 WHERE NOT EXISTS (
			SELECT 1 FROM WeatherDatas w
			WHERE w.DateAndTime = s.DateAndTime AND w.LocationId = s.LocationId
		 )`)
	if err != nil {
		s.stats.Errors.Add(1)
		return result, errors.Wrap(errors.ErrQuery, fmt.Sprintf("merge: %v", err))
	}
	if n, err := res.RowsAffected(); err == nil {
		result.Inserted = n
	}

	if _, err := tx.ExecContext(ctx, `DROP TABLE stage_weather`); err != nil {
		s.stats.Errors.Add(1)
		return result, errors.Wrap(errors.ErrQuery, fmt.Sprintf("drop staging table: %v", err))
	}

	if err := tx.Commit(); err != nil {
		s.stats.Errors.Add(1)
		return result, errors.Wrap(errors.ErrQuery, err.Error())
	}

	s.stats.BatchesLoaded.Add(1)
	s.stats.RowsInserted.Add(result.Inserted)
	s.log.Debug("batch merged",
		"staged", result.Staged, "inserted", result.Inserted,
		"skipped_no_location", result.SkippedNoLocation)
	return result, nil
}

// stageRows inserts one chunk of rows into the staging table with a single
// multi-row statement.
func stageRows(ctx context.Context, tx *sql.Tx, rows []stagedRow) error {
	placeholders := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*9)
	for _, r := range rows {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.timestamp, r.locationID,
			r.values[0], r.values[1], r.values[2], r.values[3],
			r.values[4], r.values[5], r.values[6])
	}

	stmt := `INSERT INTO stage_weather
		(DateAndTime, LocationId, Temperature, RelativeHumidity, Rain,
		 WindSpeed, WindDirection, WindGust, GlobalTiltedIrradiance)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(errors.ErrQuery, fmt.Sprintf("stage rows: %v", err))
	}
	return nil
}

// round2 rounds a measurement to two decimal places.
func round2(v float32) float64 {
	return math.Round(float64(v)*100) / 100
}
