package relational

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Search returns visible (non-soft-deleted) rows for the given coordinates
// whose timestamp falls within the inclusive date range [from, to], ordered
// by timestamp.
func (s *Store) Search(ctx context.Context, coords []types.Coordinate, from, to time.Time) ([]types.WeatherRecord, error) {
	if len(coords) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(coords))
	args := make([]interface{}, 0, len(coords)+2)
	for i, c := range coords {
		placeholders[i] = "?"
		args = append(args, c.String())
	}

	from = from.UTC()
	fromDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = to.UTC()
	toExclusive := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	args = append(args, fromDay, toExclusive)

	query := fmt.Sprintf(
		`SELECT l.Latitude, l.Longitude, w.DateAndTime,
			w.Temperature, w.RelativeHumidity, w.Rain,
			w.WindSpeed, w.WindDirection, w.WindGust, w.GlobalTiltedIrradiance
		 FROM WeatherDatas w
		 JOIN Locations l ON l.LocationId = w.LocationId
		 WHERE NOT w.IsDeleted
		   AND l.Latitude || '-' || l.Longitude IN (%s)
		   AND w.DateAndTime >= ?
		   AND w.DateAndTime < ?
		 ORDER BY w.DateAndTime`,
		strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.stats.Errors.Add(1)
		return nil, errors.Wrap(errors.ErrQuery, fmt.Sprintf("search: %v", err))
	}
	defer rows.Close()

	var records []types.WeatherRecord
	for rows.Next() {
		var (
			lat, long string
			ts        time.Time
			m         [7]float64
		)
		if err := rows.Scan(&lat, &long, &ts,
			&m[0], &m[1], &m[2], &m[3], &m[4], &m[5], &m[6]); err != nil {
			return nil, errors.Wrap(errors.ErrQuery, err.Error())
		}

		coord, err := types.ParseCoordinate(lat, long)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidCoordinate, err.Error())
		}

		records = append(records, types.WeatherRecord{
			Coordinate: coord,
			Timestamp:  ts.UTC(),
			Measurements: types.Measurements{
				Temperature:            float32(m[0]),
				RelativeHumidity:       float32(m[1]),
				Rain:                   float32(m[2]),
				WindSpeed:              float32(m[3]),
				WindDirection:          float32(m[4]),
				WindGust:               float32(m[5]),
				GlobalTiltedIrradiance: float32(m[6]),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrQuery, err.Error())
	}

	return records, nil
}

// CountRows returns the number of visible and soft-deleted weather rows.
func (s *Store) CountRows(ctx context.Context) (visible, deleted int64, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT
			count(*) FILTER (WHERE NOT IsDeleted),
			count(*) FILTER (WHERE IsDeleted)
		 FROM WeatherDatas`)
	if err := row.Scan(&visible, &deleted); err != nil {
		return 0, 0, errors.Wrap(errors.ErrQuery, err.Error())
	}
	return visible, deleted, nil
}
