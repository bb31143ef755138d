package relational

import (
	"context"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
)

// SoftDelete marks every visible row older than the cutoff as deleted and
// returns the number of rows newly flagged. The row's own timestamp decides
// its age. Idempotent: a repeated call with the same cutoff flags nothing.
func (s *Store) SoftDelete(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE WeatherDatas SET IsDeleted = TRUE
		 WHERE DateAndTime < ? AND NOT IsDeleted`,
		before.UTC())
	if err != nil {
		s.stats.Errors.Add(1)
		return 0, errors.Wrap(errors.ErrQuery, err.Error())
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrQuery, err.Error())
	}

	s.stats.RowsSoftDeleted.Add(n)
	if n > 0 {
		s.log.Info("rows soft-deleted", "cutoff", before.UTC(), "rows", n)
	}
	return n, nil
}

// Restore clears the delete flag for all rows and returns the number of
// rows restored. Idempotent.
func (s *Store) Restore(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE WeatherDatas SET IsDeleted = FALSE WHERE IsDeleted`)
	if err != nil {
		s.stats.Errors.Add(1)
		return 0, errors.Wrap(errors.ErrQuery, err.Error())
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrQuery, err.Error())
	}

	s.stats.RowsRestored.Add(n)
	if n > 0 {
		s.log.Info("rows restored", "rows", n)
	}
	return n, nil
}
