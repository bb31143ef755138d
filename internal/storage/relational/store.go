// Package relational implements the relational backend on DuckDB through
// database/sql: location/city seeding, the deduplicating bulk merge loader,
// range queries, and soft-delete retention.
//
// The relational store is the system of record for retention. Unlike the
// file archive's best-effort writes, every batch here is all-or-nothing.
package relational

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Store wraps the relational database.
type Store struct {
	db  *sql.DB
	log *slog.Logger

	stats StoreStats
}

// StoreStats holds cumulative store statistics.
type StoreStats struct {
	BatchesLoaded   atomic.Int64
	RowsInserted    atomic.Int64
	RecordsSkipped  atomic.Int64
	RowsSoftDeleted atomic.Int64
	RowsRestored    atomic.Int64
	Errors          atomic.Int64
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS Cities (
		CityId     BIGINT PRIMARY KEY,
		PostalCode VARCHAR NOT NULL,
		CityName   VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS Locations (
		LocationId   BIGINT PRIMARY KEY,
		Latitude     VARCHAR NOT NULL,
		Longitude    VARCHAR NOT NULL,
		StreetName   VARCHAR,
		StreetNumber VARCHAR,
		CityId       BIGINT REFERENCES Cities (CityId)
	)`,
	`CREATE TABLE IF NOT EXISTS WeatherDatas (
		DateAndTime            TIMESTAMP NOT NULL,
		LocationId             BIGINT NOT NULL REFERENCES Locations (LocationId),
		IsDeleted              BOOLEAN NOT NULL DEFAULT FALSE,
		Temperature            DOUBLE,
		RelativeHumidity       DOUBLE,
		Rain                   DOUBLE,
		WindSpeed              DOUBLE,
		WindDirection          DOUBLE,
		WindGust               DOUBLE,
		GlobalTiltedIrradiance DOUBLE,
		PRIMARY KEY (DateAndTime, LocationId)
	)`,
}

// Open opens (or creates) a DuckDB database at path and ensures the schema
// exists. An empty path opens an in-memory database.
func Open(ctx context.Context, path, memoryLimit string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrQuery, fmt.Sprintf("open duckdb: %v", err))
	}

	if memoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit='%s'", memoryLimit)); err != nil {
			db.Close()
			return nil, errors.Wrap(errors.ErrQuery, fmt.Sprintf("set memory limit: %v", err))
		}
	}

	s := NewWithDB(db)
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. Used by tests to substitute
// a mock connection.
func NewWithDB(db *sql.DB) *Store {
	return &Store{
		db:  db,
		log: logging.Component("relational"),
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(errors.ErrQuery, fmt.Sprintf("create schema: %v", err))
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SeedLocations bulk-loads city and location rows in one transaction.
// Existing rows (by primary key) are left untouched; location and city rows
// are never deleted.
func (s *Store) SeedLocations(ctx context.Context, cities []types.City, locations []types.Location) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrQuery, err.Error())
	}
	defer tx.Rollback()

	for _, c := range cities {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO Cities (CityId, PostalCode, CityName) VALUES (?, ?, ?)`,
			c.CityID, c.PostalCode, c.CityName); err != nil {
			return errors.Wrap(errors.ErrQuery, fmt.Sprintf("insert city %d: %v", c.CityID, err))
		}
	}

	for _, l := range locations {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO Locations (LocationId, Latitude, Longitude, StreetName, StreetNumber, CityId)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			l.LocationID, l.Coordinate.LatitudeString(), l.Coordinate.LongitudeString(),
			l.StreetName, l.StreetNumber, l.CityID); err != nil {
			return errors.Wrap(errors.ErrQuery, fmt.Sprintf("insert location %d: %v", l.LocationID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrQuery, err.Error())
	}

	s.log.Info("locations seeded", "cities", len(cities), "locations", len(locations))
	return nil
}

// locationCache loads the {coordinate -> locationId} map with one query.
// Keys use the canonical fixed 8-decimal "{lat}-{long}" form.
func (s *Store) locationCache(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT LocationId, Latitude, Longitude FROM Locations`)
	if err != nil {
		return nil, errors.Wrap(errors.ErrQuery, fmt.Sprintf("load location cache: %v", err))
	}
	defer rows.Close()

	cache := make(map[string]int64)
	for rows.Next() {
		var id int64
		var lat, long string
		if err := rows.Scan(&id, &lat, &long); err != nil {
			return nil, errors.Wrap(errors.ErrQuery, err.Error())
		}
		cache[lat+"-"+long] = id
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrQuery, err.Error())
	}

	return cache, nil
}

// Stats returns a snapshot of cumulative store statistics.
func (s *Store) Stats() (batches, inserted, skipped, softDeleted, restored int64) {
	return s.stats.BatchesLoaded.Load(),
		s.stats.RowsInserted.Load(),
		s.stats.RecordsSkipped.Load(),
		s.stats.RowsSoftDeleted.Load(),
		s.stats.RowsRestored.Load()
}
