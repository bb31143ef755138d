// Package export writes decoded archive partitions to Parquet files for
// downstream analytics. Export is a one-way convenience surface: the
// 40-byte binary partition files remain the archival format.
package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/logging"
	"github.com/vejrdk/weatherarchive/internal/storage/archive"
	"github.com/vejrdk/weatherarchive/internal/storage/record"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// WeatherRow is one decoded measurement in Parquet form.
type WeatherRow struct {
	Latitude               string  `parquet:"latitude,zstd"`
	Longitude              string  `parquet:"longitude,zstd"`
	TimestampMs            int64   `parquet:"timestamp_ms"`
	Temperature            float32 `parquet:"temperature"`
	RelativeHumidity       float32 `parquet:"relative_humidity"`
	Rain                   float32 `parquet:"rain"`
	WindSpeed              float32 `parquet:"wind_speed"`
	WindDirection          float32 `parquet:"wind_direction"`
	WindGust               float32 `parquet:"wind_gust"`
	GlobalTiltedIrradiance float32 `parquet:"global_tilted_irradiance"`
}

// RowFromRecord converts a decoded record to its Parquet form. The
// coordinate comes from the partition path, not the narrowed in-record
// floats, so exported coordinates keep their full 8-decimal form.
func RowFromRecord(coord types.Coordinate, r types.WeatherRecord) WeatherRow {
	return WeatherRow{
		Latitude:               coord.LatitudeString(),
		Longitude:              coord.LongitudeString(),
		TimestampMs:            r.Timestamp.UnixMilli(),
		Temperature:            r.Temperature,
		RelativeHumidity:       r.RelativeHumidity,
		Rain:                   r.Rain,
		WindSpeed:              r.WindSpeed,
		WindDirection:          r.WindDirection,
		WindGust:               r.WindGust,
		GlobalTiltedIrradiance: r.GlobalTiltedIrradiance,
	}
}

// Exporter reads archive partitions and writes Parquet files.
type Exporter struct {
	reader *archive.Reader
	log    *slog.Logger
}

// New creates an Exporter over the given archive reader.
func New(reader *archive.Reader) *Exporter {
	return &Exporter{
		reader: reader,
		log:    logging.Component("export"),
	}
}

// ExportRange decodes every partition for the coordinates and inclusive
// date range and writes one Parquet file to outPath. Rows are ordered by
// timestamp. Returns the number of rows written.
func (e *Exporter) ExportRange(ctx context.Context, coords []types.Coordinate, from, to time.Time, outPath string, codec compress.Codec) (int64, error) {
	parts, err := e.reader.Read(ctx, coords, from, to)
	if err != nil {
		return 0, err
	}

	var rows []WeatherRow
	for _, p := range parts {
		records, err := record.DecodeAll(p.Data, p.Date)
		if err != nil {
			return 0, errors.Wrapf(err, "partition %s %s", p.Coordinate, p.Date.Format("2006-01-02"))
		}
		for _, r := range records {
			rows = append(rows, RowFromRecord(p.Coordinate, r))
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].TimestampMs < rows[j].TimestampMs
	})

	if err := writeRows(outPath, rows, codec); err != nil {
		return 0, err
	}

	e.log.Info("range exported",
		"coordinates", len(coords), "partitions", len(parts),
		"rows", len(rows), "path", outPath)
	return int64(len(rows)), nil
}

// writeRows writes rows to a Parquet file, creating parent directories.
func writeRows(path string, rows []WeatherRow, codec compress.Codec) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrIO, err.Error())
	}

	if codec == nil {
		codec = &parquet.Zstd
	}
	writer := parquet.NewGenericWriter[WeatherRow](f, parquet.Compression(codec))

	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			f.Close()
			return errors.Wrap(errors.ErrIO, fmt.Sprintf("write rows: %v", err))
		}
	}
	if err := writer.Close(); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrIO, fmt.Sprintf("close writer: %v", err))
	}
	return f.Close()
}

// ReadFile reads all rows back from an exported Parquet file.
func ReadFile(path string) ([]WeatherRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrIO, err.Error())
	}
	defer f.Close()

	reader := parquet.NewGenericReader[WeatherRow](f)
	defer reader.Close()

	rows := make([]WeatherRow, reader.NumRows())
	if len(rows) == 0 {
		return nil, nil
	}
	n, err := reader.Read(rows)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.ErrIO, fmt.Sprintf("read rows: %v", err))
	}
	return rows[:n], nil
}
