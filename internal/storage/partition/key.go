// Package partition derives deterministic file locations for weather
// records. Writer and reader both resolve keys through this package, which
// is what guarantees they agree on the on-disk layout:
//
//	{baseDir}/{lat}-{long}/{year}/{MMDD}.bin
package partition

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Ext is the partition file extension.
const Ext = ".bin"

// Key is the derived location of one partition: all records for a single
// coordinate on a single calendar day.
type Key struct {
	// Dir is the coordinate directory name, "{lat}-{long}" with both
	// components normalized to 8 decimal places.
	Dir string

	// Year is the year subdirectory, e.g. "2024".
	Year string

	// File is the partition file name, "{MMDD}.bin".
	File string
}

// Resolve derives the partition key for a coordinate and calendar date.
// Pure and side-effect-free: identical inputs always yield identical keys,
// regardless of time-of-day.
func Resolve(c types.Coordinate, date time.Time) Key {
	date = date.UTC()
	return Key{
		Dir:  c.String(),
		Year: strconv.Itoa(date.Year()),
		File: fmt.Sprintf("%02d%02d%s", int(date.Month()), date.Day(), Ext),
	}
}

// ResolveStrings derives the partition key from raw coordinate strings,
// normalizing both components to the fixed 8-decimal format. Coordinates
// that cannot be normalized yield ErrInvalidCoordinate.
func ResolveStrings(latitude, longitude string, date time.Time) (Key, error) {
	c, err := types.ParseCoordinate(latitude, longitude)
	if err != nil {
		return Key{}, errors.Wrap(errors.ErrInvalidCoordinate, err.Error())
	}
	return Resolve(c, date), nil
}

// Path returns the key's absolute path under base.
func (k Key) Path(base string) string {
	return filepath.Join(base, k.Dir, k.Year, k.File)
}

// Rel returns the key's path relative to its base directory.
func (k Key) Rel() string {
	return filepath.Join(k.Dir, k.Year, k.File)
}

// ParseFileDate parses a partition file name ("{MMDD}.bin") together with
// its year directory into the calendar day it covers.
func ParseFileDate(year, file string) (time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, errors.Wrapf(errors.ErrParse, "year directory %q", year)
	}

	stem := file[:len(file)-len(filepath.Ext(file))]
	if len(stem) != 4 {
		return time.Time{}, errors.Wrapf(errors.ErrParse, "partition file %q", file)
	}
	month, err := strconv.Atoi(stem[:2])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, errors.Wrapf(errors.ErrParse, "partition file %q", file)
	}
	day, err := strconv.Atoi(stem[2:])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, errors.Wrapf(errors.ErrParse, "partition file %q", file)
	}

	return time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}
