package types

import (
	"fmt"
	"strconv"
	"time"
)

// CoordinatePrecision is the number of decimal places used when rendering
// latitude and longitude. Directory names and relational lookups both depend
// on this fixed-width form, so it must never vary with locale.
const CoordinatePrecision = 8

// Coordinate identifies a measurement site by latitude and longitude.
type Coordinate struct {
	Latitude  float64
	Longitude float64
}

// ParseCoordinate parses latitude and longitude strings. The decimal
// separator is always '.' regardless of host locale.
func ParseCoordinate(latitude, longitude string) (Coordinate, error) {
	lat, err := strconv.ParseFloat(latitude, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude %q: %w", latitude, err)
	}
	long, err := strconv.ParseFloat(longitude, 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude %q: %w", longitude, err)
	}
	return Coordinate{Latitude: lat, Longitude: long}, nil
}

// LatitudeString returns the latitude in the fixed 8-decimal form.
func (c Coordinate) LatitudeString() string {
	return strconv.FormatFloat(c.Latitude, 'f', CoordinatePrecision, 64)
}

// LongitudeString returns the longitude in the fixed 8-decimal form.
func (c Coordinate) LongitudeString() string {
	return strconv.FormatFloat(c.Longitude, 'f', CoordinatePrecision, 64)
}

// String returns the canonical "{lat}-{long}" form used as the partition
// directory name, e.g. "55.30000000-11.90000000".
func (c Coordinate) String() string {
	return c.LatitudeString() + "-" + c.LongitudeString()
}

// Measurements holds the seven observed values of one reading.
type Measurements struct {
	Temperature            float32
	RelativeHumidity       float32
	Rain                   float32
	WindSpeed              float32
	WindDirection          float32
	WindGust               float32
	GlobalTiltedIrradiance float32
}

// WeatherRecord is one geo-located measurement at minute resolution.
// Records are immutable once encoded.
type WeatherRecord struct {
	Coordinate Coordinate
	Timestamp  time.Time // UTC, minute resolution
	Measurements
}

// MinuteOfDay returns the HHmm component of the timestamp as a float,
// e.g. 13:45 becomes 1345. This is the only time component stored inside
// an encoded record; the calendar date lives in the partition path.
func (r WeatherRecord) MinuteOfDay() float32 {
	t := r.Timestamp.UTC()
	return float32(t.Hour()*100 + t.Minute())
}

// Day returns the record's calendar day truncated to UTC midnight.
func (r WeatherRecord) Day() time.Time {
	t := r.Timestamp.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SearchRequest selects records by coordinates and an inclusive date range.
// UseRelational picks the relational backend instead of the file archive.
type SearchRequest struct {
	From          time.Time
	To            time.Time
	Coordinates   []Coordinate
	UseRelational bool
}

// Location is a relational-only entity: a street address bound to a
// coordinate. Many weather rows reference one location.
type Location struct {
	LocationID   int64
	Coordinate   Coordinate
	StreetName   string
	StreetNumber string
	CityID       int64
}

// City is referenced by Location rows.
type City struct {
	CityID     int64
	PostalCode string
	CityName   string
}
