package record

import (
	"testing"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

func testRecord(hour, minute int) types.WeatherRecord {
	return types.WeatherRecord{
		Coordinate: types.Coordinate{Latitude: 55.25, Longitude: 11.5},
		Timestamp:  time.Date(2024, 4, 1, hour, minute, 0, 0, time.UTC),
		Measurements: types.Measurements{
			Temperature:            12.3,
			RelativeHumidity:       87.5,
			Rain:                   0.25,
			WindSpeed:              5.5,
			WindDirection:          270,
			WindGust:               9.75,
			GlobalTiltedIrradiance: 420.5,
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := testRecord(13, 45)

	buf := Encode(r)
	if len(buf) != Size {
		t.Fatalf("encoded size = %d, want %d", len(buf), Size)
	}

	decoded, err := Decode(buf[:], r.Day())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if !decoded.Timestamp.Equal(r.Timestamp) {
		t.Errorf("timestamp = %v, want %v", decoded.Timestamp, r.Timestamp)
	}
	if decoded.Measurements != r.Measurements {
		t.Errorf("measurements = %+v, want %+v", decoded.Measurements, r.Measurements)
	}
	// Coordinates survive at float32 precision.
	if float32(decoded.Coordinate.Latitude) != float32(r.Coordinate.Latitude) {
		t.Errorf("latitude = %v, want %v", decoded.Coordinate.Latitude, r.Coordinate.Latitude)
	}
	if float32(decoded.Coordinate.Longitude) != float32(r.Coordinate.Longitude) {
		t.Errorf("longitude = %v, want %v", decoded.Coordinate.Longitude, r.Coordinate.Longitude)
	}
}

func TestMinuteOfDayEncoding(t *testing.T) {
	cases := []struct {
		hour, minute int
		want         float32
	}{
		{0, 0, 0},
		{1, 0, 100},
		{13, 45, 1345},
		{23, 59, 2359},
	}

	for _, c := range cases {
		r := testRecord(c.hour, c.minute)
		buf := Encode(r)

		decoded, err := Decode(buf[:], r.Day())
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got := decoded.MinuteOfDay(); got != c.want {
			t.Errorf("%02d:%02d: minuteOfDay = %v, want %v", c.hour, c.minute, got, c.want)
		}
		if decoded.Timestamp.Hour() != c.hour || decoded.Timestamp.Minute() != c.minute {
			t.Errorf("%02d:%02d: timestamp = %v", c.hour, c.minute, decoded.Timestamp)
		}
	}
}

func TestDecodeAll(t *testing.T) {
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	var data []byte
	for h := 0; h < 24; h++ {
		data = AppendEncoded(data, testRecord(h, 0))
	}

	records, err := DecodeAll(data, day)
	if err != nil {
		t.Fatalf("DecodeAll: %v", err)
	}
	if len(records) != 24 {
		t.Fatalf("decoded %d records, want 24", len(records))
	}
	for h, r := range records {
		if r.Timestamp.Hour() != h {
			t.Errorf("record %d: hour = %d", h, r.Timestamp.Hour())
		}
	}
}

func TestDecodeAll_BadLength(t *testing.T) {
	day := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	if _, err := DecodeAll(make([]byte, 41), day); !errors.Is(err, errors.ErrBadRecordLength) {
		t.Errorf("expected ErrBadRecordLength, got %v", err)
	}
	if _, err := DecodeAll(make([]byte, 39), day); !errors.Is(err, errors.ErrBadRecordLength) {
		t.Errorf("expected ErrBadRecordLength, got %v", err)
	}

	records, err := DecodeAll(nil, day)
	if err != nil || records != nil {
		t.Errorf("empty input: got %v, %v", records, err)
	}
}

func TestCount(t *testing.T) {
	if n, err := Count(960); err != nil || n != 24 {
		t.Errorf("Count(960) = %d, %v", n, err)
	}
	if _, err := Count(961); !errors.Is(err, errors.ErrBadRecordLength) {
		t.Errorf("Count(961): expected ErrBadRecordLength, got %v", err)
	}
}
