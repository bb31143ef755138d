// Package record implements the fixed-layout binary codec for weather
// measurements.
//
// Record encoding format (binary, little-endian), ten 4-byte float fields:
//   - Latitude
//   - Longitude
//   - MinuteOfDay (HHmm as a float, e.g. 13:45 -> 1345)
//   - Temperature
//   - RelativeHumidity
//   - Rain
//   - WindSpeed
//   - WindDirection
//   - WindGust
//   - GlobalTiltedIrradiance
//
// The calendar date is not stored in the record; it is encoded only in the
// partition file path, so decoding requires the caller to supply the file's
// date to reconstruct a full timestamp.
package record

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/vejrdk/weatherarchive/internal/errors"
	"github.com/vejrdk/weatherarchive/internal/storage/types"
)

// Size is the encoded size of one record in bytes.
const Size = 40

// Encode encodes one record into its fixed 40-byte layout.
func Encode(r types.WeatherRecord) [Size]byte {
	var buf [Size]byte
	b := AppendEncoded(buf[:0], r)
	copy(buf[:], b)
	return buf
}

// AppendEncoded appends the encoded form of r to dst and returns the
// extended slice. Used by the writer to build partition payloads without
// intermediate copies.
func AppendEncoded(dst []byte, r types.WeatherRecord) []byte {
	dst = appendFloat(dst, float32(r.Coordinate.Latitude))
	dst = appendFloat(dst, float32(r.Coordinate.Longitude))
	dst = appendFloat(dst, r.MinuteOfDay())
	dst = appendFloat(dst, r.Temperature)
	dst = appendFloat(dst, r.RelativeHumidity)
	dst = appendFloat(dst, r.Rain)
	dst = appendFloat(dst, r.WindSpeed)
	dst = appendFloat(dst, r.WindDirection)
	dst = appendFloat(dst, r.WindGust)
	dst = appendFloat(dst, r.GlobalTiltedIrradiance)
	return dst
}

// Decode decodes a single 40-byte record. The partition file's calendar day
// supplies the date component of the timestamp.
func Decode(data []byte, day time.Time) (types.WeatherRecord, error) {
	if len(data) != Size {
		return types.WeatherRecord{}, errors.Wrapf(errors.ErrBadRecordLength, "got %d bytes", len(data))
	}

	var r types.WeatherRecord
	r.Coordinate.Latitude = float64(readFloat(data, 0))
	r.Coordinate.Longitude = float64(readFloat(data, 4))

	minuteOfDay := int(readFloat(data, 8))
	day = day.UTC()
	r.Timestamp = time.Date(day.Year(), day.Month(), day.Day(),
		minuteOfDay/100, minuteOfDay%100, 0, 0, time.UTC)

	r.Temperature = readFloat(data, 12)
	r.RelativeHumidity = readFloat(data, 16)
	r.Rain = readFloat(data, 20)
	r.WindSpeed = readFloat(data, 24)
	r.WindDirection = readFloat(data, 28)
	r.WindGust = readFloat(data, 32)
	r.GlobalTiltedIrradiance = readFloat(data, 36)

	return r, nil
}

// DecodeAll decodes a partition file's raw bytes. The data length must be a
// multiple of the record size; record count is implicit from the length.
func DecodeAll(data []byte, day time.Time) ([]types.WeatherRecord, error) {
	if len(data)%Size != 0 {
		return nil, errors.Wrapf(errors.ErrBadRecordLength, "%d bytes", len(data))
	}
	if len(data) == 0 {
		return nil, nil
	}

	records := make([]types.WeatherRecord, 0, len(data)/Size)
	for off := 0; off < len(data); off += Size {
		r, err := Decode(data[off:off+Size], day)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, nil
}

// Count returns the number of records implied by a partition payload length,
// or an error if the length is not a whole number of records.
func Count(n int) (int, error) {
	if n%Size != 0 {
		return 0, errors.Wrapf(errors.ErrBadRecordLength, "%d bytes", n)
	}
	return n / Size, nil
}

func appendFloat(buf []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
}

func readFloat(data []byte, offset int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(data[offset:]))
}
