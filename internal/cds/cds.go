// Package cds implements the CCSDS Day Segmented (CDS) time code used by the
// SLE standards: an implicit P-field T-field relative to the 1958-01-01 epoch,
// at millisecond or picosecond resolution (CCSDS 301.0-B-4, section 3.3).
package cds

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	// MilliLen is the length of a CDS time field at microsecond resolution.
	MilliLen = 8
	// PicoLen is the length of a CDS time field at picosecond resolution.
	PicoLen = 10

	millisPerDay = 86400 * 1000
)

var (
	// ErrInvalidTimeValue reports a negative time component or a buffer of
	// the wrong length.
	ErrInvalidTimeValue = errors.New("invalid CDS time value")

	// ErrEpochUnderflow reports a decoded day count that falls before the
	// Unix epoch, which no SLE peer can legitimately produce.
	ErrEpochUnderflow = errors.New("CDS day count before 1970")
)

// DaysFrom1958To1970 is the day distance between the CCSDS epoch and the Unix
// epoch. Computed once at startup and constant for the process lifetime.
var DaysFrom1958To1970 int64

func init() {
	d1958 := time.Date(1958, time.January, 1, 0, 0, 0, 0, time.UTC)
	d1970 := time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)
	DaysFrom1958To1970 = int64(d1970.Sub(d1958).Hours() / 24)
}

// EncodeMilli encodes the given Unix epoch milliseconds and microseconds
// within the millisecond as an 8-byte CDS time field: 2 bytes days since
// 1958, 4 bytes milliseconds of day, 2 bytes microseconds of millisecond,
// all big-endian. An out-of-range microsecond value rolls over into the
// millisecond field.
func EncodeMilli(epochMillis, microsInMilli int64) ([]byte, error) {
	if epochMillis < 0 || microsInMilli < 0 {
		return nil, fmt.Errorf("%w: millis=%d micros=%d", ErrInvalidTimeValue, epochMillis, microsInMilli)
	}
	secs := epochMillis / 1000
	days := secs/86400 + DaysFrom1958To1970
	millisInDay := (secs%86400)*1000 + epochMillis%1000
	millisInDay += microsInMilli / 1000
	microsInMilli %= 1000

	buf := make([]byte, MilliLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(days))
	binary.BigEndian.PutUint32(buf[2:6], uint32(millisInDay))
	binary.BigEndian.PutUint16(buf[6:8], uint16(microsInMilli))
	return buf, nil
}

// EncodePico encodes the given Unix epoch milliseconds and picoseconds within
// the millisecond as a 10-byte CDS time field: 2 bytes days since 1958,
// 4 bytes milliseconds of day, 4 bytes picoseconds of millisecond, all
// big-endian. An out-of-range picosecond value rolls over into the
// millisecond field.
func EncodePico(epochMillis, picosInMilli int64) ([]byte, error) {
	if epochMillis < 0 || picosInMilli < 0 {
		return nil, fmt.Errorf("%w: millis=%d picos=%d", ErrInvalidTimeValue, epochMillis, picosInMilli)
	}
	secs := epochMillis / 1000
	days := secs/86400 + DaysFrom1958To1970
	millisInDay := (secs%86400)*1000 + epochMillis%1000
	millisInDay += picosInMilli / 1_000_000_000
	picosInMilli %= 1_000_000_000

	buf := make([]byte, PicoLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(days))
	binary.BigEndian.PutUint32(buf[2:6], uint32(millisInDay))
	binary.BigEndian.PutUint32(buf[6:10], uint32(picosInMilli))
	return buf, nil
}

// DecodeMilli decodes an 8-byte CDS time field into Unix epoch milliseconds
// and microseconds within the millisecond. It is the exact inverse of
// EncodeMilli for every buffer EncodeMilli can produce.
func DecodeMilli(buf []byte) (epochMillis, microsInMilli int64, err error) {
	if len(buf) != MilliLen {
		return 0, 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidTimeValue, MilliLen, len(buf))
	}
	days := int64(binary.BigEndian.Uint16(buf[0:2]))
	millisInDay := int64(binary.BigEndian.Uint32(buf[2:6]))
	micros := int64(binary.BigEndian.Uint16(buf[6:8]))
	if days < DaysFrom1958To1970 {
		return 0, 0, fmt.Errorf("%w: day count %d, hex % X", ErrEpochUnderflow, days, buf)
	}
	days -= DaysFrom1958To1970
	return days*millisPerDay + millisInDay, micros, nil
}

// DecodePico decodes a 10-byte CDS time field into Unix epoch milliseconds
// and picoseconds within the millisecond. It is the exact inverse of
// EncodePico for every buffer EncodePico can produce.
func DecodePico(buf []byte) (epochMillis, picosInMilli int64, err error) {
	if len(buf) != PicoLen {
		return 0, 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidTimeValue, PicoLen, len(buf))
	}
	days := int64(binary.BigEndian.Uint16(buf[0:2]))
	millisInDay := int64(binary.BigEndian.Uint32(buf[2:6]))
	picos := int64(binary.BigEndian.Uint32(buf[6:10]))
	if days < DaysFrom1958To1970 {
		return 0, 0, fmt.Errorf("%w: day count %d, hex % X", ErrEpochUnderflow, days, buf)
	}
	days -= DaysFrom1958To1970
	return days*millisPerDay + millisInDay, picos, nil
}

// ToTime converts decoded epoch milliseconds and microseconds within the
// millisecond into a UTC time.Time.
func ToTime(epochMillis, microsInMilli int64) time.Time {
	return time.UnixMilli(epochMillis).Add(time.Duration(microsInMilli) * time.Microsecond).UTC()
}
