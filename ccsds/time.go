package ccsds

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Epoch is the CCSDS epoch used by both supported timecode formats.
var Epoch = time.Date(1958, time.January, 1, 0, 0, 0, 0, time.UTC)

// Fixed byte widths of the supported timecode formats.
const (
	CDSTimecodeLength    = 8 // 16-bit days, 32-bit millis, 16-bit micros
	EOSCUCTimecodeLength = 8 // 2 p-field bytes, 32-bit seconds, 16-bit subseconds
)

// DecodeCDSTimecode decodes a CCSDS Day Segmented timecode: days since the
// epoch, milliseconds of day, and microseconds of millisecond.
func DecodeCDSTimecode(buf []byte) (time.Time, error) {
	if len(buf) < CDSTimecodeLength {
		return time.Time{}, fmt.Errorf("ccsds: cds timecode needs %d bytes, got %d", CDSTimecodeLength, len(buf))
	}
	days := binary.BigEndian.Uint16(buf[0:2])
	millis := binary.BigEndian.Uint32(buf[2:6])
	micros := binary.BigEndian.Uint16(buf[6:8])

	d := time.Duration(days) * 24 * time.Hour
	d += time.Duration(millis) * time.Millisecond
	d += time.Duration(micros) * time.Microsecond
	return Epoch.Add(d), nil
}

// DecodeEOSCUCTimecode decodes the EOS mission unsegmented timecode: two
// p-field bytes followed by 32 bits of seconds since the epoch and 16 bits
// of binary subseconds (resolution 2^-16 s).
func DecodeEOSCUCTimecode(buf []byte) (time.Time, error) {
	if len(buf) < EOSCUCTimecodeLength {
		return time.Time{}, fmt.Errorf("ccsds: eos-cuc timecode needs %d bytes, got %d", EOSCUCTimecodeLength, len(buf))
	}
	seconds := binary.BigEndian.Uint32(buf[2:6])
	sub := binary.BigEndian.Uint16(buf[6:8])

	d := time.Duration(seconds) * time.Second
	d += time.Duration(float64(sub) / 65536.0 * float64(time.Second))
	return Epoch.Add(d), nil
}

// ITOSFormat converts a time to a string similar to the way ITOS formats it
func ITOSFormat(t time.Time) string {
	return fmt.Sprintf("%02d-%03d-%02d:%02d:%02d.%03d", t.Year()%100, t.YearDay(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1000000)
}
