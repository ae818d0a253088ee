package ccsds

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCDSTimecode(t *testing.T) {
	// 2023-06-15T12:30:45.123456Z relative to the 1958-01-01 epoch
	want := time.Date(2023, time.June, 15, 12, 30, 45, 123456000, time.UTC)
	days := want.Sub(Epoch) / (24 * time.Hour)
	msOfDay := want.Sub(Epoch.Add(days*24*time.Hour)) / time.Millisecond
	micros := 456

	buf := make([]byte, CDSTimecodeLength)
	binary.BigEndian.PutUint16(buf[0:2], uint16(days))
	binary.BigEndian.PutUint32(buf[2:6], uint32(msOfDay))
	binary.BigEndian.PutUint16(buf[6:8], uint16(micros))

	got, err := DecodeCDSTimecode(buf)
	require.NoError(t, err)
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestDecodeCDSTimecodeEpoch(t *testing.T) {
	got, err := DecodeCDSTimecode(make([]byte, CDSTimecodeLength))
	require.NoError(t, err)
	assert.True(t, got.Equal(Epoch))
}

func TestDecodeCDSTimecodeShortBuffer(t *testing.T) {
	_, err := DecodeCDSTimecode(make([]byte, CDSTimecodeLength-1))
	assert.Error(t, err)
}

func TestDecodeEOSCUCTimecode(t *testing.T) {
	want := time.Date(2020, time.February, 29, 23, 59, 59, 500000000, time.UTC)
	seconds := uint32(want.Add(-500 * time.Millisecond).Sub(Epoch) / time.Second)

	buf := make([]byte, EOSCUCTimecodeLength)
	binary.BigEndian.PutUint32(buf[2:6], seconds)
	binary.BigEndian.PutUint16(buf[6:8], 0x8000) // half a second

	got, err := DecodeEOSCUCTimecode(buf)
	require.NoError(t, err)
	assert.True(t, got.Equal(want), "got %s want %s", got, want)
}

func TestDecodeEOSCUCTimecodeShortBuffer(t *testing.T) {
	_, err := DecodeEOSCUCTimecode(make([]byte, EOSCUCTimecodeLength-1))
	assert.Error(t, err)
}

func TestITOSFormat(t *testing.T) {
	ts := time.Date(2023, time.January, 2, 3, 4, 5, 60000000, time.UTC)
	assert.Equal(t, "23-002-03:04:05.060", ITOSFormat(ts))
}
