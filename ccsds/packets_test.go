package ccsds

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makePacket builds a Space Packet with the given header fields and payload
func makePacket(apid, seqflags, seqid int, payload []byte) Packet {
	p := make(Packet, PrimaryHeaderLength+len(payload))
	p[0] = byte(apid >> 8 & 0x7)
	p[1] = byte(apid)
	p[2] = byte(seqflags<<6) | byte(seqid>>8&0x3F)
	p[3] = byte(seqid)
	p[4] = byte((len(payload) - 1) >> 8)
	p[5] = byte(len(payload) - 1)
	copy(p[PrimaryHeaderLength:], payload)
	return p
}

func TestPacketAccessors(t *testing.T) {
	p := makePacket(100, SeqUnsegmented, 1234, []byte{1, 2, 3, 4})
	assert.Equal(t, 0, p.Version())
	assert.Equal(t, 100, p.APID())
	assert.Equal(t, SeqUnsegmented, p.SequenceFlags())
	assert.Equal(t, 1234, p.SequenceCount())
	assert.Equal(t, 3, p.Length())
	assert.Equal(t, 10, p.TotalLength())
	assert.False(t, p.HasSecondaryHeader())
}

func TestDecodePrimaryHeader(t *testing.T) {
	p := makePacket(2047, SeqFirst, 16383, []byte{0xAA})
	p[0] |= 0x08 // secondary header flag

	h, err := DecodePrimaryHeader(p)
	require.NoError(t, err)
	assert.EqualValues(t, 2047, h.APID)
	assert.EqualValues(t, SeqFirst, h.SequenceFlags)
	assert.EqualValues(t, 16383, h.SequenceID)
	assert.EqualValues(t, 0, h.LenMinus1)
	assert.True(t, h.HasSecondaryHeader)
	assert.Equal(t, 7, h.PacketLength())
}

func TestDecodePrimaryHeaderShortBuffer(t *testing.T) {
	_, err := DecodePrimaryHeader([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDecodePacket(t *testing.T) {
	p := makePacket(7, SeqUnsegmented, 1, []byte{9, 8, 7})

	got, err := DecodePacket(p)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodePacket(p[:8])
	assert.Error(t, err, "truncated packet body")
}

func TestPacketDecoderStream(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 4; i++ {
		stream.Write(makePacket(100+i, SeqUnsegmented, i, []byte{byte(i), byte(i + 1)}))
	}

	d := NewPacketDecoder(&stream)
	for i := 0; i < 4; i++ {
		p, err := d.Next()
		require.NoError(t, err)
		assert.Equal(t, 100+i, p.APID())
		assert.Equal(t, i, p.SequenceCount())
	}
	_, err := d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestPacketDecoderPartialTrailingPacket(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(makePacket(1, SeqUnsegmented, 0, []byte{1, 2, 3}))
	stream.Write([]byte{0x00, 0x01, 0x40}) // partial header

	d := NewPacketDecoder(&stream)
	_, err := d.Next()
	require.NoError(t, err)
	_, err = d.Next()
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

func TestReadPacketsCallback(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(makePacket(5, SeqUnsegmented, 0, []byte{1}))
	stream.Write(makePacket(6, SeqUnsegmented, 1, []byte{2}))

	var apids []int
	err := ReadPacketsCallback(&stream, func(p *Packet) { apids = append(apids, p.APID()) })
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, apids)
}

func TestPacketFileIterate(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "packets.dat")
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		stream.Write(makePacket(42, SeqUnsegmented, i, []byte{0xFE, byte(i)}))
	}
	require.NoError(t, os.WriteFile(fname, stream.Bytes(), 0o644))

	count := 0
	err := PacketFile{Filename: fname}.Iterate(func(p *Packet) {
		assert.Equal(t, 42, p.APID())
		assert.Equal(t, count, p.SequenceCount())
		count++
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
