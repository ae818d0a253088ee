package ccsds

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameForZone wraps packet-zone bytes into a frame with the given insert
// zone and trailer sizes
func frameForZone(scid, vcid int, counter uint32, izone, trailer int, zone []byte) *DecodedFrame {
	data := make([]byte, VCDUHeaderLength+izone+len(zone)+trailer)
	copy(data, makeFrame(scid, vcid, counter, VCDUHeaderLength, nil))
	copy(data[VCDUHeaderLength+izone:], zone)
	f := &DecodedFrame{Data: data, RSState: RSState{Status: RSNotPerformed}}
	f.Header, _ = DecodeVCDUHeader(data)
	return f
}

func collect(ra *Reassembler, frames ...*DecodedFrame) []DecodedPacket {
	var out []DecodedPacket
	for _, f := range frames {
		out = append(out, ra.Consume(f)...)
	}
	return out
}

func TestReassemblerSingleFrame(t *testing.T) {
	ra, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)

	p1 := makePacket(100, SeqUnsegmented, 0, []byte{1, 2})
	p2 := makePacket(101, SeqUnsegmented, 7, []byte{3, 4, 5})
	zone := append(append([]byte{}, p1...), p2...)

	got := collect(ra, frameForZone(42, 1, 0, 0, 0, zone))
	require.Len(t, got, 2, "both packets complete within one frame")
	assert.EqualValues(t, 42, got[0].SCID)
	assert.EqualValues(t, 1, got[0].VCID)
	assert.Equal(t, p1, got[0].Packet)
	assert.Equal(t, p2, got[1].Packet)
}

func TestReassemblerPacketSpansThreeFrames(t *testing.T) {
	ra, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	pkt := makePacket(200, SeqUnsegmented, 9, payload)
	require.Len(t, pkt, 106)

	var got []DecodedPacket
	for i, chunk := range [][]byte{pkt[:40], pkt[40:80], pkt[80:]} {
		got = append(got, ra.Consume(frameForZone(42, 1, uint32(i), 0, 0, chunk))...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, pkt, got[0].Packet, "reassembled bytes identical to the original")
}

func TestReassemblerSkipsInsertZoneAndTrailer(t *testing.T) {
	ra, err := NewReassembler(42, 4, 2)
	require.NoError(t, err)

	pkt := makePacket(100, SeqUnsegmented, 3, []byte{0xAB, 0xCD})
	got := collect(ra, frameForZone(42, 1, 0, 4, 2, pkt))
	require.Len(t, got, 1)
	assert.Equal(t, pkt, got[0].Packet)
}

func TestReassemblerDiscardsOrphanOnGap(t *testing.T) {
	ra, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)

	orphan := makePacket(100, SeqFirst, 0, make([]byte, 60))
	follow := makePacket(100, SeqFirst, 1, []byte{7, 8, 9})

	// Start of a packet, then a counter gap, then a complete packet
	got := collect(ra,
		frameForZone(42, 1, 0, 0, 0, orphan[:30]),
		frameForZone(42, 1, 5, 0, 0, follow),
	)
	require.Len(t, got, 1)
	assert.Equal(t, follow, got[0].Packet, "orphaned accumulation is discarded, not merged")
	assert.EqualValues(t, 1, ra.Stats().Discarded)
	assert.EqualValues(t, 4, ra.Stats().MissingFrames)
}

func TestReassemblerChannelsAreIsolated(t *testing.T) {
	ra, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)

	a := makePacket(100, SeqUnsegmented, 0, make([]byte, 40))
	b := makePacket(200, SeqUnsegmented, 0, make([]byte, 40))

	// Interleave frames of two virtual channels, each packet spanning two
	// frames of its own channel
	got := collect(ra,
		frameForZone(42, 1, 0, 0, 0, a[:20]),
		frameForZone(42, 2, 0, 0, 0, b[:20]),
		frameForZone(42, 1, 1, 0, 0, a[20:]),
		frameForZone(42, 2, 1, 0, 0, b[20:]),
	)
	require.Len(t, got, 2)
	assert.Equal(t, a, got[0].Packet)
	assert.EqualValues(t, 1, got[0].VCID)
	assert.Equal(t, b, got[1].Packet)
	assert.EqualValues(t, 2, got[1].VCID)
}

func TestReassemblerIgnoresOtherSpacecraft(t *testing.T) {
	ra, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)

	pkt := makePacket(100, SeqUnsegmented, 0, []byte{1})
	got := collect(ra, frameForZone(99, 1, 0, 0, 0, pkt))
	assert.Empty(t, got)
	assert.EqualValues(t, 1, ra.Stats().Skipped)
}

func TestReassemblerDropsUncorrectableFrames(t *testing.T) {
	ra, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)

	pkt := makePacket(100, SeqUnsegmented, 0, make([]byte, 40))
	bad := frameForZone(42, 1, 1, 0, 0, pkt[20:])
	bad.RSState = RSState{Status: RSUncorrectable}

	got := collect(ra, frameForZone(42, 1, 0, 0, 0, pkt[:20]), bad)
	assert.Empty(t, got, "pending bytes dropped with the unreliable frame")
	assert.EqualValues(t, 1, ra.Stats().Discarded)

	// With KeepUncorrectable the best-effort bytes flow through
	ra2, err := NewReassembler(42, 0, 0)
	require.NoError(t, err)
	ra2.KeepUncorrectable = true
	got = collect(ra2, frameForZone(42, 1, 0, 0, 0, pkt[:20]), bad)
	require.Len(t, got, 1)
	assert.Equal(t, pkt, got[0].Packet)
}

func TestReassemblerArgumentsValidated(t *testing.T) {
	_, err := NewReassembler(-1, 0, 0)
	assert.Error(t, err)
	_, err = NewReassembler(16384, 0, 0)
	assert.Error(t, err)
	_, err = NewReassembler(42, 17, 0)
	assert.Error(t, err)
	_, err = NewReassembler(42, 0, -1)
	assert.Error(t, err)
}

// TestDecodeFramedPacketsEndToEnd runs the whole pipeline: ten randomized,
// RS-encoded CADUs each carrying one packet, decoded back to ten packets
// with consecutive sequence ids.
func TestDecodeFramedPacketsEndToEnd(t *testing.T) {
	codec, err := NewInterleavedRS(4, 0)
	require.NoError(t, err)

	var stream bytes.Buffer
	for i := 0; i < 10; i++ {
		pkt := makePacket(100, SeqUnsegmented, i, bytes.Repeat([]byte{byte(i)}, 50))
		zone := make([]byte, codec.DataLength()-VCDUHeaderLength)
		copy(zone, pkt)
		// Fill the rest of the zone with an idle packet
		idle := makePacket(MaxAPID, SeqUnsegmented, 0, make([]byte, len(zone)-len(pkt)-PrimaryHeaderLength-1))
		copy(zone[len(pkt):], idle)

		frame := makeFrame(42, 1, uint32(i), codec.DataLength(), zone)
		block, err := codec.Encode(frame)
		require.NoError(t, err)
		Derandomize(block) // randomize for transmission

		stream.Write(ASM)
		stream.Write(block)
	}

	it, err := DecodeFramedPackets(&stream, FramedDecoderConfig{
		FrameDecoderConfig: FrameDecoderConfig{
			CADULength:  codec.BlockLength() + len(ASM),
			Interleave:  4,
			Derandomize: true,
		},
		SCID: 42,
	})
	require.NoError(t, err)

	var seqs []int
	gaps := 0
	prev := -1
	for {
		p, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if p.Packet.APID() == MaxAPID {
			continue // idle filler
		}
		assert.Equal(t, 100, p.Packet.APID())
		assert.EqualValues(t, 1, p.VCID)
		if prev >= 0 {
			gaps += int(MissingPackets(uint16(p.Packet.SequenceCount()), uint16(prev)))
		}
		prev = p.Packet.SequenceCount()
		seqs = append(seqs, p.Packet.SequenceCount())
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seqs)
	assert.Equal(t, 0, gaps)
	assert.EqualValues(t, 10, it.Reassembler().Stats().Frames)
}
