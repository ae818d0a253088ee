package ccsds

import (
	"fmt"
	"io"
)

// A DecodedPacket is a Space Packet recovered from one or more frames of a
// single virtual channel.
type DecodedPacket struct {
	SCID   uint16
	VCID   uint16
	Packet Packet
}

// ReassemblyStats counts what a Reassembler has seen.
type ReassemblyStats struct {
	Frames        uint64 // frames consumed for the configured spacecraft
	Packets       uint64 // packets emitted
	MissingFrames uint64 // frame counter gaps, summed over channels
	Skipped       uint64 // frames ignored: wrong SCID, uncorrectable, short
	Discarded     uint64 // partial accumulations dropped after a gap
}

type channelState struct {
	buf     []byte
	counter uint32
	primed  bool
}

// A Reassembler consumes decoded frames for one spacecraft and produces the
// Space Packets carried in their packet zones, reconstructing packets that
// span frame boundaries. State is scoped per virtual channel: packet
// boundaries on one VCID never affect another.
type Reassembler struct {
	scid              uint16
	izoneLength       int
	trailerLength     int
	KeepUncorrectable bool // offer best-effort bytes of uncorrectable frames

	channels map[uint16]*channelState
	stats    ReassemblyStats
}

// NewReassembler validates its arguments eagerly and returns a Reassembler
// for the given spacecraft.
func NewReassembler(scid, izoneLength, trailerLength int) (*Reassembler, error) {
	if scid < 0 || scid > MaxSCID {
		return nil, fmt.Errorf("ccsds: scid must be in 0..%d, got %d", MaxSCID, scid)
	}
	if izoneLength < 0 || izoneLength > 16 {
		return nil, fmt.Errorf("ccsds: insert zone length must be in 0..16, got %d", izoneLength)
	}
	if trailerLength < 0 || trailerLength > 16 {
		return nil, fmt.Errorf("ccsds: trailer length must be in 0..16, got %d", trailerLength)
	}
	return &Reassembler{
		scid:          uint16(scid),
		izoneLength:   izoneLength,
		trailerLength: trailerLength,
		channels:      make(map[uint16]*channelState),
	}, nil
}

// Stats returns a snapshot of the reassembly counters.
func (ra *Reassembler) Stats() ReassemblyStats { return ra.stats }

// Consume feeds one decoded frame in and returns the packets it completed,
// possibly none. Frames for other spacecraft are ignored. A gap in the
// frame counter of a channel invalidates that channel's pending
// accumulation: the partial packet is discarded and counted, never merged
// into the next one.
func (ra *Reassembler) Consume(f *DecodedFrame) []DecodedPacket {
	if f.Header.SCID != ra.scid {
		ra.stats.Skipped++
		return nil
	}
	if f.RSState.Status == RSUncorrectable && !ra.KeepUncorrectable {
		ra.stats.Skipped++
		ra.breakChannel(f.Header.VCID)
		return nil
	}
	zone, err := f.PacketZone(ra.izoneLength, ra.trailerLength)
	if err != nil {
		ra.stats.Skipped++
		return nil
	}
	ra.stats.Frames++

	ch, ok := ra.channels[f.Header.VCID]
	if !ok {
		ch = &channelState{}
		ra.channels[f.Header.VCID] = ch
	}
	if ch.primed {
		if missing := MissingFrames(f.Header.Counter, ch.counter); missing > 0 {
			ra.stats.MissingFrames += uint64(missing)
			if len(ch.buf) > 0 {
				ch.buf = ch.buf[:0]
				ra.stats.Discarded++
			}
		}
	}
	ch.counter = f.Header.Counter
	ch.primed = true
	ch.buf = append(ch.buf, zone...)

	var out []DecodedPacket
	for len(ch.buf) >= PrimaryHeaderLength {
		total := Packet(ch.buf).TotalLength()
		if len(ch.buf) < total {
			break
		}
		pkt := make(Packet, total)
		copy(pkt, ch.buf[:total])
		ch.buf = ch.buf[total:]
		out = append(out, DecodedPacket{SCID: f.Header.SCID, VCID: f.Header.VCID, Packet: pkt})
	}
	ra.stats.Packets += uint64(len(out))
	return out
}

// breakChannel notes that stream continuity for a channel was lost, dropping
// any partial packet held for it.
func (ra *Reassembler) breakChannel(vcid uint16) {
	ch, ok := ra.channels[vcid]
	if !ok {
		return
	}
	ch.primed = false
	if len(ch.buf) > 0 {
		ch.buf = ch.buf[:0]
		ra.stats.Discarded++
	}
}

// FramedDecoderConfig fixes the parameters for decoding packets straight
// from a CADU stream.
type FramedDecoderConfig struct {
	FrameDecoderConfig
	SCID              int
	InsertZoneLength  int
	TrailerLength     int
	KeepUncorrectable bool
}

// DecodeFramedPackets decodes the CADU stream in r and reassembles the
// Space Packets of the configured spacecraft. Configuration errors surface
// here, never from the returned iterator.
func DecodeFramedPackets(r io.Reader, cfg FramedDecoderConfig) (*FramedPacketIterator, error) {
	frames, err := DecodeFrames(r, cfg.FrameDecoderConfig)
	if err != nil {
		return nil, err
	}
	ra, err := NewReassembler(cfg.SCID, cfg.InsertZoneLength, cfg.TrailerLength)
	if err != nil {
		return nil, err
	}
	ra.KeepUncorrectable = cfg.KeepUncorrectable
	return &FramedPacketIterator{frames: frames, ra: ra}, nil
}

// A FramedPacketIterator pulls frames as needed and yields reassembled
// packets one at a time.
type FramedPacketIterator struct {
	frames  *FrameIterator
	ra      *Reassembler
	pending []DecodedPacket
	err     error
}

// Reassembler exposes the underlying reassembler, mainly for its counters.
func (it *FramedPacketIterator) Reassembler() *Reassembler { return it.ra }

// Next returns the next decoded packet. It returns io.EOF once the frame
// stream is exhausted and all completed packets have been yielded; a
// trailing partial accumulation is discarded.
func (it *FramedPacketIterator) Next() (*DecodedPacket, error) {
	for len(it.pending) == 0 {
		if it.err != nil {
			return nil, it.err
		}
		f, err := it.frames.Next()
		if err != nil {
			it.err = err
			continue
		}
		it.pending = it.ra.Consume(f)
	}
	p := it.pending[0]
	it.pending = it.pending[1:]
	return &p, nil
}
