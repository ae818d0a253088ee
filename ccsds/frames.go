package ccsds

import (
	"fmt"
	"io"
)

// VCDUHeaderLength is the fixed size of the VCDU primary header
const VCDUHeaderLength = 6

// MaxSCID is the largest valid spacecraft id accepted by the framed
// decoding surface
const MaxSCID = 16383

// VCDUHeader holds the decoded fields of a VCDU primary header per
// CCSDS 732.0-B
type VCDUHeader struct {
	Version      uint8
	SCID         uint16
	VCID         uint16
	Counter      uint32 // wraps at 2^24, scoped per (SCID, VCID)
	Replay       bool
	Cycle        bool
	CounterCycle uint8
}

// DecodeVCDUHeader decodes the 6-byte VCDU primary header from the start of
// buf
func DecodeVCDUHeader(buf []byte) (VCDUHeader, error) {
	if len(buf) < VCDUHeaderLength {
		return VCDUHeader{}, fmt.Errorf("ccsds: vcdu header needs %d bytes, got %d", VCDUHeaderLength, len(buf))
	}
	x := uint16(buf[0])<<8 | uint16(buf[1])
	return VCDUHeader{
		Version:      buf[0] >> 6,
		SCID:         (x >> 6) & 0xFF,
		VCID:         x & 0x3F,
		Counter:      uint32(buf[2])<<16 | uint32(buf[3])<<8 | uint32(buf[4]),
		Replay:       buf[5]&0x80 != 0,
		Cycle:        buf[5]&0x40 != 0,
		CounterCycle: buf[5] & 0x0F,
	}, nil
}

// A DecodedFrame is one VCDU recovered from the downlink: its header, the
// Reed-Solomon outcome, and the full frame bytes (header, insert zone,
// packet zone and trailer; parity and ASM removed). When RSState.Status is
// RSUncorrectable the bytes are a best effort and must not be trusted.
type DecodedFrame struct {
	Header  VCDUHeader
	RSState RSState
	Data    []byte
}

// PacketZone returns the slice of the frame carrying packet bytes, skipping
// the header plus izoneLength bytes and trimming trailerLength bytes from
// the end. A downlink carrying an M_PDU header counts its two bytes as part
// of the insert zone.
func (f *DecodedFrame) PacketZone(izoneLength, trailerLength int) ([]byte, error) {
	start := VCDUHeaderLength + izoneLength
	end := len(f.Data) - trailerLength
	if start > end {
		return nil, fmt.Errorf("ccsds: frame of %d bytes too short for izone %d and trailer %d", len(f.Data), izoneLength, trailerLength)
	}
	return f.Data[start:end], nil
}

// FrameDecoderConfig fixes the per-stream framing parameters. Interleave 0
// disables Reed-Solomon; otherwise the CADU length must match the
// interleaved codeblock exactly.
type FrameDecoderConfig struct {
	CADULength  int // ASM included
	Interleave  int
	VirtualFill int
	Derandomize bool
}

// A FrameDecoder turns a synchronized CADU stream into decoded frames by
// composing marker synchronization, pseudo-noise removal and Reed-Solomon
// correction. It carries no state between frames besides the configuration.
type FrameDecoder struct {
	cfg FrameDecoderConfig
	rs  *InterleavedRS
}

// NewFrameDecoder validates cfg eagerly and returns a decoder for it.
func NewFrameDecoder(cfg FrameDecoderConfig) (*FrameDecoder, error) {
	if cfg.CADULength <= len(ASM) {
		return nil, fmt.Errorf("ccsds: cadu length must exceed the %d-byte sync marker, got %d", len(ASM), cfg.CADULength)
	}
	d := &FrameDecoder{cfg: cfg}
	if cfg.Interleave != 0 {
		rs, err := NewInterleavedRS(cfg.Interleave, cfg.VirtualFill)
		if err != nil {
			return nil, err
		}
		if got := cfg.CADULength - len(ASM); got != rs.BlockLength() {
			return nil, fmt.Errorf("ccsds: cadu length %d leaves a %d-byte block, interleave %d needs %d", cfg.CADULength, got, cfg.Interleave, rs.BlockLength())
		}
		d.rs = rs
	}
	return d, nil
}

// Decode returns a frame iterator over the CADU stream in r.
func (d *FrameDecoder) Decode(r io.Reader) (*FrameIterator, error) {
	sync, err := NewSynchronizer(r, ASM, d.cfg.CADULength-len(ASM))
	if err != nil {
		return nil, err
	}
	return &FrameIterator{dec: d, sync: sync}, nil
}

// DecodeFrames builds a FrameDecoder for cfg and starts it on r.
func DecodeFrames(r io.Reader, cfg FrameDecoderConfig) (*FrameIterator, error) {
	d, err := NewFrameDecoder(cfg)
	if err != nil {
		return nil, err
	}
	return d.Decode(r)
}

// A FrameIterator yields decoded frames one at a time. Blocks whose header
// cannot be parsed are dropped and counted, not surfaced as errors, so a
// noisy capture keeps producing the frames it does contain.
type FrameIterator struct {
	dec     *FrameDecoder
	sync    *Synchronizer
	dropped int64
}

// Dropped reports the number of synchronized blocks discarded because their
// header could not be parsed.
func (it *FrameIterator) Dropped() int64 { return it.dropped }

// Skipped reports the number of source bytes discarded while hunting for
// sync.
func (it *FrameIterator) Skipped() int64 { return it.sync.Skipped() }

// Next returns the next decoded frame. It returns io.EOF when the source is
// exhausted; any other error is terminal.
func (it *FrameIterator) Next() (*DecodedFrame, error) {
	for {
		block, err := it.sync.Next()
		if err != nil {
			return nil, err
		}
		if it.dec.cfg.Derandomize {
			Derandomize(block)
		}

		data := block
		state := RSState{Status: RSNotPerformed}
		if it.dec.rs != nil {
			data, state, err = it.dec.rs.Correct(block)
			if err != nil {
				return nil, err
			}
		}

		header, err := DecodeVCDUHeader(data)
		if err != nil {
			it.dropped++
			continue
		}
		return &DecodedFrame{Header: header, RSState: state, Data: data}, nil
	}
}
