package ccsds

import (
	"fmt"
	"io"
	"os"
)

// PrimaryHeaderLength is the fixed size of the Space Packet primary header
const PrimaryHeaderLength = 6

// MaxAPID is the largest valid application process identifier (11 bits)
const MaxAPID = 2047

// Sequence flag values from the primary header
const (
	SeqContinuation = 0
	SeqFirst        = 1
	SeqLast         = 2
	SeqUnsegmented  = 3
)

// A Packet is a byte slice holding one complete Space Packet, primary
// header included
type Packet []byte

// Version returns the CCSDS version number from the header of a packet
func (packet Packet) Version() int {
	return int(packet[0] >> 5)
}

// Type returns the packet type flag (0 telemetry, 1 telecommand)
func (packet Packet) Type() int {
	return int(packet[0]>>4) & 0x1
}

// HasSecondaryHeader reports whether the secondary header flag is set
func (packet Packet) HasSecondaryHeader() bool {
	return 8 == (8 & packet[0])
}

// APID returns the CCSDS application ID contained in the header of a packet
func (packet Packet) APID() int {
	return (int(0x7&packet[0]) << 8) + int(packet[1])
}

// StreamID returns the APID together with the type and secondary header bits
func (packet Packet) StreamID() int {
	return int(packet[0])<<8 + int(packet[1])
}

// SequenceFlags returns the segmentation flags from the header of a packet
func (packet Packet) SequenceFlags() int {
	return int(packet[2] >> 6)
}

// SequenceCount returns the CCSDS packet sequence counter from the header of
// a Packet (wraps at 2^14)
func (packet Packet) SequenceCount() int {
	return (0x3FFF & (int(packet[2]) << 8)) | int(packet[3])
}

// Length returns the CCSDS packet length field from the header of a Packet.
// This is packet data field length - 1 or the total packet length - 7
func (packet Packet) Length() int {
	return (int(packet[4]) << 8) + int(packet[5])
}

// TotalLength returns the full packet length in bytes including the header
func (packet Packet) TotalLength() int {
	return PrimaryHeaderLength + packet.Length() + 1
}

// PrimaryHeader holds the decoded fields of a Space Packet primary header
type PrimaryHeader struct {
	Version            uint8
	Type               uint8
	HasSecondaryHeader bool
	APID               uint16
	SequenceFlags      uint8
	SequenceID         uint16
	LenMinus1          uint16
}

// PacketLength returns the full packet length in bytes declared by the header
func (h PrimaryHeader) PacketLength() int {
	return PrimaryHeaderLength + int(h.LenMinus1) + 1
}

// DecodePrimaryHeader decodes the 6-byte big-endian primary header from the
// start of buf
func DecodePrimaryHeader(buf []byte) (PrimaryHeader, error) {
	if len(buf) < PrimaryHeaderLength {
		return PrimaryHeader{}, fmt.Errorf("ccsds: primary header needs %d bytes, got %d", PrimaryHeaderLength, len(buf))
	}
	return PrimaryHeader{
		Version:            buf[0] >> 5,
		Type:               (buf[0] >> 4) & 0x1,
		HasSecondaryHeader: buf[0]&0x8 != 0,
		APID:               uint16(buf[0]&0x7)<<8 | uint16(buf[1]),
		SequenceFlags:      buf[2] >> 6,
		SequenceID:         uint16(buf[2]&0x3F)<<8 | uint16(buf[3]),
		LenMinus1:          uint16(buf[4])<<8 | uint16(buf[5]),
	}, nil
}

// DecodePacket decodes one complete Space Packet from the start of buf,
// failing if buf is shorter than the length the header declares
func DecodePacket(buf []byte) (Packet, error) {
	h, err := DecodePrimaryHeader(buf)
	if err != nil {
		return nil, err
	}
	if len(buf) < h.PacketLength() {
		return nil, fmt.Errorf("ccsds: packet declares %d bytes, got %d", h.PacketLength(), len(buf))
	}
	return Packet(buf[:h.PacketLength()]), nil
}

// A PacketDecoder reads a raw byte stream of back-to-back Space Packets and
// yields them one at a time
type PacketDecoder struct {
	r   io.Reader
	buf Packet
	err error
}

// NewPacketDecoder returns a decoder reading packets from stream
func NewPacketDecoder(stream io.Reader) *PacketDecoder {
	return &PacketDecoder{r: stream, buf: make(Packet, 65536+PrimaryHeaderLength+1)}
}

// Next returns the next packet from the stream, or io.EOF when the stream is
// exhausted at a packet boundary. The returned slice is reused by the next
// call; callers that retain a packet must copy it. A stream ending inside a
// packet surfaces as an error.
func (d *PacketDecoder) Next() (Packet, error) {
	if d.err != nil {
		return nil, d.err
	}
	p, err := d.next()
	if err != nil {
		d.err = err
		return nil, err
	}
	return p, nil
}

func (d *PacketDecoder) next() (Packet, error) {
	n, err := io.ReadFull(d.r, d.buf[:PrimaryHeaderLength])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err == io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("ccsds: stream ends with partial packet header (%d of %d bytes)", n, PrimaryHeaderLength)
	}
	if err != nil {
		return nil, fmt.Errorf("ccsds: reading packet header: %w", err)
	}

	body := d.buf[:PrimaryHeaderLength].Length() + 1
	if _, err := io.ReadFull(d.r, d.buf[PrimaryHeaderLength:PrimaryHeaderLength+body]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("ccsds: stream ends with partial packet body, packet length was %d", PrimaryHeaderLength+body)
		}
		return nil, fmt.Errorf("ccsds: reading packet body: %w", err)
	}
	return d.buf[:PrimaryHeaderLength+body], nil
}

// ReadPacketsCallback reads from a byte stream, identifies packet boundaries
// and passes each packet to a callback
func ReadPacketsCallback(stream io.Reader, callback func(p *Packet)) error {
	d := NewPacketDecoder(stream)
	for {
		p, err := d.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		callback(&p)
	}
}

// ReadPacketsChannel reads from a byte stream, identifies packet boundaries
// and passes each packet to a channel
func ReadPacketsChannel(stream io.Reader, channel chan *Packet) error {
	return ReadPacketsCallback(stream, func(p *Packet) { channel <- p })
}

// PacketFile is a binary file containing a sequence of CCSDS packets without
// any framing
type PacketFile struct {
	Filename string
}

// Iterate reads a packet file, splits it into packets and passes each packet
// to a callback. The packet passed to the callback reuses a single byte
// slice; if the callback needs to keep the packet, it must copy it
func (source PacketFile) Iterate(callback func(p *Packet)) error {
	file, err := os.Open(source.Filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := ReadPacketsCallback(file, callback); err != nil {
		return fmt.Errorf("%s: filename=%s", err.Error(), source.Filename)
	}
	return nil
}
