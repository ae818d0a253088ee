package ccsds

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// ASM is the CCSDS attached sync marker preceding every CADU.
var ASM = []byte{0x1A, 0xCF, 0xFC, 0x1D}

// A Synchronizer scans a byte stream for occurrences of a fixed marker and
// yields the fixed-length block following each one. It makes a single
// forward pass over the source; losing lock just means scanning ahead one
// byte at a time until the marker reappears.
type Synchronizer struct {
	r           *bufio.Reader
	marker      []byte
	blockLength int

	window  []byte
	primed  bool
	skipped int64
	err     error
}

// NewSynchronizer returns a Synchronizer yielding blockLength-byte blocks,
// each immediately preceded in r by an exact occurrence of marker.
func NewSynchronizer(r io.Reader, marker []byte, blockLength int) (*Synchronizer, error) {
	if len(marker) == 0 {
		return nil, fmt.Errorf("ccsds: sync marker must not be empty")
	}
	if blockLength <= 0 {
		return nil, fmt.Errorf("ccsds: block length must be positive, got %d", blockLength)
	}
	return &Synchronizer{
		r:           bufio.NewReaderSize(r, 64*1024),
		marker:      marker,
		blockLength: blockLength,
		window:      make([]byte, len(marker)),
	}, nil
}

// Skipped reports the number of bytes discarded so far while searching for
// the marker.
func (s *Synchronizer) Skipped() int64 { return s.skipped }

// Next returns the next synchronized block. It returns io.EOF once the
// source is exhausted; a partial trailing block is discarded, not yielded.
// Any other error is an I/O fault and is terminal.
func (s *Synchronizer) Next() ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	if !s.primed {
		if _, err := io.ReadFull(s.r, s.window); err != nil {
			s.err = s.terminal(err)
			return nil, s.err
		}
		s.primed = true
	}
	for {
		if bytes.Equal(s.window, s.marker) {
			block := make([]byte, s.blockLength)
			if _, err := io.ReadFull(s.r, block); err != nil {
				s.err = s.terminal(err)
				return nil, s.err
			}
			s.primed = false
			return block, nil
		}
		b, err := s.r.ReadByte()
		if err != nil {
			s.err = s.terminal(err)
			return nil, s.err
		}
		copy(s.window, s.window[1:])
		s.window[len(s.window)-1] = b
		s.skipped++
	}
}

// terminal maps end-of-stream conditions to io.EOF and wraps real I/O
// faults.
func (s *Synchronizer) terminal(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return io.EOF
	}
	return fmt.Errorf("ccsds: reading source: %w", err)
}
