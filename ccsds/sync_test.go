package ccsds

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func caduStream(blocks ...[]byte) *bytes.Buffer {
	var buf bytes.Buffer
	for _, b := range blocks {
		buf.Write(ASM)
		buf.Write(b)
	}
	return &buf
}

func testBlocks(n, length int) [][]byte {
	blocks := make([][]byte, n)
	for i := range blocks {
		b := make([]byte, length)
		for j := range b {
			b[j] = byte(i + j)
		}
		blocks[i] = b
	}
	return blocks
}

func drain(t *testing.T, s *Synchronizer) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		b, err := s.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, b)
	}
}

func TestSynchronizerYieldsBlocksInOrder(t *testing.T) {
	blocks := testBlocks(5, 64)
	s, err := NewSynchronizer(caduStream(blocks...), ASM, 64)
	require.NoError(t, err)

	got := drain(t, s)
	require.Len(t, got, 5)
	for i, b := range blocks {
		assert.Equal(t, b, got[i], "block %d", i)
	}
	assert.EqualValues(t, 0, s.Skipped())
}

func TestSynchronizerSkipsLeadingGarbage(t *testing.T) {
	blocks := testBlocks(3, 32)
	stream := bytes.NewBuffer([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x1A, 0xCF})
	stream.Write(caduStream(blocks...).Bytes())

	s, err := NewSynchronizer(stream, ASM, 32)
	require.NoError(t, err)
	got := drain(t, s)
	require.Len(t, got, 3)
	for i, b := range blocks {
		assert.Equal(t, b, got[i], "block %d", i)
	}
	assert.EqualValues(t, 6, s.Skipped())
}

func TestSynchronizerRelocksAfterGap(t *testing.T) {
	blocks := testBlocks(2, 16)
	var stream bytes.Buffer
	stream.Write(ASM)
	stream.Write(blocks[0])
	stream.WriteString("some line noise")
	stream.Write(ASM)
	stream.Write(blocks[1])

	s, err := NewSynchronizer(&stream, ASM, 16)
	require.NoError(t, err)
	got := drain(t, s)
	require.Len(t, got, 2)
	assert.Equal(t, blocks[0], got[0])
	assert.Equal(t, blocks[1], got[1])
}

func TestSynchronizerDiscardsPartialTrailingBlock(t *testing.T) {
	blocks := testBlocks(2, 48)
	stream := caduStream(blocks...)
	stream.Write(ASM)
	stream.Write(make([]byte, 20)) // short trailing block

	s, err := NewSynchronizer(stream, ASM, 48)
	require.NoError(t, err)
	got := drain(t, s)
	assert.Len(t, got, 2)
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestSynchronizerSurfacesIOFault(t *testing.T) {
	fault := errors.New("disk on fire")
	src := &failingReader{data: append(append([]byte{}, ASM...), make([]byte, 8)...), err: fault}

	s, err := NewSynchronizer(src, ASM, 8)
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	require.Error(t, err)
	assert.ErrorIs(t, err, fault)

	// Terminal: stays failed
	_, err2 := s.Next()
	assert.Equal(t, err, err2)
}

func TestSynchronizerArgumentsValidated(t *testing.T) {
	_, err := NewSynchronizer(&bytes.Buffer{}, nil, 10)
	assert.Error(t, err)
	_, err = NewSynchronizer(&bytes.Buffer{}, ASM, 0)
	assert.Error(t, err)
}
