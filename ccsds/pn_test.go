package ccsds

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPNSequenceMatchesStandard(t *testing.T) {
	// First 40 bits of the CCSDS randomizer sequence
	want := []byte{0xFF, 0x48, 0x0E, 0xC0, 0x9A}
	assert.Equal(t, want, pnTable[:5])
}

func TestDerandomizeIsSelfInverse(t *testing.T) {
	buf := make([]byte, 1024)
	for i := range buf {
		buf[i] = byte(i * 7)
	}
	orig := make([]byte, len(buf))
	copy(orig, buf)

	Derandomize(buf)
	assert.NotEqual(t, orig, buf)
	Derandomize(buf)
	assert.Equal(t, orig, buf)
}

func TestDerandomizeRestartsPerBlock(t *testing.T) {
	a := make([]byte, 300)
	b := make([]byte, 300)
	Derandomize(a)
	Derandomize(b)
	assert.Equal(t, a, b)
}
