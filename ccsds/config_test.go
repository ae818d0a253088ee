package ccsds

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupFramingConfig(t *testing.T) {
	c, ok := LookupFramingConfig(157)
	require.True(t, ok)
	assert.Equal(t, "SNPP", c.Name)
	assert.Equal(t, 892, c.FrameLength)
	require.NotNil(t, c.RS)
	assert.Equal(t, 4, c.RS.Interleave)
	assert.Equal(t, 892+2*16*4, c.CodeblockLength())
	assert.Equal(t, 1024, c.CADULength())
	assert.True(t, c.Pseudorandomized)

	_, ok = LookupFramingConfig(9999)
	assert.False(t, ok, "unknown spacecraft is reported, not fatal")
}

func TestCodeblockLengthWithoutRS(t *testing.T) {
	c := FramingConfig{FrameLength: 1115}
	assert.Equal(t, 1115, c.CodeblockLength())
	assert.Equal(t, 1119, c.CADULength())
}

func TestFramingConfigValidate(t *testing.T) {
	good := FramingConfig{Name: "x", SCID: 1, FrameLength: 892}
	assert.NoError(t, good.Validate())

	cases := []FramingConfig{
		{Name: "scid", SCID: 20000, FrameLength: 892},
		{Name: "frame", SCID: 1, FrameLength: 4},
		{Name: "izone", SCID: 1, FrameLength: 892, InsertZoneLength: 17},
		{Name: "trailer", SCID: 1, FrameLength: 892, TrailerLength: -2},
		{Name: "rs", SCID: 1, FrameLength: 892, RS: &RSConfig{Interleave: 1, NumCorrectable: 16}},
	}
	for _, c := range cases {
		assert.Error(t, c.Validate(), c.Name)
	}
}

func TestFrameDecoderConfigFromFraming(t *testing.T) {
	c, ok := LookupFramingConfig(157)
	require.True(t, ok)
	dc := c.FrameDecoderConfig()
	assert.Equal(t, 1024, dc.CADULength)
	assert.Equal(t, 4, dc.Interleave)
	assert.True(t, dc.Derandomize)

	_, err := NewFrameDecoder(dc)
	assert.NoError(t, err, "builtin configs are decodable as-is")
}

func TestFramingTableLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spacecraft.yaml")
	doc := `spacecraft:
  - name: TestSat
    scid: 321
    frame_length: 892
    insert_zone_length: 2
    pseudorandomized: true
    rs:
      interleave: 4
  - name: PlainSat
    scid: 322
    frame_length: 512
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	table := NewFramingTable()
	require.NoError(t, table.LoadFile(path))

	c, ok := table.Lookup(321)
	require.True(t, ok)
	assert.Equal(t, "TestSat", c.Name)
	assert.Equal(t, 2, c.InsertZoneLength)
	require.NotNil(t, c.RS)
	assert.Equal(t, NumCorrectable, c.RS.NumCorrectable, "defaulted")

	c, ok = table.Lookup(322)
	require.True(t, ok)
	assert.Nil(t, c.RS)

	// Builtins still present
	_, ok = table.Lookup(157)
	assert.True(t, ok)
}

func TestFramingTableAddValidates(t *testing.T) {
	table := NewFramingTable()
	err := table.Add(FramingConfig{Name: "bad", SCID: -1, FrameLength: 892})
	assert.Error(t, err)
}
