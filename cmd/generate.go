// Copyright © 2018 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"

	"github.com/bmflynn/ccsdspy/ccsds"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// generateCmd represents the generate command
var generateCmd = &cobra.Command{
	Use:   "generate [flags] <file>",
	Short: "Generate synthetic packet or CADU files for testing",
	Long: `Write a file of synthetic CCSDS Space Packets, or with --cadu a raw
CADU capture carrying those packets: packets are packed into frames for the
spacecraft's framing configuration, Reed-Solomon encoded, pseudo-randomized,
and prefixed with the attached sync marker. The output of --cadu feeds the
framed command; the packet output feeds the packets command.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := generateFile(cmd, args); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	},
}

var (
	generateCount  int
	generateAPID   int
	generateLength int
	generateSCID   int
	generateVCID   int
	generateCADU   bool
	generateSeed   int64
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntVarP(&generateCount, "count", "n", 100, "number of packets to generate")
	generateCmd.Flags().IntVar(&generateAPID, "apid", 100, "apid of the generated packets")
	generateCmd.Flags().IntVar(&generateLength, "length", 64, "total length of each packet in bytes")
	generateCmd.Flags().IntVar(&generateSCID, "scid", 157, "spacecraft id, used with --cadu to look up framing")
	generateCmd.Flags().IntVar(&generateVCID, "vcid", 1, "virtual channel carrying the packets with --cadu")
	generateCmd.Flags().BoolVar(&generateCADU, "cadu", false, "emit a CADU stream rather than bare packets")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 1, "seed for the packet payload generator")
}

func generateFile(cmd *cobra.Command, args []string) error {
	if generateLength < ccsds.PrimaryHeaderLength+1 {
		return fmt.Errorf("packet length must be at least %d", ccsds.PrimaryHeaderLength+1)
	}
	if generateAPID < 0 || generateAPID > ccsds.MaxAPID {
		return fmt.Errorf("apid must be in 0..%d, got %d", ccsds.MaxAPID, generateAPID)
	}

	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	out := bufio.NewWriter(f)
	defer out.Flush()

	rng := rand.New(rand.NewSource(generateSeed))
	packets := make([]byte, 0, generateCount*generateLength)
	for i := 0; i < generateCount; i++ {
		packets = append(packets, makeTestPacket(rng, generateAPID, i, generateLength)...)
	}

	if !generateCADU {
		_, err := out.Write(packets)
		return err
	}
	return writeCADUs(out, packets)
}

// makeTestPacket builds an unsegmented packet with a random payload
func makeTestPacket(rng *rand.Rand, apid, seq, total int) []byte {
	buf := make([]byte, total)
	binary.BigEndian.PutUint16(buf[0:2], uint16(apid)&0x7FF)
	binary.BigEndian.PutUint16(buf[2:4], 0xC000|uint16(seq)&0x3FFF)
	binary.BigEndian.PutUint16(buf[4:6], uint16(total-ccsds.PrimaryHeaderLength-1))
	rng.Read(buf[ccsds.PrimaryHeaderLength:])
	return buf
}

// writeCADUs packs the packet bytes into VCDUs for the configured
// spacecraft, applies the channel coding, and writes the CADU stream. Fill
// in the final frame is an idle packet on APID 2047
func writeCADUs(out *bufio.Writer, packets []byte) error {
	table, err := framingTable()
	if err != nil {
		return err
	}
	framing, ok := table.Lookup(generateSCID)
	if !ok {
		return fmt.Errorf("no framing configured for spacecraft %d", generateSCID)
	}

	var codec *ccsds.InterleavedRS
	if framing.RS != nil {
		codec, err = ccsds.NewInterleavedRS(framing.RS.Interleave, framing.RS.VirtualFill)
		if err != nil {
			return err
		}
	}

	zoneLength := framing.FrameLength - ccsds.VCDUHeaderLength -
		framing.InsertZoneLength - framing.TrailerLength
	counter := uint32(0)

	for len(packets) > 0 {
		zone := make([]byte, 0, zoneLength)
		n := len(packets)
		if n > zoneLength {
			n = zoneLength
		}
		zone = append(zone, packets[:n]...)
		packets = packets[n:]
		if pad := zoneLength - len(zone); pad > 0 {
			zone = append(zone, makeIdlePacket(pad)...)
		}

		frame := make([]byte, 0, framing.FrameLength)
		frame = append(frame, vcduHeader(generateSCID, generateVCID, counter)...)
		frame = append(frame, make([]byte, framing.InsertZoneLength)...)
		frame = append(frame, zone...)
		frame = append(frame, make([]byte, framing.TrailerLength)...)
		counter = (counter + 1) & 0xFFFFFF

		block := frame
		if codec != nil {
			block, err = codec.Encode(frame)
			if err != nil {
				return err
			}
		}
		if framing.Pseudorandomized {
			ccsds.Derandomize(block)
		}
		if _, err := out.Write(ccsds.ASM); err != nil {
			return err
		}
		if _, err := out.Write(block); err != nil {
			return err
		}
	}
	return nil
}

func vcduHeader(scid, vcid int, counter uint32) []byte {
	hdr := make([]byte, ccsds.VCDUHeaderLength)
	binary.BigEndian.PutUint16(hdr[0:2], 2<<14|uint16(scid)<<6|uint16(vcid)&0x3F)
	hdr[2] = byte(counter >> 16)
	hdr[3] = byte(counter >> 8)
	hdr[4] = byte(counter)
	return hdr
}

// makeIdlePacket fills n bytes of packet zone with an idle packet on the
// reserved APID. n below a full header still parses because idle fill at
// the zone tail is only ever followed by a frame boundary
func makeIdlePacket(n int) []byte {
	buf := make([]byte, n)
	if n < ccsds.PrimaryHeaderLength+1 {
		for i := range buf {
			buf[i] = 0xFF
		}
		return buf
	}
	binary.BigEndian.PutUint16(buf[0:2], 0x07FF)
	binary.BigEndian.PutUint16(buf[2:4], 0xC000)
	binary.BigEndian.PutUint16(buf[4:6], uint16(n-ccsds.PrimaryHeaderLength-1))
	return buf
}
