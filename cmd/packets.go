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
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bmflynn/ccsdspy/ccsds"
	"github.com/spf13/cobra"
)

// packetsCmd represents the packets command
var packetsCmd = &cobra.Command{
	Use:   "packets [flags] <file> ...",
	Short: "Summarize the Space Packets in packet files",
	Long: `Read files containing concatenated CCSDS Space Packets and print one
line per packet: APID, sequence flags, sequence count, declared length, and
any sequence gap relative to the previous packet on the same APID.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) < 1 {
			return errors.New("requires at least one arg")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		summarizePackets(cmd, args)
	},
}

var (
	packetsCSV      bool
	packetsTimecode string
)

func init() {
	rootCmd.AddCommand(packetsCmd)

	packetsCmd.Flags().BoolVar(&packetsCSV, "csv", false, "emit csv rather than aligned columns")
	packetsCmd.Flags().StringVar(&packetsTimecode, "timecode", "", "decode a secondary header timecode: cds or eoscuc")
}

func summarizePackets(cmd *cobra.Command, args []string) {
	format := "%6d  %5s  %6d  %6d  %8d  %s\n"
	if packetsCSV {
		format = "%d,%s,%d,%d,%d,%s\n"
		fmt.Println("apid,flags,sequence,length,missing,timecode")
	} else {
		fmt.Printf("%6s  %5s  %6s  %6s  %8s  %s\n", "apid", "flags", "seq", "len", "missing", "timecode")
	}

	flagNames := map[int]string{
		ccsds.SeqContinuation: "cont",
		ccsds.SeqFirst:        "first",
		ccsds.SeqLast:         "last",
		ccsds.SeqUnsegmented:  "unseg",
	}

	lastSeq := make(map[int]uint16)
	var count int
	startTime := time.Now()

	PacketFileCallback(args, func(p *ccsds.Packet) {
		count++
		apid := p.APID()
		var missing uint16
		if prev, ok := lastSeq[apid]; ok {
			missing = ccsds.MissingPackets(uint16(p.SequenceCount()), prev)
		}
		lastSeq[apid] = uint16(p.SequenceCount())

		stamp := ""
		if p.HasSecondaryHeader() {
			switch packetsTimecode {
			case "cds":
				if t, err := ccsds.DecodeCDSTimecode((*p)[ccsds.PrimaryHeaderLength:]); err == nil {
					stamp = t.Format(time.RFC3339Nano)
				}
			case "eoscuc":
				if t, err := ccsds.DecodeEOSCUCTimecode((*p)[ccsds.PrimaryHeaderLength:]); err == nil {
					stamp = t.Format(time.RFC3339Nano)
				}
			}
		}

		fmt.Printf(format, apid, flagNames[p.SequenceFlags()], p.SequenceCount(), p.TotalLength(), missing, stamp)
	})

	elapsed := time.Since(startTime)
	fmt.Fprintf(os.Stderr, "%d packets in %s\n", count, elapsed)
}
