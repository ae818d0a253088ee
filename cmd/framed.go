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
	"fmt"
	"io"
	"os"

	"github.com/bmflynn/ccsdspy/ccsds"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// framedCmd represents the framed command
var framedCmd = &cobra.Command{
	Use:   "framed [flags] <file>",
	Short: "Reassemble Space Packets from a CADU stream",
	Long: `Run the full decode pipeline on a raw CADU capture: synchronize,
derandomize, Reed-Solomon correct, and reassemble the Space Packets carried
in each virtual channel's packet zone. Packets are written to --output as
concatenated CCSDS packets suitable for the packets command.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := reassemblePackets(cmd, args); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	},
}

var (
	framedSCID          int
	framedOutput        string
	framedUncorrectable bool
)

func init() {
	rootCmd.AddCommand(framedCmd)

	framedCmd.Flags().IntVar(&framedSCID, "scid", -1, "spacecraft id, used to look up framing parameters")
	framedCmd.MarkFlagRequired("scid")
	framedCmd.Flags().StringVarP(&framedOutput, "output", "o", "", "write packet bytes to this file rather than a summary")
	framedCmd.Flags().BoolVar(&framedUncorrectable, "keep-uncorrectable", false, "reassemble from frames Reed-Solomon could not correct")
}

func reassemblePackets(cmd *cobra.Command, args []string) error {
	table, err := framingTable()
	if err != nil {
		return err
	}
	framing, ok := table.Lookup(framedSCID)
	if !ok {
		return fmt.Errorf("no framing configured for spacecraft %d", framedSCID)
	}

	config := ccsds.FramedDecoderConfig{
		FrameDecoderConfig: framing.FrameDecoderConfig(),
		SCID:               framing.SCID,
		InsertZoneLength:   framing.InsertZoneLength,
		TrailerLength:      framing.TrailerLength,
		KeepUncorrectable:  framedUncorrectable,
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	packets, err := ccsds.DecodeFramedPackets(f, config)
	if err != nil {
		return err
	}

	var out *bufio.Writer
	if framedOutput != "" {
		outf, err := os.Create(framedOutput)
		if err != nil {
			return err
		}
		defer outf.Close()
		out = bufio.NewWriter(outf)
		defer out.Flush()
	}

	perAPID := make(map[int]int)
	for {
		pkt, err := packets.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		perAPID[pkt.Packet.APID()]++
		if out != nil {
			if _, err := out.Write(pkt.Packet); err != nil {
				return err
			}
		}
	}

	stats := packets.Reassembler().Stats()
	fmt.Printf("frames:         %d\n", stats.Frames)
	fmt.Printf("missing frames: %d\n", stats.MissingFrames)
	fmt.Printf("discarded:      %d\n", stats.Discarded)
	fmt.Printf("packets:        %d\n", stats.Packets)
	for apid, n := range perAPID {
		fmt.Printf("  apid %4d: %d\n", apid, n)
	}
	return nil
}
