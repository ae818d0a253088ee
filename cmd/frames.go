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
	"fmt"
	"io"
	"os"

	"github.com/bmflynn/ccsdspy/ccsds"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// framesCmd represents the frames command
var framesCmd = &cobra.Command{
	Use:   "frames [flags] <file>",
	Short: "Summarize the VCDUs in a CADU stream",
	Long: `Synchronize a raw CADU capture, optionally derandomize and Reed-Solomon
correct each frame, and print one line per VCDU: spacecraft, virtual channel,
frame counter, RS status, and the count of frames missing on that channel.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := summarizeFrames(cmd, args); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	},
}

var (
	framesSCID       int
	framesCADULength int
	framesInterleave int
	framesFill       int
	framesPN         bool
)

func init() {
	rootCmd.AddCommand(framesCmd)

	framesCmd.Flags().IntVar(&framesSCID, "scid", -1, "look up framing by spacecraft id rather than explicit flags")
	framesCmd.Flags().IntVar(&framesCADULength, "cadu-length", 1024, "CADU length in bytes, including the sync marker")
	framesCmd.Flags().IntVar(&framesInterleave, "interleave", 0, "Reed-Solomon interleave, 0 to skip correction")
	framesCmd.Flags().IntVar(&framesFill, "virtual-fill", 0, "Reed-Solomon virtual fill symbols per codeword")
	framesCmd.Flags().BoolVar(&framesPN, "pn", false, "remove CCSDS pseudo-noise from each frame")
}

// frameDecoderConfig builds decoder parameters from --scid when given,
// otherwise from the explicit framing flags
func frameDecoderConfig() (ccsds.FrameDecoderConfig, error) {
	if framesSCID >= 0 {
		table, err := framingTable()
		if err != nil {
			return ccsds.FrameDecoderConfig{}, err
		}
		framing, ok := table.Lookup(framesSCID)
		if !ok {
			return ccsds.FrameDecoderConfig{}, fmt.Errorf("no framing configured for spacecraft %d", framesSCID)
		}
		return framing.FrameDecoderConfig(), nil
	}
	return ccsds.FrameDecoderConfig{
		CADULength:  framesCADULength,
		Interleave:  framesInterleave,
		VirtualFill: framesFill,
		Derandomize: framesPN,
	}, nil
}

func summarizeFrames(cmd *cobra.Command, args []string) error {
	config, err := frameDecoderConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	frames, err := ccsds.DecodeFrames(f, config)
	if err != nil {
		return err
	}

	rsNames := map[ccsds.RSStatus]string{
		ccsds.RSNotPerformed:  "skipped",
		ccsds.RSOk:            "ok",
		ccsds.RSCorrected:     "corrected",
		ccsds.RSUncorrectable: "uncorrectable",
	}

	fmt.Printf("%5s  %4s  %8s  %-13s  %7s\n", "scid", "vcid", "counter", "rs", "missing")
	lastCounter := make(map[uint16]uint32)
	var count int
	for {
		frame, err := frames.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		count++

		var missing uint32
		if prev, ok := lastCounter[frame.Header.VCID]; ok {
			missing = ccsds.MissingFrames(frame.Header.Counter, prev)
		}
		lastCounter[frame.Header.VCID] = frame.Header.Counter

		status := rsNames[frame.RSState.Status]
		if frame.RSState.Status == ccsds.RSCorrected {
			status = fmt.Sprintf("corrected(%d)", frame.RSState.Corrected)
		}
		fmt.Printf("%5d  %4d  %8d  %-13s  %7d\n",
			frame.Header.SCID, frame.Header.VCID, frame.Header.Counter, status, missing)
	}

	fmt.Fprintf(os.Stderr, "%d frames, %d bytes skipped before lock, %d blocks dropped\n",
		count, frames.Skipped(), frames.Dropped())
	return nil
}
