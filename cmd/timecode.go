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
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bmflynn/ccsdspy/ccsds"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// timecodeCmd represents the timecode command
var timecodeCmd = &cobra.Command{
	Use:   "timecode [flags] <hex> ...",
	Short: "Decode CCSDS timecodes given as hex bytes",
	Long: `Decode CDS or EOS Telemetry CUC timecodes. Each argument is the
timecode's raw bytes in hex, e.g. 5d50 01c9c3a4 0000 for a CDS stamp.
Whitespace between arguments is ignored so bytes may be grouped by field.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := decodeTimecode(cmd, args); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	},
}

var timecodeFormat string

func init() {
	rootCmd.AddCommand(timecodeCmd)

	timecodeCmd.Flags().StringVarP(&timecodeFormat, "format", "f", "cds", "timecode format: cds or eoscuc")
}

func decodeTimecode(cmd *cobra.Command, args []string) error {
	buf, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil {
		return fmt.Errorf("arguments must be hex bytes: %w", err)
	}

	var t time.Time
	switch timecodeFormat {
	case "cds":
		t, err = ccsds.DecodeCDSTimecode(buf)
	case "eoscuc":
		t, err = ccsds.DecodeEOSCUCTimecode(buf)
	default:
		return fmt.Errorf("unknown timecode format %q", timecodeFormat)
	}
	if err != nil {
		return err
	}

	fmt.Println(t.Format(time.RFC3339Nano))
	fmt.Println(ccsds.ITOSFormat(t))
	return nil
}
