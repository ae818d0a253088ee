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
	"os"

	"github.com/bmflynn/ccsdspy/ccsds"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose     bool
	framingFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ccsdspy",
	Short: "Decode CCSDS spacecraft downlink captures",
	Long: `Decode CCSDS spacecraft telemetry captures: synchronize CADU streams,
remove pseudo-noise, correct Reed-Solomon coding, and reassemble the Space
Packets carried across virtual channel frames.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&framingFile, "framings", "", "spacecraft framing database file merged over the builtin table")
}

// framingTable returns the builtin spacecraft table, merged with the
// --framings file when one was given
func framingTable() (*ccsds.FramingTable, error) {
	table := ccsds.NewFramingTable()
	if framingFile != "" {
		if err := table.LoadFile(framingFile); err != nil {
			return nil, err
		}
	}
	return table, nil
}
