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
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [scid]",
	Short: "Show spacecraft framing configurations",
	Long: `With no arguments, list every spacecraft in the framing table. With a
spacecraft id, print that spacecraft's framing configuration as JSON,
including the derived codeblock and CADU lengths. The --framings flag merges
a configuration file over the builtin table.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := showConfig(cmd, args); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func showConfig(cmd *cobra.Command, args []string) error {
	table, err := framingTable()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		for _, scid := range table.SCIDs() {
			framing, _ := table.Lookup(scid)
			fmt.Printf("%5d  %s\n", scid, framing.Name)
		}
		return nil
	}

	scid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("scid must be an integer, got %q", args[0])
	}
	framing, ok := table.Lookup(scid)
	if !ok {
		return fmt.Errorf("no framing configured for spacecraft %d", scid)
	}

	body, err := json.MarshalIndent(map[string]interface{}{
		"framing":         framing,
		"codeblockLength": framing.CodeblockLength(),
		"caduLength":      framing.CADULength(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
