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
	"time"

	"github.com/bmflynn/ccsdspy/ccsds"
	"github.com/bmflynn/ccsdspy/server"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [flags] <file> ...",
	Short: "Relay decoded packets to websocket subscribers",
	Long: `Decode CADU captures for a spacecraft and relay the reassembled Space
Packets to websocket clients subscribed by APID. Framing configurations are
served over REST alongside the relay. With --bps playback is throttled to
approximate the original downlink rate.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServer(cmd, args); err != nil {
			log.Error(err)
			os.Exit(1)
		}
	},
}

var (
	serveHost    string
	servePort    int
	serveSCID    int
	serveBPS     int
	serveReplays int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "", "interface to listen on, all when empty")
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "port to listen on")
	serveCmd.Flags().IntVar(&serveSCID, "scid", -1, "spacecraft id, used to look up framing parameters")
	serveCmd.MarkFlagRequired("scid")
	serveCmd.Flags().IntVar(&serveBPS, "bps", 0, "limit playback to bits per second, unlimited when 0")
	serveCmd.Flags().IntVar(&serveReplays, "replay", 1, "times to replay the capture files, forever when 0")
}

func runServer(cmd *cobra.Command, args []string) error {
	table, err := framingTable()
	if err != nil {
		return err
	}
	framing, ok := table.Lookup(serveSCID)
	if !ok {
		return fmt.Errorf("no framing configured for spacecraft %d", serveSCID)
	}

	serv := server.Server{
		Host:     serveHost,
		Port:     servePort,
		Framings: table,
	}

	if len(args) > 0 {
		go playCaptures(&serv, framing, args)
	}
	serv.Run()
	return nil
}

// playCaptures decodes each capture file in turn and publishes its packets,
// replaying the file list --replay times
func playCaptures(serv *server.Server, framing *ccsds.FramingConfig, args []string) {
	// Wait for the relay to come up
	time.Sleep(time.Second)

	config := ccsds.FramedDecoderConfig{
		FrameDecoderConfig: framing.FrameDecoderConfig(),
		SCID:               framing.SCID,
		InsertZoneLength:   framing.InsertZoneLength,
		TrailerLength:      framing.TrailerLength,
	}

	var totalBits int64
	startTime := time.Now()
	targetTime := startTime

	for pass := 0; serveReplays == 0 || pass < serveReplays; pass++ {
		for _, fname := range expandPatterns(args) {
			f, err := os.Open(fname)
			if err != nil {
				log.Warnf("skipping %s: %v", fname, err)
				continue
			}
			packets, err := ccsds.DecodeFramedPackets(f, config)
			if err != nil {
				f.Close()
				log.Errorf("decoding %s: %v", fname, err)
				return
			}
			for {
				pkt, err := packets.Next()
				if err == io.EOF {
					break
				}
				if err != nil {
					log.Warnf("decoding %s: %v", fname, err)
					break
				}
				if serveBPS > 0 {
					// Insert the governer
					time.Sleep(time.Until(targetTime))
					totalBits += int64(len(pkt.Packet)) * 8
					targetTime = startTime.Add(time.Duration(float64(totalBits) / float64(serveBPS) * float64(time.Second)))
				}
				serv.Publish(*pkt)
			}
			f.Close()
		}
	}
}
