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
	"os/user"
	"path/filepath"
	"time"

	"github.com/bmflynn/ccsdspy/ccsds"
	log "github.com/sirupsen/logrus"
)

// expandPatterns expands glob patterns, including a leading ~/, into the
// matching filenames in argument order
func expandPatterns(args []string) []string {
	var names []string
	for _, basePattern := range args {
		pat := basePattern
		if len(pat) > 1 && pat[:2] == "~/" {
			usr, _ := user.Current()
			pat = filepath.Join(usr.HomeDir, pat[2:])
		}
		if !filepath.IsAbs(pat) {
			pat = filepath.Join(".", pat)
		}
		matches, err := filepath.Glob(pat)
		if err != nil {
			log.Warnf("error expanding file pattern %s: %v", pat, err)
			continue
		}
		names = append(names, matches...)
	}
	return names
}

// PacketFileCallback generates a stream of packets and sends them using a callback
func PacketFileCallback(args []string, callback func(p *ccsds.Packet)) {
	for _, fname := range expandPatterns(args) {
		pktfile := ccsds.PacketFile{Filename: fname}
		if err := pktfile.Iterate(callback); err != nil {
			log.Warn(err)
		}
	}
}

// PacketFileChannel generates a stream of packets and sends them to a channel
func PacketFileChannel(args []string, channel chan *ccsds.Packet) {
	PacketFileCallback(args, func(p *ccsds.Packet) {
		channel <- p
	})
	close(channel)
}

// PacketFileCallbackBPS generates a stream of packets and sends them via a callback, slowing the calls
// to a given bits-per-second
func PacketFileCallbackBPS(bps int, args []string, callback func(p *ccsds.Packet)) {
	var totalBits int64
	startTime := time.Now()
	targetTime := startTime
	PacketFileCallback(args, func(p *ccsds.Packet) {
		// Insert the governer
		time.Sleep(time.Until(targetTime))
		totalBits += int64(p.TotalLength()) * 8
		targetTime = startTime.Add(time.Duration(float64(totalBits) / float64(bps) * float64(time.Second)))
		callback(p)
	})
}

// PacketFileChannelBPS generates a stream of packets and sends them to a stream, slowing the calls
// to a given bits-per-second
func PacketFileChannelBPS(bps int, args []string, channel chan *ccsds.Packet) {
	PacketFileCallbackBPS(bps, args, func(p *ccsds.Packet) {
		channel <- p
	})
	close(channel)
}
