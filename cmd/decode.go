// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/spf13/cobra"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>...",
	Short: "Decode a captured FLEM packet given as hex",
	Long: `Decode one complete FLEM packet from hex bytes, such as a frame copied
from a capture or a WebSocket message.

Bytes may be separated by spaces and prefixed with 0x. The packet is
constructed with the configured --capacity and must pass the checksum.

Example:
  flemstat decode 55 55 01 FC 01 00 00 00`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	p, err := decodeFrame(strings.Join(args, " "), capacity)
	if err != nil {
		return err
	}
	fmt.Print(flem.FormatPacket(p, time.Now()))
	return nil
}

// decodeFrame parses a hex string holding a single wire-format packet
func decodeFrame(input string, capacity int) (*flem.Packet, error) {
	data, err := parseHex(input)
	if err != nil {
		return nil, err
	}
	p, err := flem.ParsePacket(data, capacity)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return p, nil
}
