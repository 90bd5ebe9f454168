// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/Thermoquad/flemstat/pkg/link"
	"github.com/spf13/cobra"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw packet log in human-readable format",
	Long: `Continuously construct and display FLEM packets as they arrive.

Each packet is shown with timestamp, request and response codes, checksum,
and its payload: ID responses are decoded as a DataId, anything else is
hex dumped. Corrupt packets are logged as warnings.

Supports serial, WebSocket and software connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ch, connInfo, err := OpenChannel(ctx, logger, link.WithStatusHook(rawLogStatusHook()))
	if err != nil {
		return err
	}
	defer ch.Disconnect()

	fmt.Printf("Flemstat - Raw Packet Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Capacity: %d bytes\n", capacity)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	_, rx, err := ch.Listen(ctx)
	if err != nil {
		return err
	}

	return printPackets(ctx, rx)
}

// printPackets prints received packets until ctx is done or rx closes
func printPackets(ctx context.Context, rx <-chan *flem.Packet) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-rx:
			if !ok {
				logger.Info().Msg("connection closed")
				return nil
			}
			fmt.Print(flem.FormatPacket(p, time.Now()))
		}
	}
}

// rawLogStatusHook logs construction failures as they happen
func rawLogStatusHook() func(flem.Status) {
	return func(s flem.Status) {
		switch s {
		case flem.StatusChecksumError, flem.StatusPacketOverflow:
			logger.Warn().Stringer("status", s).Msg("packet dropped")
		}
	}
}
