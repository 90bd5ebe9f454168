// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/flemstat/pkg/link"
	"github.com/spf13/cobra"
)

var (
	simulateEcho bool
	simulateName string
	simulateWide bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Act as a FLEM device on the connection",
	Long: `Play the device role on a serial or WebSocket link.

Incoming requests are constructed byte by byte and answered:
  ID (0x01)       - the configured identity (see [identity] in the config)
  anything else   - UNKNOWN_REQUEST, or echoed back with --echo
  corrupt packets - CHECKSUM_ERROR or PACKET_OVERFLOW

Useful for testing a host implementation without hardware, for example
across a pair of USB serial adapters.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().BoolVar(&simulateEcho, "echo", false, "Echo requests other than ID back unchanged")
	simulateCmd.Flags().StringVar(&simulateName, "name", "", "Override the identity name")
	simulateCmd.Flags().BoolVar(&simulateWide, "wide", false, "Answer ID requests with the wide DataId encoding")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if useSoftware {
		return errors.New("simulate needs a real connection (--port or --url)")
	}
	if simulateName != "" {
		identity.Name = simulateName
	}
	if simulateWide {
		identity.ASCII = false
	}

	handler, err := deviceHandler(simulateEcho)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Flemstat - Simulated Device\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Identity: %q, max packet size %d\n", identity.Name, identity.MaxPacketSize)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	logger.Info().Str("connection", connInfo).Int("capacity", capacity).Msg("serving")
	err = link.ServeDevice(ctx, conn, capacity, handler, logger)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
