// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/Thermoquad/flemstat/pkg/link"
	"github.com/spf13/cobra"
)

// Exit codes shared by the test commands
const (
	exitOK         = 0
	exitFailed     = 1
	exitConnection = 2
)

var (
	packetTestTimeout int
	packetTestProbe   bool
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid FLEM packet",
	Long: `Wait for a valid FLEM packet on the connection until timeout.

This command connects to a serial port, WebSocket or simulated device and
waits for any valid packet. Bytes before the first sync header and packets
failing the checksum are skipped.

With --probe an ID request is sent first, for devices that only speak when
spoken to.

Exit codes:
  0 - Packet received before timeout
  1 - Timeout reached without receiving a valid packet
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a packet")
	packetTestCmd.Flags().BoolVar(&packetTestProbe, "probe", false, "Send an ID request before waiting")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	var skipped atomic.Int64
	hook := link.WithStatusHook(func(s flem.Status) {
		if s == flem.StatusHeaderNotFound || s == flem.StatusChecksumError {
			skipped.Add(1)
		}
	})

	ch, connInfo, err := OpenChannel(cmd.Context(), logger, hook)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}

	fmt.Printf("Flemstat - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid FLEM packet...\n\n")

	tx, rx, err := ch.Listen(cmd.Context())
	if err != nil {
		ch.Disconnect()
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}
	if packetTestProbe {
		tx <- flem.NewIDRequest(capacity)
	}

	packet, code := waitForPacket(cmd.Context(), rx, timeoutSeconds(packetTestTimeout))
	ch.Disconnect()

	switch code {
	case exitOK:
		if n := skipped.Load(); n > 0 {
			fmt.Printf("(skipped %d invalid bytes or packets before sync)\n", n)
		}
		fmt.Printf("SUCCESS: Received valid packet\n")
		fmt.Printf("  Request: %s (0x%02X)\n", flem.FormatRequest(packet.Request()), packet.Request())
		fmt.Printf("  Response: %s (0x%02X)\n", flem.FormatResponse(packet.Response()), packet.Response())
		fmt.Printf("  Length: %d bytes\n", packet.DataLength())
		fmt.Printf("  Checksum: 0x%04X\n", packet.StoredChecksum())
	case exitFailed:
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid packet received within %d seconds\n", packetTestTimeout)
	case exitConnection:
		fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
	}

	os.Exit(code)
	return nil
}

// waitForPacket returns the first packet from rx and the matching exit code
func waitForPacket(ctx context.Context, rx <-chan *flem.Packet, timeout time.Duration) (*flem.Packet, int) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p, ok := <-rx:
		if !ok {
			return nil, exitConnection
		}
		return p, exitOK
	case <-timer.C:
		return nil, exitFailed
	case <-ctx.Done():
		return nil, exitFailed
	}
}
