// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/spf13/cobra"
)

var (
	identifyTimeout int
	identifyCount   int
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Send ID requests and print the device identity",
	Long: `Send ID requests (0x01) to the device and wait for its DataId.

The DataId carries the device name or version string and the largest
packet it accepts. Both the ASCII and the wide encoding are understood.

This is useful for verifying:
  - The link is established in both directions
  - Packet capacity on both ends is compatible
  - The device is processing requests

Exit codes:
  0 - All requests answered
  1 - One or more requests failed or timed out
  2 - Connection error`,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
	identifyCmd.Flags().IntVar(&identifyTimeout, "timeout", 5, "Timeout in seconds for each request")
	identifyCmd.Flags().IntVar(&identifyCount, "count", 3, "Number of requests to send")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ch, connInfo, err := OpenChannel(cmd.Context(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}

	fmt.Printf("Flemstat - Identify\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per request\n", identifyTimeout)
	fmt.Printf("Count: %d requests\n\n", identifyCount)

	tx, rx, err := ch.Listen(cmd.Context())
	if err != nil {
		ch.Disconnect()
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}

	successCount := 0
	failCount := 0

	for i := 1; i <= identifyCount; i++ {
		fmt.Printf("Request %d/%d: ", i, identifyCount)

		id, rtt, err := identifyOnce(cmd.Context(), tx, rx, timeoutSeconds(identifyTimeout))
		if err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else {
			fmt.Printf("%q, max packet size %d, rtt=%v\n", id.Name(), id.MaxPacketSize(), rtt.Round(time.Millisecond))
			if int(id.MaxPacketSize()) < flem.HeaderSize+capacity {
				logger.Warn().Uint16("device", id.MaxPacketSize()).Int("local", flem.HeaderSize+capacity).
					Msg("device accepts smaller packets than local capacity")
			}
			successCount++
		}

		if i < identifyCount {
			time.Sleep(100 * time.Millisecond)
		}
	}
	ch.Disconnect()

	fmt.Printf("\n--- Identify statistics ---\n")
	fmt.Printf("%d requests sent, %d responses received, %.0f%% loss\n",
		identifyCount, successCount, float64(failCount)/float64(identifyCount)*100)

	if failCount > 0 {
		os.Exit(exitFailed)
	}
	return nil
}

// identifyOnce sends one ID request and decodes the response
func identifyOnce(ctx context.Context, tx chan<- *flem.Packet, rx <-chan *flem.Packet, timeout time.Duration) (flem.DataId, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	select {
	case tx <- flem.NewIDRequest(capacity):
	case <-ctx.Done():
		return flem.DataId{}, 0, fmt.Errorf("send: %w", ctx.Err())
	}

	resp, err := awaitResponse(ctx, rx, flem.RequestID)
	if err != nil {
		return flem.DataId{}, 0, err
	}
	rtt := time.Since(start)

	if resp.Response() != flem.ResponseSuccess {
		return flem.DataId{}, rtt, fmt.Errorf("device answered %s (0x%02X)",
			flem.FormatResponse(resp.Response()), resp.Response())
	}
	id, err := resp.DataId()
	if err != nil {
		return flem.DataId{}, rtt, err
	}
	return id, rtt, nil
}
