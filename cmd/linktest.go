// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/spf13/cobra"
)

var linkTestDuration int

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw link stability",
	Long: `Test a serial or WebSocket link without sending any FLEM data.

This command connects and just listens, logging every chunk of bytes
received or errors encountered, and counting packets that pass the
checksum. Useful for debugging connection stability issues.

Exit codes:
  0 - Test completed normally
  1 - Test failed
  2 - Connection error`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnection)
	}
	defer conn.Close()

	fmt.Printf("Link Stability Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(timeoutSeconds(linkTestDuration))
	rx := flem.NewPacket(capacity)
	stats := flem.NewStatistics()
	chunks := 0

	fmt.Printf("Listening for data...\n\n")

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			chunks++
			fmt.Printf("[%s] Received %d bytes: %x\n",
				time.Now().Format("15:04:05.000"), len(data), data)
			for _, b := range data {
				status := rx.ConsumeByte(b)
				stats.Update(status)
				if status.IsTerminal() && status != flem.StatusHeaderNotFound {
					rx.ResetLazy()
				}
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			printLinkTestResults(time.Since(start), chunks, stats)
			fmt.Printf("Result: FAILED (connection error)\n")
			conn.Close()
			os.Exit(exitFailed)

		case <-time.After(1 * time.Second):
			remaining := time.Until(endTime).Seconds()
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	printLinkTestResults(time.Since(start), chunks, stats)
	fmt.Printf("Result: PASSED (connection stable)\n")
	return nil
}

func printLinkTestResults(elapsed time.Duration, chunks int, stats *flem.Statistics) {
	fmt.Printf("\n--- Test Results ---\n")
	fmt.Printf("Duration: %v\n", elapsed.Round(time.Second))
	fmt.Printf("Chunks received: %d\n", chunks)
	fmt.Printf("Bytes received: %d\n", stats.TotalBytes)
	fmt.Printf("Valid packets: %d\n", stats.ValidPackets)
	if errs := stats.Errors(); errs > 0 {
		fmt.Printf("Invalid packets: %d\n", errs)
	}
}
