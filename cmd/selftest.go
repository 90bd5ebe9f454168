// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/Thermoquad/flemstat/pkg/link"
	"github.com/spf13/cobra"
)

var (
	selfTestRounds  int
	selfTestSeed    int64
	selfTestTimeout int
)

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Round trip packets through an in-process simulated device",
	Long: `Exercise the full packet path without hardware.

A simulated device is started in-process and connected through byte
queues. The test asks for its identity, then sends packets with random
request codes and payloads, and checks each echo is identical.

Exit codes:
  0 - All round trips succeeded
  1 - One or more round trips failed`,
	RunE: runSelfTest,
}

func init() {
	rootCmd.AddCommand(selfTestCmd)
	selfTestCmd.Flags().IntVar(&selfTestRounds, "rounds", 100, "Number of random packets to send")
	selfTestCmd.Flags().Int64Var(&selfTestSeed, "seed", 0, "Random seed (0 picks one from the clock)")
	selfTestCmd.Flags().IntVar(&selfTestTimeout, "timeout", 2, "Timeout in seconds for each round trip")
}

func runSelfTest(cmd *cobra.Command, args []string) error {
	handler, err := deviceHandler(true)
	if err != nil {
		return err
	}
	want, _ := identity.DataId()

	seed := selfTestSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	stats := flem.NewStatistics()
	host := link.NewSoftwareHost(capacity, handler,
		link.WithLogger(logger), link.WithStatusHook(stats.Update))
	if err := host.Connect(link.SoftwareDevice); err != nil {
		return err
	}

	fmt.Printf("Flemstat - Self Test\n")
	fmt.Printf("Capacity: %d bytes\n", capacity)
	fmt.Printf("Rounds: %d (seed %d)\n\n", selfTestRounds, seed)

	tx, rx, err := host.Listen(cmd.Context())
	if err != nil {
		host.Disconnect()
		return err
	}

	failures := 0
	id, _, err := identifyOnce(cmd.Context(), tx, rx, timeoutSeconds(selfTestTimeout))
	switch {
	case err != nil:
		fmt.Printf("Identify: FAILED (%v)\n", err)
		failures++
	case id != want:
		fmt.Printf("Identify: FAILED (got %s, want %s)\n", id, want)
		failures++
	default:
		fmt.Printf("Identify: OK (%s)\n", id)
	}

	rng := rand.New(rand.NewSource(seed))
	failures += roundTrips(cmd.Context(), tx, rx, selfTestRounds, rng, timeoutSeconds(selfTestTimeout), os.Stdout)
	host.Disconnect()

	fmt.Println()
	fmt.Print(stats.String())

	if failures > 0 {
		fmt.Printf("Result: FAILED (%d failures)\n", failures)
		os.Exit(exitFailed)
	}
	fmt.Printf("Result: PASSED\n")
	return nil
}

// roundTrips sends random packets to an echoing device and returns how many
// came back different or not at all
func roundTrips(ctx context.Context, tx chan<- *flem.Packet, rx <-chan *flem.Packet, rounds int, rng *rand.Rand, timeout time.Duration, out io.Writer) int {
	failures := 0
	for i := 0; i < rounds; i++ {
		// Skip the reserved codes, which the device answers itself
		request := uint8(2 + rng.Intn(0xFD))
		payload := make([]byte, rng.Intn(capacity+1))
		rng.Read(payload)

		req, err := flem.NewRequest(capacity, request, payload)
		if err != nil {
			fmt.Fprintf(out, "Round %d: %v\n", i, err)
			failures++
			continue
		}
		want := req.Clone()

		resp, err := exchange(ctx, tx, rx, req, timeout)
		switch {
		case err != nil:
			fmt.Fprintf(out, "Round %d: FAILED (%v)\n", i, err)
			failures++
		case !resp.Equal(want) || !bytes.Equal(resp.Bytes(), want.Bytes()):
			fmt.Fprintf(out, "Round %d: FAILED (sent %s, got %s)\n", i, want, resp)
			failures++
		}
	}
	fmt.Fprintf(out, "Round trips: %d/%d OK\n", rounds-failures, rounds)
	return failures
}

// exchange sends req and waits for the response to its request code
func exchange(ctx context.Context, tx chan<- *flem.Packet, rx <-chan *flem.Packet, req *flem.Packet, timeout time.Duration) (*flem.Packet, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request := req.Request()
	select {
	case tx <- req:
	case <-ctx.Done():
		return nil, fmt.Errorf("send: %w", ctx.Err())
	}
	return awaitResponse(ctx, rx, request)
}
