// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/flemstat/pkg/link"
	"github.com/spf13/cobra"
)

var (
	listProbe   bool
	listTimeout int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List devices that can be connected to",
	Long: `List the serial ports present on this machine.

With --probe an ID request is sent to every port at the configured baud
rate, and ports that answer are shown with the device identity.

Examples:
  # List serial ports
  flemstat list

  # Find which port the device is on
  flemstat list --probe --baud 115200

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - Enumeration error`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listProbe, "probe", false, "Send an ID request to each port")
	listCmd.Flags().IntVar(&listTimeout, "timeout", 2, "Timeout in seconds for each probe")
}

func runList(cmd *cobra.Command, args []string) error {
	var ch link.Channel = link.NewSerialChannel(baudRate, capacity, link.WithLogger(logger))
	if useSoftware {
		ch = link.NewSoftwareHost(capacity, nil, link.WithLogger(logger))
	}

	devices, err := ch.ListDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enumeration error: %v\n", err)
		os.Exit(exitConnection)
	}

	if len(devices) == 0 {
		fmt.Printf("No devices found\n")
		os.Exit(exitFailed)
	}

	found := 0
	for _, device := range devices {
		if !listProbe {
			fmt.Printf("%s\n", device)
			found++
			continue
		}

		desc, err := probeDevice(cmd.Context(), ch, device)
		if err != nil {
			logger.Debug().Err(err).Str("device", device).Msg("probe failed")
			fmt.Printf("%-24s (no response)\n", device)
			continue
		}
		fmt.Printf("%-24s %s\n", device, desc)
		found++
	}

	if found == 0 {
		os.Exit(exitFailed)
	}
	return nil
}

// probeDevice connects to device and asks for its identity
func probeDevice(ctx context.Context, ch link.Channel, device string) (string, error) {
	if err := ch.Connect(device); err != nil {
		return "", err
	}
	defer ch.Disconnect()

	tx, rx, err := ch.Listen(ctx)
	if err != nil {
		return "", err
	}

	id, rtt, err := identifyOnce(ctx, tx, rx, timeoutSeconds(listTimeout))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s (rtt %v)", id, rtt.Round(time.Millisecond)), nil
}
