// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const defaultCapacity = 108

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Simulated connection
	useSoftware bool

	// Protocol and output flags
	capacity   int
	configPath string
	verbose    bool

	// Identity advertised by simulated devices, set from the config file
	identity = identityConfig{
		Name:          "flemstat",
		MaxPacketSize: defaultCapacity + 8,
		ASCII:         true,
	}

	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "flemstat",
	Short: "FLEM Protocol Analyzer",
	Long: `Flemstat - A CLI tool for monitoring and exercising FLEM protocol links.

Provides commands for raw packet logging, link statistics, device
identification, and an in-process simulated device for testing.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Software:  --software (simulated device, no hardware)

For WebSocket authentication, the password is read from the FLEM_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Defaults for every connection flag can be kept in a TOML file passed with
--config; flags given on the command line take precedence.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&useSoftware, "software", false, "Connect to an in-process simulated device")

	rootCmd.PersistentFlags().IntVarP(&capacity, "capacity", "c", defaultCapacity, "Packet payload capacity in bytes")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// setup applies the config file and initializes logging
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		applyConfig(cmd, cfg)
	}

	if err := validateCapacity(capacity); err != nil {
		return err
	}

	logger = initLogger(verbose)
	return nil
}

// initLogger creates the console logger. Logs go to stderr so they never
// interleave with packet output on stdout.
func initLogger(debug bool) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// timeoutSeconds converts a seconds flag to a duration
func timeoutSeconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}
