// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Flemstat - FLEM Link Analyzer
//
// A CLI tool for monitoring, probing and simulating devices that speak the
// FLEM packet protocol over serial, WebSocket or in-process links.

package main

import (
	"os"

	"github.com/Thermoquad/flemstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
