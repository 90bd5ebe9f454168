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
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track link statistics and packet errors",
	Long: `Track construction outcomes on a link with statistics.

This command constructs every packet on the link and detects:
  - Checksum mismatches
  - Packets declaring more payload than the local capacity
  - Bytes outside any packet (lost sync)
  - Error responses (CHECKSUM_ERROR, PACKET_OVERFLOW, UNKNOWN_REQUEST, ERROR)
  - Statistics and trends (packet rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid packets too.

Errors before the first valid packet are counted as sync bytes, not errors.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all packets (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

// frameEvent is a terminal construction outcome
type frameEvent struct {
	at     time.Time
	status flem.Status
	packet *flem.Packet
}

// frameBatch is the result of scanning one chunk of bytes
type frameBatch struct {
	statuses []flem.Status
	events   []frameEvent

	// synced is set on the batch holding the first valid packet
	synced  bool
	skipped int
}

// frameScanner constructs packets from a raw byte stream
type frameScanner struct {
	rx           *flem.Packet
	synchronized bool
	skipped      int
}

func newFrameScanner(capacity int) *frameScanner {
	return &frameScanner{rx: flem.NewPacket(capacity)}
}

// scan feeds data through the state machine. Failures before the first
// valid packet only count as skipped sync bytes.
func (s *frameScanner) scan(data []byte) frameBatch {
	batch := frameBatch{statuses: make([]flem.Status, 0, len(data))}
	now := time.Now()

	for _, b := range data {
		status := s.rx.ConsumeByte(b)
		batch.statuses = append(batch.statuses, status)

		switch status {
		case flem.StatusHeaderNotFound:
			if !s.synchronized {
				s.skipped++
			}

		case flem.StatusPacketReceived:
			if !s.synchronized {
				s.synchronized = true
				batch.synced = true
				batch.skipped = s.skipped
			}
			batch.events = append(batch.events, frameEvent{at: now, status: status, packet: s.rx.Clone()})
			s.rx.ResetLazy()

		case flem.StatusChecksumError, flem.StatusPacketOverflow:
			if s.synchronized {
				batch.events = append(batch.events, frameEvent{at: now, status: status, packet: s.rx.Clone()})
			} else {
				s.skipped++
				batch.statuses[len(batch.statuses)-1] = flem.StatusHeaderNotFound
			}
			s.rx.ResetLazy()
		}
	}
	return batch
}

// describeEvent returns a log line for an event and whether it is an error
func describeEvent(ev frameEvent) (string, bool) {
	p := ev.packet
	switch ev.status {
	case flem.StatusChecksumError:
		return fmt.Sprintf("CHECKSUM ERROR: %s (0x%02X) len=%d stored=0x%04X computed=0x%04X",
			flem.FormatRequest(p.Request()), p.Request(), p.DataLength(), p.StoredChecksum(), p.Checksum(false)), true
	case flem.StatusPacketOverflow:
		return fmt.Sprintf("PACKET OVERFLOW: %s (0x%02X) declared len=%d, capacity %d",
			flem.FormatRequest(p.Request()), p.Request(), p.DeclaredLength(), p.Capacity()), true
	}

	name := fmt.Sprintf("%s (0x%02X) -> %s (0x%02X)",
		flem.FormatRequest(p.Request()), p.Request(), flem.FormatResponse(p.Response()), p.Response())
	switch p.Response() {
	case flem.ResponseChecksumError, flem.ResponsePacketOverflow, flem.ResponseUnknownRequest, flem.ResponseError:
		return "ERROR RESPONSE: " + name, true
	}
	if p.Request() == flem.RequestID && p.Response() == flem.ResponseSuccess {
		if id, err := p.DataId(); err == nil {
			return fmt.Sprintf("%s: %s", name, id), false
		}
	}
	return fmt.Sprintf("%s len=%d (valid)", name, p.DataLength()), false
}

// applyBatch records a batch in stats
func applyBatch(stats *flem.Statistics, batch frameBatch) {
	for _, status := range batch.statuses {
		stats.Update(status)
	}
	for _, ev := range batch.events {
		if ev.status == flem.StatusPacketReceived {
			stats.RecordResponse(ev.packet)
		}
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if useSoftware {
		return fmt.Errorf("monitor needs a real connection (--port or --url)")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(ctx, conn, connInfo)
}

// readChunks copies reads from conn onto a channel until the connection fails
func readChunks(conn link.Conn) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 10)
	errs := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				chunks <- data
			}
			if err != nil {
				errs <- err
				return
			}
		}
	}()
	return chunks, errs
}

// runTUIMode runs the monitor in TUI mode
func runTUIMode(conn link.Conn, connInfo string) error {
	m := initialModel(connInfo, capacity, showAll)
	p := tea.NewProgram(m)

	go func() {
		scanner := newFrameScanner(capacity)
		chunks, errs := readChunks(conn)
		for {
			select {
			case data := <-chunks:
				p.Send(scanner.scan(data))
			case err := <-errs:
				p.Send(connectionLostMsg{err: err})
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs the monitor in text mode
func runTextMode(ctx context.Context, conn link.Conn, connInfo string) error {
	fmt.Printf("Flemstat - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Capacity: %d bytes\n", capacity)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All packets\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	scanner := newFrameScanner(capacity)
	stats := flem.NewStatistics()

	statsTicker := time.NewTicker(timeoutSeconds(statsInterval))
	defer statsTicker.Stop()

	chunks, errs := readChunks(conn)

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(stats.String())
			return nil

		case err := <-errs:
			logger.Error().Err(err).Msg("connection lost")
			fmt.Print(stats.String())
			return nil

		case data := <-chunks:
			batch := scanner.scan(data)
			applyBatch(stats, batch)

			if batch.synced {
				if batch.skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", batch.skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			for _, ev := range batch.events {
				line, isError := describeEvent(ev)
				timestamp := ev.at.Format("15:04:05.000")
				switch {
				case isError:
					fmt.Printf("[%s] \033[1;31m%s\033[0m\n\n", timestamp, line)
				case showAll:
					fmt.Print(flem.FormatPacket(ev.packet, ev.at))
				}
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}
