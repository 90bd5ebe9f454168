// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/Thermoquad/flemstat/pkg/link"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for sending requests to a device",
	Long: `Send requests to a FLEM device from an interactive terminal UI.

Features:
  - Preset requests (ID, IDLE, EVENT)
  - Custom requests typed as hex: the first byte is the request code,
    the rest is the payload (for example "7F 01 02 03")
  - Response log with round trip times
  - Statistics tracking
  - Automatic reconnection on connection loss

Tab switches between the preset list and the custom request field.

Supports serial, WebSocket and software connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// errQueueFull is returned when the send queue cannot take another packet
var errQueueFull = errors.New("send queue full")

// batchInterval is how often received packets are handed to the TUI
const batchInterval = 50 * time.Millisecond

// connectionManager handles channel lifecycle and reconnection
type connectionManager struct {
	mu       sync.RWMutex
	ch       link.Channel
	tx       chan<- *flem.Packet
	rx       <-chan *flem.Packet
	connInfo string

	p        *tea.Program
	done     chan struct{}
	statuses chan flem.Status
}

func newConnectionManager() *connectionManager {
	return &connectionManager{
		done:     make(chan struct{}),
		statuses: make(chan flem.Status, 4096),
	}
}

// onStatus runs on the channel reader goroutine and must not block
func (cm *connectionManager) onStatus(s flem.Status) {
	select {
	case cm.statuses <- s:
	default:
	}
}

// open connects a new channel and starts listening on it
func (cm *connectionManager) open(ctx context.Context) error {
	// stderr belongs to the TUI while it runs
	ch, connInfo, err := OpenChannel(ctx, zerolog.Nop(), link.WithStatusHook(cm.onStatus))
	if err != nil {
		return err
	}

	tx, rx, err := ch.Listen(ctx)
	if err != nil {
		ch.Disconnect()
		return err
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.ch, cm.tx, cm.rx, cm.connInfo = ch, tx, rx, connInfo
	return nil
}

func (cm *connectionManager) close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.ch != nil {
		cm.ch.Disconnect()
	}
	cm.ch, cm.tx, cm.rx = nil, nil, nil
}

func (cm *connectionManager) receiveQueue() <-chan *flem.Packet {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.rx
}

// send queues p for transmission without blocking the TUI
func (cm *connectionManager) send(p *flem.Packet) error {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if cm.tx == nil {
		return link.ErrNotConnected
	}
	select {
	case cm.tx <- p:
		return nil
	default:
		return errQueueFull
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cm := newConnectionManager()
	if err := cm.open(ctx); err != nil {
		return err
	}

	m := initialControlModel(cm, cm.connInfo)
	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	go cm.readerLoop(ctx)

	// Ask for the identity so the header shows who we are talking to
	if err := cm.send(flem.NewIDRequest(capacity)); err != nil {
		logger.Debug().Err(err).Msg("initial ID request")
	}

	_, err := p.Run()
	close(cm.done)
	cancel()
	cm.close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// readerLoop forwards packets to the TUI and reconnects when the channel drops
func (cm *connectionManager) readerLoop(ctx context.Context) {
	for {
		if !cm.forward(cm.receiveQueue()) {
			return
		}

		cm.p.Send(connectionLostMsg{err: link.ErrConnectionClosed})

		if !cm.reconnect(ctx) {
			return
		}
	}
}

// forward batches packets and statuses to the TUI at a fixed rate.
// Returns true if the channel was lost, false if shutdown was requested.
func (cm *connectionManager) forward(rx <-chan *flem.Packet) bool {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	var batch controlBatchMsg
	flush := func() {
	drainLoop:
		for {
			select {
			case s := <-cm.statuses:
				batch.statuses = append(batch.statuses, s)
			default:
				break drainLoop
			}
		}
		if len(batch.packets) > 0 || len(batch.statuses) > 0 {
			batch.at = time.Now()
			cm.p.Send(batch)
		}
		batch = controlBatchMsg{}
	}

	for {
		select {
		case <-cm.done:
			return false
		case p, ok := <-rx:
			if !ok {
				flush()
				return true
			}
			batch.packets = append(batch.packets, p)
		case <-ticker.C:
			flush()
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect(ctx context.Context) bool {
	cm.close()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		if err := cm.open(ctx); err == nil {
			cm.mu.RLock()
			connInfo := cm.connInfo
			cm.mu.RUnlock()

			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			cm.send(flem.NewIDRequest(capacity))
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
