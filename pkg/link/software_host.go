// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"fmt"
	"sync"

	"github.com/Thermoquad/flemstat/pkg/flem"
)

// SoftwareDevice is the only device a SoftwareHost offers
const SoftwareDevice = "Software Host"

// byteQueueSize is the depth of the simulated wire from the device
const byteQueueSize = 512

// SoftwareHost is a Channel to a simulated device running in-process.
//
// The device constructs requests with ConsumeByte one byte at a time and
// emits replies with NextByte, the way a UART would. Requests reach it as
// whole frames, so ending a Listen session never leaves half a packet on
// the simulated wire. The device answers with handler, or echoes when it is
// nil.
type SoftwareHost struct {
	capacity int
	handler  Handler
	opts     options

	mu         sync.Mutex
	connected  bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	toDevice   chan []byte
	fromDevice chan byte
	packets    chan *flem.Packet
	listener   *listener
}

var _ Channel = (*SoftwareHost)(nil)

// NewSoftwareHost creates a simulated link whose packets hold capacity
// payload bytes
func NewSoftwareHost(capacity int, handler Handler, opts ...Option) *SoftwareHost {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &SoftwareHost{
		capacity: capacity,
		handler:  handler,
		opts:     o,
	}
}

// ListDevices returns SoftwareDevice
func (h *SoftwareHost) ListDevices() ([]string, error) {
	return []string{SoftwareDevice}, nil
}

// Connect starts the simulated device
func (h *SoftwareHost) Connect(device string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if device != SoftwareDevice {
		return fmt.Errorf("link: unknown device %q", device)
	}
	if h.connected {
		return fmt.Errorf("%w to %s", ErrAlreadyConnected, SoftwareDevice)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.toDevice = make(chan []byte, queueSize)
	h.fromDevice = make(chan byte, byteQueueSize)
	h.packets = make(chan *flem.Packet, queueSize)
	h.connected = true

	h.wg.Add(2)
	go h.runDevice(ctx)
	go h.read(ctx)

	h.opts.log.Info().Str("device", device).Int("capacity", h.capacity).Msg("connected")
	return nil
}

// Disconnect stops listening and the simulated device
func (h *SoftwareHost) Disconnect() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connected {
		return ErrNotConnected
	}
	if h.listener != nil {
		h.listener.stop()
		h.listener = nil
	}
	h.cancel()
	h.wg.Wait()
	h.connected = false

	h.opts.log.Info().Str("device", SoftwareDevice).Msg("disconnected")
	return nil
}

// Listen starts moving packets between the caller and the device
func (h *SoftwareHost) Listen(ctx context.Context) (chan<- *flem.Packet, <-chan *flem.Packet, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.connected {
		return nil, nil, ErrNotConnected
	}
	if h.listener != nil {
		return nil, nil, ErrAlreadyListening
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &listener{cancel: cancel}
	tx := make(chan *flem.Packet, queueSize)
	rx := make(chan *flem.Packet, queueSize)

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-tx:
				if !ok {
					return
				}
				select {
				case h.toDevice <- p.Bytes():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	go func() {
		defer l.wg.Done()
		defer close(rx)
		forward(ctx, h.packets, rx)
	}()

	h.listener = l
	return tx, rx, nil
}

// Unlisten stops a Listen session
func (h *SoftwareHost) Unlisten() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.listener == nil {
		return ErrNotListening
	}
	h.listener.stop()
	h.listener = nil
	return nil
}

// runDevice is the simulated device: construct, answer, emit
func (h *SoftwareHost) runDevice(ctx context.Context) {
	defer h.wg.Done()

	rx := flem.NewPacket(h.capacity)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-h.toDevice:
			for _, b := range frame {
				status := rx.ConsumeByte(b)
				if !status.IsTerminal() || status == flem.StatusHeaderNotFound {
					continue
				}

				resp := answer(rx, status, h.handler)
				rx.ResetLazy()
				if resp != nil && !emit(ctx, resp, h.fromDevice) {
					return
				}
			}
		}
	}
}

// read constructs packets from the device's bytes
func (h *SoftwareHost) read(ctx context.Context) {
	defer h.wg.Done()
	defer close(h.packets)

	p := flem.NewPacket(h.capacity)
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-h.fromDevice:
			status := p.ConsumeByte(b)
			if h.opts.onStatus != nil {
				h.opts.onStatus(status)
			}

			switch status {
			case flem.StatusPacketReceived:
				select {
				case h.packets <- p.Clone():
				case <-ctx.Done():
					return
				}
				p.ResetLazy()
			case flem.StatusChecksumError, flem.StatusPacketOverflow:
				h.opts.log.Debug().Stringer("status", status).Msg("dropped packet")
				p.ResetLazy()
			}
		}
	}
}

// emit pushes the packet onto a byte queue one byte at a time. It returns
// false if ctx ended first.
func emit(ctx context.Context, p *flem.Packet, out chan<- byte) bool {
	p.ResetCursor()
	for {
		b, err := p.NextByte()
		if err != nil {
			return true
		}
		select {
		case out <- b:
		case <-ctx.Done():
			return false
		}
	}
}
