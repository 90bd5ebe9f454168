// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/rs/zerolog"
)

// Channel is a packet link to one device at a time.
//
// Listen returns a send queue and a receive queue. Packets sent on the send
// queue are owned by the channel from then on; packets received are clones
// owned by the caller. The receive queue is closed by Unlisten, Disconnect,
// cancellation of the Listen context, or loss of the transport.
type Channel interface {
	ListDevices() ([]string, error)
	Connect(device string) error
	Disconnect() error
	Listen(ctx context.Context) (chan<- *flem.Packet, <-chan *flem.Packet, error)
	Unlisten() error
}

// Channel errors
var (
	ErrNotConnected     = errors.New("link: not connected")
	ErrAlreadyConnected = errors.New("link: already connected")
	ErrAlreadyListening = errors.New("link: already listening")
	ErrNotListening     = errors.New("link: not listening")
)

// queueSize is the depth of the packet queues between goroutines
const queueSize = 16

// DialFunc opens the transport for a device name
type DialFunc func(device string) (Conn, error)

type options struct {
	log      zerolog.Logger
	onStatus func(flem.Status)
	devices  func() ([]string, error)
}

func defaultOptions() options {
	return options{log: zerolog.Nop()}
}

// Option configures a StreamChannel or SoftwareHost
type Option func(*options)

// WithLogger sets the logger used for link events
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// WithStatusHook calls fn with the status of every byte received. It runs
// on the reader goroutine.
func WithStatusHook(fn func(flem.Status)) Option {
	return func(o *options) {
		o.onStatus = fn
	}
}

// WithDeviceLister sets the source of ListDevices
func WithDeviceLister(fn func() ([]string, error)) Option {
	return func(o *options) {
		o.devices = fn
	}
}

// listener is one Listen session
type listener struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (l *listener) stop() {
	l.cancel()
	l.wg.Wait()
}

// StreamChannel frames packets over a byte stream Conn
type StreamChannel struct {
	dial     DialFunc
	capacity int
	opts     options

	mu       sync.Mutex
	conn     Conn
	device   string
	cancel   context.CancelFunc
	readerWg sync.WaitGroup
	packets  chan *flem.Packet
	listener *listener
}

var _ Channel = (*StreamChannel)(nil)

// NewStreamChannel creates a channel that opens devices with dial and
// constructs packets of the given payload capacity
func NewStreamChannel(dial DialFunc, capacity int, opts ...Option) *StreamChannel {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StreamChannel{
		dial:     dial,
		capacity: capacity,
		opts:     o,
	}
}

// NewSerialChannel creates a channel over serial ports at baudRate
func NewSerialChannel(baudRate, capacity int, opts ...Option) *StreamChannel {
	dial := func(device string) (Conn, error) {
		return OpenSerial(device, baudRate)
	}
	opts = append([]Option{WithDeviceLister(SerialDevices)}, opts...)
	return NewStreamChannel(dial, capacity, opts...)
}

// NewConnChannel creates a channel over an already open Conn. The device
// name passed to Connect is only used for logging.
func NewConnChannel(conn Conn, capacity int, opts ...Option) *StreamChannel {
	dial := func(string) (Conn, error) {
		return conn, nil
	}
	return NewStreamChannel(dial, capacity, opts...)
}

// ListDevices returns the devices the channel can connect to
func (c *StreamChannel) ListDevices() ([]string, error) {
	if c.opts.devices == nil {
		return nil, nil
	}
	return c.opts.devices()
}

// Connect opens the device and starts reading packets from it
func (c *StreamChannel) Connect(device string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return fmt.Errorf("%w to %s", ErrAlreadyConnected, c.device)
	}

	conn, err := c.dial(device)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.device = device
	c.cancel = cancel
	c.packets = make(chan *flem.Packet, queueSize)

	c.readerWg.Add(1)
	go c.read(ctx, conn, c.packets)

	c.opts.log.Info().Str("device", device).Int("capacity", c.capacity).Msg("connected")
	return nil
}

// Disconnect stops listening and closes the transport
func (c *StreamChannel) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	// Closing first unblocks a reader or writer stuck on the transport
	c.cancel()
	err := c.conn.Close()
	if c.listener != nil {
		c.listener.stop()
		c.listener = nil
	}
	c.readerWg.Wait()
	c.conn = nil

	c.opts.log.Info().Str("device", c.device).Msg("disconnected")
	return err
}

// Listen starts moving packets between the caller and the device
func (c *StreamChannel) Listen(ctx context.Context) (chan<- *flem.Packet, <-chan *flem.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, nil, ErrNotConnected
	}
	if c.listener != nil {
		return nil, nil, ErrAlreadyListening
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &listener{cancel: cancel}
	tx := make(chan *flem.Packet, queueSize)
	rx := make(chan *flem.Packet, queueSize)

	l.wg.Add(2)
	go func() {
		defer l.wg.Done()
		c.transmit(ctx, c.conn, tx)
	}()
	go func() {
		defer l.wg.Done()
		defer close(rx)
		forward(ctx, c.packets, rx)
	}()

	c.listener = l
	return tx, rx, nil
}

// Unlisten stops a Listen session. It must be called before listening
// again, even when the Listen context was cancelled. Packets received
// meanwhile stay queued for the next session.
func (c *StreamChannel) Unlisten() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listener == nil {
		return ErrNotListening
	}
	c.listener.stop()
	c.listener = nil
	return nil
}

// transmit writes queued packets until ctx is done or tx is closed
func (c *StreamChannel) transmit(ctx context.Context, conn Conn, tx <-chan *flem.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-tx:
			if !ok {
				return
			}
			if _, err := p.WriteTo(conn); err != nil {
				c.opts.log.Warn().Err(err).Msg("failed to write packet")
				continue
			}
			c.opts.log.Debug().Uint8("request", p.Request()).Uint8("response", p.Response()).
				Uint16("length", p.DataLength()).Msg("packet sent")
		}
	}
}

// read constructs packets from the transport until it fails or ctx is done
func (c *StreamChannel) read(ctx context.Context, conn Conn, packets chan<- *flem.Packet) {
	defer c.readerWg.Done()
	defer close(packets)

	p := flem.NewPacket(c.capacity)
	buf := make([]byte, 256)

	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			status := p.ConsumeByte(b)
			if c.opts.onStatus != nil {
				c.opts.onStatus(status)
			}

			switch status {
			case flem.StatusPacketReceived:
				select {
				case packets <- p.Clone():
				case <-ctx.Done():
					return
				}
				p.ResetLazy()
			case flem.StatusChecksumError, flem.StatusPacketOverflow:
				c.opts.log.Debug().Stringer("status", status).Uint8("request", p.Request()).
					Msg("dropped packet")
				p.ResetLazy()
			}
		}

		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.opts.log.Warn().Err(err).Msg("read failed")
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// forward moves packets from src to dst until ctx is done
func forward(ctx context.Context, src <-chan *flem.Packet, dst chan<- *flem.Packet) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-src:
			if !ok {
				return
			}
			select {
			case dst <- p:
			case <-ctx.Done():
				return
			}
		}
	}
}
