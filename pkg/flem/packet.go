// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"bytes"
	"fmt"
)

// Packet is a fixed-capacity FLEM message.
//
// The same instance is used to construct an incoming message (ConsumeByte)
// and to emit an outgoing one (Bytes, NextByte). The cursor is shared
// between the two uses, so one instance is never constructing and emitting
// at the same time.
type Packet struct {
	header   uint16
	checksum uint16
	request  uint8
	response uint8
	length   uint16
	data     []byte // len(data) is the capacity

	cursor     uint32 // header+payload bytes consumed or produced
	dataCursor int    // payload bytes written during construction
	declared   uint16 // length field as received, before the capacity check
	status     Status
}

// NewPacket creates an empty packet able to hold capacity payload bytes.
// It panics if capacity is outside [0, MaxCapacity].
func NewPacket(capacity int) *Packet {
	if capacity < 0 || capacity > MaxCapacity {
		panic(fmt.Sprintf("flem: capacity %d out of range (max %d)", capacity, MaxCapacity))
	}
	return &Packet{
		data:   make([]byte, capacity),
		status: StatusOk,
	}
}

// Header returns the sync header field (SyncHeader once packed)
func (p *Packet) Header() uint16 {
	return p.header
}

// StoredChecksum returns the checksum field as last packed or received
func (p *Packet) StoredChecksum() uint16 {
	return p.checksum
}

// Request returns the request code
func (p *Packet) Request() uint8 {
	return p.request
}

// SetRequest sets the request code
func (p *Packet) SetRequest(request uint8) {
	p.request = request
}

// Response returns the response code
func (p *Packet) Response() uint8 {
	return p.response
}

// SetResponse sets the response code
func (p *Packet) SetResponse(response uint8) {
	p.response = response
}

// DataLength returns the number of payload bytes in use
func (p *Packet) DataLength() uint16 {
	return p.length
}

// Length returns the on-wire size: HeaderSize plus the payload length
func (p *Packet) Length() int {
	return HeaderSize + int(p.length)
}

// DeclaredLength returns the payload length field as last received. Unlike
// DataLength it may exceed Capacity after StatusPacketOverflow.
func (p *Packet) DeclaredLength() uint16 {
	return p.declared
}

// Capacity returns the maximum payload size
func (p *Packet) Capacity() int {
	return len(p.data)
}

// Data returns the payload bytes in use. The slice aliases the packet buffer.
func (p *Packet) Data() []byte {
	return p.data[:p.length]
}

// Buffer returns the whole payload buffer, including bytes beyond the
// current length. The slice aliases the packet buffer.
func (p *Packet) Buffer() []byte {
	return p.data
}

// Status returns the last construction, emission or payload outcome
func (p *Packet) Status() Status {
	return p.status
}

// SetPayload appends data after the current payload. If it does not fit the
// packet is left untouched and ErrPacketOverflow is returned.
func (p *Packet) SetPayload(data []byte) error {
	if len(data) > len(p.data)-int(p.length) {
		p.status = StatusPacketOverflow
		return fmt.Errorf("%w: %d bytes with %d of %d in use", ErrPacketOverflow, len(data), p.length, len(p.data))
	}
	copy(p.data[p.length:], data)
	p.length += uint16(len(data))
	p.status = StatusOk
	return nil
}

// ResetCursor rewinds the construction and emission cursors
func (p *Packet) ResetCursor() {
	p.cursor = 0
	p.dataCursor = 0
}

// ResetLazy clears every field but leaves the payload buffer contents in
// place. Cheaper than Reset when the buffer is about to be overwritten.
func (p *Packet) ResetLazy() {
	p.header = 0
	p.checksum = 0
	p.request = 0
	p.response = 0
	p.length = 0
	p.declared = 0
	p.status = StatusOk
	p.ResetCursor()
}

// Reset clears every field and zeroes the payload buffer
func (p *Packet) Reset() {
	p.ResetLazy()
	clear(p.data)
}

// Clone returns a deep copy, used to hand a packet to another goroutine
func (p *Packet) Clone() *Packet {
	c := *p
	c.data = bytes.Clone(p.data)
	if c.data == nil {
		c.data = []byte{}
	}
	return &c
}

// Equal reports whether both packets carry the same wire fields and payload
func (p *Packet) Equal(other *Packet) bool {
	if other == nil {
		return false
	}
	return p.header == other.header &&
		p.checksum == other.checksum &&
		p.request == other.request &&
		p.response == other.response &&
		bytes.Equal(p.Data(), other.Data())
}

// String returns a one-line summary
func (p *Packet) String() string {
	return fmt.Sprintf("flem.Packet{request=0x%02X response=0x%02X len=%d crc=0x%04X status=%s}",
		p.request, p.response, p.length, p.checksum, p.status)
}
