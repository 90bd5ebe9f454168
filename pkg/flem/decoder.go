// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import "fmt"

// ConsumeByte processes a single byte through the construction state machine
// and returns the resulting status.
//
// StatusPacketBuilding means more bytes are needed. StatusPacketReceived,
// StatusChecksumError, StatusHeaderNotFound and StatusPacketOverflow end the
// current attempt; the packet keeps that state until the caller resets it.
func (p *Packet) ConsumeByte(b byte) Status {
	switch c := p.cursor; {
	case c == 0 || c == 1:
		if b != syncByte {
			// Only the cursor rewinds, other fields are left as they are
			p.cursor = 0
			p.status = StatusHeaderNotFound
			return p.status
		}
		if c == 0 {
			p.header = uint16(b)
		} else {
			p.header |= uint16(b) << 8
		}

	case c == 2:
		p.checksum = uint16(b)

	case c == 3:
		p.checksum |= uint16(b) << 8

	case c == 4:
		p.request = b

	case c == 5:
		p.response = b

	case c == 6:
		p.declared = uint16(b)

	case c == 7:
		p.declared |= uint16(b) << 8
		p.dataCursor = 0
		if int(p.declared) > len(p.data) {
			p.status = StatusPacketOverflow
			return p.status
		}
		p.length = p.declared
		if p.length == 0 {
			p.cursor++
			return p.finish()
		}

	case c >= HeaderSize && c < HeaderSize+uint32(len(p.data)) && p.dataCursor < int(p.length):
		p.data[p.dataCursor] = b
		p.dataCursor++
		if p.dataCursor == int(p.length) {
			p.cursor++
			return p.finish()
		}

	default:
		p.status = StatusPacketOverflow
		return p.status
	}

	p.cursor++
	p.status = StatusPacketBuilding
	return p.status
}

// finish validates a fully received packet
func (p *Packet) finish() Status {
	if p.Validate() {
		p.status = StatusPacketReceived
	} else {
		p.status = StatusChecksumError
	}
	return p.status
}

// ParsePacket constructs a packet of the given capacity from a complete
// wire-format buffer. Bytes after the end of the packet are ignored.
func ParsePacket(data []byte, capacity int) (*Packet, error) {
	p := NewPacket(capacity)
	for i, b := range data {
		status := p.ConsumeByte(b)
		if status == StatusPacketBuilding {
			continue
		}
		if status == StatusPacketReceived {
			return p, nil
		}
		return nil, fmt.Errorf("%w at byte %d", status.Err(), i)
	}
	return nil, fmt.Errorf("%w: %d of %d bytes", ErrIncompletePacket, len(data), p.expected())
}

// expected returns the wire size implied by the bytes consumed so far
func (p *Packet) expected() int {
	if p.cursor < HeaderSize {
		return HeaderSize
	}
	return p.Length()
}
