// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

// Request builders return packed packets ready for transmission.

// NewRequest creates a packed request carrying payload.
// Returns ErrPacketOverflow if payload exceeds capacity.
func NewRequest(capacity int, request uint8, payload []byte) (*Packet, error) {
	p := NewPacket(capacity)
	p.SetRequest(request)
	if err := p.SetPayload(payload); err != nil {
		return nil, err
	}
	p.Pack()
	return p, nil
}

// NewIDRequest creates a packed ID request (0x01).
// The peer answers with its DataId (see RespondWithIdentity).
func NewIDRequest(capacity int) *Packet {
	p := NewPacket(capacity)
	p.SetRequest(RequestID)
	p.Pack()
	return p
}

// NewEvent creates a packed EVENT packet (0x00) carrying payload.
// Events are unsolicited notifications from a device.
func NewEvent(capacity int, payload []byte) (*Packet, error) {
	return NewRequest(capacity, RequestEvent, payload)
}

// NewErrorResponse creates a packed response to request with the given
// response code and no payload
func NewErrorResponse(capacity int, request, response uint8) *Packet {
	p := NewPacket(capacity)
	p.RespondWithError(request, response)
	return p
}
