// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/protobuf/proto"
)

// DataCodec encodes structured records into a packet payload and decodes
// them back. Encode appends to the payload; Decode reads the whole payload.
type DataCodec interface {
	Encode(v any, p *Packet) error
	Decode(p *Packet, v any) error
}

// Encodable is implemented by records that lay out their own payload bytes
type Encodable interface {
	EncodePacket(p *Packet) error
	DecodePacket(p *Packet) error
}

// RecordCodec is a DataCodec for values implementing Encodable
type RecordCodec struct{}

// Encode implements DataCodec
func (RecordCodec) Encode(v any, p *Packet) error {
	e, ok := v.(Encodable)
	if !ok {
		return fmt.Errorf("flem: record codec: %T does not implement Encodable", v)
	}
	return e.EncodePacket(p)
}

// Decode implements DataCodec
func (RecordCodec) Decode(p *Packet, v any) error {
	e, ok := v.(Encodable)
	if !ok {
		return fmt.Errorf("flem: record codec: %T does not implement Encodable", v)
	}
	return e.DecodePacket(p)
}

// CBORCodec is a DataCodec using CBOR (RFC 8949)
type CBORCodec struct{}

// Encode implements DataCodec
func (CBORCodec) Encode(v any, p *Packet) error {
	data, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("flem: failed to encode CBOR payload: %w", err)
	}
	return setEncoded(p, data)
}

// Decode implements DataCodec
func (CBORCodec) Decode(p *Packet, v any) error {
	if p.length == 0 {
		return fmt.Errorf("%w: empty CBOR payload", ErrIncorrectDataLength)
	}
	if err := cbor.Unmarshal(p.Data(), v); err != nil {
		return fmt.Errorf("flem: failed to decode CBOR payload: %w", err)
	}
	return nil
}

// ProtoCodec is a DataCodec for protocol buffer messages
type ProtoCodec struct{}

// Encode implements DataCodec
func (ProtoCodec) Encode(v any, p *Packet) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("flem: proto codec: %T is not a proto.Message", v)
	}
	data, err := proto.Marshal(m)
	if err != nil {
		return fmt.Errorf("flem: failed to encode protobuf payload: %w", err)
	}
	return setEncoded(p, data)
}

// Decode implements DataCodec
func (ProtoCodec) Decode(p *Packet, v any) error {
	m, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("flem: proto codec: %T is not a proto.Message", v)
	}
	if err := proto.Unmarshal(p.Data(), m); err != nil {
		return fmt.Errorf("flem: failed to decode protobuf payload: %w", err)
	}
	return nil
}

// setEncoded appends an encoded record, reporting a record that does not
// fit as ErrIncorrectDataLength
func setEncoded(p *Packet, data []byte) error {
	if err := p.SetPayload(data); err != nil {
		return fmt.Errorf("%w: %w", ErrIncorrectDataLength, err)
	}
	return nil
}
