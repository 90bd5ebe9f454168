// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"encoding/binary"
	"io"
)

// putHeader serializes the eight header bytes into buf
func (p *Packet) putHeader(buf []byte) {
	binary.LittleEndian.PutUint16(buf[offsetHeader:], p.header)
	binary.LittleEndian.PutUint16(buf[offsetChecksum:], p.checksum)
	buf[offsetRequest] = p.request
	buf[offsetResponse] = p.response
	binary.LittleEndian.PutUint16(buf[offsetLength:], p.length)
}

// AppendBytes appends the wire encoding of the packet to dst
func (p *Packet) AppendBytes(dst []byte) []byte {
	var header [HeaderSize]byte
	p.putHeader(header[:])
	dst = append(dst, header[:]...)
	return append(dst, p.data[:p.length]...)
}

// Bytes returns the wire encoding of the packet: header, checksum, request,
// response, length and payload, Length() bytes in total.
func (p *Packet) Bytes() []byte {
	return p.AppendBytes(make([]byte, 0, p.Length()))
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *Packet) MarshalBinary() ([]byte, error) {
	return p.Bytes(), nil
}

// WriteTo writes the wire encoding of the packet to w
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}

// byteAt returns the wire byte at offset i, which must be below Length()
func (p *Packet) byteAt(i int) byte {
	switch i {
	case offsetHeader:
		return byte(p.header)
	case offsetHeader + 1:
		return byte(p.header >> 8)
	case offsetChecksum:
		return byte(p.checksum)
	case offsetChecksum + 1:
		return byte(p.checksum >> 8)
	case offsetRequest:
		return p.request
	case offsetResponse:
		return p.response
	case offsetLength:
		return byte(p.length)
	case offsetLength + 1:
		return byte(p.length >> 8)
	}
	return p.data[i-offsetData]
}

// NextByte returns the next wire byte of the packet, for transports that
// push one byte at a time. Once every byte has been produced it returns
// ErrEmissionFinished until ResetCursor is called.
func (p *Packet) NextByte() (byte, error) {
	if int(p.cursor) >= p.Length() {
		p.status = StatusEmissionFinished
		return 0, ErrEmissionFinished
	}
	b := p.byteAt(int(p.cursor))
	p.cursor++
	p.status = StatusOk
	return b, nil
}
