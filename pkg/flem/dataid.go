// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"encoding/binary"
	"fmt"
)

// DataId layout
const (
	// DataIdNameSize is the name field width; one slot is kept for the
	// terminator, so names are at most DataIdNameSize-1 characters.
	DataIdNameSize = 30

	// DataIdSize is the ASCII encoding size: name bytes plus a uint16
	DataIdSize = DataIdNameSize + 2

	// WideDataIdSize is the wide encoding size: 4 bytes per name
	// character plus a uint16
	WideDataIdSize = DataIdNameSize*4 + 2
)

// DataId advertises a party's name/version and the largest packet it
// accepts. It is the payload of an ID response.
type DataId struct {
	name          [DataIdNameSize]byte
	maxPacketSize uint16
}

// NewDataId creates a DataId. Names longer than DataIdNameSize-1 bytes or
// containing non-ASCII characters are rejected, never truncated.
func NewDataId(name string, maxPacketSize uint16) (DataId, error) {
	var id DataId
	if len(name) >= DataIdNameSize {
		return id, fmt.Errorf("%w: %d bytes (max %d)", ErrNameTooLong, len(name), DataIdNameSize-1)
	}
	for i := 0; i < len(name); i++ {
		if name[i] > 0x7F {
			return id, fmt.Errorf("%w: byte 0x%02X at %d", ErrNameNotASCII, name[i], i)
		}
	}
	copy(id.name[:], name)
	id.maxPacketSize = maxPacketSize
	return id, nil
}

// MustDataId is like NewDataId but panics on error
func MustDataId(name string, maxPacketSize uint16) DataId {
	id, err := NewDataId(name, maxPacketSize)
	if err != nil {
		panic(err)
	}
	return id
}

// Name returns the name up to the first NUL
func (d DataId) Name() string {
	n := 0
	for n < len(d.name) && d.name[n] != 0 {
		n++
	}
	return string(d.name[:n])
}

// MaxPacketSize returns the advertised maximum packet size
func (d DataId) MaxPacketSize() uint16 {
	return d.maxPacketSize
}

// String returns a human-readable form
func (d DataId) String() string {
	return fmt.Sprintf("%s (max packet %d)", d.Name(), d.maxPacketSize)
}

// Encode returns the payload form of the DataId.
//
// The ASCII form is the name bytes followed by the little-endian size. The
// wide form stores each name character as a little-endian uint32, for peers
// that keep names as 4-byte characters.
func (d DataId) Encode(ascii bool) []byte {
	if ascii {
		buf := make([]byte, DataIdSize)
		copy(buf, d.name[:])
		binary.LittleEndian.PutUint16(buf[DataIdNameSize:], d.maxPacketSize)
		return buf
	}

	buf := make([]byte, WideDataIdSize)
	for i, c := range d.name {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(c))
	}
	binary.LittleEndian.PutUint16(buf[DataIdNameSize*4:], d.maxPacketSize)
	return buf
}

// ParseDataId decodes the ASCII form: DataIdNameSize name bytes followed by
// a little-endian uint16. Extra bytes are ignored.
func ParseDataId(data []byte) (DataId, error) {
	var id DataId
	if len(data) < DataIdSize {
		return id, fmt.Errorf("%w: %d bytes (need %d)", ErrShortDataId, len(data), DataIdSize)
	}
	copy(id.name[:], data[:DataIdNameSize])
	if err := id.check(); err != nil {
		return DataId{}, err
	}
	id.maxPacketSize = binary.LittleEndian.Uint16(data[DataIdNameSize:])
	return id, nil
}

// ParseWideDataId decodes the wide form produced by Encode(false)
func ParseWideDataId(data []byte) (DataId, error) {
	var id DataId
	if len(data) < WideDataIdSize {
		return id, fmt.Errorf("%w: %d bytes (need %d)", ErrShortDataId, len(data), WideDataIdSize)
	}
	for i := range id.name {
		c := binary.LittleEndian.Uint32(data[i*4:])
		if c > 0x7F {
			return DataId{}, fmt.Errorf("%w: character 0x%X at %d", ErrNameNotASCII, c, i)
		}
		id.name[i] = byte(c)
	}
	if err := id.check(); err != nil {
		return DataId{}, err
	}
	id.maxPacketSize = binary.LittleEndian.Uint16(data[DataIdNameSize*4:])
	return id, nil
}

// check rejects decoded names that are unterminated or not ASCII
func (d *DataId) check() error {
	if d.name[DataIdNameSize-1] != 0 {
		return fmt.Errorf("%w: name field is not terminated", ErrNameTooLong)
	}
	for i, c := range d.name {
		if c > 0x7F {
			return fmt.Errorf("%w: byte 0x%02X at %d", ErrNameNotASCII, c, i)
		}
	}
	return nil
}

// DataId decodes the packet payload as a DataId, choosing the wide form
// when the payload has exactly its size
func (p *Packet) DataId() (DataId, error) {
	if p.length == WideDataIdSize {
		return ParseWideDataId(p.Data())
	}
	return ParseDataId(p.Data())
}
