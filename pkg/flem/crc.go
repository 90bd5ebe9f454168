// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import "github.com/sigurn/crc16"

// CRC-16/ARC: reflected polynomial 0xA001, init 0, no final xor
var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// CalculateCRC computes the CRC-16/ARC checksum for the given data
func CalculateCRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Checksum recomputes the CRC over request, response, length and payload.
// When store is true the result is also written to the checksum field.
func (p *Packet) Checksum(store bool) uint16 {
	var buf [HeaderSize]byte
	p.putHeader(buf[:])

	crc := crc16.Init(crcTable)
	crc = crc16.Update(crc, buf[checksumStart:], crcTable)
	crc = crc16.Update(crc, p.data[:p.length], crcTable)
	crc = crc16.Complete(crc, crcTable)

	if store {
		p.checksum = crc
	}
	return crc
}

// Validate recomputes the checksum and compares it with the stored value
// without overwriting it.
func (p *Packet) Validate() bool {
	return p.Checksum(false) == p.checksum
}
