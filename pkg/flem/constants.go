// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package flem provides a Go implementation of the FLEM packet protocol.
//
// FLEM is a binary framing protocol for byte-oriented, half-duplex links
// (UART, I2C, simulated channels) between a host and a small device. A
// Packet is assembled one byte at a time with ConsumeByte, validated with a
// CRC-16/ARC checksum, and serialized back to bytes with Bytes or NextByte.
//
// Wire format, all multi-byte fields little-endian:
//
//	offset 0  size 2  sync header (0x5555)
//	offset 2  size 2  checksum (CRC-16/ARC over offset 4..8+length)
//	offset 4  size 1  request
//	offset 5  size 1  response
//	offset 6  size 2  payload length
//	offset 8  size n  payload
//
// The package performs no logging and no locking. A Packet is owned by one
// goroutine at a time; hand it off whole (see Packet.Clone) to share it.
package flem

// Framing
const (
	SyncHeader = 0x5555
	syncByte   = 0x55

	HeaderSize = 8

	// MaxCapacity keeps HeaderSize+capacity representable in 16 bits.
	MaxCapacity = 0xFFFF - HeaderSize
)

// Byte offsets of the header fields
const (
	offsetHeader   = 0
	offsetChecksum = 2
	offsetRequest  = 4
	offsetResponse = 5
	offsetLength   = 6
	offsetData     = HeaderSize

	// checksumStart is the first byte covered by the checksum
	checksumStart = offsetRequest
)

// Reserved request codes. Applications define their own codes above these.
const (
	RequestEvent = 0x00
	RequestID    = 0x01
	RequestIdle  = 0xFF
)

// Reserved response codes
const (
	ResponseSuccess        = 0x00
	ResponseBusy           = 0x01
	ResponsePacketOverflow = 0xFC
	ResponseUnknownRequest = 0xFD
	ResponseChecksumError  = 0xFE
	ResponseError          = 0xFF
)

// Status is the last known condition of a Packet
type Status int

// Status values
const (
	StatusOk Status = iota
	StatusPacketBuilding
	StatusPacketReceived
	StatusEmissionFinished
	StatusHeaderNotFound
	StatusChecksumError
	StatusPacketOverflow
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOk:
		return "OK"
	case StatusPacketBuilding:
		return "PACKET_BUILDING"
	case StatusPacketReceived:
		return "PACKET_RECEIVED"
	case StatusEmissionFinished:
		return "EMISSION_FINISHED"
	case StatusHeaderNotFound:
		return "HEADER_NOT_FOUND"
	case StatusChecksumError:
		return "CHECKSUM_ERROR"
	case StatusPacketOverflow:
		return "PACKET_OVERFLOW"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether construction has stopped and the packet must be
// reset before it can take another message.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPacketReceived, StatusChecksumError, StatusHeaderNotFound, StatusPacketOverflow:
		return true
	}
	return false
}

// Err maps a status to its sentinel error, nil for non-error statuses
func (s Status) Err() error {
	switch s {
	case StatusHeaderNotFound:
		return ErrHeaderNotFound
	case StatusChecksumError:
		return ErrChecksum
	case StatusPacketOverflow:
		return ErrPacketOverflow
	case StatusEmissionFinished:
		return ErrEmissionFinished
	}
	return nil
}
