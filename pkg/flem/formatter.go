// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"fmt"
	"strings"
	"time"
)

// FormatPacket formats a packet into a human-readable string, prefixed with
// the given timestamp
func FormatPacket(p *Packet, at time.Time) string {
	result := fmt.Sprintf("[%s] %s (0x%02X) -> %s (0x%02X) len=%d crc=0x%04X\n",
		at.Format("15:04:05.000"),
		FormatRequest(p.request), p.request,
		FormatResponse(p.response), p.response,
		p.length, p.checksum)
	result += FormatPayload(p)
	return result
}

// FormatRequest returns the name of a reserved request code
func FormatRequest(request uint8) string {
	switch request {
	case RequestEvent:
		return "EVENT"
	case RequestID:
		return "ID"
	case RequestIdle:
		return "IDLE"
	default:
		return "APP"
	}
}

// FormatResponse returns the name of a reserved response code
func FormatResponse(response uint8) string {
	switch response {
	case ResponseSuccess:
		return "SUCCESS"
	case ResponseBusy:
		return "BUSY"
	case ResponsePacketOverflow:
		return "PACKET_OVERFLOW"
	case ResponseUnknownRequest:
		return "UNKNOWN_REQUEST"
	case ResponseChecksumError:
		return "CHECKSUM_ERROR"
	case ResponseError:
		return "ERROR"
	default:
		return "APP"
	}
}

// FormatPayload formats the payload of a packet. ID responses are decoded
// as a DataId; anything else is hex dumped.
func FormatPayload(p *Packet) string {
	if p.length == 0 {
		return "  (no payload)\n"
	}

	if p.request == RequestID && p.response == ResponseSuccess {
		if id, err := p.DataId(); err == nil {
			return fmt.Sprintf("  Name: %q, Max packet size: %d\n", id.Name(), id.MaxPacketSize())
		}
	}

	return HexDump(p.Data(), "  ")
}

// HexDump formats data as rows of 16 hex bytes with offsets
func HexDump(data []byte, indent string) string {
	var sb strings.Builder
	for off := 0; off < len(data); off += 16 {
		end := off + 16
		if end > len(data) {
			end = len(data)
		}
		fmt.Fprintf(&sb, "%s%04X:", indent, off)
		for _, b := range data[off:end] {
			fmt.Fprintf(&sb, " %02X", b)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
