// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"fmt"
	"time"
)

// Statistics tracks construction outcomes and rates on a link.
// It is not safe for concurrent use.
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalBytes      uint64
	TotalPackets    uint64
	ValidPackets    uint64
	ChecksumErrors  uint64
	HeaderNotFound  uint64
	Overflows       uint64
	ErrorResponses  uint64
	UnknownRequests uint64

	// Rates (calculated)
	PacketRate float64 // packets/sec
	ErrorRate  float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the status returned by one ConsumeByte call
func (s *Statistics) Update(status Status) {
	s.TotalBytes++

	switch status {
	case StatusPacketReceived:
		s.TotalPackets++
		s.ValidPackets++
	case StatusChecksumError:
		s.TotalPackets++
		s.ChecksumErrors++
	case StatusPacketOverflow:
		s.TotalPackets++
		s.Overflows++
	case StatusHeaderNotFound:
		s.HeaderNotFound++
	default:
		return
	}

	s.LastUpdateTime = time.Now()
}

// RecordResponse counts error response codes of a received packet
func (s *Statistics) RecordResponse(p *Packet) {
	switch p.response {
	case ResponseUnknownRequest:
		s.UnknownRequests++
	case ResponseError, ResponseChecksumError, ResponsePacketOverflow:
		s.ErrorResponses++
	}
}

// Errors returns the number of failed constructions
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.Overflows
}

// CalculateRates calculates packet and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PacketRate = float64(s.TotalPackets) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, checksumPercent, overflowPercent float64
	if s.TotalPackets > 0 {
		validPercent = float64(s.ValidPackets) * 100.0 / float64(s.TotalPackets)
		checksumPercent = float64(s.ChecksumErrors) * 100.0 / float64(s.TotalPackets)
		overflowPercent = float64(s.Overflows) * 100.0 / float64(s.TotalPackets)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Bytes:     %8d\n", s.TotalBytes)
	result += fmt.Sprintf("Total Packets:   %8d\n", s.TotalPackets)
	result += fmt.Sprintf("Valid Packets:   %8d (%.1f%%)\n", s.ValidPackets, validPercent)

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, checksumPercent)
	}
	if s.Overflows > 0 {
		result += fmt.Sprintf("Overflows:       %8d (%.1f%%)\n", s.Overflows, overflowPercent)
	}
	if s.HeaderNotFound > 0 {
		result += fmt.Sprintf("Resync Bytes:    %8d\n", s.HeaderNotFound)
	}
	if s.ErrorResponses > 0 || s.UnknownRequests > 0 {
		result += fmt.Sprintf("Error Responses: %8d\n", s.ErrorResponses)
		result += fmt.Sprintf("Unknown Reqs:    %8d\n", s.UnknownRequests)
	}

	result += fmt.Sprintf("Packet Rate:     %8.1f pkts/sec\n", s.PacketRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
