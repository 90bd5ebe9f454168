// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

const testCapacity = 108

// buildPacked creates a packed packet with an incrementing payload
func buildPacked(t *testing.T, capacity int, request uint8, payloadLen int) *Packet {
	t.Helper()
	p := NewPacket(capacity)
	p.SetRequest(request)
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := p.SetPayload(payload); err != nil {
		t.Fatalf("SetPayload: %v", err)
	}
	p.Pack()
	return p
}

// feed runs every byte through ConsumeByte and returns the statuses
func feed(p *Packet, data []byte) []Status {
	statuses := make([]Status, 0, len(data))
	for _, b := range data {
		statuses = append(statuses, p.ConsumeByte(b))
	}
	return statuses
}

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_Empty(t *testing.T) {
	if crc := CalculateCRC([]byte{}); crc != 0 {
		t.Errorf("CRC of empty data should be 0, got 0x%04X", crc)
	}
}

func TestCalculateCRC_CheckValue(t *testing.T) {
	// Standard CRC-16/ARC check value
	if crc := CalculateCRC([]byte("123456789")); crc != 0xBB3D {
		t.Errorf("CRC mismatch: expected 0xBB3D, got 0x%04X", crc)
	}
}

func TestChecksum_KnownValues(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x0F, testCapacity)
	if p.StoredChecksum() != 50848 {
		t.Errorf("Checksum mismatch: expected 50848, got %d", p.StoredChecksum())
	}
	if p.Length() != 116 {
		t.Errorf("Length mismatch: expected 116, got %d", p.Length())
	}

	id := NewPacket(testCapacity)
	id.SetRequest(RequestID)
	crc := id.Checksum(true)
	if crc != 64513 {
		t.Errorf("Checksum mismatch: expected 64513, got %d", crc)
	}
	if id.StoredChecksum() != crc {
		t.Errorf("Stored checksum should be %d, got %d", crc, id.StoredChecksum())
	}
}

func TestChecksum_NoStore(t *testing.T) {
	p := NewPacket(testCapacity)
	p.SetRequest(RequestID)
	if crc := p.Checksum(false); crc != 64513 {
		t.Errorf("Checksum mismatch: expected 64513, got %d", crc)
	}
	if p.StoredChecksum() != 0 {
		t.Errorf("Checksum(false) must not store, got %d", p.StoredChecksum())
	}
}

func TestChecksum_MatchesWireWindow(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x42, 17)
	wire := p.Bytes()
	if crc := CalculateCRC(wire[4:]); crc != p.StoredChecksum() {
		t.Errorf("Checksum should cover wire bytes 4.., got 0x%04X want 0x%04X", crc, p.StoredChecksum())
	}
}

// ============================================================
// Packet Tests
// ============================================================

func TestNewPacket(t *testing.T) {
	p := NewPacket(testCapacity)
	if p.Capacity() != testCapacity {
		t.Errorf("Capacity mismatch: expected %d, got %d", testCapacity, p.Capacity())
	}
	if p.Length() != HeaderSize {
		t.Errorf("Empty packet length should be %d, got %d", HeaderSize, p.Length())
	}
	if p.Status() != StatusOk {
		t.Errorf("Expected StatusOk, got %s", p.Status())
	}
	if p.Header() != 0 {
		t.Errorf("Header should be 0 before packing, got 0x%04X", p.Header())
	}
}

func TestNewPacket_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{-1, MaxCapacity + 1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("NewPacket(%d) should panic", capacity)
				}
			}()
			NewPacket(capacity)
		}()
	}
}

func TestSetPayload_Overflow(t *testing.T) {
	p := NewPacket(testCapacity)

	err := p.SetPayload(make([]byte, testCapacity+1))
	if !errors.Is(err, ErrPacketOverflow) {
		t.Fatalf("Expected ErrPacketOverflow, got %v", err)
	}
	if p.Length() != HeaderSize {
		t.Errorf("Length should be unchanged at %d, got %d", HeaderSize, p.Length())
	}
	if p.Status() != StatusPacketOverflow {
		t.Errorf("Expected StatusPacketOverflow, got %s", p.Status())
	}

	smaller := bytes.Repeat([]byte{10}, 60)
	if err := p.SetPayload(smaller); err != nil {
		t.Fatalf("Payload smaller than capacity should fit: %v", err)
	}
	if p.Length() != HeaderSize+60 {
		t.Errorf("Length should be %d, got %d", HeaderSize+60, p.Length())
	}

	// 48 more bytes exactly fill the buffer, one more does not
	if err := p.SetPayload(bytes.Repeat([]byte{11}, 48)); err != nil {
		t.Fatalf("Payload filling capacity should fit: %v", err)
	}
	before := bytes.Clone(p.Buffer())
	if err := p.SetPayload([]byte{12}); !errors.Is(err, ErrPacketOverflow) {
		t.Fatalf("Expected ErrPacketOverflow, got %v", err)
	}
	if !bytes.Equal(before, p.Buffer()) {
		t.Error("Failed SetPayload must not modify the buffer")
	}
	if p.DataLength() != testCapacity {
		t.Errorf("DataLength should be %d, got %d", testCapacity, p.DataLength())
	}
}

func TestSetPayload_Appends(t *testing.T) {
	p := NewPacket(8)
	_ = p.SetPayload([]byte{1, 2})
	_ = p.SetPayload([]byte{3})
	if !bytes.Equal(p.Data(), []byte{1, 2, 3}) {
		t.Errorf("Expected appended payload [1 2 3], got %v", p.Data())
	}
}

func TestResetLazy_KeepsBuffer(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x10, 4)
	p.ResetLazy()

	if p.Length() != HeaderSize {
		t.Errorf("Length after lazy reset should be %d, got %d", HeaderSize, p.Length())
	}
	if p.Request() != 0 || p.Response() != 0 || p.StoredChecksum() != 0 || p.Header() != 0 {
		t.Error("Lazy reset should clear header fields")
	}
	if !bytes.Equal(p.Buffer()[:4], []byte{0, 1, 2, 3}) {
		t.Errorf("Lazy reset should keep buffer bytes, got %v", p.Buffer()[:4])
	}
}

func TestReset_ZeroesBuffer(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x10, testCapacity)
	p.Reset()

	if p.Length() != HeaderSize {
		t.Errorf("Length after reset should be %d, got %d", HeaderSize, p.Length())
	}
	for i, b := range p.Buffer() {
		if b != 0 {
			t.Fatalf("Buffer byte %d should be 0 after reset, got %d", i, b)
		}
	}
}

func TestClone_IsIndependent(t *testing.T) {
	p := buildPacked(t, 16, 0x20, 4)
	c := p.Clone()
	if !p.Equal(c) {
		t.Fatal("Clone should equal the original")
	}
	c.Buffer()[0] = 0xAA
	if p.Buffer()[0] == 0xAA {
		t.Error("Clone must not share the payload buffer")
	}
	if p.Equal(c) {
		t.Error("Packets with different payloads should not be equal")
	}
}

// ============================================================
// Construction Tests
// ============================================================

func TestConsumeByte_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		capacity   int
		payloadLen int
	}{
		{"empty payload", testCapacity, 0},
		{"single byte", testCapacity, 1},
		{"partial payload", testCapacity, 60},
		{"full payload", testCapacity, testCapacity},
		{"zero capacity", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := buildPacked(t, tt.capacity, 0x0F, tt.payloadLen)
			tx.SetResponse(ResponseBusy)
			tx.Pack()

			rx := NewPacket(tt.capacity)
			statuses := feed(rx, tx.Bytes())

			last := statuses[len(statuses)-1]
			if last != StatusPacketReceived {
				t.Fatalf("Expected StatusPacketReceived on the last byte, got %s", last)
			}
			if rx.Request() != 0x0F || rx.Response() != ResponseBusy {
				t.Errorf("Request/response mismatch: 0x%02X/0x%02X", rx.Request(), rx.Response())
			}
			if !bytes.Equal(rx.Data(), tx.Data()) {
				t.Error("Payload mismatch")
			}
			if !bytes.Equal(rx.Bytes(), tx.Bytes()) {
				t.Error("Rx packet bytes should equal Tx packet bytes")
			}
		})
	}
}

func TestConsumeByte_ReceivedExactlyOnce(t *testing.T) {
	tx := buildPacked(t, testCapacity, 0x0F, testCapacity)
	rx := NewPacket(testCapacity)

	statuses := feed(rx, tx.Bytes())
	if len(statuses) != HeaderSize+testCapacity {
		t.Fatalf("Expected %d statuses, got %d", HeaderSize+testCapacity, len(statuses))
	}
	for i, s := range statuses[:len(statuses)-1] {
		if s != StatusPacketBuilding {
			t.Fatalf("Byte %d: expected StatusPacketBuilding, got %s", i, s)
		}
	}
	if statuses[len(statuses)-1] != StatusPacketReceived {
		t.Errorf("Final byte should yield StatusPacketReceived, got %s", statuses[len(statuses)-1])
	}
}

func TestConsumeByte_HeaderNotFound(t *testing.T) {
	p := NewPacket(testCapacity)
	p.SetRequest(0x07)

	if s := p.ConsumeByte(0x00); s != StatusHeaderNotFound {
		t.Errorf("Expected StatusHeaderNotFound on first byte, got %s", s)
	}
	if s := p.ConsumeByte(0x55); s != StatusPacketBuilding {
		t.Errorf("Expected StatusPacketBuilding, got %s", s)
	}
	if s := p.ConsumeByte(0x12); s != StatusHeaderNotFound {
		t.Errorf("Expected StatusHeaderNotFound on second byte, got %s", s)
	}
	if p.Request() != 0x07 {
		t.Errorf("Header mismatch must not touch other fields, request=0x%02X", p.Request())
	}

	// The cursor rewound, so a full packet is accepted next
	tx := buildPacked(t, testCapacity, 0x01, 3)
	statuses := feed(p, tx.Bytes())
	if statuses[len(statuses)-1] != StatusPacketReceived {
		t.Errorf("Expected StatusPacketReceived after resync, got %s", statuses[len(statuses)-1])
	}
}

func TestConsumeByte_ChecksumError(t *testing.T) {
	tx := buildPacked(t, testCapacity, 0x0F, 10)
	wire := tx.Bytes()

	for i := HeaderSize; i < len(wire); i++ {
		corrupt := bytes.Clone(wire)
		corrupt[i] ^= 0x01

		rx := NewPacket(testCapacity)
		statuses := feed(rx, corrupt)
		if last := statuses[len(statuses)-1]; last != StatusChecksumError {
			t.Errorf("Flipping payload byte %d: expected StatusChecksumError, got %s", i-HeaderSize, last)
		}
	}
}

func TestConsumeByte_EmptyPayloadChecksumError(t *testing.T) {
	tx := buildPacked(t, testCapacity, RequestID, 0)
	wire := tx.Bytes()
	wire[offsetRequest] = 0x02

	rx := NewPacket(testCapacity)
	statuses := feed(rx, wire)
	if last := statuses[len(statuses)-1]; last != StatusChecksumError {
		t.Errorf("Expected StatusChecksumError, got %s", last)
	}
}

func TestConsumeByte_DeclaredLengthOverflow(t *testing.T) {
	rx := NewPacket(4)
	wire := []byte{0x55, 0x55, 0x00, 0x00, 0x01, 0x00, 0x05, 0x00}
	statuses := feed(rx, wire)
	if last := statuses[len(statuses)-1]; last != StatusPacketOverflow {
		t.Errorf("Expected StatusPacketOverflow for declared length 5 > capacity 4, got %s", last)
	}
	if int(rx.DataLength()) > rx.Capacity() {
		t.Errorf("DataLength %d exceeds capacity %d", rx.DataLength(), rx.Capacity())
	}
	if rx.DeclaredLength() != 5 {
		t.Errorf("Expected declared length 5, got %d", rx.DeclaredLength())
	}

	// Accessors stay usable on the overflowed packet
	if len(rx.Data()) > rx.Capacity() {
		t.Error("Data longer than capacity")
	}
	_ = rx.Validate()
	_ = rx.Bytes()
	_ = rx.Clone().Data()

	rx.ResetLazy()
	if rx.DeclaredLength() != 0 {
		t.Error("ResetLazy should clear the declared length")
	}
}

func TestConsumeByte_DeclaredLengthLowByteOverCapacity(t *testing.T) {
	rx := NewPacket(4)
	// Low length byte alone exceeds capacity while still building
	statuses := feed(rx, []byte{0x55, 0x55, 0x00, 0x00, 0x10, 0x00, 0x09})
	if last := statuses[len(statuses)-1]; last != StatusPacketBuilding {
		t.Fatalf("Expected StatusPacketBuilding, got %s", last)
	}
	if int(rx.DataLength()) > rx.Capacity() {
		t.Errorf("DataLength %d exceeds capacity %d while building", rx.DataLength(), rx.Capacity())
	}
	_ = rx.Data()
	_ = rx.Validate()
}

func TestConsumeByte_ExtraBytesOverflow(t *testing.T) {
	tx := buildPacked(t, testCapacity, 0x0F, 2)
	rx := NewPacket(testCapacity)
	feed(rx, tx.Bytes())

	if s := rx.ConsumeByte(0x00); s != StatusPacketOverflow {
		t.Errorf("Expected StatusPacketOverflow after a complete packet, got %s", s)
	}
	if !bytes.Equal(rx.Data(), tx.Data()) {
		t.Error("Overflow must not modify the received payload")
	}
}

func TestConsumeByte_ReuseAfterLazyReset(t *testing.T) {
	rx := NewPacket(testCapacity)
	for i := 0; i < 3; i++ {
		tx := buildPacked(t, testCapacity, uint8(0x10+i), 5+i)
		statuses := feed(rx, tx.Bytes())
		if statuses[len(statuses)-1] != StatusPacketReceived {
			t.Fatalf("Round %d: expected StatusPacketReceived, got %s", i, statuses[len(statuses)-1])
		}
		if rx.Request() != uint8(0x10+i) {
			t.Errorf("Round %d: request mismatch 0x%02X", i, rx.Request())
		}
		rx.ResetLazy()
	}
}

func TestValidate_DetectsCorruption(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x0F, 20)
	if !p.Validate() || !p.IsPacked() {
		t.Fatal("Freshly packed packet should validate")
	}
	p.Buffer()[7] ^= 0x80
	if p.Validate() {
		t.Error("Validate should fail after a payload byte flip")
	}
	if p.IsPacked() {
		t.Error("IsPacked should fail after mutation")
	}
}

func TestParsePacket(t *testing.T) {
	tx := buildPacked(t, 32, 0x33, 12)
	wire := tx.Bytes()

	rx, err := ParsePacket(wire, 32)
	if err != nil {
		t.Fatalf("ParsePacket: %v", err)
	}
	if !rx.Equal(tx) {
		t.Error("Parsed packet should equal the original")
	}

	if _, err := ParsePacket(wire[:len(wire)-1], 32); !errors.Is(err, ErrIncompletePacket) {
		t.Errorf("Expected ErrIncompletePacket, got %v", err)
	}

	wire[HeaderSize] ^= 0xFF
	if _, err := ParsePacket(wire, 32); !errors.Is(err, ErrChecksum) {
		t.Errorf("Expected ErrChecksum, got %v", err)
	}

	if _, err := ParsePacket([]byte{0x00, 0x55}, 32); !errors.Is(err, ErrHeaderNotFound) {
		t.Errorf("Expected ErrHeaderNotFound, got %v", err)
	}
}

// ============================================================
// Emission Tests
// ============================================================

func TestBytes_WireLayout(t *testing.T) {
	p := NewPacket(16)
	p.SetRequest(0xAB)
	p.SetResponse(0xCD)
	_ = p.SetPayload([]byte{0x01, 0x02, 0x03})
	p.Pack()

	wire := p.Bytes()
	crc := p.StoredChecksum()
	expected := []byte{0x55, 0x55, byte(crc), byte(crc >> 8), 0xAB, 0xCD, 0x03, 0x00, 0x01, 0x02, 0x03}
	if !bytes.Equal(wire, expected) {
		t.Errorf("Wire layout mismatch:\n got %X\nwant %X", wire, expected)
	}
}

func TestNextByte_MatchesBytes(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x0F, 33)

	var out []byte
	for {
		b, err := p.NextByte()
		if errors.Is(err, ErrEmissionFinished) {
			break
		}
		if err != nil {
			t.Fatalf("NextByte: %v", err)
		}
		out = append(out, b)
	}
	if !bytes.Equal(out, p.Bytes()) {
		t.Error("Cursor emission should equal bulk emission")
	}
	if p.Status() != StatusEmissionFinished {
		t.Errorf("Expected StatusEmissionFinished, got %s", p.Status())
	}

	// Stays finished until the cursor is reset
	if _, err := p.NextByte(); !errors.Is(err, ErrEmissionFinished) {
		t.Errorf("Expected ErrEmissionFinished again, got %v", err)
	}
	p.ResetCursor()
	if b, err := p.NextByte(); err != nil || b != 0x55 {
		t.Errorf("After ResetCursor expected first byte 0x55, got 0x%02X, %v", b, err)
	}
}

func TestNextByte_InterleavedQueue(t *testing.T) {
	// Emit through a small queue, draining it into the receiver when full
	tx := buildPacked(t, 64, 0x0F, 64)
	rx := NewPacket(64)

	queue := make([]byte, 0, 8)
	received := false
	for !received {
		b, err := tx.NextByte()
		if err == nil {
			queue = append(queue, b)
		}
		if len(queue) == cap(queue) || err != nil {
			for _, q := range queue {
				if rx.ConsumeByte(q) == StatusPacketReceived {
					received = true
				}
			}
			queue = queue[:0]
			if err != nil {
				break
			}
		}
	}
	if !received {
		t.Fatal("Packet should have been transferred")
	}
	if !bytes.Equal(rx.Bytes(), tx.Bytes()) {
		t.Error("Rx and Tx packets don't match")
	}
}

func TestWriteTo(t *testing.T) {
	p := buildPacked(t, testCapacity, 0x0F, 9)
	var buf bytes.Buffer
	n, err := p.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if n != int64(p.Length()) || !bytes.Equal(buf.Bytes(), p.Bytes()) {
		t.Errorf("WriteTo wrote %d bytes, want %d", n, p.Length())
	}
}

// ============================================================
// Respond Tests
// ============================================================

func TestRespondWithData(t *testing.T) {
	p := NewPacket(8)
	if err := p.RespondWithData(0x20, []byte{1, 2, 3}); err != nil {
		t.Fatalf("RespondWithData: %v", err)
	}
	if p.Response() != ResponseSuccess || p.Request() != 0x20 {
		t.Errorf("Unexpected request/response 0x%02X/0x%02X", p.Request(), p.Response())
	}
	if !p.IsPacked() {
		t.Error("Response should be packed")
	}
}

func TestRespondWithData_OverflowDoesNotPack(t *testing.T) {
	p := NewPacket(2)
	err := p.RespondWithData(0x20, []byte{1, 2, 3})
	if !errors.Is(err, ErrPacketOverflow) {
		t.Fatalf("Expected ErrPacketOverflow, got %v", err)
	}
	if p.Response() != ResponseError {
		t.Errorf("Expected ResponseError, got 0x%02X", p.Response())
	}
	if p.Header() == SyncHeader || p.IsPacked() {
		t.Error("Packet must not be packed after overflow")
	}
	if p.DataLength() != 0 {
		t.Errorf("Payload should be untouched, length %d", p.DataLength())
	}
}

func TestRespondWithError(t *testing.T) {
	p := NewErrorResponse(testCapacity, 0x44, ResponseUnknownRequest)
	if p.Request() != 0x44 || p.Response() != ResponseUnknownRequest {
		t.Errorf("Unexpected request/response 0x%02X/0x%02X", p.Request(), p.Response())
	}
	if !p.IsPacked() || p.DataLength() != 0 {
		t.Error("Error response should be packed with no payload")
	}
}

func TestNewRequest(t *testing.T) {
	p, err := NewRequest(4, 0x30, []byte{9, 9})
	if err != nil || !p.IsPacked() {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := NewRequest(1, 0x30, []byte{9, 9}); !errors.Is(err, ErrPacketOverflow) {
		t.Errorf("Expected ErrPacketOverflow, got %v", err)
	}
	if id := NewIDRequest(testCapacity); id.StoredChecksum() != 64513 {
		t.Errorf("ID request checksum should be 64513, got %d", id.StoredChecksum())
	}
}

// ============================================================
// Status / Formatter / Statistics Tests
// ============================================================

func TestStatus(t *testing.T) {
	tests := []struct {
		status   Status
		name     string
		terminal bool
		err      error
	}{
		{StatusOk, "OK", false, nil},
		{StatusPacketBuilding, "PACKET_BUILDING", false, nil},
		{StatusPacketReceived, "PACKET_RECEIVED", true, nil},
		{StatusEmissionFinished, "EMISSION_FINISHED", false, ErrEmissionFinished},
		{StatusHeaderNotFound, "HEADER_NOT_FOUND", true, ErrHeaderNotFound},
		{StatusChecksumError, "CHECKSUM_ERROR", true, ErrChecksum},
		{StatusPacketOverflow, "PACKET_OVERFLOW", true, ErrPacketOverflow},
	}
	for _, tt := range tests {
		if tt.status.String() != tt.name {
			t.Errorf("String() = %s, want %s", tt.status, tt.name)
		}
		if tt.status.IsTerminal() != tt.terminal {
			t.Errorf("%s: IsTerminal() = %v", tt.name, !tt.terminal)
		}
		if tt.status.Err() != tt.err {
			t.Errorf("%s: Err() = %v, want %v", tt.name, tt.status.Err(), tt.err)
		}
	}
}

func TestFormatPacket(t *testing.T) {
	p := NewPacket(testCapacity)
	if err := p.RespondWithIdentity(MustDataId("Emulated Target", 512), true); err != nil {
		t.Fatalf("RespondWithIdentity: %v", err)
	}
	out := FormatPacket(p, time.Now())
	if !strings.Contains(out, "ID (0x01)") || !strings.Contains(out, "SUCCESS") {
		t.Errorf("Expected request and response names in %q", out)
	}
	if !strings.Contains(out, `"Emulated Target"`) || !strings.Contains(out, "512") {
		t.Errorf("Expected decoded DataId in %q", out)
	}

	data := NewPacket(testCapacity)
	_ = data.RespondWithData(0x40, []byte{0xDE, 0xAD})
	if out := FormatPacket(data, time.Now()); !strings.Contains(out, "0000: DE AD") {
		t.Errorf("Expected hex dump in %q", out)
	}
}

func TestStatistics(t *testing.T) {
	s := NewStatistics()
	for _, status := range []Status{
		StatusHeaderNotFound, StatusPacketBuilding, StatusPacketReceived,
		StatusChecksumError, StatusPacketOverflow, StatusPacketReceived,
	} {
		s.Update(status)
	}

	if s.TotalBytes != 6 || s.TotalPackets != 4 || s.ValidPackets != 2 {
		t.Errorf("Unexpected counters: %+v", s)
	}
	if s.ChecksumErrors != 1 || s.Overflows != 1 || s.HeaderNotFound != 1 {
		t.Errorf("Unexpected error counters: %+v", s)
	}
	if s.Errors() != 2 {
		t.Errorf("Errors() = %d, want 2", s.Errors())
	}
	if !strings.Contains(s.String(), "2 (50.0%)") {
		t.Errorf("Unexpected summary:\n%s", s.String())
	}

	s.Reset()
	if s.TotalBytes != 0 || s.TotalPackets != 0 {
		t.Error("Reset should clear counters")
	}
}
