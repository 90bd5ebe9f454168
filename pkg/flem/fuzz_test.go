// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

// randomPacket builds a packed packet with random fields and payload
func randomPacket(rng *rand.Rand, capacity int) *Packet {
	p := NewPacket(capacity)
	p.SetRequest(uint8(rng.Intn(256)))
	p.SetResponse(uint8(rng.Intn(256)))
	payload := make([]byte, rng.Intn(capacity+1))
	rng.Read(payload)
	_ = p.SetPayload(payload)
	p.Pack()
	return p
}

// ============================================================
// Construction Fuzz Tests
// ============================================================

// TestFuzzConsumeByte_RandomBytes feeds random bytes to the state machine
// and verifies it doesn't panic or report a packet it cannot hold
func TestFuzzConsumeByte_RandomBytes(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		capacity := rng.Intn(testCapacity + 1)
		p := NewPacket(capacity)

		data := make([]byte, rng.Intn(512)+1)
		rng.Read(data)
		// Bias toward the sync byte so headers are found
		for j := range data {
			if rng.Intn(8) == 0 {
				data[j] = syncByte
			}
		}

		for _, b := range data {
			status := p.ConsumeByte(b)
			if status == StatusPacketReceived && p.Length() > HeaderSize+capacity {
				t.Fatalf("Round %d: received packet longer than capacity", i)
			}
			if status.IsTerminal() && status != StatusHeaderNotFound {
				p.ResetLazy()
			}
		}
	}
}

// TestFuzzConsumeByte_RandomPackets round trips random packets through a
// stream prefixed with noise
func TestFuzzConsumeByte_RandomPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		tx := randomPacket(rng, testCapacity)
		rx := NewPacket(testCapacity)

		noise := make([]byte, rng.Intn(16))
		for j := range noise {
			noise[j] = byte(rng.Intn(syncByte))
		}
		for _, b := range noise {
			if s := rx.ConsumeByte(b); s != StatusHeaderNotFound {
				t.Fatalf("Round %d: noise byte 0x%02X gave %s", i, b, s)
			}
		}

		wire := tx.Bytes()
		for j, b := range wire {
			status := rx.ConsumeByte(b)
			last := j == len(wire)-1
			if last && status != StatusPacketReceived {
				t.Fatalf("Round %d: expected StatusPacketReceived, got %s", i, status)
			}
			if !last && status != StatusPacketBuilding {
				t.Fatalf("Round %d: byte %d: expected StatusPacketBuilding, got %s", i, j, status)
			}
		}

		if !rx.Equal(tx) {
			t.Errorf("Round %d: packet mismatch: %s vs %s", i, rx, tx)
		}
	}
}

// TestFuzzConsumeByte_CorruptedPackets flips one bit of a covered byte and
// expects the checksum to catch it
func TestFuzzConsumeByte_CorruptedPackets(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		tx := randomPacket(rng, testCapacity)
		wire := tx.Bytes()

		// Skip the sync header and the length field, which change framing
		// rather than content
		var idx int
		for {
			idx = offsetChecksum + rng.Intn(len(wire)-offsetChecksum)
			if idx != offsetLength && idx != offsetLength+1 {
				break
			}
		}
		wire[idx] ^= 1 << rng.Intn(8)

		rx := NewPacket(testCapacity)
		var status Status
		for _, b := range wire {
			status = rx.ConsumeByte(b)
		}
		if status != StatusChecksumError {
			t.Errorf("Round %d: corrupting byte %d: expected StatusChecksumError, got %s", i, idx, status)
		}
	}
}

// ============================================================
// Emission Fuzz Tests
// ============================================================

// TestFuzzNextByte_Chunked drains the cursor in random chunks and compares
// with the bulk view
func TestFuzzNextByte_Chunked(t *testing.T) {
	rounds := getFuzzRounds()
	rng := newFuzzRng(t)
	t.Logf("Running %d fuzz rounds", rounds)

	for i := 0; i < rounds; i++ {
		tx := randomPacket(rng, testCapacity)

		var out []byte
		done := false
		for !done {
			chunk := rng.Intn(16) + 1
			for j := 0; j < chunk; j++ {
				b, err := tx.NextByte()
				if err != nil {
					done = true
					break
				}
				out = append(out, b)
			}
		}

		if !bytes.Equal(out, tx.Bytes()) {
			t.Errorf("Round %d: cursor emission differs from bulk emission", i)
		}
	}
}
