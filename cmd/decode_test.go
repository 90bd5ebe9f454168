// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Frame Decode Tests
// ============================================================

func TestDecodeFrame_IDRequest(t *testing.T) {
	p, err := decodeFrame("55 55 01 FC 01 00 00 00", defaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, uint8(flem.RequestID), p.Request())
	assert.Zero(t, p.DataLength())
	assert.Equal(t, uint16(0xFC01), p.StoredChecksum())
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	wire := wirePacket(t, 0x42, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	prefixed := "0x" + strings.ReplaceAll(strings.TrimSpace(hexString(wire)), " ", " 0x")

	p, err := decodeFrame(prefixed, defaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), p.Request())
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.Data())
}

func TestDecodeFrame_Errors(t *testing.T) {
	good := wirePacket(t, 0x42, []byte{1, 2, 3})

	_, err := decodeFrame("zz", defaultCapacity)
	assert.Error(t, err)

	_, err = decodeFrame(hexString(good[:len(good)-1]), defaultCapacity)
	assert.ErrorIs(t, err, flem.ErrIncompletePacket)

	_, err = decodeFrame(hexString(corrupt(good)), defaultCapacity)
	assert.ErrorIs(t, err, flem.ErrChecksum)

	_, err = decodeFrame(hexString(good), 2)
	assert.ErrorIs(t, err, flem.ErrPacketOverflow)
}

func hexString(data []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, 0, 3*len(data))
	for _, b := range data {
		out = append(out, digits[b>>4], digits[b&0x0F], ' ')
	}
	return string(out)
}
