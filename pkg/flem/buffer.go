// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BufferWriter writes little-endian values into a fixed buffer
type BufferWriter struct {
	buf []byte
	off int
}

// NewBufferWriter creates a writer over buf starting at offset 0
func NewBufferWriter(buf []byte) *BufferWriter {
	return &BufferWriter{buf: buf}
}

// Offset returns the number of bytes written
func (w *BufferWriter) Offset() int {
	return w.off
}

// Bytes returns the written part of the buffer
func (w *BufferWriter) Bytes() []byte {
	return w.buf[:w.off]
}

func (w *BufferWriter) reserve(n int) ([]byte, error) {
	if w.off+n > len(w.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrNotEnoughRoom, n, w.off, len(w.buf))
	}
	b := w.buf[w.off : w.off+n]
	w.off += n
	return b, nil
}

// PutUint16 writes v as 2 little-endian bytes
func (w *BufferWriter) PutUint16(v uint16) error {
	b, err := w.reserve(2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(b, v)
	return nil
}

// PutInt16 writes v as 2 little-endian bytes
func (w *BufferWriter) PutInt16(v int16) error {
	return w.PutUint16(uint16(v))
}

// PutUint32 writes v as 4 little-endian bytes
func (w *BufferWriter) PutUint32(v uint32) error {
	b, err := w.reserve(4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

// PutInt32 writes v as 4 little-endian bytes
func (w *BufferWriter) PutInt32(v int32) error {
	return w.PutUint32(uint32(v))
}

// PutFloat32 writes the IEEE 754 bits of v as 4 little-endian bytes
func (w *BufferWriter) PutFloat32(v float32) error {
	return w.PutUint32(math.Float32bits(v))
}

// BufferReader reads little-endian values from a buffer
type BufferReader struct {
	buf []byte
	off int
}

// NewBufferReader creates a reader over buf starting at offset 0
func NewBufferReader(buf []byte) *BufferReader {
	return &BufferReader{buf: buf}
}

// Offset returns the number of bytes read
func (r *BufferReader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes
func (r *BufferReader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *BufferReader) take(n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrConversionOverflow, n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Uint16 reads 2 little-endian bytes
func (r *BufferReader) Uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Int16 reads 2 little-endian bytes
func (r *BufferReader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

// Uint32 reads 4 little-endian bytes
func (r *BufferReader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Int32 reads 4 little-endian bytes
func (r *BufferReader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

// Float32 reads 4 little-endian bytes as IEEE 754 bits
func (r *BufferReader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}
