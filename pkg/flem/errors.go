// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flem

import "errors"

// Construction and emission errors
var (
	ErrHeaderNotFound   = errors.New("flem: sync header not found")
	ErrChecksum         = errors.New("flem: checksum mismatch")
	ErrPacketOverflow   = errors.New("flem: packet overflow")
	ErrEmissionFinished = errors.New("flem: emission finished")
	ErrIncompletePacket = errors.New("flem: incomplete packet")
)

// DataId errors
var (
	ErrNameTooLong  = errors.New("flem: data id name too long")
	ErrNameNotASCII = errors.New("flem: data id name is not ASCII")
	ErrShortDataId  = errors.New("flem: data id payload too short")
)

// Codec errors
var (
	ErrIncorrectDataLength   = errors.New("flem: incorrect data length")
	ErrIncorrectBufferLength = errors.New("flem: incorrect buffer length")
	ErrNotEnoughRoom         = errors.New("flem: not enough room in buffer")
	ErrConversionOverflow    = errors.New("flem: conversion would overflow buffer")
)
