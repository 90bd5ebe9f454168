// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"io"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/rs/zerolog"
)

// Handler answers a received request. The request is only valid during the
// call. Returning nil sends no response.
type Handler func(req *flem.Packet) *flem.Packet

// LoopbackHandler echoes every request back unchanged
func LoopbackHandler(req *flem.Packet) *flem.Packet {
	return req.Clone()
}

// IdentityHandler answers ID requests with id. Other requests go to next,
// or get UNKNOWN_REQUEST when next is nil.
func IdentityHandler(id flem.DataId, ascii bool, next Handler) Handler {
	return func(req *flem.Packet) *flem.Packet {
		if req.Request() != flem.RequestID {
			if next != nil {
				return next(req)
			}
			return flem.NewErrorResponse(req.Capacity(), req.Request(), flem.ResponseUnknownRequest)
		}

		resp := flem.NewPacket(req.Capacity())
		if err := resp.RespondWithIdentity(id, ascii); err != nil {
			return flem.NewErrorResponse(req.Capacity(), flem.RequestID, flem.ResponsePacketOverflow)
		}
		return resp
	}
}

// answer builds the device reply for a terminal construction status.
// Corrupt and oversized packets are reported back to the sender.
func answer(rx *flem.Packet, status flem.Status, handler Handler) *flem.Packet {
	switch status {
	case flem.StatusPacketReceived:
		if handler == nil {
			return LoopbackHandler(rx)
		}
		return handler(rx)
	case flem.StatusChecksumError:
		return flem.NewErrorResponse(rx.Capacity(), rx.Request(), flem.ResponseChecksumError)
	case flem.StatusPacketOverflow:
		return flem.NewErrorResponse(rx.Capacity(), rx.Request(), flem.ResponsePacketOverflow)
	}
	return nil
}

// ServeDevice plays the device role on conn: every request is constructed,
// passed to handler (loopback when nil) and the reply written back. It
// returns when ctx is done or the transport fails.
func ServeDevice(ctx context.Context, conn Conn, capacity int, handler Handler, log zerolog.Logger) error {
	rx := flem.NewPacket(capacity)
	buf := make([]byte, 256)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			status := rx.ConsumeByte(b)
			if !status.IsTerminal() || status == flem.StatusHeaderNotFound {
				continue
			}

			log.Debug().Stringer("status", status).Uint8("request", rx.Request()).Msg("request")
			resp := answer(rx, status, handler)
			rx.ResetLazy()
			if resp == nil {
				continue
			}
			if _, werr := resp.WriteTo(conn); werr != nil {
				return werr
			}
		}

		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return ctx.Err()
			}
			return err
		}
	}
}
