// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Thermoquad/flemstat/pkg/flem"
	"github.com/Thermoquad/flemstat/pkg/link"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// errNoConnection is returned when no connection mode was selected
var errNoConnection = errors.New("either --port, --url or --software must be specified")

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("FLEM_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket byte stream based on flags
func OpenConnection(ctx context.Context) (link.Conn, string, error) {
	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := link.OpenWebSocket(ctx, wsURL, link.WebSocketOptions{
			Username:      wsUsername,
			Password:      password,
			SkipSSLVerify: wsNoSSLVerify,
		})
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := link.OpenSerial(portName, baudRate)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, "", errNoConnection
}

// OpenChannel connects a packet channel based on flags. With --software the
// channel leads to a simulated device answering with the configured identity.
func OpenChannel(ctx context.Context, log zerolog.Logger, opts ...link.Option) (link.Channel, string, error) {
	opts = append([]link.Option{link.WithLogger(log)}, opts...)

	if useSoftware {
		handler, err := deviceHandler(false)
		if err != nil {
			return nil, "", err
		}
		host := link.NewSoftwareHost(capacity, handler, opts...)
		if err := host.Connect(link.SoftwareDevice); err != nil {
			return nil, "", err
		}
		return host, fmt.Sprintf("Software: %s", link.SoftwareDevice), nil
	}

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return nil, "", err
	}

	ch := link.NewConnChannel(conn, capacity, opts...)
	if err := ch.Connect(connInfo); err != nil {
		conn.Close()
		return nil, "", err
	}
	return ch, connInfo, nil
}

// deviceHandler answers ID requests with the configured identity. Other
// requests are echoed when echo is set and rejected otherwise.
func deviceHandler(echo bool) (link.Handler, error) {
	id, err := identity.DataId()
	if err != nil {
		return nil, err
	}
	var next link.Handler
	if echo {
		next = link.LoopbackHandler
	}
	return link.IdentityHandler(id, identity.ASCII, next), nil
}

// awaitResponse waits for the response to request, skipping unrelated
// packets such as events
func awaitResponse(ctx context.Context, rx <-chan *flem.Packet, request uint8) (*flem.Packet, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case p, ok := <-rx:
			if !ok {
				return nil, link.ErrConnectionClosed
			}
			if p.Request() == request {
				return p, nil
			}
		}
	}
}
