// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"context"
	"fmt"
)

// ConnID identifies a connection within a Transport.
type ConnID uint64

func (connID ConnID) String() string {
	return fmt.Sprintf("[ID %04x]", uint64(connID))
}

// TransportHandler receives connection events from a Transport.
//
// The methods are called from the transport's goroutines and must not
// block. The p passed to OnDataReady is only valid for the duration of
// the call.
type TransportHandler interface {
	OnNewConnection(id ConnID, remoteAddr string)
	OnDataReady(id ConnID, p []byte)
	OnConnectionClosed(id ConnID)
}

// Transport moves bytes between connections and a TransportHandler.
// The engine never opens sockets itself; TLS is the transport's concern.
type Transport interface {
	// Init prepares the transport to deliver events to h.
	Init(h TransportHandler) error
	// Run delivers events until the transport is closed or ctx is done.
	Run(ctx context.Context) error
	// Write sends p on connection id, returning false on failure.
	Write(id ConnID, p []byte) bool
	// Disconnect closes connection id. OnConnectionClosed follows.
	Disconnect(id ConnID)
	// Close stops the transport. If wait is true, it returns after
	// all connection goroutines have finished.
	Close(wait bool) error
}
