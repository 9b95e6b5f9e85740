// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

/*
Package webcpp implements an embeddable HTTP/1.1 and WebSocket server and client
that speaks the wire protocols directly over a byte transport.

The engine never touches sockets itself. A Transport delivers three events per
connection (new connection, data ready, connection closed) and accepts writes.
Everything else is done here: per-connection byte accumulation, incremental
message parsing, route matching, dispatch and the RFC6455 frame codec.

A Session accumulates the bytes of one connection. After every append the
session asks the message codec whether the declared message size has been
reached; once it has, the Request is handed to the single dispatch goroutine
of the Server exactly once. HTTP pipelining is not supported: bytes following a
complete request are left untouched until the dispatcher has taken the current
one.

The dispatcher runs the PreRoute hook, then the registered routes in
registration order until one reports the request as handled, then the
PostRoute hook. If nothing handled the request a 404 is sent. Exactly one
response is written per request.

A request that completes a WebSocket handshake switches its Session into frame
mode for the rest of the connection's life. Complete, unmasked messages are
dispatched to the WSHandler registered for the handshake path.
*/
package webcpp
