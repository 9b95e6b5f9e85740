// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import "time"

const (
	// DefaultListenAddr is the address a TCPTransport listens on if Addr is empty.
	DefaultListenAddr = ":8080"
	// DefaultKeepAlive is how long an idle connection is kept open.
	DefaultKeepAlive = time.Second * 5
	// DefaultKeepAliveTick is how often the keep-alive timers are scanned.
	DefaultKeepAliveTick = time.Millisecond * 250
	// DefaultMaxBodySize is the largest Content-Length accepted for a request.
	DefaultMaxBodySize = 16 * 1024 * 1024
	// DefaultMaxHeaderSize is the largest start line plus header block accepted.
	DefaultMaxHeaderSize = 64 * 1024
	// DefaultWriteChunkSize is the largest single write handed to a connection.
	DefaultWriteChunkSize = 1536
	// DefaultReadBufferSize is the size of the transport read buffer.
	DefaultReadBufferSize = 4096
	// DefaultDialTimeout is how long a Client waits for a connection.
	DefaultDialTimeout = time.Second * 10
	// DefaultReadTimeout is how long a Client waits for a response.
	DefaultReadTimeout = time.Second * 30
	// DefaultUserAgent is injected into outbound requests lacking one.
	DefaultUserAgent = "webcpp/1.0"
	// DefaultServerName is sent in the Server header of responses.
	DefaultServerName = "webcpp"
	// MaxWSControlPayload is the largest payload of a WebSocket control frame.
	MaxWSControlPayload = 125
	// DefaultMaxWSMessageSize is the largest reassembled WebSocket message.
	DefaultMaxWSMessageSize = 16 * 1024 * 1024
)

var (
	// BufferPoolSize is the number of session buffers kept for reuse (configurable).
	BufferPoolSize = 1024
)
