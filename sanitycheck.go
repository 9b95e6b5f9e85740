// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

//go:build race

package webcpp

// sanity check the configuration
func init() {
	if DefaultWriteChunkSize < 1 {
		panic("DefaultWriteChunkSize < 1")
	}
	if DefaultReadBufferSize < 1 {
		panic("DefaultReadBufferSize < 1")
	}
	if DefaultMaxHeaderSize < DefaultReadBufferSize {
		panic("DefaultMaxHeaderSize < DefaultReadBufferSize")
	}
	if DefaultMaxBodySize < 1 {
		panic("DefaultMaxBodySize < 1")
	}
	if DefaultKeepAliveTick <= 0 {
		panic("DefaultKeepAliveTick <= 0")
	}
	if DefaultKeepAliveTick > DefaultKeepAlive {
		panic("DefaultKeepAliveTick > DefaultKeepAlive")
	}
	if MaxWSControlPayload != 125 {
		panic("MaxWSControlPayload != 125")
	}
	if DefaultMaxWSMessageSize < MaxWSControlPayload {
		panic("DefaultMaxWSMessageSize < MaxWSControlPayload")
	}
	if BufferPoolSize < 0 {
		panic("BufferPoolSize < 0")
	}
}
