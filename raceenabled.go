// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

//go:build race

package webcpp

func init() {
	// race detector can only handle max of 8192 goroutines, and
	// keeping many idle buffers around only adds noise to its reports.
	BufferPoolSize = 64
}
