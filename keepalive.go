// Copyright 2018 Johan Lindh. All rights reserved.
// Use of this source code is governed by the MIT license, see the LICENSE file.

package webcpp

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// keepAlive tracks an idle deadline per connection. A single ticker
// scans every armed deadline; connections found past theirs are handed
// to the expire callback and disarmed.
type keepAlive struct {
	timeout   time.Duration
	tick      time.Duration
	deadlines *xsync.MapOf[ConnID, time.Time]
}

func newKeepAlive(timeout, tick time.Duration) *keepAlive {
	if tick <= 0 {
		tick = DefaultKeepAliveTick
	}
	if timeout > 0 && tick > timeout {
		tick = timeout
	}
	return &keepAlive{
		timeout:   timeout,
		tick:      tick,
		deadlines: xsync.NewMapOf[ConnID, time.Time](),
	}
}

// arm sets the deadline of id to timeout from now. A zero or negative
// timeout disables eviction.
func (ka *keepAlive) arm(id ConnID) {
	if ka.timeout > 0 {
		ka.deadlines.Store(id, time.Now().Add(ka.timeout))
	}
}

// disarm removes the deadline of id.
func (ka *keepAlive) disarm(id ConnID) {
	ka.deadlines.Delete(id)
}

// take disarms id and returns true if it was armed.
func (ka *keepAlive) take(id ConnID) bool {
	_, ok := ka.deadlines.LoadAndDelete(id)
	return ok
}

func (ka *keepAlive) armed(id ConnID) bool {
	_, ok := ka.deadlines.Load(id)
	return ok
}

// expired removes and returns the connections whose deadline is before now.
// A deadline re-armed after the scan is left alone.
func (ka *keepAlive) expired(now time.Time) []ConnID {
	var candidates []ConnID
	ka.deadlines.Range(func(id ConnID, deadline time.Time) bool {
		if deadline.Before(now) {
			candidates = append(candidates, id)
		}
		return true
	})
	ids := candidates[:0]
	for _, id := range candidates {
		removed := false
		ka.deadlines.Compute(id, func(deadline time.Time, loaded bool) (time.Time, bool) {
			removed = loaded && deadline.Before(now)
			return deadline, removed || !loaded
		})
		if removed {
			ids = append(ids, id)
		}
	}
	return ids
}

// run scans the deadlines every tick until ctx is done.
func (ka *keepAlive) run(ctx context.Context, expire func(ConnID)) error {
	ticker := time.NewTicker(ka.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			for _, id := range ka.expired(now) {
				expire(id)
			}
		}
	}
}
