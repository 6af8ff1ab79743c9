// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package mockable provides the clock the protocol reads "now" from. The VM
// pins it to each block's timestamp.
package mockable

import (
	"sync"
	"time"
)

// Clock reports wall time until Set pins it. It is safe for concurrent use.
type Clock struct {
	mu    sync.RWMutex
	faked bool
	time  time.Time
}

// Set pins the clock at [t].
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.faked = true
	c.time = t
}

// Advance moves a pinned clock forward by [d].
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.time = c.time.Add(d)
}

func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.faked {
		return c.time
	}
	return time.Now()
}

// Unix returns the clock's time in whole seconds, clamped at zero.
func (c *Clock) Unix() uint64 {
	return uint64(max(c.Time().Unix(), 0))
}
