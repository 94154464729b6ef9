/*
 * Copyright 2021 Comcast Cable Communications Management, LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package runner

import (
	"sync"
	"time"

	"github.com/Comcast/luci/dsl"
)

// Clock is the run's notion of time: paused on entry for a virtual
// clock, advanced only by explicit sleeps, so that a recv's "before"
// bound elapses in test time rather than wall time.
type Clock interface {
	// Now returns the clock's current instant.
	Now() time.Time

	// SleepUntil blocks (or, for a virtual clock, simply advances)
	// until the clock reaches at, or ctx is done.
	SleepUntil(ctx *dsl.Ctx, at time.Time) error
}

// WallClock is a Clock backed by real time, for production runs
// against a live system under test.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) SleepUntil(ctx *dsl.Ctx, at time.Time) error {
	d := time.Until(at)
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// VirtualClock is a Clock a test can pause and fast-forward:
// SleepUntil jumps straight to the requested instant instead of
// waiting for wall time to catch up.
type VirtualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewVirtualClock returns a VirtualClock paused at start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SleepUntil advances the clock to at (never backwards) and returns
// immediately, unless ctx is already done.
func (c *VirtualClock) SleepUntil(ctx *dsl.Ctx, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if at.After(c.now) {
		c.now = at
	}
	return nil
}
