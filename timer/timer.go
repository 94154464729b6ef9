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

// Package timer implements the receives-and-delays timer wheel:
// every pending Recv and Delay event key, tracked on the virtual
// clock, with a per-entry poll resolution so the interpreter sleeps
// as long as possible between polls without missing a timeout. Two
// container/heap-backed ordered sets (fire time, resolution) with
// lazy deletion carry the whole thing.
package timer

import (
	"container/heap"
	"time"

	"github.com/Comcast/luci/graph"
)

// DefaultResolution is the poll granularity for a Recv with no
// `before` bound: it never times out, so there is no deadline to
// track closely, but we still need *some* bound on how long the
// interpreter can sleep before re-checking proxies for other reasons.
const DefaultResolution = 100 * time.Millisecond

type scheduleItem struct {
	at      time.Time
	key     graph.EventKey
	removed bool
	index   int
}

type scheduleHeap []*scheduleItem

func (h scheduleHeap) Len() int           { return len(h) }
func (h scheduleHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h scheduleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *scheduleHeap) Push(x interface{}) {
	item := x.(*scheduleItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *scheduleHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type resolutionItem struct {
	resolution time.Duration
	key        graph.EventKey
	removed    bool
	index      int
}

type resolutionHeap []*resolutionItem

func (h resolutionHeap) Len() int           { return len(h) }
func (h resolutionHeap) Less(i, j int) bool { return h[i].resolution < h[j].resolution }
func (h resolutionHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *resolutionHeap) Push(x interface{}) {
	item := x.(*resolutionItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *resolutionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// entry is the bookkeeping Wheel keeps per live key, letting
// RemoveRecvByKey find and lazily delete both heap items in O(1) plus
// a later O(log n) pop-skip.
type entry struct {
	validFrom time.Time
	sched     *scheduleItem // nil if this key was never given a schedule entry (no `before`)
	res       *resolutionItem
}

// Wheel is the ReceivesAndDelays timer wheel.
type Wheel struct {
	byKey map[graph.EventKey]*entry
	sched scheduleHeap
	res   resolutionHeap
}

// New returns an empty Wheel.
func New() *Wheel {
	return &Wheel{byKey: map[graph.EventKey]*entry{}}
}

// InsertDelay schedules a Delay key to ripen at now+for, polled no
// less often than every step.
func (w *Wheel) InsertDelay(key graph.EventKey, now time.Time, forDur, step time.Duration) {
	sched := &scheduleItem{at: now.Add(forDur), key: key}
	res := &resolutionItem{resolution: step, key: key}
	heap.Push(&w.sched, sched)
	heap.Push(&w.res, res)
	w.byKey[key] = &entry{validFrom: now, sched: sched, res: res}
}

// InsertRecv registers a Recv key as pending from now, with the given
// optional after/before window. It returns validFrom (== now), which
// the interpreter threads through as the recv's window start.
func (w *Wheel) InsertRecv(key graph.EventKey, now time.Time, after time.Duration, before *time.Duration) time.Time {
	e := &entry{validFrom: now}
	resolution := DefaultResolution
	if before != nil {
		e.sched = &scheduleItem{at: now.Add(*before), key: key}
		heap.Push(&w.sched, e.sched)
		span := *before - after
		if span <= 0 {
			span = *before
		}
		resolution = span / 1000
		if resolution <= 0 {
			resolution = time.Millisecond
		}
	} else if after > 0 {
		resolution = after / 1000
		if resolution <= 0 {
			resolution = time.Millisecond
		}
	}
	e.res = &resolutionItem{resolution: resolution, key: key}
	heap.Push(&w.res, e.res)
	w.byKey[key] = e
	return now
}

// RemoveRecvByKey withdraws a pending recv (it matched, or the
// interpreter is discarding it), returning the instant it was
// inserted so the caller can tell whether the match honored `after`.
func (w *Wheel) RemoveRecvByKey(key graph.EventKey) (time.Time, bool) {
	e, ok := w.byKey[key]
	if !ok {
		return time.Time{}, false
	}
	if e.sched != nil {
		e.sched.removed = true
	}
	e.res.removed = true
	delete(w.byKey, key)
	return e.validFrom, true
}

// HasDeadline reports whether any live entry has a schedule instant
// at which it will ripen (a delay, or a recv with a `before` bound).
// Resolution-only entries set a poll cadence but never ripen on their
// own.
func (w *Wheel) HasDeadline() bool {
	_, ok := w.peekSchedule()
	return ok
}

// NextSleepUntil returns the earliest instant the interpreter needs
// to wake up: the nearer of the next schedule entry and
// now+(smallest live resolution).
func (w *Wheel) NextSleepUntil(now time.Time) (time.Time, bool) {
	schedAt, hasSched := w.peekSchedule()
	resDur, hasRes := w.peekResolution()
	switch {
	case hasSched && hasRes:
		resAt := now.Add(resDur)
		if schedAt.Before(resAt) {
			return schedAt, true
		}
		return resAt, true
	case hasSched:
		return schedAt, true
	case hasRes:
		return now.Add(resDur), true
	default:
		return time.Time{}, false
	}
}

func (w *Wheel) peekSchedule() (time.Time, bool) {
	for len(w.sched) > 0 && w.sched[0].removed {
		heap.Pop(&w.sched)
	}
	if len(w.sched) == 0 {
		return time.Time{}, false
	}
	return w.sched[0].at, true
}

func (w *Wheel) peekResolution() (time.Duration, bool) {
	for len(w.res) > 0 && w.res[0].removed {
		heap.Pop(&w.res)
	}
	if len(w.res) == 0 {
		return 0, false
	}
	return w.res[0].resolution, true
}

// SelectRipeKeys pops every schedule entry with at<=now (skipping
// lazily-removed ones) and returns their keys in ripening order,
// removing their resolution-set entries as well.
func (w *Wheel) SelectRipeKeys(now time.Time) []graph.EventKey {
	var ripe []graph.EventKey
	for len(w.sched) > 0 {
		top := w.sched[0]
		if top.removed {
			heap.Pop(&w.sched)
			continue
		}
		if top.at.After(now) {
			break
		}
		heap.Pop(&w.sched)
		if e, ok := w.byKey[top.key]; ok {
			e.res.removed = true
			delete(w.byKey, top.key)
		}
		ripe = append(ripe, top.key)
	}
	return ripe
}
