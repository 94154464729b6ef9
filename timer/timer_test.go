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

package timer

import (
	"testing"
	"time"

	"github.com/Comcast/luci/graph"
)

func key(kind graph.EventKind, idx int) graph.EventKey {
	return graph.EventKey{Kind: kind, Index: idx}
}

func TestSelectRipeKeysOrdersByFireTime(t *testing.T) {
	w := New()
	now := time.Now()

	w.InsertDelay(key(graph.KindDelay, 1), now, 30*time.Millisecond, time.Millisecond)
	w.InsertDelay(key(graph.KindDelay, 2), now, 10*time.Millisecond, time.Millisecond)

	ripe := w.SelectRipeKeys(now.Add(20 * time.Millisecond))
	if len(ripe) != 1 || ripe[0].Index != 2 {
		t.Fatalf("expected only key 2 to be ripe at +20ms, got %v", ripe)
	}

	ripe = w.SelectRipeKeys(now.Add(40 * time.Millisecond))
	if len(ripe) != 1 || ripe[0].Index != 1 {
		t.Fatalf("expected key 1 to ripen by +40ms, got %v", ripe)
	}
}

func TestRemoveRecvByKeyReturnsValidFrom(t *testing.T) {
	w := New()
	now := time.Now()
	k := key(graph.KindRecv, 1)

	validFrom := w.InsertRecv(k, now, 0, nil)
	if !validFrom.Equal(now) {
		t.Fatalf("expected validFrom %v, got %v", now, validFrom)
	}

	got, existed := w.RemoveRecvByKey(k)
	if !existed {
		t.Fatal("expected the recv to still be tracked")
	}
	if !got.Equal(now) {
		t.Fatalf("expected removal to report validFrom %v, got %v", now, got)
	}

	if _, existed := w.RemoveRecvByKey(k); existed {
		t.Fatal("removing an already-removed key should report existed=false")
	}
}

func TestRecvWithBeforeRipensAndIsNoLongerTracked(t *testing.T) {
	w := New()
	now := time.Now()
	before := 10 * time.Millisecond
	k := key(graph.KindRecv, 1)

	w.InsertRecv(k, now, 0, &before)

	ripe := w.SelectRipeKeys(now.Add(20 * time.Millisecond))
	if len(ripe) != 1 || ripe[0] != k {
		t.Fatalf("expected the recv to ripen once its before elapsed, got %v", ripe)
	}

	if _, existed := w.RemoveRecvByKey(k); existed {
		t.Fatal("a ripened recv should no longer be tracked")
	}
}

func TestNextSleepUntilFallsBackToDefaultResolution(t *testing.T) {
	w := New()
	now := time.Now()

	// A recv with no before at all falls back to DefaultResolution.
	w.InsertRecv(key(graph.KindRecv, 1), now, 0, nil)

	sleepUntil, ok := w.NextSleepUntil(now)
	if !ok {
		t.Fatal("expected a sleep deadline with one pending recv")
	}
	if sleepUntil.Before(now) || sleepUntil.After(now.Add(DefaultResolution+time.Millisecond)) {
		t.Fatalf("expected sleep deadline near now+DefaultResolution, got %v (now=%v)", sleepUntil, now)
	}
}

func TestNextSleepUntilEmptyWheel(t *testing.T) {
	w := New()
	if _, ok := w.NextSleepUntil(time.Now()); ok {
		t.Fatal("an empty wheel should report no sleep deadline")
	}
}
