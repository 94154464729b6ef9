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

package echo

import (
	"testing"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/marshal"
)

func TestSendToRepliesOnOwnInbox(t *testing.T) {
	ctx := dsl.NewCtx(nil)
	root := NewRoot()
	sub, err := root.Subproxy(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := sub.SendTo(ctx, root.Addr(), "hello"); err != nil {
		t.Fatal(err)
	}
	if err := sub.Sync(ctx); err != nil {
		t.Fatal(err)
	}

	env, ok := sub.TryRecv(ctx)
	if !ok {
		t.Fatal("expected a reply queued on the sender's own inbox")
	}
	if env.Sender() != root.Addr() {
		t.Fatalf("expected the reply to claim the destination as sender, got %v", env.Sender())
	}
	if env.FQN() != FQN {
		t.Fatalf("expected FQN %q, got %q", FQN, env.FQN())
	}
	if _, ok := env.Message().(string); !ok {
		t.Fatalf("expected a string message, got %T", env.Message())
	}
}

func TestSubproxiesGetDistinctAddressesAndInboxes(t *testing.T) {
	ctx := dsl.NewCtx(nil)
	root := NewRoot()
	a, err := root.Subproxy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	b, err := root.Subproxy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if a.Addr() == b.Addr() {
		t.Fatal("distinct subproxies should get distinct addresses")
	}

	if err := a.SendTo(ctx, root.Addr(), "hi"); err != nil {
		t.Fatal(err)
	}
	a.Sync(ctx)

	if _, ok := b.TryRecv(ctx); ok {
		t.Fatal("a's reply must not be visible on b's inbox")
	}
	if _, ok := a.TryRecv(ctx); !ok {
		t.Fatal("a's reply should be visible on a's own inbox")
	}
}

func TestSendToRejectsNonStringPayload(t *testing.T) {
	ctx := dsl.NewCtx(nil)
	root := NewRoot()
	if err := root.SendTo(ctx, 0, 42); err == nil {
		t.Fatal("expected an error sending a non-string payload")
	}
}

func TestTextMarshallerRoundTrips(t *testing.T) {
	reg := marshal.NewRegistry()
	Register(reg)

	m, ok := reg.Resolve(FQN)
	if !ok {
		t.Fatal("expected the echo text marshaller to be registered")
	}
	wire, err := m.Encode("hello")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := wire.(string); !ok {
		t.Fatalf("expected Encode to produce a plain string, got %T", wire)
	}
	v, err := m.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if v != "hello" {
		t.Fatalf("expected round-tripped value %q, got %v", "hello", v)
	}
}
