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

package fixture

import (
	"testing"
	"time"

	"github.com/Comcast/luci/graph"
)

func TestParseBasicScenario(t *testing.T) {
	doc := []byte(`
types:
  - use: echo.Text
    as: Text
actors:
  - Peer
dummies:
  - Driver
events:
  - id: greet
    send:
      from: Driver
      to: Peer
      type: Text
      data:
        literal: "hi"
  - id: reply
    require: reached
    happens_after: [greet]
    recv:
      type: Text
      to: Driver
      from: Peer
      data: "$reply"
      after: 10ms
      before: 2s
`)

	s, err := Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Actors) != 1 || s.Actors[0] != "Peer" {
		t.Fatalf("expected actors [Peer], got %v", s.Actors)
	}
	if len(s.Dummies) != 1 || s.Dummies[0] != "Driver" {
		t.Fatalf("expected dummies [Driver], got %v", s.Dummies)
	}
	if len(s.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(s.Events))
	}

	send, ok := s.Events[0].Body.(graph.SendDecl)
	if !ok {
		t.Fatalf("expected a SendDecl, got %T", s.Events[0].Body)
	}
	if send.From != "Driver" || send.To == nil || *send.To != "Peer" {
		t.Fatalf("unexpected send decl: %+v", send)
	}

	recvEvent := s.Events[1]
	if recvEvent.Require == nil || *recvEvent.Require != graph.Reached {
		t.Fatal("expected require: reached to be parsed")
	}
	if len(recvEvent.HappensAfter) != 1 || recvEvent.HappensAfter[0] != "greet" {
		t.Fatalf("expected happens_after [greet], got %v", recvEvent.HappensAfter)
	}
	recv, ok := recvEvent.Body.(graph.RecvDecl)
	if !ok {
		t.Fatalf("expected a RecvDecl, got %T", recvEvent.Body)
	}
	if recv.After == nil || *recv.After != 10*time.Millisecond {
		t.Fatalf("expected after=10ms, got %v", recv.After)
	}
	if recv.Before == nil || *recv.Before != 2*time.Second {
		t.Fatalf("expected before=2s, got %v", recv.Before)
	}
	if recv.From == nil || *recv.From != "Peer" {
		t.Fatalf("expected from=Peer, got %v", recv.From)
	}
}

func TestParseCallDecl(t *testing.T) {
	doc := []byte(`
actors:
  - Peer
dummies:
  - Driver
events:
  - id: sub
    call:
      sub: echo
      actors:
        Peer: InnerPeer
      in:
        src: { literal: "hi" }
        dst: "$msg"
      out:
        src: "$reply"
        dst: "$answer"
`)
	s, err := Parse(doc)
	if err != nil {
		t.Fatal(err)
	}
	call, ok := s.Events[0].Body.(graph.CallDecl)
	if !ok {
		t.Fatalf("expected a CallDecl, got %T", s.Events[0].Body)
	}
	if call.Sub != "echo" {
		t.Fatalf("expected sub=echo, got %v", call.Sub)
	}
	if inner, ok := call.Actors["Peer"]; !ok || inner != "InnerPeer" {
		t.Fatalf("expected outer Peer to map to inner InnerPeer, got %v", call.Actors)
	}
	if call.In == nil || call.Out == nil {
		t.Fatal("expected both in and out bindings to be parsed")
	}
}

func TestParseRejectsMultipleBodies(t *testing.T) {
	doc := []byte(`
events:
  - id: bad
    delay:
      for: 1s
    bind:
      dst: "$x"
      src:
        literal: 1
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected an error for an event with more than one body")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	doc := []byte(`
events:
  - id: bad
    delay:
      for: 1s
      surprise: true
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected an error for an unknown key in an event body")
	}
}

func TestParseRejectsInvalidRequire(t *testing.T) {
	doc := []byte(`
events:
  - id: bad
    require: maybe
    delay:
      for: 1s
`)
	if _, err := Parse(doc); err == nil {
		t.Fatal("expected an error for an invalid require value")
	}
}
