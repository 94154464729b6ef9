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

// Package proxy defines the boundary between the interpreter and a
// transport: the Proxy and Envelope interfaces every dummy's channel
// implementation (echo, mqtt, ...) must satisfy, and nothing else.
// Keeping this as its own tiny package (rather than folding it into
// runner or marshal) lets both depend on it without depending on each
// other.
package proxy

import "github.com/Comcast/luci/dsl"

// Proxy is the live handle a dummy holds on one actor's transport
// connection.
type Proxy interface {
	// Subproxy allocates a fresh, independently-addressed handle for a
	// recursive subroutine invocation that rebinds this dummy to a new
	// actor. The parent proxy is left usable.
	Subproxy(ctx *dsl.Ctx) (Proxy, error)

	// Addr is this proxy's own address, as it would appear as a
	// sender on an outbound envelope.
	Addr() dsl.Addr

	// Send transmits msg with no explicit destination (e.g. a
	// best-effort broadcast or a transport with an implicit peer).
	Send(ctx *dsl.Ctx, msg interface{}) error

	// SendTo transmits msg addressed to dst.
	SendTo(ctx *dsl.Ctx, dst dsl.Addr, msg interface{}) error

	// TryRecv returns the next queued inbound Envelope without
	// blocking, or ok=false if nothing is pending.
	TryRecv(ctx *dsl.Ctx) (Envelope, bool)

	// Sync blocks until any transport-level send queued so far is
	// flushed, so that a subsequent TryRecv on a peer proxy can
	// observe it; the virtual clock advances around Sync, not during
	// it.
	Sync(ctx *dsl.Ctx) error

	// Close releases any resource this proxy holds (sockets,
	// subscriptions). Closing a proxy with live subproxies is the
	// caller's error to avoid, not this interface's to prevent.
	Close(ctx *dsl.Ctx) error
}

// Envelope is one inbound message, as handed to a Recv or Respond
// node's matcher and, on success, decoded into the bindings.
type Envelope interface {
	// Sender is the address the envelope claims to be from, used to
	// satisfy a Recv node's "from" constraint.
	Sender() dsl.Addr

	// Destination is the address the envelope was addressed to, if
	// the transport exposes one; ok is false for transports (like
	// plain pub/sub) with no addressed delivery.
	Destination() (addr dsl.Addr, ok bool)

	// FQN names the registered message type this envelope carries, so
	// the interpreter can resolve the right Marshaller.
	FQN() dsl.FQN

	// Message is the concrete decoded Go value a Marshaller produced;
	// callers that need structure pass this back into the same
	// Marshaller's Decode.
	Message() interface{}

	// RequestToken is present when this envelope represents a request
	// awaiting a Respond; ok is false for ordinary messages.
	RequestToken() (RequestToken, bool)
}

// RequestToken is an opaque handle letting a later Respond node answer
// a specific previously-received request, possibly after other events
// have fired in between.
type RequestToken interface {
	// Duplicate returns an independent copy of the token so that the
	// originating Envelope can be discarded (or re-matched against a
	// different pattern) without invalidating a Respond that already
	// captured it.
	Duplicate() RequestToken

	// ReplyTo is the address a Respond firing against this token
	// should send to. Each transport assigns and resolves its own
	// addresses (a topic, a connection id, ...); this interface never
	// interprets them.
	ReplyTo() dsl.Addr
}
