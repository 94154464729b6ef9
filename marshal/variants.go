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

package marshal

import (
	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/proxy"
)

// Regular registers a plain message type T with no associated
// response: a generic JSON-backed Marshaller for everything that
// isn't a request/response pair or a pre-built injected envelope.
type Regular[T any] struct {
	fqn   dsl.FQN
	guard *SchemaGuard
}

// NewRegular builds a Regular marshaller for T under fqn. guard may be
// nil to skip schema validation.
func NewRegular[T any](fqn dsl.FQN, guard *SchemaGuard) *Regular[T] {
	return &Regular[T]{fqn: fqn, guard: guard}
}

func (r *Regular[T]) FQN() dsl.FQN { return r.fqn }

func (r *Regular[T]) Encode(payload dsl.Value) (interface{}, error) {
	if err := r.guard.Validate(payload); err != nil {
		return nil, err
	}
	return fromValue[T](payload)
}

func (r *Regular[T]) Decode(wire interface{}) (dsl.Value, error) {
	return toValue(wire)
}

func (r *Regular[T]) Response() (Marshaller, bool) { return nil, false }

// Request registers a request message type T whose responses are of
// type R, paired under fqn and responseFQN.
type Request[T, R any] struct {
	fqn       dsl.FQN
	guard     *SchemaGuard
	response  *Regular[R]
	respGuard *SchemaGuard
}

// NewRequest builds a Request marshaller for T, pairing it with a
// Regular[R] registered under responseFQN for the matching response
// type. Either guard may be nil.
func NewRequest[T, R any](fqn dsl.FQN, guard *SchemaGuard, responseFQN dsl.FQN, respGuard *SchemaGuard) *Request[T, R] {
	return &Request[T, R]{
		fqn:       fqn,
		guard:     guard,
		response:  NewRegular[R](responseFQN, respGuard),
		respGuard: respGuard,
	}
}

func (r *Request[T, R]) FQN() dsl.FQN { return r.fqn }

func (r *Request[T, R]) Encode(payload dsl.Value) (interface{}, error) {
	if err := r.guard.Validate(payload); err != nil {
		return nil, err
	}
	return fromValue[T](payload)
}

func (r *Request[T, R]) Decode(wire interface{}) (dsl.Value, error) {
	return toValue(wire)
}

func (r *Request[T, R]) Response() (Marshaller, bool) { return r.response, true }

// Respond renders payload as an R and sends it to token's reply
// address. Request is the only variant implementing Responder: a
// Regular type has no paired response to send, and Injected bypasses
// encoding entirely.
func (r *Request[T, R]) Respond(ctx *dsl.Ctx, p proxy.Proxy, token proxy.RequestToken, payload dsl.Value) error {
	wire, err := r.response.Encode(payload)
	if err != nil {
		return err
	}
	return p.SendTo(ctx, token.ReplyTo(), wire)
}

var _ Responder = (*Request[struct{}, struct{}])(nil)

// Injected wraps a single pre-built wire value supplied by the caller
// at registry-construction time. Its Encode ignores payload entirely:
// the whole point of an injected entry is to hand the interpreter a
// message it could not have rendered from bindings (a signed token, a
// binary fixture, ...).
type Injected struct {
	fqn  dsl.FQN
	wire interface{}
}

// NewInjected wraps wire under fqn.
func NewInjected(fqn dsl.FQN, wire interface{}) *Injected {
	return &Injected{fqn: fqn, wire: wire}
}

func (i *Injected) FQN() dsl.FQN { return i.fqn }

func (i *Injected) Encode(dsl.Value) (interface{}, error) { return i.wire, nil }

func (i *Injected) Decode(wire interface{}) (dsl.Value, error) { return toValue(wire) }

func (i *Injected) Response() (Marshaller, bool) { return nil, false }
