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

// Package marshal is the marshalling registry: a tagged-dispatch
// table from a message's fully-qualified type name to the code that
// knows how to turn a bound Value into a wire message and back.
package marshal

import (
	"encoding/json"
	"fmt"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/proxy"
)

// Marshaller is the capability set a registered message type exposes:
// marshal (render a Value into the wire type), bind (the reverse, for
// matching), and, for request types, response/respond.
type Marshaller interface {
	FQN() dsl.FQN

	// Encode renders a fully-resolved Value (already Render'd against
	// the firing event's bindings, if it came from a template) into
	// the concrete Go value a Proxy.Send/SendTo can transmit.
	Encode(payload dsl.Value) (interface{}, error)

	// Decode turns wire data (raw bytes, or an already-typed Go value
	// a transport produced) back into a Value tree for unification
	// against a Recv pattern.
	Decode(wire interface{}) (dsl.Value, error)

	// Response returns this type's paired response Marshaller, if it
	// is a request type.
	Response() (Marshaller, bool)
}

// Responder is implemented by request-type Marshallers: it knows how
// to encode and transmit a response payload against a previously
// captured RequestToken.
type Responder interface {
	Marshaller
	Respond(ctx *dsl.Ctx, p proxy.Proxy, token proxy.RequestToken, payload dsl.Value) error
}

// toValue normalizes wire data to a Value tree: raw bytes are parsed
// directly (preserving json.Number), anything else is round-tripped
// through encoding/json first.
func toValue(wire interface{}) (dsl.Value, error) {
	if b, ok := wire.([]byte); ok {
		return dsl.ParseValue(b)
	}
	if s, ok := wire.(string); ok {
		return dsl.ParseValue([]byte(s))
	}
	bs, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal: re-encoding wire value: %w", err)
	}
	return dsl.ParseValue(bs)
}

// fromValue renders payload into a *T via a JSON round-trip. This is
// the generic backbone of Regular and Request: the concrete wire type
// only needs `json` struct tags, the same as any other Go service.
func fromValue[T any](payload dsl.Value) (*T, error) {
	bs, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: rendering payload: %w", err)
	}
	var t T
	if err := json.Unmarshal(bs, &t); err != nil {
		return nil, fmt.Errorf("marshal: decoding into %T: %w", t, err)
	}
	return &t, nil
}
