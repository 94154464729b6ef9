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

// Registry is the marshalling registry itself: a tagged-dispatch table
// from FQN to Marshaller, plus a separate by-key table of pre-built
// injected envelopes (an "inject" msg-source names a key, not a
// type, since an injected envelope stands entirely outside the
// render/encode pipeline).
type Registry struct {
	byFQN    map[dsl.FQN]Marshaller
	injected map[string]interface{}
}

// NewRegistry returns an empty Registry. Scenarios register their
// message types against it before a run starts; there is no implicit
// package-level registry, since a test harness may run several
// independently configured scenarios in one process.
func NewRegistry() *Registry {
	return &Registry{byFQN: map[dsl.FQN]Marshaller{}, injected: map[string]interface{}{}}
}

// Register adds m under its own FQN, along with its response type (if
// any) under the response's FQN. It panics on a duplicate FQN: this is
// a programming error in the scenario's setup code, not a runtime
// condition to recover from.
func (r *Registry) Register(m Marshaller) {
	r.put(m)
	if resp, ok := m.Response(); ok {
		r.put(resp)
	}
}

func (r *Registry) put(m Marshaller) {
	if _, exists := r.byFQN[m.FQN()]; exists {
		panic("marshal: duplicate registration for " + string(m.FQN()))
	}
	r.byFQN[m.FQN()] = m
}

// RegisterInjected adds a pre-built wire value under key, for later
// lookup by a Send or Bind node whose msg-source is {inject: key}.
func (r *Registry) RegisterInjected(key string, wire interface{}) {
	r.injected[key] = wire
}

// Resolve looks up the Marshaller registered for fqn.
func (r *Registry) Resolve(fqn dsl.FQN) (Marshaller, bool) {
	m, ok := r.byFQN[fqn]
	return m, ok
}

// Marshal renders msg against bindings (for MsgBind), or passes
// MsgLiteral straight through, then encodes the result via the
// Marshaller registered for fqn. An injected msg-source bypasses fqn
// and encoding entirely: it returns the pre-built wire value as-is.
func (r *Registry) Marshal(fqn dsl.FQN, bindings dsl.ReadState, msg dsl.Msg) (interface{}, error) {
	if msg.Kind == dsl.MsgInject {
		wire, ok := r.injected[msg.InjectKey]
		if !ok {
			return nil, dsl.Brokenf("marshal: no injected value registered for key %q", msg.InjectKey)
		}
		return wire, nil
	}
	m, ok := r.Resolve(fqn)
	if !ok {
		return nil, dsl.Brokenf("marshal: no marshaller registered for %q", fqn)
	}
	payload, err := msg.Resolve(bindings)
	if err != nil {
		return nil, err
	}
	return m.Encode(payload)
}

// Decode turns an inbound envelope's wire payload back into a Value
// tree, using the Marshaller registered for the envelope's own FQN.
func (r *Registry) Decode(env proxy.Envelope) (dsl.Value, error) {
	m, ok := r.Resolve(env.FQN())
	if !ok {
		return nil, dsl.Brokenf("marshal: no marshaller registered for %q", env.FQN())
	}
	return m.Decode(env.Message())
}

// Bind decodes env once and unifies its payload against every
// pattern in patterns, AND-combined into a single throwaway
// transaction (a Recv's "data" plus any "also_match_data", checked
// together before any of them can affect the real bindings). It
// returns the merged bindings and true only if every pattern
// matched.
func (r *Registry) Bind(env proxy.Envelope, patterns []dsl.Value) (dsl.KV, bool) {
	payload, err := r.Decode(env)
	if err != nil {
		return nil, false
	}
	scratch := dsl.NewScope()
	txn := scratch.Txn()
	for _, pattern := range patterns {
		if !dsl.BindToPattern(payload, pattern, txn) {
			return nil, false
		}
	}
	txn.Commit()
	return dsl.KV(scratch.Committed()), true
}

// Respond renders data against bindings and sends it to token's reply
// address via the Marshaller registered for fqn, which must be a
// request type (one whose Marshaller also implements Responder).
func (r *Registry) Respond(ctx *dsl.Ctx, p proxy.Proxy, fqn dsl.FQN, token proxy.RequestToken, bindings dsl.ReadState, data dsl.Value) error {
	m, ok := r.Resolve(fqn)
	if !ok {
		return dsl.Brokenf("marshal: no marshaller registered for %q", fqn)
	}
	responder, ok := m.(Responder)
	if !ok {
		return dsl.Brokenf("marshal: %q is not a request type, cannot respond", fqn)
	}
	payload, err := dsl.Render(data, bindings)
	if err != nil {
		return err
	}
	return responder.Respond(ctx, p, token, payload)
}
