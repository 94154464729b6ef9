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

package dsl

// MsgKind distinguishes the three ways a Bind or Send node can
// produce the Value it hands to the marshalling registry.
type MsgKind int

const (
	// MsgLiteral carries Value verbatim, with no $-substitution.
	MsgLiteral MsgKind = iota
	// MsgBind is rendered against the firing event's bindings before
	// use (see Render).
	MsgBind
	// MsgInject names a pre-built envelope registered with the
	// marshalling registry at construction time; Value is unused.
	MsgInject
)

// Msg is a Bind or Send node's data source: either a literal Value, a
// template to render against current bindings, or a key into the
// registry's injected-envelope table.
type Msg struct {
	Kind      MsgKind
	Value     Value
	InjectKey string
}

// Literal constructs a literal Msg.
func Literal(v Value) Msg { return Msg{Kind: MsgLiteral, Value: v} }

// BindTemplate constructs a to-be-rendered Msg.
func BindTemplate(v Value) Msg { return Msg{Kind: MsgBind, Value: v} }

// Inject constructs an injected-lookup Msg.
func Inject(key string) Msg { return Msg{Kind: MsgInject, InjectKey: key} }

// Resolve renders m against read, producing the Value to hand to a
// Marshaller. It is an error to Resolve an injected Msg: injected
// envelopes bypass the marshaller and rendering entirely, and must be
// special-cased by the caller (see marshal.Registry.Marshal).
func (m Msg) Resolve(read ReadState) (Value, error) {
	switch m.Kind {
	case MsgLiteral:
		return m.Value, nil
	case MsgBind:
		return Render(m.Value, read)
	default:
		return nil, Brokenf("msg: cannot resolve an injected msg-source directly")
	}
}
