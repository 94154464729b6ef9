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
	"fmt"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/marshal"
)

// textMarshaller is a hand-written Marshaller for FQN rather than
// marshal.NewRegular[string]: Regular round-trips every payload
// through encoding/json, which would hand Proxy.SendTo a *string
// instead of the plain string it (and Eliza's ReplyTo) expects. A
// scenario's $-bound value for an echo message is always a JSON
// string already, so passing it straight through is both simpler and
// correct.
type textMarshaller struct{}

func (textMarshaller) FQN() dsl.FQN { return FQN }

func (textMarshaller) Encode(payload dsl.Value) (interface{}, error) {
	s, ok := payload.(string)
	if !ok {
		return nil, fmt.Errorf("echo: payload must be a string, got %T", payload)
	}
	return s, nil
}

func (textMarshaller) Decode(wire interface{}) (dsl.Value, error) {
	s, ok := wire.(string)
	if !ok {
		return nil, fmt.Errorf("echo: wire value must be a string, got %T", wire)
	}
	return s, nil
}

func (textMarshaller) Response() (marshal.Marshaller, bool) { return nil, false }

var _ marshal.Marshaller = textMarshaller{}

// Register adds the echo text type to reg.
func Register(reg *marshal.Registry) {
	reg.Register(textMarshaller{})
}
