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
	"testing"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/proxy"
)

type greeting struct {
	Text string `json:"text"`
}

type fakeEnvelope struct {
	fqn dsl.FQN
	msg interface{}
}

func (e fakeEnvelope) Sender() dsl.Addr                         { return 0 }
func (e fakeEnvelope) Destination() (dsl.Addr, bool)            { return 0, false }
func (e fakeEnvelope) FQN() dsl.FQN                             { return e.fqn }
func (e fakeEnvelope) Message() interface{}                     { return e.msg }
func (e fakeEnvelope) RequestToken() (proxy.RequestToken, bool) { return nil, false }

var _ proxy.Envelope = fakeEnvelope{}

func TestRegisterDuplicateFQNPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on duplicate FQN registration")
		}
	}()
	r := NewRegistry()
	r.Register(NewRegular[greeting]("demo.Greeting", nil))
	r.Register(NewRegular[greeting]("demo.Greeting", nil))
}

func TestMarshalRendersBindTemplate(t *testing.T) {
	r := NewRegistry()
	r.Register(NewRegular[greeting]("demo.Greeting", nil))

	scope := dsl.NewScope()
	txn := scope.Txn()
	txn.SetValue("$text", "hi")
	txn.Commit()

	wire, err := r.Marshal("demo.Greeting", scope, dsl.BindTemplate(map[string]dsl.Value{"text": "$text"}))
	if err != nil {
		t.Fatal(err)
	}
	g, ok := wire.(*greeting)
	if !ok || g.Text != "hi" {
		t.Fatalf("expected *greeting{Text: hi}, got %#v", wire)
	}
}

func TestMarshalInjectedBypassesRegistry(t *testing.T) {
	r := NewRegistry()
	r.RegisterInjected("token", []byte("opaque"))

	wire, err := r.Marshal("", dsl.NewScope(), dsl.Inject("token"))
	if err != nil {
		t.Fatal(err)
	}
	bs, ok := wire.([]byte)
	if !ok || string(bs) != "opaque" {
		t.Fatalf("expected the raw injected value back, got %#v", wire)
	}
}

func TestBindUnifiesEveryPatternBeforeCommitting(t *testing.T) {
	r := NewRegistry()
	r.Register(NewRegular[greeting]("demo.Greeting", nil))

	env := fakeEnvelope{fqn: "demo.Greeting", msg: []byte(`{"text": "hi"}`)}

	kv, ok := r.Bind(env, []dsl.Value{
		map[string]dsl.Value{"text": "$a"},
		map[string]dsl.Value{"text": "hi"},
	})
	if !ok {
		t.Fatal("expected both patterns to unify")
	}
	if kv["$a"] != "hi" {
		t.Fatalf("expected $a bound to hi, got %v", kv["$a"])
	}

	if _, ok := r.Bind(env, []dsl.Value{map[string]dsl.Value{"text": "bye"}}); ok {
		t.Fatal("a pattern that disagrees with the payload should fail to bind")
	}
}

func TestBindUnknownFQNFails(t *testing.T) {
	r := NewRegistry()
	env := fakeEnvelope{fqn: "demo.Unknown", msg: []byte(`{}`)}
	if _, ok := r.Bind(env, nil); ok {
		t.Fatal("binding against an unregistered FQN should fail, not panic")
	}
}
