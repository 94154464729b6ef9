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

import "testing"

func TestParseValuePreservesNumberForm(t *testing.T) {
	v, err := ParseValue([]byte(`{"a": 1, "b": 1.0}`))
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]Value)
	if !ok {
		t.Fatalf("expected map[string]Value, got %T", v)
	}
	if ValueEqual(m["a"], m["b"]) {
		t.Fatal("1 and 1.0 should not compare equal")
	}
}

func TestBindToPatternWildcardAlwaysMatches(t *testing.T) {
	txn := NewScope().Txn()
	if !BindToPattern("anything", "$_", txn) {
		t.Fatal("wildcard should match any value")
	}
	if len(txn.pendValues) != 0 {
		t.Fatal("wildcard should never stage a binding")
	}
}

func TestBindToPatternVariableBindsOnce(t *testing.T) {
	txn := NewScope().Txn()
	if !BindToPattern("hi", "$msg", txn) {
		t.Fatal("first bind should succeed")
	}
	if !BindToPattern("hi", "$msg", txn) {
		t.Fatal("re-binding to the same value should succeed")
	}
	if BindToPattern("bye", "$msg", txn) {
		t.Fatal("re-binding to a different value should fail")
	}
}

func TestBindToPatternObjectIsSubsetMatch(t *testing.T) {
	value := map[string]Value{"type": "Greeting", "text": "hi", "extra": "ignored"}
	pattern := map[string]Value{"type": "Greeting", "text": "$text"}
	txn := NewScope().Txn()
	if !BindToPattern(value, pattern, txn) {
		t.Fatal("pattern naming a subset of keys should match")
	}
	if v, ok := txn.ValueOf("$text"); !ok || v != "hi" {
		t.Fatalf("expected $text bound to %q, got %v (ok=%v)", "hi", v, ok)
	}
}

func TestBindToPatternMissingKeyFails(t *testing.T) {
	value := map[string]Value{"type": "Greeting"}
	pattern := map[string]Value{"type": "Greeting", "text": "$text"}
	txn := NewScope().Txn()
	if BindToPattern(value, pattern, txn) {
		t.Fatal("pattern naming a key absent from value should fail")
	}
}

func TestRenderSubstitutesBoundVariables(t *testing.T) {
	scope := NewScope()
	txn := scope.Txn()
	txn.SetValue("$name", "Ada")
	txn.Commit()

	out, err := Render(map[string]Value{"greeting": "$name"}, scope)
	if err != nil {
		t.Fatal(err)
	}
	m := out.(map[string]Value)
	if m["greeting"] != "Ada" {
		t.Fatalf("expected Ada, got %v", m["greeting"])
	}
}

func TestRenderUnboundVariableErrors(t *testing.T) {
	_, err := Render("$nope", NewScope())
	if _, ok := err.(*ErrUnboundVariable); !ok {
		t.Fatalf("expected *ErrUnboundVariable, got %v (%T)", err, err)
	}
}

func TestRenderWildcardAlwaysErrors(t *testing.T) {
	if _, err := Render("$_", NewScope()); err == nil {
		t.Fatal("rendering a wildcard should always error")
	}
}
