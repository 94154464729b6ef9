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

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a JSON-shaped tree: nil, bool, json.Number, string,
// []Value, or map[string]Value. Use ParseValue to get one from raw
// JSON text; it decodes with UseNumber so that "1" and "1.0" keep
// their distinct on-the-wire representations (numeric equality is
// "as stored", never coerced between int and float forms).
type Value = interface{}

// ParseValue decodes JSON text into a Value tree, preserving number
// literals via json.Number instead of collapsing them to float64.
func ParseValue(raw []byte) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v Value
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return canonicalize(v), nil
}

// canonicalize walks a value produced by encoding/json (which yields
// map[string]interface{}, []interface{}, json.Number, string, bool,
// nil) and leaves it as-is; it exists as a single seam in case a
// future caller feeds us a tree from a different decoder.
func canonicalize(v Value) Value {
	switch vv := v.(type) {
	case []interface{}:
		out := make([]Value, len(vv))
		for i, e := range vv {
			out[i] = canonicalize(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]Value, len(vv))
		for k, e := range vv {
			out[k] = canonicalize(e)
		}
		return out
	default:
		return v
	}
}

// IsVariable reports whether p is a pattern variable ("$name") or
// the wildcard ("$_").
func IsVariable(p Value) (name string, isVar bool) {
	s, is := p.(string)
	if !is || !strings.HasPrefix(s, "$") {
		return "", false
	}
	return s, true
}

// IsWildcard reports whether p is exactly the wildcard pattern "$_".
func IsWildcard(p Value) bool {
	s, is := p.(string)
	return is && s == "$_"
}

// ValueEqual reports whether two Values are equal: same variant,
// recursively equal. Numbers compare as stored
// (via their json.Number text), so "1" and "1.0" are distinct.
func ValueEqual(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case bool:
		bv, is := b.(bool)
		return is && av == bv
	case string:
		bv, is := b.(string)
		return is && av == bv
	case json.Number:
		bv, is := b.(json.Number)
		return is && av == bv
	case []Value:
		bv, is := b.([]Value)
		if !is || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]Value:
		bv, is := b.(map[string]Value)
		if !is || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, have := bv[k]
			if !have || !ValueEqual(v, bvv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// KV is a set of freshly-discovered variable bindings, as produced by
// BindToPattern or by a Marshaller.Bind implementation.
type KV map[string]Value

// BindToPattern attempts to unify value against pattern, staging any
// newly-discovered variable bindings into txn (via SetValue) rather
// than mutating value/pattern. It is total: every combination of
// value/pattern shapes is handled, none panic.
//
// Object patterns match as subsets: every key named in pattern must
// be present in value with a matching sub-pattern; extra keys in
// value are ignored. A pattern describes the bits the scenario cares
// about, not the whole payload.
func BindToPattern(value Value, pattern Value, txn *Transaction) bool {
	if IsWildcard(pattern) {
		return true
	}
	if name, isVar := IsVariable(pattern); isVar {
		return txn.SetValue(name, value)
	}

	switch pv := pattern.(type) {
	case nil:
		return value == nil
	case bool:
		vv, is := value.(bool)
		return is && vv == pv
	case string:
		vv, is := value.(string)
		return is && vv == pv
	case json.Number:
		vv, is := value.(json.Number)
		return is && vv == pv
	case []Value:
		vv, is := value.([]Value)
		if !is || len(vv) != len(pv) {
			return false
		}
		for i := range pv {
			if !BindToPattern(vv[i], pv[i], txn) {
				return false
			}
		}
		return true
	case map[string]Value:
		vv, is := value.(map[string]Value)
		if !is {
			return false
		}
		for k, subPattern := range pv {
			subValue, has := vv[k]
			if !has || !BindToPattern(subValue, subPattern, txn) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ErrUnboundVariable is returned by Render when a template references
// a variable that is not (yet) bound.
type ErrUnboundVariable struct{ Name string }

func (e *ErrUnboundVariable) Error() string {
	return fmt.Sprintf("unbound variable: %s", e.Name)
}

// Render substitutes every "$name" occurrence in template with its
// currently-bound Value, reading through read. "$_" is always an
// error inside a template (it never captures, so it can never stand
// for a value either).
func Render(template Value, read ReadState) (Value, error) {
	if IsWildcard(template) {
		return nil, fmt.Errorf("can't render wildcard $_")
	}
	if name, isVar := IsVariable(template); isVar {
		v, ok := read.ValueOf(name)
		if !ok {
			return nil, &ErrUnboundVariable{Name: name}
		}
		return v, nil
	}

	switch tv := template.(type) {
	case []Value:
		out := make([]Value, len(tv))
		for i, item := range tv {
			v, err := Render(item, read)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]Value:
		out := make(map[string]Value, len(tv))
		for k, item := range tv {
			v, err := Render(item, read)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return tv, nil
	}
}

// ReadState is the minimal view Render needs of a binding scope: a
// way to look up the Value currently bound to a variable name. Both
// *Scope and *Transaction implement it.
type ReadState interface {
	ValueOf(name string) (Value, bool)
}
