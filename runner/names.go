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

package runner

import (
	"fmt"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/graph"
)

// effectiveActor walks a scope's call-site ActorMap chain up to the
// root: a non-root scope's actor name is, in the end, just
// another name for something the root scope (or an ancestor) already
// knows, unless the scenario author left it unmapped at the call
// site, in which case the compiler already warned, and this gives it
// a fresh, scope-qualified identity so it can never collide with a
// same-named actor declared in a sibling scope.
func effectiveActor(g *graph.Graph, scope graph.ScopeID, name dsl.ActorName) dsl.ActorName {
	for {
		info := g.Scopes[scope]
		if info.Parent == nil {
			return name
		}
		outer, mapped := info.ActorMap[name]
		if !mapped {
			return dsl.ActorName(fmt.Sprintf("%s@scope%d", name, scope))
		}
		name = outer
		scope = info.Parent.ParentScope
	}
}

// effectiveDummy is effectiveActor's twin for dummy names. Dummy names
// and actor names share one namespace at runtime (see registry.Dummies,
// which embeds a Registry keyed by dsl.ActorName), so the result is
// cast back to dsl.DummyName purely for readability at call sites.
func effectiveDummy(g *graph.Graph, scope graph.ScopeID, name dsl.DummyName) dsl.DummyName {
	for {
		info := g.Scopes[scope]
		if info.Parent == nil {
			return name
		}
		outer, mapped := info.DummyMap[name]
		if !mapped {
			return dsl.DummyName(fmt.Sprintf("%s@scope%d", name, scope))
		}
		name = outer
		scope = info.Parent.ParentScope
	}
}

// allEffectiveActors/allEffectiveDummies compute the full, flattened
// name set the runtime registries need to be constructed with: one
// entry per actor/dummy declared anywhere in the scope tree, resolved
// to its effective (root-relative or scope-qualified) name.
func allEffectiveActors(g *graph.Graph) []dsl.ActorName {
	seen := map[dsl.ActorName]bool{}
	var out []dsl.ActorName
	for sid, info := range g.Scopes {
		for _, a := range info.Actors {
			eff := effectiveActor(g, graph.ScopeID(sid), a)
			if !seen[eff] {
				seen[eff] = true
				out = append(out, eff)
			}
		}
	}
	return out
}

func allEffectiveDummies(g *graph.Graph) []dsl.ActorName {
	seen := map[dsl.ActorName]bool{}
	var out []dsl.ActorName
	for sid, info := range g.Scopes {
		for _, d := range info.Dummies {
			eff := dsl.ActorName(effectiveDummy(g, graph.ScopeID(sid), d))
			if !seen[eff] {
				seen[eff] = true
				out = append(out, eff)
			}
		}
	}
	return out
}

// mapRead adapts a plain map[string]dsl.Value to dsl.ReadState, used
// to read a Scope's committed bindings without opening a Transaction
// on it.
type mapRead map[string]dsl.Value

func (m mapRead) ValueOf(name string) (dsl.Value, bool) {
	v, ok := m[name]
	return v, ok
}

// mergedRead reads primary first, falling back to secondary: used by
// cross-scope Bind rendering, where the source scope's binding wins
// on a name collision.
type mergedRead struct{ primary, secondary dsl.ReadState }

func (m mergedRead) ValueOf(name string) (dsl.Value, bool) {
	if v, ok := m.primary.ValueOf(name); ok {
		return v, true
	}
	return m.secondary.ValueOf(name)
}
