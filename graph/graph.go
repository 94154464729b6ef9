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

package graph

import "github.com/Comcast/luci/dsl"

// Graph is the compiled, flattened event graph: per-kind
// arenas (plain growing slices, see EventKey), a priority order, a
// required-to-be map, a name map, entry points, and the unblocks
// relation (plus its inverse, Requires, kept explicit rather than
// computed on demand since the report's prerequisite walk runs it
// repeatedly).
type Graph struct {
	Binds    []BindRecord
	Sends    []SendRecord
	Recvs    []RecvRecord
	Responds []RespondRecord
	Delays   []DelayRecord

	Priority map[EventKey]int
	Required map[EventKey]Requirement
	KeyName  map[EventKey]NameInfo

	EntryPoints map[EventKey]bool
	Unblocks    map[EventKey][]EventKey
	Requires    map[EventKey][]EventKey

	Scopes []ScopeInfo

	nextPriority int
}

// NewGraph returns an empty Graph ready for the compiler to populate.
func NewGraph() *Graph {
	return &Graph{
		Priority:    map[EventKey]int{},
		Required:    map[EventKey]Requirement{},
		KeyName:     map[EventKey]NameInfo{},
		EntryPoints: map[EventKey]bool{},
		Unblocks:    map[EventKey][]EventKey{},
		Requires:    map[EventKey][]EventKey{},
	}
}

// NewScope appends a ScopeInfo and returns its id.
func (g *Graph) NewScope(info ScopeInfo) ScopeID {
	g.Scopes = append(g.Scopes, info)
	return ScopeID(len(g.Scopes) - 1)
}

// allocate assigns the next definition-order priority to key and
// records its owning scope/name. Every node-creating helper below
// calls this exactly once per key it mints.
func (g *Graph) allocate(key EventKey, scope ScopeID, name dsl.EventName) {
	g.Priority[key] = g.nextPriority
	g.nextPriority++
	g.KeyName[key] = NameInfo{Scope: scope, Name: name}
}

func (g *Graph) addBind(scope ScopeID, name dsl.EventName, r BindRecord) EventKey {
	key := EventKey{Kind: KindBind, Index: len(g.Binds)}
	g.Binds = append(g.Binds, r)
	g.allocate(key, scope, name)
	return key
}

func (g *Graph) addSend(scope ScopeID, name dsl.EventName, r SendRecord) EventKey {
	key := EventKey{Kind: KindSend, Index: len(g.Sends)}
	g.Sends = append(g.Sends, r)
	g.allocate(key, scope, name)
	return key
}

func (g *Graph) addRecv(scope ScopeID, name dsl.EventName, r RecvRecord) EventKey {
	key := EventKey{Kind: KindRecv, Index: len(g.Recvs)}
	g.Recvs = append(g.Recvs, r)
	g.allocate(key, scope, name)
	return key
}

func (g *Graph) addRespond(scope ScopeID, name dsl.EventName, r RespondRecord) EventKey {
	key := EventKey{Kind: KindRespond, Index: len(g.Responds)}
	g.Responds = append(g.Responds, r)
	g.allocate(key, scope, name)
	return key
}

func (g *Graph) addDelay(scope ScopeID, name dsl.EventName, r DelayRecord) EventKey {
	key := EventKey{Kind: KindDelay, Index: len(g.Delays)}
	g.Delays = append(g.Delays, r)
	g.allocate(key, scope, name)
	return key
}

// unblock records that `from` firing makes `to` a candidate.
func (g *Graph) unblock(from, to EventKey) {
	g.Unblocks[from] = append(g.Unblocks[from], to)
	g.Requires[to] = append(g.Requires[to], from)
}

// markEntryPoint adds key to the entry-points set used to seed a run.
func (g *Graph) markEntryPoint(key EventKey) {
	g.EntryPoints[key] = true
}
