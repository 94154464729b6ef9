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

// Addr is an opaque, comparable address for an entity in the system
// under test, as learned from an observed envelope or allocated for
// a dummy's subproxy.
type Addr uint64

// biMap is a small two-way map between actor names and addresses.
type biMap struct {
	byName map[ActorName]Addr
	byAddr map[Addr]ActorName
}

func newBiMap() biMap {
	return biMap{byName: map[ActorName]Addr{}, byAddr: map[Addr]ActorName{}}
}

func (m *biMap) addrOf(name ActorName) (Addr, bool) {
	a, ok := m.byName[name]
	return a, ok
}

func (m *biMap) nameOf(addr Addr) (ActorName, bool) {
	n, ok := m.byAddr[addr]
	return n, ok
}

// insert adds name<->addr if neither side is already known, and
// returns whether the pair is (now) consistent: either newly added,
// or exactly matching an existing pair.
func (m *biMap) insert(name ActorName, addr Addr) bool {
	if existingAddr, ok := m.byName[name]; ok {
		return existingAddr == addr
	}
	if existingName, ok := m.byAddr[addr]; ok {
		return existingName == name
	}
	m.byName[name] = addr
	m.byAddr[addr] = name
	return true
}

// Scope owns a variable scope and an actor name<->address scope.
// Reads and writes go through a Transaction (Scope.Txn), never
// directly, so that a failed match never leaves partial bindings
// behind.
type Scope struct {
	values map[string]Value
	actors biMap
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{values: map[string]Value{}, actors: newBiMap()}
}

// ValueOf implements ReadState directly against committed state, with
// no pending layer; most callers should go through a Transaction
// instead so that in-flight matches can see their own staged binds.
func (s *Scope) ValueOf(name string) (Value, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Committed returns a snapshot of the committed variable bindings,
// for use by callers (e.g. cross-scope bind rendering) that need to
// read two scopes' committed state at once without starting a
// transaction on either.
func (s *Scope) Committed() map[string]Value {
	out := make(map[string]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Txn opens a Transaction layering pending additions on top of s.
func (s *Scope) Txn() *Transaction {
	return &Transaction{
		scope:      s,
		pendValues: map[string]Value{},
		pendActors: newBiMap(),
	}
}

// Transaction layers pending variable and actor bindings on top of a
// Scope. Reads see pending union committed, with pending taking
// precedence (it is always more recent). Commit merges pending into
// the scope; a Transaction that is simply dropped without Commit
// leaves the Scope untouched.
type Transaction struct {
	scope      *Scope
	pendValues map[string]Value
	pendActors biMap
}

var _ ReadState = (*Transaction)(nil)

// ValueOf implements ReadState: pending bindings shadow committed
// ones.
func (t *Transaction) ValueOf(name string) (Value, bool) {
	if v, ok := t.pendValues[name]; ok {
		return v, true
	}
	return t.scope.ValueOf(name)
}

// SetValue stages name<-value if name is unbound (committed or
// pending), or confirms the match if name already resolves to an
// equal value. It never contradicts an existing binding: if name is
// already bound to something else, SetValue returns false and leaves
// the transaction unchanged for that key.
func (t *Transaction) SetValue(name string, value Value) bool {
	if existing, ok := t.ValueOf(name); ok {
		return ValueEqual(existing, value)
	}
	t.pendValues[name] = value
	return true
}

// AddrOf resolves an actor name to its address, reading pending then
// committed state.
func (t *Transaction) AddrOf(name ActorName) (Addr, bool) {
	if a, ok := t.pendActors.addrOf(name); ok {
		return a, true
	}
	return t.scope.actors.addrOf(name)
}

// NameOf resolves an address to its actor name, reading pending then
// committed state.
func (t *Transaction) NameOf(addr Addr) (ActorName, bool) {
	if n, ok := t.pendActors.nameOf(addr); ok {
		return n, true
	}
	return t.scope.actors.nameOf(addr)
}

// NameActor stages name<->addr, refusing (returning false) if either
// side already resolves to a different partner anywhere in pending or
// committed state; the scope's two-way map never learns a
// conflicting binding inside a transaction.
func (t *Transaction) NameActor(name ActorName, addr Addr) bool {
	if existingName, ok := t.NameOf(addr); ok {
		return existingName == name
	}
	if existingAddr, ok := t.AddrOf(name); ok {
		return existingAddr == addr
	}
	return t.pendActors.insert(name, addr)
}

// Commit merges all pending additions into the underlying Scope.
func (t *Transaction) Commit() {
	for k, v := range t.pendValues {
		t.scope.values[k] = v
	}
	for name, addr := range t.pendActors.byName {
		t.scope.actors.insert(name, addr)
	}
}
