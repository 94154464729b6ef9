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

// Package registry implements the actor and dummy registries: two
// symmetric name<->address tables, each aware of the other's
// exclusion set, so that the same name can never simultaneously be an
// actor and a dummy.
package registry

import (
	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/proxy"
)

// Kind distinguishes which of the two registries a name belongs to,
// used only in error messages.
type Kind string

const (
	KindActor Kind = "actor"
	KindDummy Kind = "dummy"
)

// entry is one name's binding state within a registry.
type entry struct {
	addr  dsl.Addr
	bound bool
}

// Registry is one half of the actor/dummy pair. A Registry never
// refers to its peer directly (see Bind's peer parameter); that keeps
// the two constructions symmetric and lets the interpreter wire them
// together explicitly.
type Registry struct {
	kind     Kind
	byName   map[dsl.ActorName]*entry
	excluded map[dsl.ActorName]bool
}

// New returns an empty Registry of the given kind, with every
// declared name present but unbound.
func New(kind Kind, names []dsl.ActorName) *Registry {
	r := &Registry{kind: kind, byName: map[dsl.ActorName]*entry{}, excluded: map[dsl.ActorName]bool{}}
	for _, n := range names {
		r.byName[n] = &entry{}
	}
	return r
}

// Declared reports whether name was declared in this registry at
// construction time (regardless of exclusion or binding state).
func (r *Registry) Declared(name dsl.ActorName) bool {
	_, ok := r.byName[name]
	return ok
}

// Exclude marks name as belonging to the peer registry; it can no
// longer be bound here.
func (r *Registry) Exclude(name dsl.ActorName) {
	r.excluded[name] = true
}

// CanBind reports whether name can be bound to addr right now: it is
// not excluded, and is either unbound or already bound to addr.
func (r *Registry) CanBind(name dsl.ActorName, addr dsl.Addr) bool {
	if r.excluded[name] {
		return false
	}
	e, ok := r.byName[name]
	if !ok {
		return false
	}
	if !e.bound {
		return true
	}
	return e.addr == addr
}

// Bind atomically binds name to addr in r and excludes name from
// peer, failing if peer already owns name under a different address.
func (r *Registry) Bind(name dsl.ActorName, addr dsl.Addr, peer *Registry) error {
	if !r.CanBind(name, addr) {
		return dsl.Brokenf("registry: %s %q cannot bind to this address", r.kind, name)
	}
	if peer != nil {
		if e, ok := peer.byName[name]; ok && e.bound && e.addr != addr {
			return dsl.Brokenf("registry: %q is already bound as a %s", name, peer.kind)
		}
	}
	r.byName[name].addr = addr
	r.byName[name].bound = true
	if peer != nil {
		peer.Exclude(name)
	}
	return nil
}

// Resolve returns the address bound to name, erroring if name is
// excluded (i.e. belongs to the peer kind) or simply unbound.
func (r *Registry) Resolve(name dsl.ActorName) (dsl.Addr, error) {
	if r.excluded[name] {
		return 0, dsl.Brokenf("registry: %q is not a %s", name, r.kind)
	}
	e, ok := r.byName[name]
	if !ok || !e.bound {
		return 0, dsl.Brokenf("registry: %s %q is unbound", r.kind, name)
	}
	return e.addr, nil
}

// Dummies additionally carries a per-name proxy, lazily allocated on
// first reference via the root proxy's Subproxy.
type Dummies struct {
	*Registry
	root    proxy.Proxy
	proxies map[dsl.ActorName]proxy.Proxy
}

// NewDummies wraps a dummy Registry with lazy subproxy allocation
// rooted at root.
func NewDummies(names []dsl.ActorName, root proxy.Proxy) *Dummies {
	return &Dummies{
		Registry: New(KindDummy, names),
		root:     root,
		proxies:  map[dsl.ActorName]proxy.Proxy{},
	}
}

// ProxyFor returns the live proxy for a dummy name, allocating one on
// first reference.
func (d *Dummies) ProxyFor(ctx *dsl.Ctx, name dsl.ActorName) (proxy.Proxy, error) {
	if p, ok := d.proxies[name]; ok {
		return p, nil
	}
	if !d.Declared(name) {
		return nil, dsl.Brokenf("registry: %q is not a declared dummy", name)
	}
	p, err := d.root.Subproxy(ctx)
	if err != nil {
		return nil, err
	}
	if err := d.Bind(name, p.Addr(), nil); err != nil {
		return nil, err
	}
	d.proxies[name] = p
	return p, nil
}

// All returns every live dummy proxy; iteration order is not
// guaranteed (map iteration). Callers needing allocation-ordered
// iteration track it themselves, the way runner.Interpreter keeps a
// slice alongside.
func (d *Dummies) All() map[dsl.ActorName]proxy.Proxy {
	return d.proxies
}
