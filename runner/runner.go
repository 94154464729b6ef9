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

// Package runner is the interpreter: it drives a compiled
// graph.Executable forward against a live system under test, one
// "ready event class" at a time, mutating bindings, actor/dummy
// registries, and the timer wheel as events fire, until the ready set
// is empty or a step makes zero progress.
package runner

import (
	"sort"
	"time"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/graph"
	"github.com/Comcast/luci/marshal"
	"github.com/Comcast/luci/proxy"
	"github.com/Comcast/luci/record"
	"github.com/Comcast/luci/registry"
	"github.com/Comcast/luci/timer"
)

// firedEvent is one key an interpreter step actually fired, with
// Reached distinguishing "this genuinely happened" from "this was
// withdrawn for dependency-propagation purposes only" (a required-
// Unreached recv timing out; see fireRecvOrDelay).
type firedEvent struct {
	Key     graph.EventKey
	Reached bool
}

// Interpreter holds every piece of mutable run state: per-scope
// binding scopes, the actor/dummy registries, the proxy table, the
// timer wheel, and the ready/outstanding-prerequisite bookkeeping.
// It is single-threaded: Run must not be called concurrently with
// itself or with any other method.
type Interpreter struct {
	graph *graph.Graph
	reg   *marshal.Registry
	clock Clock

	scopes []*dsl.Scope

	actors  *registry.Registry
	dummies *registry.Dummies

	rootProxy  proxy.Proxy
	proxyOrder []proxy.Proxy
	proxySeen  map[dsl.ActorName]bool

	wheel    *timer.Wheel
	recorder *record.Recorder

	readySet    map[graph.EventKey]bool
	outstanding map[graph.EventKey]map[graph.EventKey]bool
	reached     map[graph.EventKey]bool
	envelopes   map[graph.EventKey]proxy.Envelope
}

// NewInterpreter builds an Interpreter ready to Run exec against
// rootProxy (the system-under-test's own handle, always first in
// polling order), using clock as the virtual clock and reg to
// marshal/unmarshal every message the scenario's events reference.
func NewInterpreter(exec *graph.Executable, reg *marshal.Registry, rootProxy proxy.Proxy, clock Clock) *Interpreter {
	g := exec.Graph
	scopes := make([]*dsl.Scope, len(g.Scopes))
	for i := range scopes {
		scopes[i] = dsl.NewScope()
	}

	it := &Interpreter{
		graph:       g,
		reg:         reg,
		clock:       clock,
		scopes:      scopes,
		actors:      registry.New(registry.KindActor, allEffectiveActors(g)),
		dummies:     registry.NewDummies(allEffectiveDummies(g), rootProxy),
		rootProxy:   rootProxy,
		proxyOrder:  []proxy.Proxy{rootProxy},
		proxySeen:   map[dsl.ActorName]bool{},
		wheel:       timer.New(),
		recorder:    record.NewRecorder(time.Now(), clock.Now()),
		readySet:    map[graph.EventKey]bool{},
		outstanding: map[graph.EventKey]map[graph.EventKey]bool{},
		reached:     map[graph.EventKey]bool{},
		envelopes:   map[graph.EventKey]proxy.Envelope{},
	}

	for dep, reqs := range g.Requires {
		set := make(map[graph.EventKey]bool, len(reqs))
		for _, r := range reqs {
			set[r] = true
		}
		it.outstanding[dep] = set
	}

	now := clock.Now()
	for k := range g.EntryPoints {
		it.readySet[k] = true
		it.seedTimer(k, now)
	}

	return it
}

// seedTimer registers a newly-ready Recv or Delay key with the timer
// wheel; other kinds are no-ops. A recv's after/before window starts
// at the instant it became ready.
func (it *Interpreter) seedTimer(key graph.EventKey, now time.Time) {
	switch key.Kind {
	case graph.KindDelay:
		d := it.graph.Delays[key.Index]
		it.wheel.InsertDelay(key, now, d.For, d.Step)
	case graph.KindRecv:
		r := it.graph.Recvs[key.Index]
		it.wheel.InsertRecv(key, now, r.After, r.Before)
	}
}

// Run drives the graph to completion: it stops when the ready set is
// empty, or when a step made zero progress. Advancing the
// virtual clock toward a still-pending schedule deadline counts as
// progress even when nothing fired at the wake-up instant: a delay
// longer than its own step, or a recv timeout longer than its
// resolution, takes several intermediate polls to reach.
func (it *Interpreter) Run(ctx *dsl.Ctx) (*record.Report, error) {
	for {
		fired, progressed, err := it.step(ctx)
		if err != nil {
			return nil, err
		}
		if len(fired) == 0 {
			if progressed {
				continue
			}
			ctx.Logdf("no event class can make progress, stopping")
			break
		}
		keys := make([]graph.EventKey, 0, len(fired))
		for _, fe := range fired {
			keys = append(keys, fe.Key)
			if fe.Reached {
				it.reached[fe.Key] = true
			}
		}
		it.propagateUnblocks(keys)
	}
	return record.NewReport(it.graph, it.reached, it.recorder), nil
}

// step tries the ready event classes in order (Bind, then
// Send/Respond by priority, then RecvOrDelay) until one fires. A Bind
// class whose every candidate fails to unify falls through to the
// next class: those binds stay ready, and may succeed after a later
// recv commits the variables they need.
func (it *Interpreter) step(ctx *dsl.Ctx) ([]firedEvent, bool, error) {
	if it.anyReady(graph.KindBind) {
		fired, err := it.fireBinds(ctx)
		if err != nil || len(fired) > 0 {
			return fired, true, err
		}
	}
	if key, ok := it.nextSendOrRespond(); ok {
		var fired []firedEvent
		var err error
		if key.Kind == graph.KindSend {
			fired, err = it.fireSend(ctx, key)
		} else {
			fired, err = it.fireRespond(ctx, key)
		}
		return fired, true, err
	}
	if it.anyReady(graph.KindRecv) || it.anyReady(graph.KindDelay) {
		return it.fireRecvOrDelay(ctx)
	}
	return nil, false, nil
}

func (it *Interpreter) anyReady(kind graph.EventKind) bool {
	for k := range it.readySet {
		if k.Kind == kind {
			return true
		}
	}
	return false
}

func (it *Interpreter) readyOfKind(kind graph.EventKind) []graph.EventKey {
	var out []graph.EventKey
	for k := range it.readySet {
		if k.Kind == kind {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return it.graph.Priority[out[i]] < it.graph.Priority[out[j]] })
	return out
}

func (it *Interpreter) nextSendOrRespond() (graph.EventKey, bool) {
	var cands []graph.EventKey
	for k := range it.readySet {
		if k.Kind == graph.KindSend || k.Kind == graph.KindRespond {
			cands = append(cands, k)
		}
	}
	if len(cands) == 0 {
		return graph.EventKey{}, false
	}
	sort.Slice(cands, func(i, j int) bool { return it.graph.Priority[cands[i]] < it.graph.Priority[cands[j]] })
	return cands[0], true
}

// propagateUnblocks decrements the outstanding-prerequisite counter of
// every dependant of every key in fired, promoting any that reach zero
// into the ready set and seeding the timer wheel for Recv/Delay kinds.
func (it *Interpreter) propagateUnblocks(fired []graph.EventKey) {
	now := it.clock.Now()
	for _, k := range fired {
		for _, dep := range it.graph.Unblocks[k] {
			set := it.outstanding[dep]
			delete(set, k)
			if len(set) == 0 {
				delete(it.outstanding, dep)
				it.readySet[dep] = true
				it.seedTimer(dep, now)
			}
		}
	}
}

// --- Bind class --------------------------------------------------------

func (it *Interpreter) fireBinds(ctx *dsl.Ctx) ([]firedEvent, error) {
	var fired []firedEvent
	for _, key := range it.readyOfKind(graph.KindBind) {
		rec := it.graph.Binds[key.Index]

		src := it.scopes[rec.SrcScope]
		dst := it.scopes[rec.DestScope]
		var read dsl.ReadState = src
		if rec.SrcScope != rec.DestScope {
			read = mergedRead{primary: mapRead(src.Committed()), secondary: mapRead(dst.Committed())}
		}

		value, err := rec.Src.Resolve(read)
		if err != nil {
			if _, unbound := err.(*dsl.ErrUnboundVariable); unbound {
				ctx.Inddf("bind %s: %v, staying ready", rec.Name, err)
				continue
			}
			return nil, err
		}

		txn := dst.Txn()
		if !dsl.BindToPattern(value, rec.Dst, txn) {
			ctx.Inddf("bind %s: pattern did not match, staying ready", rec.Name)
			continue
		}
		txn.Commit()

		delete(it.readySet, key)
		it.record(ctx, "bind", key, map[string]dsl.Value{"value": value})
		fired = append(fired, firedEvent{Key: key, Reached: true})
	}
	return fired, nil
}

// --- Send class ---------------------------------------------------------

func (it *Interpreter) fireSend(ctx *dsl.Ctx, key graph.EventKey) ([]firedEvent, error) {
	rec := it.graph.Sends[key.Index]
	scope := it.scopes[rec.Scope]

	var toAddr dsl.Addr
	directed := false
	if rec.To != nil {
		addr, err := it.actors.Resolve(effectiveActor(it.graph, rec.Scope, *rec.To))
		if err != nil {
			return nil, err
		}
		toAddr, directed = addr, true
	}

	p, err := it.dummyProxy(ctx, dsl.ActorName(effectiveDummy(it.graph, rec.Scope, rec.From)))
	if err != nil {
		return nil, err
	}

	wire, err := it.reg.Marshal(rec.FQN, scope, rec.Data)
	if err != nil {
		return nil, err
	}

	if directed {
		err = p.SendTo(ctx, toAddr, wire)
	} else {
		err = p.Send(ctx, wire)
	}
	if err != nil {
		return nil, err
	}

	delete(it.readySet, key)
	it.record(ctx, "send", key, map[string]dsl.Value{"fqn": string(rec.FQN)})
	return []firedEvent{{Key: key, Reached: true}}, nil
}

// dummyProxy resolves (lazily allocating) the proxy for a dummy name,
// and tracks first-seen order so fireRecvOrDelay can poll proxies in
// allocation order, since registry.Dummies.All() itself makes no
// ordering promise.
func (it *Interpreter) dummyProxy(ctx *dsl.Ctx, name dsl.ActorName) (proxy.Proxy, error) {
	p, err := it.dummies.ProxyFor(ctx, name)
	if err != nil {
		return nil, err
	}
	if !it.proxySeen[name] {
		it.proxySeen[name] = true
		it.proxyOrder = append(it.proxyOrder, p)
		it.actors.Exclude(name)
	}
	return p, nil
}

// --- Respond class --------------------------------------------------------

func (it *Interpreter) fireRespond(ctx *dsl.Ctx, key graph.EventKey) ([]firedEvent, error) {
	rec := it.graph.Responds[key.Index]
	scope := it.scopes[rec.Scope]

	env, ok := it.envelopes[rec.ToRecv]
	if !ok {
		return nil, dsl.Brokenf("runner: respond %q: no pending request envelope", rec.Name)
	}
	token, ok := env.RequestToken()
	if !ok {
		return nil, dsl.Brokenf("runner: respond %q: matched envelope carries no request", rec.Name)
	}
	delete(it.envelopes, rec.ToRecv)

	p := it.rootProxy
	if rec.From != nil {
		var err error
		p, err = it.dummyProxy(ctx, dsl.ActorName(effectiveDummy(it.graph, rec.Scope, *rec.From)))
		if err != nil {
			return nil, err
		}
	}

	recv := it.graph.Recvs[rec.ToRecv.Index]
	if err := it.reg.Respond(ctx, p, recv.FQN, token.Duplicate(), scope, rec.Data); err != nil {
		return nil, err
	}

	delete(it.readySet, key)
	it.record(ctx, "respond", key, nil)
	return []firedEvent{{Key: key, Reached: true}}, nil
}

// --- RecvOrDelay class ----------------------------------------------------

func (it *Interpreter) fireRecvOrDelay(ctx *dsl.Ctx) ([]firedEvent, bool, error) {
	for _, p := range it.proxyOrder {
		if err := p.Sync(ctx); err != nil {
			return nil, false, err
		}
	}

	recvKeys := it.readyOfKind(graph.KindRecv)

	var fired []firedEvent
	for _, p := range it.proxyOrder {
		env, ok := p.TryRecv(ctx)
		if !ok {
			continue
		}
		for _, rk := range recvKeys {
			if !it.readySet[rk] {
				continue // already matched by an earlier envelope this sweep
			}
			if it.tryMatchRecv(ctx, rk, env) {
				fired = append(fired, firedEvent{Key: rk, Reached: true})
				break
			}
		}
	}

	if len(fired) > 0 {
		return fired, true, nil
	}

	// Sleeping only helps if something will eventually ripen: a
	// resolution entry alone (a recv with no `before`) sets how often
	// to re-poll while waiting, but never produces a wake-up of its
	// own, and under the virtual clock no new envelope arrives unless
	// some other event fires first.
	if !it.wheel.HasDeadline() {
		return nil, false, nil
	}
	next, ok := it.wheel.NextSleepUntil(it.clock.Now())
	if !ok {
		return nil, false, nil
	}
	if err := it.clock.SleepUntil(ctx, next); err != nil {
		return nil, false, err
	}

	for _, rk := range it.wheel.SelectRipeKeys(it.clock.Now()) {
		switch rk.Kind {
		case graph.KindDelay:
			delete(it.readySet, rk)
			it.record(ctx, "delay", rk, nil)
			fired = append(fired, firedEvent{Key: rk, Reached: true})
		case graph.KindRecv:
			if it.graph.Required[rk] == graph.Unreached {
				delete(it.readySet, rk)
				it.record(ctx, "recv-timeout", rk, nil)
				fired = append(fired, firedEvent{Key: rk, Reached: false})
			} else {
				// Required to be Reached (or unspecified): the window
				// closed but the scenario still wants a match, so the
				// recv stays a live candidate for a late envelope
				// rather than being abandoned at the first sweep.
				ctx.Inddf("recv %s: before elapsed, staying ready", it.graph.KeyName[rk].Name)
			}
		}
	}
	return fired, true, nil
}

// tryMatchRecv attempts to match env against the Recv node at rk,
// committing bindings and consuming the envelope only on full success;
// it returns false (leaving rk ready and the envelope available to the
// next candidate) for every kind of mismatch.
func (it *Interpreter) tryMatchRecv(ctx *dsl.Ctx, rk graph.EventKey, env proxy.Envelope) bool {
	rec := it.graph.Recvs[rk.Index]

	if env.FQN() != rec.FQN {
		return false
	}
	if rec.From != nil {
		if !it.actors.CanBind(effectiveActor(it.graph, rec.Scope, *rec.From), env.Sender()) {
			return false
		}
	}
	if rec.To != nil {
		dst, ok := env.Destination()
		if !ok {
			return false
		}
		if !it.dummies.CanBind(dsl.ActorName(effectiveDummy(it.graph, rec.Scope, *rec.To)), dst) {
			return false
		}
	}

	kv, ok := it.reg.Bind(env, rec.PayloadMatchers)
	if !ok {
		return false
	}

	scope := it.scopes[rec.Scope]
	txn := scope.Txn()
	for k, v := range kv {
		if !txn.SetValue(k, v) {
			return false
		}
	}

	validFrom, hadTimer := it.wheel.RemoveRecvByKey(rk)
	if hadTimer && it.clock.Now().Before(validFrom.Add(rec.After)) {
		// Premature per `after`: this envelope does not count as a
		// match for this recv. Re-arm the same window so a later
		// envelope (or the eventual timeout) can still observe it.
		it.wheel.InsertRecv(rk, validFrom, rec.After, rec.Before)
		return false
	}

	if rec.From != nil {
		name := effectiveActor(it.graph, rec.Scope, *rec.From)
		if err := it.actors.Bind(name, env.Sender(), it.dummies.Registry); err != nil {
			return false
		}
	}

	txn.Commit()
	it.envelopes[rk] = env
	delete(it.readySet, rk)
	it.record(ctx, "recv", rk, map[string]dsl.Value(kv))
	return true
}

// record appends a record under the root, stamped with the real wall
// clock and the interpreter's virtual clock.
func (it *Interpreter) record(ctx *dsl.Ctx, kind string, key graph.EventKey, data dsl.Value) {
	k := key
	it.recorder.Append(record.Root, kind, &k, data, time.Now(), it.clock.Now())
	ctx.Logdf("%s: %s", kind, it.graph.Label(key))
}

// Reached reports whether key has fired during the run so far.
func (it *Interpreter) Reached(key graph.EventKey) bool { return it.reached[key] }

// Close releases every proxy this interpreter allocated, root included.
// A run that returns early (a fatal error mid-Run) still leaves the
// proxies it opened for Close to clean up.
func (it *Interpreter) Close(ctx *dsl.Ctx) error {
	var first error
	for _, p := range it.proxyOrder {
		if err := p.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
