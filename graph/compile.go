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

import (
	"time"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/marshal"
)

// SourceProvider is the narrow view the compiler needs of a loaded
// source.Sources collection. It is declared here, not in package
// source, so that graph never imports source (source already imports
// graph for the Scenario type).
type SourceProvider interface {
	RootKey() int
	Lookup(key int) (scenario *Scenario, path string, subroutines map[dsl.SubroutineName]int, ok bool)
}

// Executable is the compiler's final product.
type Executable struct {
	Graph *Graph
	Root  ScopeID
}

// Compile walks sources from its root, recursively compiling every
// subroutine invocation it reaches, and returns the flattened graph.
func Compile(ctx *dsl.Ctx, provider SourceProvider, reg *marshal.Registry) (*Executable, error) {
	c := &builder{
		graph:    NewGraph(),
		provider: provider,
		reg:      reg,
		aliases:  map[ScopeID]map[dsl.MessageName]dsl.FQN{},
	}
	root, _, _, err := c.compileScope(ctx, provider.RootKey(), nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return &Executable{Graph: c.graph, Root: root}, nil
}

type builder struct {
	graph    *Graph
	provider SourceProvider
	reg      *marshal.Registry
	aliases  map[ScopeID]map[dsl.MessageName]dsl.FQN
}

// nodeKeys is an event's head (target of incoming unblocks) and tail
// (source of outgoing unblocks); equal for every kind except Call,
// which expands into a distinct entry (head) and exit (tail) bind.
type nodeKeys struct{ head, tail EventKey }

// compileScope compiles one invocation (root or subroutine) rooted at
// sourceKey, returning its ScopeID, its entry points, and the set of
// its events whose required-to-be is Reached (the caller needs this
// last one to wire an enclosing Call's exit bind).
// actorMap/dummyMap are inner(this scope)->outer(parent scope) name
// mappings taken from the call site, nil for the root scope.
func (c *builder) compileScope(ctx *dsl.Ctx, sourceKey int, parent *CallSite, actorMap map[dsl.ActorName]dsl.ActorName, dummyMap map[dsl.DummyName]dsl.DummyName) (ScopeID, []EventKey, []EventKey, error) {
	scenario, path, subKeys, ok := c.provider.Lookup(sourceKey)
	if !ok {
		return 0, nil, nil, dsl.Brokenf("graph: unknown source key %d", sourceKey)
	}

	scope := c.graph.NewScope(ScopeInfo{Source: path, Parent: parent})
	ctx.Logdf("compiling scope %d (%s)", scope, path)

	aliases := map[dsl.MessageName]dsl.FQN{}
	for _, t := range scenario.Types {
		if _, dup := aliases[t.As]; dup {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: duplicate type alias %q", scope, t.As)
		}
		if _, ok := c.reg.Resolve(t.Use); !ok {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: unknown type %q", scope, t.Use)
		}
		aliases[t.As] = t.Use
	}
	c.aliases[scope] = aliases

	actorSet := map[dsl.ActorName]bool{}
	for _, a := range scenario.Actors {
		if actorSet[a] {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: duplicate actor %q", scope, a)
		}
		actorSet[a] = true
	}
	dummySet := map[dsl.DummyName]bool{}
	for _, d := range scenario.Dummies {
		if dummySet[d] {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: duplicate dummy %q", scope, d)
		}
		if actorSet[dsl.ActorName(d)] {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: %q is declared as both actor and dummy", scope, d)
		}
		dummySet[d] = true
	}
	c.graph.Scopes[scope].Actors = scenario.Actors
	c.graph.Scopes[scope].Dummies = scenario.Dummies
	c.graph.Scopes[scope].ActorMap = actorMap
	c.graph.Scopes[scope].DummyMap = dummyMap

	for inner := range actorMap {
		if !actorSet[inner] {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: call-site mapping names unknown actor %q", scope, inner)
		}
	}
	for inner := range dummyMap {
		if !dummySet[inner] {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: call-site mapping names unknown dummy %q", scope, inner)
		}
	}

	for a := range actorSet {
		if _, mapped := actorMap[a]; !mapped {
			ctx.Warnf("scope %d: actor %q has no call-site mapping; it gets a fresh identity never seen outside this scope", scope, a)
		}
	}
	for d := range dummySet {
		if _, mapped := dummyMap[d]; !mapped {
			ctx.Warnf("scope %d: dummy %q has no call-site mapping; it gets a fresh identity never seen outside this scope", scope, d)
		}
	}

	nodes := map[dsl.EventName]nodeKeys{}
	var entryPoints []EventKey
	var requiredReached []EventKey

	fqn := func(name dsl.MessageName) (dsl.FQN, error) {
		f, ok := aliases[name]
		if !ok {
			return "", dsl.Brokenf("graph: scope %d: unknown type alias %q", scope, name)
		}
		return f, nil
	}

	for _, ev := range scenario.Events {
		if _, dup := nodes[ev.ID]; dup {
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: duplicate event id %q", scope, ev.ID)
		}

		var nk nodeKeys
		switch body := ev.Body.(type) {
		case BindDecl:
			key := c.graph.addBind(scope, ev.ID, BindRecord{DestScope: scope, SrcScope: scope, Name: ev.ID, Dst: body.Dst, Src: body.Src})
			nk = nodeKeys{key, key}

		case RecvDecl:
			f, err := fqn(body.Type)
			if err != nil {
				return 0, nil, nil, err
			}
			if body.From != nil && !actorSet[*body.From] {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: recv from unknown actor %q", scope, *body.From)
			}
			if body.To != nil && !dummySet[*body.To] {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: recv to unknown dummy %q", scope, *body.To)
			}
			matchers := append([]dsl.Value{body.Data}, body.AlsoMatchData...)
			after := time.Duration(0)
			if body.After != nil {
				after = *body.After
			}
			key := c.graph.addRecv(scope, ev.ID, RecvRecord{
				Scope: scope, Name: ev.ID, FQN: f, PayloadMatchers: matchers,
				From: body.From, To: body.To, After: after, Before: body.Before,
			})
			nk = nodeKeys{key, key}

		case SendDecl:
			if !dummySet[body.From] {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: send from unknown dummy %q", scope, body.From)
			}
			if body.To != nil && !actorSet[*body.To] {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: send to unknown actor %q", scope, *body.To)
			}
			f, err := fqn(body.Type)
			if err != nil {
				return 0, nil, nil, err
			}
			key := c.graph.addSend(scope, ev.ID, SendRecord{Scope: scope, Name: ev.ID, FQN: f, From: body.From, To: body.To, Data: body.Data})
			nk = nodeKeys{key, key}

		case RespondDecl:
			if body.From != nil && !dummySet[*body.From] {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: respond from unknown dummy %q", scope, *body.From)
			}
			target, ok := nodes[body.ToRequest]
			if !ok || target.head.Kind != KindRecv {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: respond: %q is not a prior recv in this scope", scope, body.ToRequest)
			}
			recv := c.graph.Recvs[target.head.Index]
			marshaller, ok := c.reg.Resolve(recv.FQN)
			if !ok {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: respond: unknown type %q", scope, recv.FQN)
			}
			if _, isRequest := marshaller.Response(); !isRequest {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: respond: %q is not a request type", scope, recv.FQN)
			}
			key := c.graph.addRespond(scope, ev.ID, RespondRecord{Scope: scope, Name: ev.ID, From: body.From, ToRequest: body.ToRequest, ToRecv: target.head, Data: body.Data})
			nk = nodeKeys{key, key}

		case DelayDecl:
			step := body.Step
			if step == 0 {
				step = DefaultDelayStep
			}
			key := c.graph.addDelay(scope, ev.ID, DelayRecord{Scope: scope, Name: ev.ID, For: body.For, Step: step})
			nk = nodeKeys{key, key}

		case CallDecl:
			childKey, ok := subKeys[body.Sub]
			if !ok {
				return 0, nil, nil, dsl.Brokenf("graph: scope %d: unknown subroutine %q", scope, body.Sub)
			}
			in := body.In
			if in == nil {
				in = &IOBind{Src: dsl.Literal(nil), Dst: nil}
			}
			out := body.Out
			if out == nil {
				out = &IOBind{Src: dsl.Literal(nil), Dst: nil}
			}

			entryKey := c.graph.addBind(scope, ev.ID.WithSuffix("[ENTER SUB]"), BindRecord{
				DestScope: 0, SrcScope: scope, Name: ev.ID.WithSuffix("[ENTER SUB]"), Dst: in.Dst, Src: in.Src,
			})

			innerActors := map[dsl.ActorName]dsl.ActorName{}
			for outer, inner := range body.Actors {
				if !actorSet[outer] {
					return 0, nil, nil, dsl.Brokenf("graph: scope %d: call %q: unknown outer actor %q", scope, ev.ID, outer)
				}
				innerActors[inner] = outer
			}
			innerDummies := map[dsl.DummyName]dsl.DummyName{}
			for outer, inner := range body.Dummies {
				if !dummySet[outer] {
					return 0, nil, nil, dsl.Brokenf("graph: scope %d: call %q: unknown outer dummy %q", scope, ev.ID, outer)
				}
				innerDummies[inner] = outer
			}

			callSite := &CallSite{ParentScope: scope, EventName: ev.ID, Subroutine: body.Sub}
			childScope, childEntry, childReached, err := c.compileScope(ctx, childKey, callSite, innerActors, innerDummies)
			if err != nil {
				return 0, nil, nil, err
			}
			// Retarget the entry bind's destination scope now that the
			// child scope exists, and let it unblock every child entry
			// point.
			c.graph.Binds[entryKey.Index].DestScope = childScope
			for _, ce := range childEntry {
				c.graph.unblock(entryKey, ce)
			}

			exitKey := c.graph.addBind(scope, ev.ID, BindRecord{DestScope: scope, SrcScope: childScope, Name: ev.ID, Dst: out.Dst, Src: out.Src})
			for _, ce := range childReached {
				c.graph.unblock(ce, exitKey)
			}

			nk = nodeKeys{entryKey, exitKey}

		default:
			return 0, nil, nil, dsl.Brokenf("graph: scope %d: event %q: unknown body type", scope, ev.ID)
		}

		nodes[ev.ID] = nk

		if len(ev.HappensAfter) == 0 {
			c.graph.markEntryPoint(nk.head)
			entryPoints = append(entryPoints, nk.head)
		} else {
			for _, depName := range ev.HappensAfter {
				dep, ok := nodes[depName]
				if !ok {
					return 0, nil, nil, dsl.Brokenf("graph: scope %d: event %q: unknown prerequisite %q", scope, ev.ID, depName)
				}
				c.graph.unblock(dep.tail, nk.head)
			}
		}

		if ev.Require != nil {
			c.graph.Required[nk.tail] = *ev.Require
			if *ev.Require == Reached {
				requiredReached = append(requiredReached, nk.tail)
			}
		}
	}

	return scope, entryPoints, requiredReached, nil
}
