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
	"fmt"

	"github.com/Comcast/luci/dsl"
)

// EventKind tags which per-kind arena an EventKey indexes into.
type EventKind int

const (
	KindBind EventKind = iota
	KindSend
	KindRecv
	KindRespond
	KindDelay
)

func (k EventKind) String() string {
	switch k {
	case KindBind:
		return "bind"
	case KindSend:
		return "send"
	case KindRecv:
		return "recv"
	case KindRespond:
		return "respond"
	case KindDelay:
		return "delay"
	default:
		return "?"
	}
}

// EventKey is a small, comparable, tagged index into one of the
// Graph's per-kind arenas. There is no deletion within a run, so a
// plain growing-slice arena with a monotonic index needs nothing more
// elaborate than this struct: no slotmap generation counter, no
// pointer.
type EventKey struct {
	Kind  EventKind
	Index int
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s#%d", k.Kind, k.Index)
}

// ScopeID identifies one invocation's scope within the compiled
// graph's scope tree.
type ScopeID int

// CallSite records where a non-root scope was invoked from: which
// scope, which call event, and which subroutine. It is a pure lookup
// key, never an ownership pointer.
type CallSite struct {
	ParentScope ScopeID
	EventName   dsl.EventName
	Subroutine  dsl.SubroutineName
}

// ScopeInfo is the per-scope metadata the report's diagnostics walk
// and the interpreter's registry construction need (not the bindings
// themselves, which live in a dsl.Scope managed by the interpreter).
//
// ActorMap/DummyMap are inner-name -> outer-name, as supplied at the
// call site: a name present here is not locally addressable at
// runtime, its resolution/binding forwards to the parent scope under
// the outer name. A declared actor or dummy absent from these maps
// gets its own fresh, scope-local identity, and the compiler warns
// about it.
type ScopeInfo struct {
	Source   string
	Parent   *CallSite
	Actors   []dsl.ActorName
	Dummies  []dsl.DummyName
	ActorMap map[dsl.ActorName]dsl.ActorName
	DummyMap map[dsl.DummyName]dsl.DummyName
}

// NameInfo is an EventKey's declared identity: which scope it belongs
// to and what the scenario author called it.
type NameInfo struct {
	Scope ScopeID
	Name  dsl.EventName
}

// Label renders a short, human-readable description of key, suitable
// as a node label in a trace line or an externally produced graph
// export. Writing a .dot file is the caller's business; the text is
// the only non-trivial piece.
func (g *Graph) Label(key EventKey) string {
	switch key.Kind {
	case KindBind:
		b := g.Binds[key.Index]
		return fmt.Sprintf("bind dst=%s", dsl.JSON(b.Dst))
	case KindSend:
		s := g.Sends[key.Index]
		if s.To != nil {
			return fmt.Sprintf("send '%s' from: %s to: %s", s.FQN, s.From, *s.To)
		}
		return fmt.Sprintf("send '%s' from: %s", s.FQN, s.From)
	case KindRecv:
		r := g.Recvs[key.Index]
		label := fmt.Sprintf("recv '%s'", r.FQN)
		if r.From != nil {
			label += fmt.Sprintf(" from: %s", *r.From)
		}
		if r.To != nil {
			label += fmt.Sprintf(" to: %s", *r.To)
		}
		if len(r.PayloadMatchers) > 0 {
			label += fmt.Sprintf(" data: %s", dsl.JSON(r.PayloadMatchers[0]))
		}
		return label
	case KindRespond:
		r := g.Responds[key.Index]
		return fmt.Sprintf("respond to: %s data: %s", r.ToRequest, dsl.JSON(r.Data))
	case KindDelay:
		d := g.Delays[key.Index]
		return fmt.Sprintf("delay for: %s step: %s", d.For, d.Step)
	default:
		return key.String()
	}
}
