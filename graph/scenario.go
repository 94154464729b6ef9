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

// Package graph is the event graph compiler: it turns a parsed
// Scenario tree (handed to it by the source loader) into an
// Executable, a flattened, arena-backed graph of typed event keys
// with a priority order and an unblocks relation.
package graph

import (
	"time"

	"github.com/Comcast/luci/dsl"
)

// Scenario is the in-memory, already-parsed form of one scenario
// document. The core deals only in this shape; see the fixture
// package for the yaml.v3 deserializer that builds one.
type Scenario struct {
	Types       []TypeAlias
	Subroutines []SubroutineRef
	Actors      []dsl.ActorName
	Dummies     []dsl.DummyName
	Events      []EventDecl
}

// TypeAlias is one `types:` entry: `use X as Y`.
type TypeAlias struct {
	Use dsl.FQN
	As  dsl.MessageName
}

// SubroutineRef is one `subroutines:` entry: `load <path> as <name>`.
type SubroutineRef struct {
	Load string
	As   dsl.SubroutineName
}

// Requirement is a per-event expectation: Reached or Unreached.
type Requirement int

const (
	Reached Requirement = iota
	Unreached
)

func (r Requirement) String() string {
	if r == Reached {
		return "reached"
	}
	return "unreached"
}

// EventDecl is one entry of the `events:` list: an id, an optional
// requirement, prerequisite ids, and exactly one kind-specific body.
type EventDecl struct {
	ID           dsl.EventName
	Require      *Requirement
	HappensAfter []dsl.EventName
	Body         EventBody
}

// EventBody is the tagged union of the six event kinds a scenario may
// declare. Each concrete type below implements it as a marker.
type EventBody interface {
	isEventBody()
}

type BindDecl struct {
	Dst dsl.Value
	Src dsl.Msg
}

type RecvDecl struct {
	Type          dsl.MessageName
	Data          dsl.Value
	AlsoMatchData []dsl.Value
	From          *dsl.ActorName
	To            *dsl.DummyName
	After         *time.Duration
	Before        *time.Duration
}

type SendDecl struct {
	From dsl.DummyName
	To   *dsl.ActorName
	Type dsl.MessageName
	Data dsl.Msg
}

type RespondDecl struct {
	From      *dsl.DummyName
	ToRequest dsl.EventName
	Data      dsl.Value
}

// DefaultDelayStep is the timer resolution a delay uses when `step`
// is not specified.
const DefaultDelayStep = 25 * time.Millisecond

type DelayDecl struct {
	For  time.Duration
	Step time.Duration
}

// IOBind is the `in`/`out` mapping of a `call` event.
type IOBind struct {
	Src dsl.Msg
	Dst dsl.Value
}

type CallDecl struct {
	Sub     dsl.SubroutineName
	In      *IOBind
	Out     *IOBind
	Actors  map[dsl.ActorName]dsl.ActorName
	Dummies map[dsl.DummyName]dsl.DummyName
}

func (BindDecl) isEventBody()    {}
func (RecvDecl) isEventBody()    {}
func (SendDecl) isEventBody()    {}
func (RespondDecl) isEventBody() {}
func (DelayDecl) isEventBody()   {}
func (CallDecl) isEventBody()    {}
