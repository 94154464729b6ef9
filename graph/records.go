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
)

// BindRecord is a compiled Bind node. For an ordinary bind, SrcScope
// equals DestScope. For a subroutine's entry/exit bridging binds (see
// Call expansion), they differ: the renderer reads src from SrcScope
// and stages new bindings into DestScope.
type BindRecord struct {
	DestScope ScopeID
	SrcScope  ScopeID
	Name      dsl.EventName
	Dst       dsl.Value
	Src       dsl.Msg
}

type RecvRecord struct {
	Scope           ScopeID
	Name            dsl.EventName
	FQN             dsl.FQN
	PayloadMatchers []dsl.Value
	From            *dsl.ActorName
	To              *dsl.DummyName
	After           time.Duration
	Before          *time.Duration
}

type SendRecord struct {
	Scope ScopeID
	Name  dsl.EventName
	FQN   dsl.FQN
	From  dsl.DummyName
	To    *dsl.ActorName
	Data  dsl.Msg
}

type RespondRecord struct {
	Scope     ScopeID
	Name      dsl.EventName
	From      *dsl.DummyName
	ToRequest dsl.EventName
	ToRecv    EventKey
	Data      dsl.Value
}

type DelayRecord struct {
	Scope ScopeID
	Name  dsl.EventName
	For   time.Duration
	Step  time.Duration
}
