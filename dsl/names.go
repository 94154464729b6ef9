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

// Package dsl holds the identifiers, value patterns, and binding
// scopes that every other package in this module builds on: the
// "core" vocabulary of a scenario, independent of how a scenario
// reached us (YAML, a test fixture, ...) and independent of how it
// will be executed.
package dsl

// ActorName, DummyName, EventName, MessageName and SubroutineName are
// all distinct nominal string types. They are deliberately not
// interchangeable: a function that wants an ActorName should not
// silently accept an EventName, even though both are strings under
// the hood.
type (
	ActorName      string
	DummyName      string
	EventName      string
	MessageName    string
	SubroutineName string

	// FQN is a fully-qualified message type name, as used by the
	// marshalling registry to key its tagged dispatch.
	FQN string
)

// WithSuffix returns a new EventName with the given suffix appended,
// used when naming the synthetic entry-bind of an expanded
// subroutine call (see the compiler's "[ENTER SUB]" bind).
func (n EventName) WithSuffix(suffix string) EventName {
	return EventName(string(n) + suffix)
}
