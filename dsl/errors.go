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

import "fmt"

// Broken wraps an error to mean "this run cannot continue": a load
// error, a build error, or a run error per the three taxonomies in
// the specification. Non-fatal conditions (a bind that fails to
// unify, a recv that times out) are never wrapped in Broken: they
// are plain outcomes recorded by the caller, not errors.
type Broken struct {
	Err error
}

func (b *Broken) Error() string { return b.Err.Error() }
func (b *Broken) Unwrap() error { return b.Err }

// NewBroken wraps err as a Broken, unless it already is one.
func NewBroken(err error) error {
	if err == nil {
		return nil
	}
	if b, is := IsBroken(err); is {
		return b
	}
	return &Broken{Err: err}
}

// Brokenf is a convenience constructor mirroring fmt.Errorf.
func Brokenf(format string, args ...interface{}) error {
	return &Broken{Err: fmt.Errorf(format, args...)}
}

// IsBroken reports whether err itself is a *Broken, returning it. An
// error that merely wraps a Broken is not unwrapped.
func IsBroken(err error) (*Broken, bool) {
	b, is := err.(*Broken)
	return b, is
}
