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

package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/fixture"
	"github.com/Comcast/luci/graph"
	"github.com/Comcast/luci/marshal"
	"github.com/Comcast/luci/source"
	"github.com/Comcast/luci/transport/echo"
)

func writeScenario(t *testing.T, dir, name, doc string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
	return p
}

// TestEchoDirected is the basic round trip: a dummy sends a
// message with no explicit destination, then requires a recv of the
// auto-generated reply, grounded on the in-process echo.Proxy double.
func TestEchoDirected(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "root.yaml", `
types:
  - use: echo.Text
    as: Text
dummies:
  - Driver
events:
  - id: greet
    send:
      from: Driver
      type: Text
      data:
        literal: "hi"
  - id: reply
    require: reached
    happens_after: [greet]
    recv:
      type: Text
      data: "$reply"
`)

	reg := marshal.NewRegistry()
	echo.Register(reg)

	ctx := dsl.NewCtx(nil)
	loader := source.NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(ctx, "root.yaml")
	require.NoError(t, err)

	exec, err := graph.Compile(ctx, sources, reg)
	require.NoError(t, err)

	root := echo.NewRoot()
	it := NewInterpreter(exec, reg, root, NewVirtualClock(time.Unix(0, 0)))

	report, err := it.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.IsOK(), "expected every required event to have been reached: %+v", report.Summary())
}

// TestSubroutineCall covers subroutine expansion: the root scenario
// invokes a subroutine, binding a literal in and reading a reply back
// out, across the call-site scope boundary.
func TestSubroutineCall(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "echo_sub.yaml", `
types:
  - use: echo.Text
    as: Text
dummies:
  - Peer
events:
  - id: send_msg
    send:
      from: Peer
      type: Text
      data:
        bind: "$msg"
  - id: recv_reply
    require: reached
    happens_after: [send_msg]
    recv:
      type: Text
      data: "$reply"
`)
	writeScenario(t, dir, "root.yaml", `
subroutines:
  - load: echo_sub.yaml
    as: echo
events:
  - id: call_echo
    call:
      sub: echo
      in:
        src:
          literal: "hi"
        dst: "$msg"
      out:
        src: "$reply"
        dst: "$answer"
`)

	reg := marshal.NewRegistry()
	echo.Register(reg)

	ctx := dsl.NewCtx(nil)
	loader := source.NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(ctx, "root.yaml")
	require.NoError(t, err)

	exec, err := graph.Compile(ctx, sources, reg)
	require.NoError(t, err)

	root := echo.NewRoot()
	it := NewInterpreter(exec, reg, root, NewVirtualClock(time.Unix(0, 0)))

	report, err := it.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.IsOK(), "expected the subroutine's recv to be reached: %+v", report.Summary())

	rootScope := it.scopes[exec.Root]
	answer, ok := rootScope.ValueOf("$answer")
	require.True(t, ok, "expected $answer to be bound in the root scope after the call returns")
	require.NotEmpty(t, answer)
}

// TestRecvTimeoutUnreachedIsOK verifies that a recv which never
// arrives is a recorded outcome, not a fatal error, and that a
// scenario explicitly requiring it to go unreached still passes.
func TestRecvTimeoutUnreachedIsOK(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "root.yaml", `
types:
  - use: echo.Text
    as: Text
dummies:
  - Driver
events:
  - id: never
    require: unreached
    recv:
      type: Text
      data: "$x"
      before: 5ms
`)

	reg := marshal.NewRegistry()
	echo.Register(reg)

	ctx := dsl.NewCtx(nil)
	loader := source.NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(ctx, "root.yaml")
	require.NoError(t, err)

	exec, err := graph.Compile(ctx, sources, reg)
	require.NoError(t, err)

	root := echo.NewRoot()
	start := time.Unix(0, 0)
	clock := NewVirtualClock(start)
	it := NewInterpreter(exec, reg, root, clock)

	report, err := it.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.IsOK(), "a recv that times out while marked unreached should still pass: %+v", report.Summary())
	require.False(t, it.Reached(graph.EventKey{Kind: graph.KindRecv, Index: 0}))

	require.False(t, clock.Now().Before(start.Add(5*time.Millisecond)),
		"the virtual clock should have advanced past the recv's before bound")
	var sawTimeout bool
	for _, rec := range report.Recorder().Records() {
		if rec.Kind == "recv-timeout" {
			sawTimeout = true
		}
	}
	require.True(t, sawTimeout, "expected a recv-timeout record in the trace")
}

// TestConflictingBindStaysUnfired covers bind ordering: a later bind
// whose pattern variable is already committed to a different
// value never fires, and a scenario expecting exactly that passes.
func TestConflictingBindStaysUnfired(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "root.yaml", `
events:
  - id: b1
    require: reached
    bind:
      dst: "$x"
      src:
        literal: 1
  - id: b2
    require: unreached
    happens_after: [b1]
    bind:
      dst: "$x"
      src:
        literal: 2
`)

	reg := marshal.NewRegistry()
	ctx := dsl.NewCtx(nil)
	loader := source.NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(ctx, "root.yaml")
	require.NoError(t, err)

	exec, err := graph.Compile(ctx, sources, reg)
	require.NoError(t, err)

	it := NewInterpreter(exec, reg, echo.NewRoot(), NewVirtualClock(time.Unix(0, 0)))
	report, err := it.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.IsOK(), "b2 was required to stay unreached: %+v", report.Summary())

	v, ok := it.scopes[exec.Root].ValueOf("$x")
	require.True(t, ok, "expected $x committed by b1")
	require.Equal(t, json.Number("1"), v, "b2 must not have overwritten b1's binding")
}

// TestInjectedSendBypassesMarshalling covers injection: a send whose
// msg-source names a pre-built wire value fires it at the
// system untouched, and the scenario observes the system's reaction.
func TestInjectedSendBypassesMarshalling(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "root.yaml", `
types:
  - use: echo.Text
    as: Text
dummies:
  - Driver
events:
  - id: push
    require: reached
    send:
      from: Driver
      type: Text
      data:
        inject: update-config
  - id: confirm
    require: reached
    happens_after: [push]
    recv:
      type: Text
      data: "$v"
`)

	reg := marshal.NewRegistry()
	echo.Register(reg)
	reg.RegisterInjected("update-config", "please reconfigure")

	ctx := dsl.NewCtx(nil)
	loader := source.NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(ctx, "root.yaml")
	require.NoError(t, err)

	exec, err := graph.Compile(ctx, sources, reg)
	require.NoError(t, err)

	it := NewInterpreter(exec, reg, echo.NewRoot(), NewVirtualClock(time.Unix(0, 0)))
	report, err := it.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.IsOK(), "expected the system's reaction to the injected value: %+v", report.Summary())

	v, ok := it.scopes[exec.Root].ValueOf("$v")
	require.True(t, ok, "expected $v bound from the reply")
	require.NotEmpty(t, v)
}

// TestDelayAdvancesVirtualClock verifies that a delay longer than its
// own polling step still completes (each intermediate poll advances
// the clock rather than ending the run) and unblocks its dependants.
func TestDelayAdvancesVirtualClock(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "root.yaml", `
events:
  - id: settle
    require: reached
    delay:
      for: 500ms
  - id: done
    require: reached
    happens_after: [settle]
    bind:
      dst: "$done"
      src:
        literal: true
`)

	reg := marshal.NewRegistry()
	ctx := dsl.NewCtx(nil)
	loader := source.NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(ctx, "root.yaml")
	require.NoError(t, err)

	exec, err := graph.Compile(ctx, sources, reg)
	require.NoError(t, err)

	start := time.Unix(0, 0)
	clock := NewVirtualClock(start)
	it := NewInterpreter(exec, reg, echo.NewRoot(), clock)
	report, err := it.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.IsOK(), "%+v", report.Summary())

	require.False(t, clock.Now().Before(start.Add(500*time.Millisecond)),
		"the virtual clock should have advanced through the whole delay")
	v, ok := it.scopes[exec.Root].ValueOf("$done")
	require.True(t, ok, "expected the dependent bind to have fired after the delay")
	require.Equal(t, true, v)
}
