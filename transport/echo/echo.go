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

// Package echo is an in-process system-under-test double: every
// message a dummy sends to it comes back as an eliza-computed reply.
// It gives a scenario something to drive without a real transport, so
// the harness's own tests have a live actor to talk to.
package echo

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	eliza "github.com/kennysong/goeliza"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/proxy"
)

// FQN is the message type every envelope this package produces or
// consumes carries: a bare string payload.
const FQN dsl.FQN = "echo.Text"

// envelope is a plain text message, addressed by a small integer.
type envelope struct {
	from dsl.Addr
	to   dsl.Addr
	text string
}

func (e envelope) Sender() dsl.Addr                         { return e.from }
func (e envelope) Destination() (dsl.Addr, bool)            { return e.to, true }
func (e envelope) FQN() dsl.FQN                             { return FQN }
func (e envelope) Message() interface{}                     { return e.text }
func (e envelope) RequestToken() (proxy.RequestToken, bool) { return nil, false }

var _ proxy.Envelope = envelope{}

// engine is the shared state every Proxy allocated from one root
// shares: the next address to hand out, and one inbox per address so a
// reply addressed to a given proxy only shows up on that proxy's
// TryRecv.
type engine struct {
	nextAddr int64
	mu       sync.Mutex
	inboxes  map[dsl.Addr]chan envelope
}

func newEngine() *engine {
	return &engine{inboxes: map[dsl.Addr]chan envelope{}}
}

func (e *engine) allocate() dsl.Addr {
	return dsl.Addr(atomic.AddInt64(&e.nextAddr, 1))
}

func (e *engine) inbox(addr dsl.Addr) chan envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.inboxes[addr]; ok {
		return ch
	}
	ch := make(chan envelope, 1024)
	e.inboxes[addr] = ch
	return ch
}

// Proxy is a live handle on the echo engine, implementing proxy.Proxy.
type Proxy struct {
	eng  *engine
	addr dsl.Addr
}

// NewRoot returns a fresh Proxy at address 0, the root of a new echo
// engine; every Subproxy allocated from it (directly or transitively)
// shares the same engine.
func NewRoot() *Proxy {
	return &Proxy{eng: newEngine(), addr: 0}
}

var _ proxy.Proxy = (*Proxy)(nil)

func (p *Proxy) Subproxy(ctx *dsl.Ctx) (proxy.Proxy, error) {
	return &Proxy{eng: p.eng, addr: p.eng.allocate()}, nil
}

func (p *Proxy) Addr() dsl.Addr { return p.addr }

// Send transmits msg to the engine itself (address 0); the engine
// replies on p's own inbox, per eliza's "fire and reply" shape.
func (p *Proxy) Send(ctx *dsl.Ctx, msg interface{}) error {
	return p.SendTo(ctx, 0, msg)
}

// SendTo transmits msg to dst. The engine computes a reply (ReplyTo)
// and delivers it asynchronously to p's own inbox.
func (p *Proxy) SendTo(ctx *dsl.Ctx, dst dsl.Addr, msg interface{}) error {
	text, ok := msg.(string)
	if !ok {
		return fmt.Errorf("echo: proxy can only send a string payload, got %T", msg)
	}
	reply := eliza.ReplyTo(text)
	go func() {
		select {
		case <-ctx.Done():
		case p.eng.inbox(p.addr) <- envelope{from: dst, to: p.addr, text: reply}:
		}
	}()
	return nil
}

// TryRecv returns the next queued reply, if any.
func (p *Proxy) TryRecv(ctx *dsl.Ctx) (proxy.Envelope, bool) {
	select {
	case env := <-p.eng.inbox(p.addr):
		return env, true
	default:
		return nil, false
	}
}

// Sync gives any in-flight Send's goroutine a chance to land before the
// next TryRecv sweep; a one-millisecond wait is enough since the reply
// goroutine above does no real I/O.
func (p *Proxy) Sync(ctx *dsl.Ctx) error {
	t := time.NewTimer(time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *Proxy) Close(ctx *dsl.Ctx) error { return nil }
