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

// Package mqtt is a proxy.Proxy backed by a real broker connection
// over paho.mqtt.golang: publishing addresses a topic rather than a
// socket, and inbound traffic arrives on a per-address subscription
// and is queued into a buffered channel for TryRecv to drain.
package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/proxy"
)

// DefaultInboxSize bounds how many unconsumed messages a single
// address's subscription will buffer before TryRecv must be called to
// make room.
const DefaultInboxSize = 1024

// Options configures a root Proxy's broker connection.
type Options struct {
	// Broker is a paho server URI, e.g. "tcp://localhost:1883".
	Broker string

	// TopicPrefix namespaces every topic this engine subscribes to or
	// publishes on; addresses are allocated as "<TopicPrefix>/<n>".
	TopicPrefix string

	// ClientID is passed to paho; empty lets the broker assign one.
	ClientID string

	// QoS is used for every Publish and Subscribe this package issues.
	QoS byte

	// ConnectTimeout bounds the initial Connect call.
	ConnectTimeout time.Duration

	// FQN is the registered message type every envelope this engine
	// produces reports, per the MQTT convention of one schema per
	// topic family: a scenario that needs more than one message type
	// over MQTT gives each its own TopicPrefix/engine, the same way it
	// would give each its own broker topic in practice.
	FQN dsl.FQN
}

// frame is the wire envelope every publish carries: the sender's
// address, so a subscriber with no other notion of "who sent this" can
// still satisfy a Recv node's "from" constraint, and the caller's
// payload, JSON-encoded.
type frame struct {
	From dsl.Addr        `json:"from"`
	Body json.RawMessage `json:"body"`
}

type envelope struct {
	from, to dsl.Addr
	body     []byte
	fqn      dsl.FQN
}

func (e envelope) Sender() dsl.Addr              { return e.from }
func (e envelope) Destination() (dsl.Addr, bool) { return e.to, true }
func (e envelope) FQN() dsl.FQN                  { return e.fqn }
func (e envelope) Message() interface{}          { return e.body }
func (e envelope) RequestToken() (proxy.RequestToken, bool) {
	return nil, false
}

var _ proxy.Envelope = envelope{}

// engine is the state every Proxy allocated from one root shares: the
// paho client, the next address to hand out, and one inbox channel per
// subscribed address.
type engine struct {
	opts   Options
	client paho.Client

	nextAddr int64

	mu      sync.Mutex
	inboxes map[dsl.Addr]chan envelope
}

func (e *engine) topic(addr dsl.Addr) string {
	return fmt.Sprintf("%s/%d", e.opts.TopicPrefix, addr)
}

func (e *engine) inbox(addr dsl.Addr) chan envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.inboxes[addr]; ok {
		return ch
	}
	ch := make(chan envelope, DefaultInboxSize)
	e.inboxes[addr] = ch
	return ch
}

func (e *engine) subscribe(addr dsl.Addr) error {
	ch := e.inbox(addr)
	handler := func(_ paho.Client, msg paho.Message) {
		var fr frame
		if err := json.Unmarshal(msg.Payload(), &fr); err != nil {
			return
		}
		select {
		case ch <- envelope{from: fr.From, to: addr, body: fr.Body, fqn: e.opts.FQN}:
		default:
			panic(fmt.Errorf("mqtt: inbox for %s full", e.topic(addr)))
		}
	}
	token := e.client.Subscribe(e.topic(addr), e.opts.QoS, handler)
	token.Wait()
	return token.Error()
}

// Proxy is a live handle on one address's subscription, implementing
// proxy.Proxy.
type Proxy struct {
	eng  *engine
	addr dsl.Addr
}

// NewRoot connects to opts.Broker and returns a Proxy at address 0,
// the root of a new engine; every Subproxy allocated from it (directly
// or transitively) shares the same client connection.
func NewRoot(ctx *dsl.Ctx, opts Options) (*Proxy, error) {
	copts := paho.NewClientOptions().AddBroker(opts.Broker)
	if opts.ClientID != "" {
		copts.SetClientID(opts.ClientID)
	}
	client := paho.NewClient(copts)
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt: connect to %s timed out after %s", opts.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to %s: %w", opts.Broker, err)
	}

	eng := &engine{opts: opts, client: client, inboxes: map[dsl.Addr]chan envelope{}}
	p := &Proxy{eng: eng, addr: 0}
	if err := eng.subscribe(p.addr); err != nil {
		return nil, fmt.Errorf("mqtt: subscribing root: %w", err)
	}
	return p, nil
}

var _ proxy.Proxy = (*Proxy)(nil)

func (p *Proxy) Subproxy(ctx *dsl.Ctx) (proxy.Proxy, error) {
	addr := dsl.Addr(atomic.AddInt64(&p.eng.nextAddr, 1))
	sub := &Proxy{eng: p.eng, addr: addr}
	if err := p.eng.subscribe(addr); err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *Proxy) Addr() dsl.Addr { return p.addr }

// Send publishes to this proxy's own topic; useful when the dummy and
// the actor it talks to share one topic (a broadcast-style fixture).
func (p *Proxy) Send(ctx *dsl.Ctx, msg interface{}) error {
	return p.SendTo(ctx, p.addr, msg)
}

// SendTo JSON-encodes msg, wraps it in a frame naming this proxy as
// sender, and publishes it to dst's topic.
func (p *Proxy) SendTo(ctx *dsl.Ctx, dst dsl.Addr, msg interface{}) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mqtt: encoding payload: %w", err)
	}
	fr := frame{From: p.addr, Body: body}
	bs, err := json.Marshal(fr)
	if err != nil {
		return fmt.Errorf("mqtt: encoding frame: %w", err)
	}
	token := p.eng.client.Publish(p.eng.topic(dst), p.eng.opts.QoS, false, bs)
	token.Wait()
	return token.Error()
}

// TryRecv returns the next queued message addressed to p, if any.
func (p *Proxy) TryRecv(ctx *dsl.Ctx) (proxy.Envelope, bool) {
	select {
	case env := <-p.eng.inbox(p.addr):
		return env, true
	default:
		return nil, false
	}
}

// Sync gives paho's own delivery goroutines a moment to land a message
// published just before this call; paho delivers asynchronously on its
// own goroutines, so there is no queue to flush here the way a local
// transport's Sync would.
func (p *Proxy) Sync(ctx *dsl.Ctx) error {
	t := time.NewTimer(10 * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Close unsubscribes p's own topic. The underlying client connection
// is shared with every other Proxy from the same root and is left
// open; only the root's Close (addr 0) disconnects it.
func (p *Proxy) Close(ctx *dsl.Ctx) error {
	token := p.eng.client.Unsubscribe(p.eng.topic(p.addr))
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}
	if p.addr == 0 {
		p.eng.client.Disconnect(250)
	}
	return nil
}
