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

// Package fixture is the YAML-backed scenario parser: it turns a
// scenario document's text into the graph.Scenario tree the compiler
// consumes. A one-of event body is a struct with one pointer field
// per kind, exactly one of which may be set, decoded by
// gopkg.in/yaml.v3.
package fixture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/graph"
)

// jsonRoundTrip re-encodes a plain Go value (as produced by
// yaml.Node.Decode, which yields map[string]interface{}/
// []interface{}/string/bool/int/float64/...) through encoding/json and
// back via dsl.ParseValue, so that a YAML-sourced number lands in a
// Value tree the same way a JSON-sourced one would (as a json.Number,
// not a float64).
func jsonRoundTrip(raw interface{}) (dsl.Value, error) {
	bs, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	return dsl.ParseValue(bs)
}

// Parse is a source.Parser backed by yaml.v3. Unknown keys anywhere
// in the document are an error.
func Parse(data []byte) (*graph.Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var y yamlScenario
	if err := dec.Decode(&y); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("fixture: %w", err)
	}
	return y.toScenario()
}

type yamlScenario struct {
	Types       []yamlTypeAlias `yaml:"types,omitempty"`
	Subroutines []yamlSubRef    `yaml:"subroutines,omitempty"`
	Actors      []string        `yaml:"actors,omitempty"`
	Dummies     []string        `yaml:"dummies,omitempty"`
	Events      []yamlEvent     `yaml:"events"`
}

type yamlTypeAlias struct {
	Use string `yaml:"use"`
	As  string `yaml:"as"`
}

type yamlSubRef struct {
	Load string `yaml:"load"`
	As   string `yaml:"as"`
}

type yamlEvent struct {
	ID           string   `yaml:"id"`
	Require      string   `yaml:"require,omitempty"`
	HappensAfter []string `yaml:"happens_after,omitempty"`

	Bind    *yamlBind    `yaml:"bind,omitempty"`
	Recv    *yamlRecv    `yaml:"recv,omitempty"`
	Send    *yamlSend    `yaml:"send,omitempty"`
	Respond *yamlRespond `yaml:"respond,omitempty"`
	Delay   *yamlDelay   `yaml:"delay,omitempty"`
	Call    *yamlCall    `yaml:"call,omitempty"`
}

type yamlMsg struct {
	Literal *yaml.Node `yaml:"literal,omitempty"`
	Bind    *yaml.Node `yaml:"bind,omitempty"`
	Inject  *string    `yaml:"inject,omitempty"`
}

// UnmarshalYAML reads a {literal|bind|inject: ...} mapping, rejecting
// unknown keys, or takes a bare value as shorthand for {bind: <value>}.
// Each value is kept as the *yaml.Node the decoder hands over.
func (m *yamlMsg) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		m.Bind = n
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		switch key, val := n.Content[i].Value, n.Content[i+1]; key {
		case "literal":
			m.Literal = val
		case "bind":
			m.Bind = val
		case "inject":
			m.Inject = &val.Value
		default:
			return fmt.Errorf("fixture: line %d: unknown msg-source key %q", n.Content[i].Line, key)
		}
	}
	return nil
}

func (m yamlMsg) toMsg() (dsl.Msg, error) {
	switch {
	case m.Literal != nil:
		v, err := nodeToValue(m.Literal)
		if err != nil {
			return dsl.Msg{}, err
		}
		return dsl.Literal(v), nil
	case m.Bind != nil:
		v, err := nodeToValue(m.Bind)
		if err != nil {
			return dsl.Msg{}, err
		}
		return dsl.BindTemplate(v), nil
	case m.Inject != nil:
		return dsl.Inject(*m.Inject), nil
	default:
		return dsl.Msg{}, fmt.Errorf("fixture: msg-source must be one of literal/bind/inject")
	}
}

type yamlBind struct {
	Dst yaml.Node `yaml:"dst"`
	Src yamlMsg   `yaml:"src"`
}

type yamlRecv struct {
	Type          string      `yaml:"type"`
	Data          yaml.Node   `yaml:"data"`
	AlsoMatchData []yaml.Node `yaml:"also_match_data,omitempty"`
	From          *string     `yaml:"from,omitempty"`
	To            *string     `yaml:"to,omitempty"`
	After         string      `yaml:"after,omitempty"`
	Before        string      `yaml:"before,omitempty"`
}

type yamlSend struct {
	From string  `yaml:"from"`
	To   *string `yaml:"to,omitempty"`
	Type string  `yaml:"type"`
	Data yamlMsg `yaml:"data"`
}

type yamlRespond struct {
	From      *string   `yaml:"from,omitempty"`
	ToRequest string    `yaml:"to_request"`
	Data      yaml.Node `yaml:"data"`
}

type yamlDelay struct {
	For  string `yaml:"for"`
	Step string `yaml:"step,omitempty"`
}

type yamlIOBind struct {
	Src yamlMsg   `yaml:"src"`
	Dst yaml.Node `yaml:"dst"`
}

type yamlCall struct {
	Sub     string            `yaml:"sub"`
	In      *yamlIOBind       `yaml:"in,omitempty"`
	Out     *yamlIOBind       `yaml:"out,omitempty"`
	Actors  map[string]string `yaml:"actors,omitempty"`
	Dummies map[string]string `yaml:"dummies,omitempty"`
}

// nodeToValue decodes a yaml.Node into a plain Go tree and re-parses it
// through dsl.ParseValue, reusing the core's own JSON-shaped Value
// rules (map[string]Value/[]Value/json.Number/...) rather than
// maintaining a second, YAML-flavored notion of a Value tree.
func nodeToValue(n *yaml.Node) (dsl.Value, error) {
	if n == nil || n.IsZero() {
		return nil, nil
	}
	var raw interface{}
	if err := n.Decode(&raw); err != nil {
		return nil, err
	}
	return jsonRoundTrip(raw)
}

func (e yamlEvent) toDecl() (graph.EventDecl, error) {
	decl := graph.EventDecl{ID: dsl.EventName(e.ID)}
	for _, h := range e.HappensAfter {
		decl.HappensAfter = append(decl.HappensAfter, dsl.EventName(h))
	}
	if e.Require != "" {
		req, err := parseRequirement(e.Require)
		if err != nil {
			return decl, err
		}
		decl.Require = &req
	}

	bodies := 0
	for _, set := range []bool{e.Bind != nil, e.Recv != nil, e.Send != nil, e.Respond != nil, e.Delay != nil, e.Call != nil} {
		if set {
			bodies++
		}
	}
	if bodies != 1 {
		return decl, fmt.Errorf("fixture: event %q must have exactly one body, got %d", e.ID, bodies)
	}

	switch {
	case e.Bind != nil:
		dst, err := nodeToValue(&e.Bind.Dst)
		if err != nil {
			return decl, err
		}
		src, err := e.Bind.Src.toMsg()
		if err != nil {
			return decl, err
		}
		decl.Body = graph.BindDecl{Dst: dst, Src: src}

	case e.Recv != nil:
		r := e.Recv
		data, err := nodeToValue(&r.Data)
		if err != nil {
			return decl, err
		}
		var also []dsl.Value
		for i := range r.AlsoMatchData {
			v, err := nodeToValue(&r.AlsoMatchData[i])
			if err != nil {
				return decl, err
			}
			also = append(also, v)
		}
		var from *dsl.ActorName
		if r.From != nil {
			a := dsl.ActorName(*r.From)
			from = &a
		}
		var to *dsl.DummyName
		if r.To != nil {
			d := dsl.DummyName(*r.To)
			to = &d
		}
		var after *time.Duration
		if r.After != "" {
			d, err := time.ParseDuration(r.After)
			if err != nil {
				return decl, fmt.Errorf("fixture: event %q: after: %w", e.ID, err)
			}
			after = &d
		}
		var before *time.Duration
		if r.Before != "" {
			d, err := time.ParseDuration(r.Before)
			if err != nil {
				return decl, fmt.Errorf("fixture: event %q: before: %w", e.ID, err)
			}
			before = &d
		}
		decl.Body = graph.RecvDecl{
			Type: dsl.MessageName(r.Type), Data: data, AlsoMatchData: also,
			From: from, To: to, After: after, Before: before,
		}

	case e.Send != nil:
		s := e.Send
		var to *dsl.ActorName
		if s.To != nil {
			a := dsl.ActorName(*s.To)
			to = &a
		}
		msg, err := s.Data.toMsg()
		if err != nil {
			return decl, err
		}
		decl.Body = graph.SendDecl{From: dsl.DummyName(s.From), To: to, Type: dsl.MessageName(s.Type), Data: msg}

	case e.Respond != nil:
		resp := e.Respond
		data, err := nodeToValue(&resp.Data)
		if err != nil {
			return decl, err
		}
		var from *dsl.DummyName
		if resp.From != nil {
			d := dsl.DummyName(*resp.From)
			from = &d
		}
		decl.Body = graph.RespondDecl{From: from, ToRequest: dsl.EventName(resp.ToRequest), Data: data}

	case e.Delay != nil:
		d := e.Delay
		forDur, err := time.ParseDuration(d.For)
		if err != nil {
			return decl, fmt.Errorf("fixture: event %q: for: %w", e.ID, err)
		}
		var step time.Duration
		if d.Step != "" {
			step, err = time.ParseDuration(d.Step)
			if err != nil {
				return decl, fmt.Errorf("fixture: event %q: step: %w", e.ID, err)
			}
		}
		decl.Body = graph.DelayDecl{For: forDur, Step: step}

	case e.Call != nil:
		c := e.Call
		callDecl := graph.CallDecl{
			Sub:     dsl.SubroutineName(c.Sub),
			Actors:  map[dsl.ActorName]dsl.ActorName{},
			Dummies: map[dsl.DummyName]dsl.DummyName{},
		}
		for outer, inner := range c.Actors {
			callDecl.Actors[dsl.ActorName(outer)] = dsl.ActorName(inner)
		}
		for outer, inner := range c.Dummies {
			callDecl.Dummies[dsl.DummyName(outer)] = dsl.DummyName(inner)
		}
		if c.In != nil {
			io, err := c.In.toIOBind()
			if err != nil {
				return decl, err
			}
			callDecl.In = io
		}
		if c.Out != nil {
			io, err := c.Out.toIOBind()
			if err != nil {
				return decl, err
			}
			callDecl.Out = io
		}
		decl.Body = callDecl
	}

	return decl, nil
}

func (io *yamlIOBind) toIOBind() (*graph.IOBind, error) {
	src, err := io.Src.toMsg()
	if err != nil {
		return nil, err
	}
	dst, err := nodeToValue(&io.Dst)
	if err != nil {
		return nil, err
	}
	return &graph.IOBind{Src: src, Dst: dst}, nil
}

func parseRequirement(s string) (graph.Requirement, error) {
	switch s {
	case "reached":
		return graph.Reached, nil
	case "unreached":
		return graph.Unreached, nil
	default:
		return 0, fmt.Errorf("fixture: invalid require %q, want reached/unreached", s)
	}
}

func (y yamlScenario) toScenario() (*graph.Scenario, error) {
	s := &graph.Scenario{}
	for _, t := range y.Types {
		s.Types = append(s.Types, graph.TypeAlias{Use: dsl.FQN(t.Use), As: dsl.MessageName(t.As)})
	}
	for _, sub := range y.Subroutines {
		s.Subroutines = append(s.Subroutines, graph.SubroutineRef{Load: sub.Load, As: dsl.SubroutineName(sub.As)})
	}
	for _, a := range y.Actors {
		s.Actors = append(s.Actors, dsl.ActorName(a))
	}
	for _, d := range y.Dummies {
		s.Dummies = append(s.Dummies, dsl.DummyName(d))
	}
	for _, e := range y.Events {
		decl, err := e.toDecl()
		if err != nil {
			return nil, err
		}
		s.Events = append(s.Events, decl)
	}
	return s, nil
}
