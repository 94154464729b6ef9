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

package record

import (
	"fmt"

	"github.com/Comcast/luci/graph"
)

// Report is the read-only pass/fail verdict computed from a finished
// run: it depends only on the graph's Required map and the set of
// keys the interpreter actually reached.
type Report struct {
	graph    *graph.Graph
	reached  map[graph.EventKey]bool
	recorder *Recorder
}

// NewReport builds a Report over g's requirements and the given
// reached-set.
func NewReport(g *graph.Graph, reached map[graph.EventKey]bool, recorder *Recorder) *Report {
	return &Report{graph: g, reached: reached, recorder: recorder}
}

// Reached reports whether key fired during the run.
func (r *Report) Reached(key graph.EventKey) bool { return r.reached[key] }

// IsOK reports whether every required-Reached event fired and no
// required-Unreached event did.
func (r *Report) IsOK() bool {
	for k, req := range r.graph.Required {
		switch req {
		case graph.Reached:
			if !r.reached[k] {
				return false
			}
		case graph.Unreached:
			if r.reached[k] {
				return false
			}
		}
	}
	return true
}

// Recorder returns the underlying record tree, for DumpRecordLog.
func (r *Report) Recorder() *Recorder { return r.recorder }

// Explanation is one node of the prerequisite walk: starting from a
// violating event, walk its prerequisites (the unblocks relation
// inverted) and recurse only into the ones that themselves failed to
// reach their requirement.
type Explanation struct {
	Key     graph.EventKey
	Label   string
	Reached bool
	Prereqs []*Explanation
}

// Explain returns one Explanation tree per event that was required to
// be Reached but wasn't.
func (r *Report) Explain() []*Explanation {
	var out []*Explanation
	for k, req := range r.graph.Required {
		if req == graph.Reached && !r.reached[k] {
			visited := map[graph.EventKey]bool{}
			out = append(out, r.explain(k, visited))
		}
	}
	return out
}

func (r *Report) explain(k graph.EventKey, visited map[graph.EventKey]bool) *Explanation {
	if visited[k] {
		return nil
	}
	visited[k] = true
	node := &Explanation{Key: k, Label: r.graph.Label(k), Reached: r.reached[k]}
	if !node.Reached {
		for _, dep := range r.graph.Requires[k] {
			if child := r.explain(dep, visited); child != nil {
				node.Prereqs = append(node.Prereqs, child)
			}
		}
	}
	return node
}

// Summary is the 2x2 reached/required breakdown plus one violation
// line per failing event, the short plaintext form a caller wants
// before reaching for a full diagnostic renderer.
type Summary struct {
	ReachedAndRequired    int
	ReachedButForbidden   int
	UnreachedButRequired  int
	UnreachedAndForbidden int
	Violations            []string
}

// Summary computes the breakdown.
func (r *Report) Summary() Summary {
	var s Summary
	for k, req := range r.graph.Required {
		reached := r.reached[k]
		name := r.graph.KeyName[k].Name
		switch {
		case reached && req == graph.Reached:
			s.ReachedAndRequired++
		case reached && req == graph.Unreached:
			s.ReachedButForbidden++
			s.Violations = append(s.Violations, fmt.Sprintf("! reached %s", name))
		case !reached && req == graph.Reached:
			s.UnreachedButRequired++
			s.Violations = append(s.Violations, fmt.Sprintf("! unreached %s", name))
		case !reached && req == graph.Unreached:
			s.UnreachedAndForbidden++
		}
	}
	return s
}
