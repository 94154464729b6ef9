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

// Package record implements the recorder and the report: an
// append-only tree of what the interpreter did, and the read-only
// pass/fail verdict (plus dump/summary convenience views) derived
// from it afterward.
package record

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/graph"
)

const noParent = -1

// Record is one entry in the append-only tree: parent/previous
// pointers (never mutated after Append), both clocks as deltas from
// t_zero, and whatever structured payload the interpreter attached.
type Record struct {
	ID       int
	Parent   int
	Previous int
	Wall     time.Duration
	Virtual  time.Duration
	Kind     string
	Key      *graph.EventKey
	Data     dsl.Value
}

// Recorder is the append-only tree itself.
type Recorder struct {
	wallZero    time.Time
	virtualZero time.Time
	records     []Record
	lastChild   map[int]int
}

// NewRecorder fixes t_zero at (wallNow, virtualNow).
func NewRecorder(wallNow, virtualNow time.Time) *Recorder {
	return &Recorder{wallZero: wallNow, virtualZero: virtualNow, lastChild: map[int]int{noParent: noParent}}
}

// Append adds a record as the newest child of parent (noParent -1 for
// the root), chained after whatever was previously parent's newest
// child, and returns the new record's id.
func (r *Recorder) Append(parent int, kind string, key *graph.EventKey, data dsl.Value, wallNow, virtualNow time.Time) int {
	id := len(r.records)
	prev, ok := r.lastChild[parent]
	if !ok {
		prev = noParent
	}
	r.records = append(r.records, Record{
		ID:       id,
		Parent:   parent,
		Previous: prev,
		Wall:     wallNow.Sub(r.wallZero),
		Virtual:  virtualNow.Sub(r.virtualZero),
		Kind:     kind,
		Key:      key,
		Data:     data,
	})
	r.lastChild[parent] = id
	return id
}

// Root is the id passed as `parent` for top-level records.
const Root = noParent

// Records returns the full record slice, in append order.
func (r *Recorder) Records() []Record { return r.records }

// DumpRecordLog writes one line per record, indented by tree depth,
// in append order. It is a plain data traversal; a pretty-printer
// with its own rendering policy belongs to the caller.
func (r *Recorder) DumpRecordLog(w io.Writer) error {
	for _, rec := range r.records {
		indent := strings.Repeat("  ", r.depthOf(rec.ID))
		_, err := fmt.Fprintf(w, "%s#%d [%s +%s/+%s] %s %s\n",
			indent, rec.ID, rec.Kind, rec.Wall, rec.Virtual, keyString(rec.Key), dsl.JSON(rec.Data))
		if err != nil {
			return err
		}
	}
	return nil
}

func keyString(k *graph.EventKey) string {
	if k == nil {
		return "-"
	}
	return k.String()
}

// depthOf counts a record's ancestors; DumpRecordLog indents by it.
func (r *Recorder) depthOf(id int) int {
	depth := 0
	for cur := r.records[id].Parent; cur != noParent; cur = r.records[cur].Parent {
		depth++
	}
	return depth
}
