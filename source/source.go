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

// Package source implements the source loader: recursive resolution
// of a root scenario and its referenced subroutine files across an
// ordered search path, with cycle detection and deduplication by
// effective path. It knows nothing about YAML; it is handed a Parser
// and deals only in bytes and paths.
package source

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/graph"
)

// Key identifies one resolved, parsed source file within a Sources
// collection. Two references that resolve to the same effective path
// share one Key.
type Key int

// Parser turns a source file's raw bytes into a Scenario. Production
// code supplies a YAML parser (see the fixture package for the one
// used by this repo's own tests); the core itself is agnostic.
type Parser func(data []byte) (*graph.Scenario, error)

// Source is one parsed file plus the local name -> Key mapping for
// every subroutine it declares.
type Source struct {
	Path        string
	Scenario    *graph.Scenario
	Subroutines map[dsl.SubroutineName]Key
}

// Sources is the keyed collection the loader produces: every source
// file reachable from the root, plus the root's own Key.
type Sources struct {
	byKey map[Key]*Source
	root  Key
}

// Root returns the key of the root scenario.
func (s *Sources) Root() Key { return s.root }

// Get returns the Source for key.
func (s *Sources) Get(key Key) (*Source, bool) {
	src, ok := s.byKey[key]
	return src, ok
}

// RootKey and Lookup together satisfy graph.SourceProvider, the
// narrow view the compiler needs of a loaded Sources collection. They
// use plain ints rather than Key so that package graph, which defines
// SourceProvider, never needs to import this package (source already
// imports graph for the Scenario type).
func (s *Sources) RootKey() int { return int(s.root) }

func (s *Sources) Lookup(key int) (*graph.Scenario, string, map[dsl.SubroutineName]int, bool) {
	src, ok := s.byKey[Key(key)]
	if !ok {
		return nil, "", nil, false
	}
	subs := make(map[dsl.SubroutineName]int, len(src.Subroutines))
	for name, k := range src.Subroutines {
		subs[name] = int(k)
	}
	return src.Scenario, src.Path, subs, true
}

// Loader resolves and loads a root scenario and everything it
// transitively references, across search, an ordered list of
// directories consulted (after the referencing file's own directory)
// for each relative path.
type Loader struct {
	search []string
	parse  Parser
}

// NewLoader builds a Loader with a fixed search path and parser.
func NewLoader(search []string, parse Parser) *Loader {
	return &Loader{search: search, parse: parse}
}

// Load resolves rootPath (relative to the current directory, like any
// other reference) and recursively loads every subroutine it and its
// descendants declare.
func (l *Loader) Load(ctx *dsl.Ctx, rootPath string) (*Sources, error) {
	s := &Sources{byKey: map[Key]*Source{}}
	ldr := &loadState{
		Loader:    l,
		sources:   s,
		byPath:    map[string]Key{},
		onStack:   map[string]bool{},
		stackPath: nil,
	}
	key, err := ldr.load(ctx, ".", rootPath)
	if err != nil {
		return nil, err
	}
	s.root = key
	return s, nil
}

type loadState struct {
	*Loader
	sources   *Sources
	byPath    map[string]Key
	onStack   map[string]bool
	stackPath []string
}

// validatePath requires a relative path with no ".." or absolute
// components. "." components are simply dropped.
func validatePath(p string) (string, error) {
	if filepath.IsAbs(p) {
		return "", dsl.Brokenf("source: invalid path %q: must be relative", p)
	}
	cleaned := filepath.Clean(p)
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", dsl.Brokenf("source: invalid path %q: must not escape its directory", p)
		}
	}
	return cleaned, nil
}

// resolve tries (refDir/file), then each search-path directory, in
// order; the first existing regular file wins.
func (l *Loader) resolve(refDir, rel string) (string, error) {
	candidates := []string{filepath.Join(refDir, rel)}
	for _, entry := range l.search {
		info, err := os.Stat(entry)
		if err != nil || !info.IsDir() {
			continue
		}
		candidates = append(candidates, filepath.Join(entry, rel))
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && info.Mode().IsRegular() {
			return c, nil
		}
	}
	return "", dsl.Brokenf("source: file not found: %q", rel)
}

// load resolves rel against refDir, then parses and recursively loads
// it (and its subroutines) if not already cached, returning its Key.
func (l *loadState) load(ctx *dsl.Ctx, refDir, rel string) (Key, error) {
	cleaned, err := validatePath(rel)
	if err != nil {
		return 0, err
	}
	effective, err := l.resolve(refDir, cleaned)
	if err != nil {
		return 0, err
	}
	// The stack check must run before the cache check: a file is
	// cached as soon as it parses, before its subroutines finish
	// loading, so a true cycle resolves to a cache hit on a file
	// that is still on the active path.
	if l.onStack[effective] {
		return 0, dsl.Brokenf("source: cyclic dependency loading %q", effective)
	}
	if key, ok := l.byPath[effective]; ok {
		return key, nil
	}

	l.onStack[effective] = true
	l.stackPath = append(l.stackPath, effective)
	defer func() {
		l.onStack[effective] = false
		l.stackPath = l.stackPath[:len(l.stackPath)-1]
	}()

	data, err := os.ReadFile(effective)
	if err != nil {
		return 0, dsl.Brokenf("source: reading %q: %v", effective, err)
	}
	scenario, err := l.parse(data)
	if err != nil {
		return 0, dsl.Brokenf("source: parsing %q: %v", effective, err)
	}

	key := Key(len(l.sources.byKey))
	src := &Source{Path: effective, Scenario: scenario, Subroutines: map[dsl.SubroutineName]Key{}}
	l.sources.byKey[key] = src
	l.byPath[effective] = key

	dir := filepath.Dir(effective)
	for _, sub := range scenario.Subroutines {
		if _, dup := src.Subroutines[sub.As]; dup {
			return 0, dsl.Brokenf("source: %q: duplicate subroutine name %q", effective, sub.As)
		}
		childKey, err := l.load(ctx, dir, sub.Load)
		if err != nil {
			return 0, err
		}
		src.Subroutines[sub.As] = childKey
	}
	return key, nil
}
