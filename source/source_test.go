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

package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Comcast/luci/dsl"
	"github.com/Comcast/luci/fixture"
)

func write(t *testing.T, dir, name, doc string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

const emptyScenario = "events: []\n"

func subScenario(refs ...string) string {
	var b strings.Builder
	b.WriteString("subroutines:\n")
	for _, r := range refs {
		parts := strings.SplitN(r, "=", 2)
		b.WriteString("  - load: " + parts[1] + "\n")
		b.WriteString("    as: " + parts[0] + "\n")
	}
	b.WriteString("events: []\n")
	return b.String()
}

func TestLoadResolvesAcrossSearchPath(t *testing.T) {
	rootDir := t.TempDir()
	libDir := t.TempDir()
	write(t, rootDir, "root.yaml", subScenario("util=util.yaml"))
	write(t, libDir, "util.yaml", emptyScenario)

	loader := NewLoader([]string{rootDir, libDir}, fixture.Parse)
	sources, err := loader.Load(dsl.NewCtx(nil), "root.yaml")
	if err != nil {
		t.Fatal(err)
	}

	root, ok := sources.Get(sources.Root())
	if !ok {
		t.Fatal("expected the root source to be retrievable")
	}
	utilKey, ok := root.Subroutines["util"]
	if !ok {
		t.Fatal("expected the root to map its util subroutine")
	}
	util, ok := sources.Get(utilKey)
	if !ok || !strings.HasPrefix(util.Path, libDir) {
		t.Fatalf("expected util.yaml resolved from the search path %q, got %+v", libDir, util)
	}
}

func TestLoadPrefersReferencingDirOverSearchPath(t *testing.T) {
	rootDir := t.TempDir()
	libDir := t.TempDir()
	write(t, rootDir, "root.yaml", subScenario("util=util.yaml"))
	write(t, rootDir, "util.yaml", emptyScenario)
	write(t, libDir, "util.yaml", emptyScenario)

	loader := NewLoader([]string{rootDir, libDir}, fixture.Parse)
	sources, err := loader.Load(dsl.NewCtx(nil), "root.yaml")
	if err != nil {
		t.Fatal(err)
	}
	root, _ := sources.Get(sources.Root())
	util, _ := sources.Get(root.Subroutines["util"])
	if !strings.HasPrefix(util.Path, rootDir) {
		t.Fatalf("expected the referencing file's own directory to win, got %q", util.Path)
	}
}

func TestLoadDeduplicatesByEffectivePath(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "root.yaml", subScenario("a=shared.yaml", "b=shared.yaml"))
	write(t, dir, "shared.yaml", emptyScenario)

	loader := NewLoader([]string{dir}, fixture.Parse)
	sources, err := loader.Load(dsl.NewCtx(nil), "root.yaml")
	if err != nil {
		t.Fatal(err)
	}
	root, _ := sources.Get(sources.Root())
	if root.Subroutines["a"] != root.Subroutines["b"] {
		t.Fatalf("the same file reached via two routes should share one key, got %v vs %v",
			root.Subroutines["a"], root.Subroutines["b"])
	}
}

func TestLoadDetectsDirectCycle(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", subScenario("b=b.yaml"))
	write(t, dir, "b.yaml", subScenario("a=a.yaml"))

	loader := NewLoader([]string{dir}, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "a.yaml"); err == nil || !strings.Contains(err.Error(), "cyclic") {
		t.Fatalf("expected a cyclic-dependency error, got %v", err)
	}
}

func TestLoadDetectsSelfCycle(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "a.yaml", subScenario("me=a.yaml"))

	loader := NewLoader([]string{dir}, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "a.yaml"); err == nil || !strings.Contains(err.Error(), "cyclic") {
		t.Fatalf("expected a cyclic-dependency error, got %v", err)
	}
}

func TestLoadAllowsDiamond(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "root.yaml", subScenario("b=b.yaml", "c=c.yaml"))
	write(t, dir, "b.yaml", subScenario("d=d.yaml"))
	write(t, dir, "c.yaml", subScenario("d=d.yaml"))
	write(t, dir, "d.yaml", emptyScenario)

	loader := NewLoader([]string{dir}, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "root.yaml"); err != nil {
		t.Fatalf("a diamond is sharing, not a cycle: %v", err)
	}
}

func TestLoadRejectsAbsolutePath(t *testing.T) {
	loader := NewLoader(nil, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "/etc/passwd"); err == nil || !strings.Contains(err.Error(), "relative") {
		t.Fatalf("expected an invalid-path error for an absolute path, got %v", err)
	}
}

func TestLoadRejectsParentEscape(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "root.yaml", subScenario("up=../outside.yaml"))

	loader := NewLoader([]string{dir}, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "root.yaml"); err == nil || !strings.Contains(err.Error(), "escape") {
		t.Fatalf("expected an invalid-path error for a .. component, got %v", err)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	loader := NewLoader([]string{t.TempDir()}, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "missing.yaml"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected a file-not-found error, got %v", err)
	}
}

func TestLoadRejectsDuplicateSubroutineName(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "root.yaml", subScenario("x=a.yaml", "x=b.yaml"))
	write(t, dir, "a.yaml", emptyScenario)
	write(t, dir, "b.yaml", emptyScenario)

	loader := NewLoader([]string{dir}, fixture.Parse)
	if _, err := loader.Load(dsl.NewCtx(nil), "root.yaml"); err == nil || !strings.Contains(err.Error(), "duplicate subroutine") {
		t.Fatalf("expected a duplicate-subroutine error, got %v", err)
	}
}
