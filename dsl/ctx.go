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

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Ctx bundles a context.Context (so proxies and the virtual clock
// have something to select on) with a structured logger and a
// nesting depth, so that a chain of "Indf" calls from the compiler or
// the interpreter renders as visually nested trace lines.
type Ctx struct {
	context.Context

	log   zerolog.Logger
	depth int
}

// NewCtx wraps the given context.Context (or context.Background() if
// nil) with a console-rendered zerolog.Logger at info level.
func NewCtx(parent context.Context) *Ctx {
	if parent == nil {
		parent = context.Background()
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	logger := zerolog.New(out).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	return &Ctx{
		Context: parent,
		log:     logger,
	}
}

// WithLogger returns a copy of c using the given logger (e.g. to
// raise the level, or to write to a test's t.Log instead of stderr).
func (c *Ctx) WithLogger(l zerolog.Logger) *Ctx {
	cp := *c
	cp.log = l
	return &cp
}

// WithContext returns a copy of c using the given context.Context,
// e.g. to attach a deadline or cancellation.
func (c *Ctx) WithContext(ctx context.Context) *Ctx {
	cp := *c
	cp.Context = ctx
	return &cp
}

// Ind returns a copy of c indented one level deeper, used when
// recursing into a subroutine's scope or a nested step.
func (c *Ctx) Ind() *Ctx {
	cp := *c
	cp.depth++
	return &cp
}

func (c *Ctx) prefix(format string) string {
	if c.depth == 0 {
		return format
	}
	return strings.Repeat("  ", c.depth) + format
}

// Logf logs an info-level, always-on message.
func (c *Ctx) Logf(format string, args ...interface{}) {
	c.log.Info().Msgf(c.prefix(format), args...)
}

// Logdf logs a debug-level message, off by default.
func (c *Ctx) Logdf(format string, args ...interface{}) {
	c.log.Debug().Msgf(c.prefix(format), args...)
}

// Indf is an alias of Logf kept for symmetry with Inddf; both exist
// so call sites can read "indented info" vs "indented debug" at a
// glance.
func (c *Ctx) Indf(format string, args ...interface{}) {
	c.Logf(format, args...)
}

// Inddf is an alias of Logdf.
func (c *Ctx) Inddf(format string, args ...interface{}) {
	c.Logdf(format, args...)
}

// Warnf logs a warning, used for non-fatal oddities such as an
// unmapped call-site actor (see the compiler's subroutine expansion).
func (c *Ctx) Warnf(format string, args ...interface{}) {
	c.log.Warn().Msgf(c.prefix(format), args...)
}
