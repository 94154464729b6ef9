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

package marshal

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaGuard validates a rendered payload against a JSON Schema
// document before it is encoded. A type registered without a schema
// skips validation entirely; this is deliberately opt-in rather than
// required.
type SchemaGuard struct {
	schema *gojsonschema.Schema
}

// NewSchemaGuard compiles a JSON Schema document (as raw JSON text)
// once, at registration time, so that a scenario with a typo'd schema
// fails fast instead of on the first message of that type.
func NewSchemaGuard(schemaJSON []byte) (*SchemaGuard, error) {
	loader := gojsonschema.NewBytesLoader(schemaJSON)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, fmt.Errorf("marshal: compiling schema: %w", err)
	}
	return &SchemaGuard{schema: schema}, nil
}

// Validate checks payload (any JSON-marshalable value, typically a
// dsl.Value) against the compiled schema.
func (g *SchemaGuard) Validate(payload interface{}) error {
	if g == nil {
		return nil
	}
	result, err := g.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return fmt.Errorf("marshal: running schema validation: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("marshal: schema validation failed: %v", msgs)
}
