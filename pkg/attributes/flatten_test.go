// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package attributes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		prefix string
		want   Set
	}{
		{
			name:  "null values are dropped",
			input: `{"a": null}`,
			want:  Set{},
		},
		{
			name:  "nested null is dropped",
			input: `{"a": {"b": null, "c": "kept"}}`,
			want:  Set{"a.c": {"kept"}},
		},
		{
			name:  "booleans become literal strings",
			input: `{"b": false, "c": true}`,
			want:  Set{"b": {"false"}, "c": {"true"}},
		},
		{
			name:  "scalars become single-element lists",
			input: `{"name": "Bob", "age": 42, "score": 1.5}`,
			want:  Set{"name": {"Bob"}, "age": {"42"}, "score": {"1.5"}},
		},
		{
			name:  "integral float renders without fraction",
			input: `{"n": 2.0}`,
			want:  Set{"n": {"2"}},
		},
		{
			name:  "simple list keeps shape and filters nulls",
			input: `{"arr": ["a", null, "b"]}`,
			want:  Set{"arr": {"a", "b"}},
		},
		{
			name:  "list of mixed scalars",
			input: `{"arr": ["a", 1, true]}`,
			want:  Set{"arr": {"a", "1", "true"}},
		},
		{
			name:  "nested object joins keys with separator",
			input: `{"complex": {"e": "f"}}`,
			want:  Set{"complex.e": {"f"}},
		},
		{
			name:   "prefix is prepended to every key",
			input:  `{"name": "Bob", "address": {"city": "Oslo"}}`,
			prefix: "test.",
			want:   Set{"test.name": {"Bob"}, "test.address.city": {"Oslo"}},
		},
		{
			name:  "list containing objects is flattened by index",
			input: `{"emails": [{"value": "a@x.org"}, {"value": "b@x.org"}]}`,
			want:  Set{"emails.0.value": {"a@x.org"}, "emails.1.value": {"b@x.org"}},
		},
		{
			name:  "deep nesting",
			input: `{"a": {"b": {"c": {"d": "leaf"}}}}`,
			want:  Set{"a.b.c.d": {"leaf"}},
		},
		{
			name:  "empty object produces nothing",
			input: `{"empty": {}}`,
			want:  Set{},
		},
		{
			name:  "empty list is kept as an empty list",
			input: `{"empty": []}`,
			want:  Set{"empty": {}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Flatten(decode(t, tt.input), tt.prefix)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestFlattenIdempotent verifies that flattening an already-flat map (all
// leaves single-element string lists) returns it unchanged.
func TestFlattenIdempotent(t *testing.T) {
	t.Parallel()

	flat := decode(t, `{"oidc.name": ["Bob"], "oidc.email": ["bob@example.org"]}`)
	got := Flatten(flat, "")
	assert.Equal(t, Set{
		"oidc.name":  {"Bob"},
		"oidc.email": {"bob@example.org"},
	}, got)

	again := make(map[string]any, len(got))
	for k, v := range got {
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		again[k] = list
	}
	assert.Equal(t, got, Flatten(again, ""))
}

// TestFlattenDeterministic runs the same input repeatedly; map iteration
// order must not leak into the result.
func TestFlattenDeterministic(t *testing.T) {
	t.Parallel()

	input := decode(t, `{"z": "1", "a": {"m": "2", "b": "3"}, "k": [1, 2, 3]}`)
	want := Flatten(input, "p.")
	for i := 0; i < 50; i++ {
		assert.Equal(t, want, Flatten(input, "p."))
	}
}

func TestFlattenTotalOverWeirdInput(t *testing.T) {
	t.Parallel()

	// Values that only show up when callers hand us non-JSON-decoded maps.
	input := map[string]any{
		"i":   int(7),
		"i64": int64(9),
		"num": json.Number("12.25"),
	}
	got := Flatten(input, "")
	assert.Equal(t, Set{"i": {"7"}, "i64": {"9"}, "num": {"12.25"}}, got)
}
