// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package attributes converts arbitrarily nested identity-provider responses
// into the flat, prefixed attribute map the SAML side consumes. Every value
// in the output is a list of strings, even for single values.
package attributes

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Separator joins nested keys in the flattened output ("user.address.city").
const Separator = "."

// Set is the canonical output of the whole flow: a flat mapping from an
// already-prefixed key to an ordered list of string values.
type Set map[string][]string

// Flatten normalizes a JSON-decoded object into a Set. The rules:
//
//   - null values are dropped entirely
//   - booleans become the literal "true"/"false"
//   - other scalars become their string representation
//   - an array of scalars stays a list (nulls filtered out), unflattened
//   - any other array or object is flattened recursively with the key
//     appended to the prefix, joined by Separator
//
// Keys are processed in sorted order and duplicates overwrite, so the result
// is deterministic for any input. Flatten is total over JSON-decodable
// values: it never fails on well-formed input.
func Flatten(value map[string]any, prefix string) Set {
	out := make(Set)
	flattenObject(value, prefix, out)
	return out
}

func flattenObject(obj map[string]any, prefix string, out Set) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		flattenEntry(k, obj[k], prefix, out)
	}
}

func flattenEntry(key string, value any, prefix string, out Set) {
	switch v := value.(type) {
	case nil:
		// dropped

	case map[string]any:
		flattenObject(v, prefix+key+Separator, out)

	case []any:
		if isSimpleSequential(v) {
			out[prefix+key] = scalarList(v)
			return
		}
		// Sequential but containing sub-objects: treat the indices as keys.
		for i, elem := range v {
			flattenEntry(strconv.Itoa(i), elem, prefix+key+Separator, out)
		}

	default:
		out[prefix+key] = []string{stringify(value)}
	}
}

// isSimpleSequential reports whether the slice contains only scalar (or
// null) elements. Such lists are stored directly instead of being flattened
// into indexed keys.
func isSimpleSequential(list []any) bool {
	for _, elem := range list {
		switch elem.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func scalarList(list []any) []string {
	out := make([]string, 0, len(list))
	for _, elem := range list {
		if elem == nil {
			continue
		}
		out = append(out, stringify(elem))
	}
	return out
}

// stringify renders a scalar the way the attribute consumers expect:
// booleans as "true"/"false", integral numbers without a fraction part.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		// encoding/json decodes all numbers as float64; render 2.0 as "2".
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}
