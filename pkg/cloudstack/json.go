/*
Copyright 2024 Locaweb.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cloudstack

import (
	"fmt"
	"strconv"
)

// cmk responses are untyped JSON: every list operation returns
// {"count": N, "<resourcetype>": [...]}  and every create/deploy
// operation returns {"<resourcetype>": {...}}. These helpers decode the
// bits we actually need from callResult's map[string]any without
// dragging a generated schema around for an API this module only ever
// reads a handful of fields from.

// asSlice extracts a JSON array field as a slice of JSON objects,
// returning nil (not an error) if the field is absent or not an array
// — list responses legitimately omit the resource key when empty.
func asSlice(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}

	out := make([]map[string]any, 0, len(raw))

	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}

	return out
}

// asObject extracts a JSON object field, returning nil if absent or of
// the wrong shape.
func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// asString coerces a JSON value to a string. cmk is not perfectly
// consistent about quoting numeric-looking fields (IDs are always
// strings, but occasionally booleans/numbers leak through), so this
// accepts the common shapes rather than only string.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return ""
	}
}

// asBool coerces a JSON value to a bool, defaulting to false.
func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

// asInt64 coerces a JSON number to an int64, defaulting to 0. cmk
// renders numeric fields as JSON numbers (float64 after unmarshalling).
func asInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		var n int64
		_, _ = fmt.Sscan(t, &n)
		return n
	default:
		return 0
	}
}
