// Package summarize turns arbitrary run/step payloads into small,
// serializable summaries so a client can ship reasoning about a payload
// without shipping the payload itself. The dispatch order and truncation
// rules mirror the reference Python SDK's summarize_payload exactly, so a
// Go caller and a Python caller summarizing the same value produce the
// same shape on the wire.
package summarize

import (
	"fmt"
	"reflect"
	"sort"
)

const (
	// maxStringLength is the longest string value kept verbatim; longer
	// strings are truncated and flagged.
	maxStringLength = 1024

	// maxDictKeys is the most map keys listed under _keys before the list
	// is truncated and flagged.
	maxDictKeys = 50

	// maxPayloadDepth bounds recursive summarization of nested containers.
	maxPayloadDepth = 5
)

// idFields are checked, in order, when extracting a candidate's identifier.
var idFields = []string{"id", "_id", "candidate_id", "item_id", "product_id", "doc_id"}

// scoreFields are checked, in order, when extracting a candidate's score.
var scoreFields = []string{"score", "rank", "relevance", "confidence", "weight"}

// reasonFields are checked, in order, when extracting a candidate's reason.
var reasonFields = []string{"reason", "explanation", "rationale", "why", "filter_reason"}

// countKeys name the map entries infer_count looks inside of when the
// top-level value itself isn't directly sliceable.
var countKeys = []string{"items", "results", "data", "records", "candidates"}

// Summarize produces a bounded, JSON-safe description of value. depth is the
// current recursion depth and should be 0 for a top-level call.
func Summarize(value any, depth int) map[string]any {
	if depth >= maxPayloadDepth {
		return map[string]any{
			"_type":      goTypeName(value),
			"_truncated": true,
		}
	}

	if value == nil {
		return map[string]any{"_type": "null", "_value": nil}
	}

	switch v := value.(type) {
	case bool:
		return map[string]any{"_type": "bool", "_value": v}
	case string:
		return summarizeString(v)
	case []byte:
		return map[string]any{"_type": "bytes", "_length": len(v)}
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"_type": "int", "_value": rv.Interface()}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"_type": "float", "_value": rv.Interface()}
	case reflect.Slice, reflect.Array:
		return summarizeList(value, rv, depth)
	case reflect.Map:
		return summarizeMap(rv, depth)
	default:
		return summarizeOther(value, rv)
	}
}

func summarizeString(s string) map[string]any {
	truncated := len(s) > maxStringLength

	return map[string]any{
		"_type":      "str",
		"_length":    len(s),
		"_value":     truncateString(s),
		"_truncated": truncated,
	}
}

// truncateString bounds s to maxStringLength, matching
// original_source/sdk/step.py's _truncate_string so a string value never
// escapes the summary's size bound regardless of where it's nested.
func truncateString(s string) string {
	if len(s) <= maxStringLength {
		return s
	}

	return s[:maxStringLength]
}

func summarizeList(value any, rv reflect.Value, depth int) map[string]any {
	if isCandidateList(rv) {
		candidates := make([]map[string]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			candidates = append(candidates, extractCandidate(rv.Index(i).Interface()))
		}

		return map[string]any{
			"_type":       "candidates",
			"_count":      rv.Len(),
			"_candidates": candidates,
		}
	}

	itemType := "none"
	if rv.Len() > 0 {
		itemType = goTypeName(rv.Index(0).Interface())
	}

	return map[string]any{
		"_type":      "list",
		"_count":     rv.Len(),
		"_item_type": itemType,
	}
}

func summarizeMap(rv reflect.Value, depth int) map[string]any {
	keys := mapStringKeys(rv)

	keysTruncated := len(keys) > maxDictKeys
	shownKeys := keys

	if keysTruncated {
		shownKeys = keys[:maxDictKeys]
	}

	values := make(map[string]any, len(shownKeys))

	for _, key := range shownKeys {
		entry := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key())).Interface()
		values[key] = summarizeScalarOrNested(entry)
	}

	result := map[string]any{
		"_type":      "dict",
		"_key_count": len(keys),
		"_keys":      shownKeys,
		"_values":    values,
	}

	if keysTruncated {
		result["_keys_truncated"] = true
	}

	return result
}

// summarizeScalarOrNested mirrors the reference implementation's dict-value
// handling: scalars pass through as-is, containers get a one-level nested
// type tag instead of full recursive summarization, keeping a single dict
// level's summary small regardless of what it contains.
func summarizeScalarOrNested(value any) any {
	switch v := value.(type) {
	case nil, bool:
		return value
	case string:
		return truncateString(v)
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return value
	default:
		return map[string]any{"_type": goTypeName(value)}
	}
}

func summarizeOther(value any, rv reflect.Value) map[string]any {
	result := map[string]any{"_type": goTypeName(value)}

	if idGetter, ok := value.(interface{ GetID() string }); ok {
		result["_id"] = idGetter.GetID()

		return result
	}

	if rv.Kind() == reflect.Struct {
		if field := rv.FieldByName("ID"); field.IsValid() {
			result["_id"] = fmt.Sprintf("%v", field.Interface())
		}
	}

	return result
}

// InferCount estimates how many "items" value represents, for logging a
// quick size hint alongside a summary without fully enumerating it.
// Returns nil when no sensible count can be inferred.
func InferCount(value any) *int {
	if value == nil {
		return nil
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.String:
		n := rv.Len()

		return &n
	case reflect.Map:
		for _, key := range countKeys {
			entry := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
			if !entry.IsValid() {
				continue
			}

			inner := reflect.ValueOf(entry.Interface())
			if inner.Kind() == reflect.Slice || inner.Kind() == reflect.Array || inner.Kind() == reflect.Map {
				n := inner.Len()

				return &n
			}
		}

		return nil
	default:
		if counter, ok := value.(interface{ Len() int }); ok {
			n := counter.Len()

			return &n
		}

		return nil
	}
}

// isCandidateList reports whether rv looks like a list of ranked/filtered
// candidates: a non-empty list/array whose first few elements are all
// map-shaped and each carries at least one recognizable ID field.
func isCandidateList(rv reflect.Value) bool {
	if rv.Len() == 0 {
		return false
	}

	sample := rv.Len()
	if sample > 3 {
		sample = 3
	}

	for i := 0; i < sample; i++ {
		item := rv.Index(i).Interface()

		m, ok := asStringMap(item)
		if !ok {
			return false
		}

		if !hasAnyKey(m, idFields) {
			return false
		}
	}

	return true
}

// extractCandidate pulls id/score/reason out of a single candidate map
// using the same first-match field priority as the reference implementation.
func extractCandidate(item any) map[string]any {
	m, ok := asStringMap(item)
	if !ok {
		return map[string]any{"_type": goTypeName(item)}
	}

	candidate := map[string]any{}

	if id, found := firstMatch(m, idFields); found {
		candidate["id"] = fmt.Sprintf("%v", id)
	}

	if score, found := firstMatch(m, scoreFields); found {
		candidate["score"] = score
	}

	if reason, found := firstMatch(m, reasonFields); found {
		candidate["reason"] = reason
	} else {
		candidate["reason"] = nil
	}

	return candidate
}

func firstMatch(m map[string]any, fields []string) (any, bool) {
	for _, field := range fields {
		if value, ok := m[field]; ok {
			return value, true
		}
	}

	return nil, false
}

func hasAnyKey(m map[string]any, fields []string) bool {
	for _, field := range fields {
		if _, ok := m[field]; ok {
			return true
		}
	}

	return false
}

// asStringMap normalizes any map-kinded value with string-like keys into a
// map[string]any, so JSON-decoded maps and hand-built Go maps both work.
func asStringMap(value any) (map[string]any, bool) {
	if m, ok := value.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	out := make(map[string]any, rv.Len())

	for _, key := range rv.MapKeys() {
		out[key.String()] = rv.MapIndex(key).Interface()
	}

	return out, true
}

func mapStringKeys(rv reflect.Value) []string {
	keys := make([]string, 0, rv.Len())
	for _, key := range rv.MapKeys() {
		keys = append(keys, fmt.Sprintf("%v", key.Interface()))
	}

	// map iteration order is randomized by the Go runtime; sort so the
	// summarizer's output is deterministic across runs.
	sort.Strings(keys)

	return keys
}

// goTypeName returns a short, JSON-friendly type tag for value.
func goTypeName(value any) string {
	if value == nil {
		return "null"
	}

	switch value.(type) {
	case bool:
		return "bool"
	case string:
		return "str"
	case []byte:
		return "bytes"
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "dict"
	default:
		return rv.Type().String()
	}
}
