package rows

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Row is one extracted record: an unordered mapping from field name to value.
// No schema is enforced; rows from different chunks may carry different keys.
type Row map[string]any

var (
	fenceRe  = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	arrayRe  = regexp.MustCompile(`(?s)\[.*?\]`)
	objectRe = regexp.MustCompile(`(?s)\{.*?\}`)
)

// Parse recovers structured rows from free-form model output. Models wrap
// valid JSON in prose or markdown fences often enough that a strict decode
// would throw away usable answers, so recovery proceeds in stages: decode the
// whole text, then fenced code blocks, then bracketed array fragments, then
// brace-delimited object fragments. The first stage that yields rows wins.
// Parse never fails; unusable input produces an empty slice.
func Parse(text string) []Row {
	if rows := decode(text); len(rows) > 0 {
		return rows
	}
	for _, candidate := range candidates(text) {
		if rows := decode(candidate); len(rows) > 0 {
			return rows
		}
	}
	return nil
}

// decode attempts a strict JSON parse of s. A top-level array keeps only its
// object elements; a top-level object is accepted when it wraps the rows in
// a "rows" key.
func decode(s string) []Row {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		return onlyObjects(t)
	case map[string]any:
		if inner, ok := t["rows"].([]any); ok {
			return onlyObjects(inner)
		}
	}
	return nil
}

func onlyObjects(items []any) []Row {
	var out []Row
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Row(m))
		}
	}
	return out
}

// candidates lists JSON-looking fragments of text in decreasing priority:
// fenced blocks, then array fragments, then object fragments.
func candidates(text string) []string {
	var out []string
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	out = append(out, arrayRe.FindAllString(text, -1)...)
	out = append(out, objectRe.FindAllString(text, -1)...)
	return out
}

// Dedupe removes exact structural duplicates while preserving the order of
// first appearance. Two rows are duplicates when their canonical key-sorted
// serializations match, so key insertion order never affects equality.
// Dedupe is idempotent.
func Dedupe(in []Row) []Row {
	seen := make(map[string]struct{}, len(in))
	out := make([]Row, 0, len(in))
	for _, r := range in {
		key := canonicalKey(r)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// canonicalKey serializes a row with sorted keys. encoding/json already
// emits map keys in sorted order, which is exactly the canonical form
// needed for structural comparison.
func canonicalKey(r Row) string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("!%v", r)
	}
	return string(b)
}

// CSV renders rows as an RFC 4180 table. Columns appear in order of first
// appearance across the row sequence; rows missing a column get an empty
// cell. Returns the empty string when there are no rows.
func CSV(in []Row) string {
	if len(in) == 0 {
		return ""
	}
	var columns []string
	seen := map[string]struct{}{}
	for _, r := range in {
		for _, k := range sortedKeys(r) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	_ = w.Write(columns)
	for _, r := range in {
		record := make([]string, len(columns))
		for i, col := range columns {
			if v, ok := r[col]; ok {
				record[i] = formatValue(v)
			}
		}
		_ = w.Write(record)
	}
	w.Flush()
	return b.String()
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	// Row iteration order is random; sorting keeps column discovery stable.
	sort.Strings(keys)
	return keys
}

// formatValue renders a decoded JSON value as a CSV cell. Scalars use their
// plain form; nested values fall back to their JSON encoding.
func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
