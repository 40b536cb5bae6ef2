// Package shape projects response payloads to the field set a tier may see.
// All functions are pure.
package shape

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Rule selects the projection applied to a route's payload.
type Rule int

const (
	// None passes payloads through unchanged.
	None Rule = iota
	// ToolList projects each listed tool to the public list fields.
	ToolList
	// ToolDetail projects a single tool to the public detail fields and
	// adds an upgrade note.
	ToolDetail
)

func (r Rule) String() string {
	switch r {
	case ToolList:
		return "list"
	case ToolDetail:
		return "detail"
	default:
		return "none"
	}
}

// ListFields are visible on restricted tool listings.
var ListFields = []string{"slug", "name", "category", "overallScore", "reviewDate"}

// DetailFields are visible on restricted tool details.
var DetailFields = append(append([]string{}, ListFields...), "methodologyVersion")

// EnvelopeFields are kept on list envelopes.
var EnvelopeFields = []string{"data", "count"}

// UpgradeNote is attached to restricted tool details.
const UpgradeNote = "Upgrade to the professional tier for full scores, pricing, strengths and weaknesses."

// Apply projects payload according to rule. Full-access callers and the
// None rule get the payload back untouched.
//
// Restricted payloads are first normalized to generic JSON values, so any
// Go value that encodes to JSON can be shaped: objects are filtered by the
// allow-list, arrays are projected element-wise and non-object elements
// are dropped. A list envelope {data, count} keeps only those two keys.
func Apply(payload any, rule Rule, fullAccess bool) (any, error) {
	if fullAccess || rule == None || payload == nil {
		return payload, nil
	}

	v, err := normalize(payload)
	if err != nil {
		return nil, err
	}

	switch rule {
	case ToolList:
		return projectList(v), nil
	case ToolDetail:
		return projectDetail(v), nil
	default:
		return nil, fmt.Errorf("unknown shape rule %d", rule)
	}
}

func normalize(payload any) (any, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

func projectList(v any) any {
	switch t := v.(type) {
	case []any:
		return projectArray(t, ListFields)
	case map[string]any:
		if data, ok := t["data"]; ok {
			out := pick(t, EnvelopeFields)
			if arr, ok := data.([]any); ok {
				out["data"] = projectArray(arr, ListFields)
			} else if obj, ok := data.(map[string]any); ok {
				out["data"] = pick(obj, ListFields)
			} else {
				out["data"] = []any{}
			}
			return out
		}
		return pick(t, ListFields)
	default:
		return []any{}
	}
}

func projectDetail(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if data, ok := t["data"].(map[string]any); ok {
			out := pick(data, DetailFields)
			out["note"] = UpgradeNote
			return map[string]any{"data": out}
		}
		out := pick(t, DetailFields)
		out["note"] = UpgradeNote
		return out
	case []any:
		return projectArray(t, DetailFields)
	default:
		return map[string]any{"note": UpgradeNote}
	}
}

func projectArray(in []any, fields []string) []any {
	out := make([]any, 0, len(in))
	for _, el := range in {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, pick(obj, fields))
	}
	return out
}

// pick copies the allowed keys of obj. Only scalar values are copied: a
// nested object or array under an allowed key could carry any field, so it
// is dropped along with the key.
func pick(obj map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for _, f := range fields {
		if v, ok := obj[f]; ok && scalar(v) {
			out[f] = v
		}
	}
	return out
}

// scalar reports whether v is a JSON leaf as produced by normalize.
func scalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number:
		return true
	default:
		return false
	}
}
