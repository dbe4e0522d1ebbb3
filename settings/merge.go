package settings

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPatch marks a patch whose values do not fit the document.
var ErrInvalidPatch = errors.New("invalid patch")

// Patch is a partial document in its JSON object form.
type Patch map[string]any

// PatchOf converts any JSON-encodable value into a Patch.
func PatchOf(v any) (Patch, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	var p Patch
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	return p, nil
}

// Merge returns target with patch deep-merged into it. Nested objects are
// merged key by key; every other value, arrays included, replaces the target
// value outright. Neither argument is modified.
func Merge(target, patch map[string]any) map[string]any {
	out := make(map[string]any, len(target)+len(patch))
	for k, v := range target {
		out[k] = v
	}
	for k, v := range patch {
		po, ok := asObject(v)
		if !ok {
			out[k] = v
			continue
		}
		if to, ok := asObject(out[k]); ok {
			out[k] = Merge(to, po)
		} else {
			out[k] = Merge(nil, po)
		}
	}
	return out
}

func asObject(v any) (map[string]any, bool) {
	switch o := v.(type) {
	case map[string]any:
		return o, true
	case Patch:
		return o, true
	}
	return nil, false
}

func toMap(doc Document) (map[string]any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (Document, error) {
	var doc Document
	data, err := json.Marshal(m)
	if err != nil {
		return doc, err
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

// Apply merges patch into doc and returns the resulting document. Keys the
// document has no field for are dropped.
func Apply(doc Document, patch Patch) (Document, error) {
	base, err := toMap(doc)
	if err != nil {
		return doc, fmt.Errorf("encode document: %w", err)
	}
	merged, err := fromMap(Merge(base, patch))
	if err != nil {
		return doc, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}
	return merged, nil
}
