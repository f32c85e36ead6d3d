package datastore

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Matches reports whether doc satisfies query. Every field in query must
// be present in doc with an equal value; an empty query matches any
// document. Values are compared in their JSON-decoded form, so an int in
// the query matches the same number stored as a float64.
func Matches(doc Document, query Document) bool {
	if doc == nil {
		return false
	}
	for k, want := range query {
		got, ok := doc[k]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	na, errA := normalizeValue(a)
	nb, errB := normalizeValue(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// normalizeDocument returns a copy of doc in its JSON-decoded form, which
// is how documents are held in memory and written to disk.
func normalizeDocument(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: document is not JSON-compatible: %w", ErrInvalidArgument, err)
	}
	out := Document{}
	if err = json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(b, &out)
	return out, err
}

// cloneDocument deep-copies a normalized document.
func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case Document:
		return cloneDocument(val)
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	default:
		return val
	}
}

// applyPatch overwrites the patched fields of doc in place.
func applyPatch(doc Document, set Document) {
	for k, v := range set {
		doc[k] = cloneValue(v)
	}
}
