package docstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/madcrx/FADirect/internal/domain"
)

// keyIDField orders the elements TakeOne chooses between.
const keyIDField = "keyId"

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// validField rejects names that cannot be used as a top-level field.
func validField(name string) error {
	if !fieldName.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

// merge applies a top-level partial update to doc, returning a new document.
func merge(doc, patch domain.Document) domain.Document {
	out := make(domain.Document, len(doc)+len(patch))
	for k, v := range doc {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// clone copies a document so stored values never alias caller memory.
func clone(doc domain.Document) domain.Document {
	out := make(domain.Document, len(doc))
	for k, v := range doc {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// matches reports whether doc satisfies f. Strings compare by value,
// everything else by its JSON text.
func matches(doc domain.Document, f domain.Filter) bool {
	if f.Field == "" {
		return true
	}
	raw, ok := doc[f.Field]
	if !ok {
		return false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s == f.Value
	}
	return string(raw) == f.Value
}

// takeFrom removes one element of the array in doc[field] according to pick
// and returns the element and the rewritten document. ok is false when the
// field is missing or empty.
func takeFrom(doc domain.Document, field string, pick domain.Pick) (json.RawMessage, domain.Document, bool, error) {
	raw, present := doc[field]
	if !present {
		return nil, doc, false, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, doc, false, fmt.Errorf("field %q is not an array: %w", field, err)
	}
	if len(items) == 0 {
		return nil, doc, false, nil
	}

	best := -1
	var bestID uint64
	for i, item := range items {
		id, err := elementKeyID(item)
		if err != nil {
			return nil, doc, false, err
		}
		if best < 0 ||
			(pick == domain.PickLowest && id < bestID) ||
			(pick == domain.PickHighest && id > bestID) {
			best, bestID = i, id
		}
	}

	taken := items[best]
	rest := append(items[:best:best], items[best+1:]...)
	encoded, err := json.Marshal(rest)
	if err != nil {
		return nil, doc, false, err
	}
	return taken, merge(doc, domain.Document{field: encoded}), true, nil
}

// appendTo adds items to the array in doc[field], creating it if needed.
func appendTo(doc domain.Document, field string, items []json.RawMessage) (domain.Document, error) {
	var existing []json.RawMessage
	if raw, ok := doc[field]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, fmt.Errorf("field %q is not an array: %w", field, err)
		}
	}
	encoded, err := json.Marshal(append(existing, items...))
	if err != nil {
		return nil, err
	}
	return merge(doc, domain.Document{field: encoded}), nil
}

func elementKeyID(item json.RawMessage) (uint64, error) {
	var el map[string]json.RawMessage
	if err := json.Unmarshal(item, &el); err != nil {
		return 0, fmt.Errorf("array element is not an object: %w", err)
	}
	raw, ok := el[keyIDField]
	if !ok {
		return 0, fmt.Errorf("array element has no %q", keyIDField)
	}
	return strconv.ParseUint(string(raw), 10, 64)
}
