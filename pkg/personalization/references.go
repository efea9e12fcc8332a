package personalization

import (
	"encoding/json"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// ExtractReferenceIDs returns the ids referenced by the element's value, in
// source order. A missing element or a value that is not a list of {"id"}
// objects yields an empty slice.
func ExtractReferenceIDs(values []kontent.ElementValue, elementID string) []string {
	v, ok := findValue(values, elementID)
	if !ok {
		return []string{}
	}
	ids, ok := parseReferences(v)
	if !ok {
		return []string{}
	}
	return ids
}

// ExtractSingleReferenceID returns the first referenced id, for elements
// modelled as a list of at most one reference.
func ExtractSingleReferenceID(values []kontent.ElementValue, elementID string) (string, bool) {
	ids := ExtractReferenceIDs(values, elementID)
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

func findValue(values []kontent.ElementValue, elementID string) (json.RawMessage, bool) {
	if elementID == "" {
		return nil, false
	}
	for _, v := range values {
		if v.Element.ID == elementID {
			return v.Value, true
		}
	}
	return nil, false
}

// parseReferences accepts only a JSON array whose entries are all objects
// with a string "id". Other keys are ignored.
func parseReferences(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return nil, false
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e == nil {
			return nil, false
		}
		var id string
		rawID, ok := e["id"]
		if !ok || json.Unmarshal(rawID, &id) != nil || isNull(rawID) {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
