package personalization

import (
	"bytes"
	"encoding/json"
	"iter"
	"strings"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// ElementCodenames maps element id to codename and remembers insertion order.
// Re-setting an existing id replaces its codename but keeps its position.
type ElementCodenames struct {
	order []string
	byID  map[string]string
}

// NewElementCodenames returns an empty map.
func NewElementCodenames() *ElementCodenames {
	return &ElementCodenames{byID: make(map[string]string)}
}

// BuildElementCodenames merges the type's own elements with the elements of
// its snippets, in attachment order. Definitions missing an id or codename
// are skipped.
func BuildElementCodenames(typeElements []kontent.ElementDefinition, snippetElements [][]kontent.ElementDefinition) *ElementCodenames {
	m := NewElementCodenames()
	m.addAll(typeElements)
	for _, group := range snippetElements {
		m.addAll(group)
	}
	return m
}

// CodenamesFor builds the map for a fetched content type.
func CodenamesFor(ts kontent.TypeWithSnippets) *ElementCodenames {
	groups := make([][]kontent.ElementDefinition, 0, len(ts.Snippets))
	for _, s := range ts.Snippets {
		groups = append(groups, s.Elements)
	}
	return BuildElementCodenames(ts.ContentType.Elements, groups)
}

func (m *ElementCodenames) addAll(defs []kontent.ElementDefinition) {
	for _, d := range defs {
		if d.ID == "" || d.Codename == "" {
			continue
		}
		m.Set(d.ID, d.Codename)
	}
}

// Set maps id to codename.
func (m *ElementCodenames) Set(id, codename string) {
	if _, ok := m.byID[id]; !ok {
		m.order = append(m.order, id)
	}
	m.byID[id] = codename
}

// Codename returns the codename of id.
func (m *ElementCodenames) Codename(id string) (string, bool) {
	if m == nil {
		return "", false
	}
	c, ok := m.byID[id]
	return c, ok
}

// Len returns the number of mapped elements.
func (m *ElementCodenames) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// All iterates id/codename pairs in insertion order.
func (m *ElementCodenames) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		if m == nil {
			return
		}
		for _, id := range m.order {
			if !yield(id, m.byID[id]) {
				return
			}
		}
	}
}

// FindBySuffix returns the id of the first element, in insertion order, whose
// codename ends with suffix.
func (m *ElementCodenames) FindBySuffix(suffix string) (string, bool) {
	for id, codename := range m.All() {
		if strings.HasSuffix(codename, suffix) {
			return id, true
		}
	}
	return "", false
}

// MatchesBySuffix returns every element id whose codename ends with suffix.
// More than one match means FindBySuffix picked the first of several
// candidates.
func (m *ElementCodenames) MatchesBySuffix(suffix string) []string {
	var ids []string
	for id, codename := range m.All() {
		if strings.HasSuffix(codename, suffix) {
			ids = append(ids, id)
		}
	}
	return ids
}

// MarshalJSON encodes the map as an object; key order follows insertion.
func (m *ElementCodenames) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	i := 0
	for id, codename := range m.All() {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(codename)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
		i++
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
