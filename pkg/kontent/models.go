package kontent

import "encoding/json"

// Reference points at another entity by id. Codename and ExternalID are only
// populated when the API returns them.
type Reference struct {
	ID         string `json:"id,omitempty"`
	Codename   string `json:"codename,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
}

// ContentItem is the language-independent part of a content item.
type ContentItem struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Codename string    `json:"codename"`
	Type     Reference `json:"type"`
}

// ElementValue holds the value of one element in a language variant.
// Value is kept raw; reference-typed elements carry a list of {"id": ...}.
type ElementValue struct {
	Element Reference       `json:"element"`
	Value   json.RawMessage `json:"value"`
}

// LanguageVariant is the language-specific content of an item.
type LanguageVariant struct {
	Item     Reference      `json:"item"`
	Language Reference      `json:"language"`
	Elements []ElementValue `json:"elements"`
}

// ElementDefinition describes one element of a content type or snippet.
type ElementDefinition struct {
	ID            string     `json:"id"`
	Codename      string     `json:"codename"`
	Name          string     `json:"name,omitempty"`
	Type          string     `json:"type"`
	Snippet       *Reference `json:"snippet,omitempty"`
	TaxonomyGroup *Reference `json:"taxonomy_group,omitempty"`
}

// Element types the service inspects.
const (
	ElementTypeSnippet  = "snippet"
	ElementTypeRichText = "rich_text"
	ElementTypeText     = "text"
)

// ContentType is a content type definition.
type ContentType struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Codename string              `json:"codename"`
	Elements []ElementDefinition `json:"elements"`
}

// Snippet is a reusable group of elements attached to content types.
type Snippet struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Codename string              `json:"codename"`
	Elements []ElementDefinition `json:"elements"`
}

// TypeWithSnippets is a content type together with the snippets attached to
// it, in attachment order.
type TypeWithSnippets struct {
	ContentType ContentType
	Snippets    []Snippet
}

// SnippetIDs returns the ids of snippets attached to ct in element order.
func (ct ContentType) SnippetIDs() []string {
	var ids []string
	for _, el := range ct.Elements {
		if el.Type == ElementTypeSnippet && el.Snippet != nil && el.Snippet.ID != "" {
			ids = append(ids, el.Snippet.ID)
		}
	}
	return ids
}

// TaxonomyTerm is a node of a taxonomy tree.
type TaxonomyTerm struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Codename string         `json:"codename"`
	Terms    []TaxonomyTerm `json:"terms"`
}

// TaxonomyGroup is the root of a taxonomy.
type TaxonomyGroup struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Codename string         `json:"codename"`
	Terms    []TaxonomyTerm `json:"terms"`
}

// Language is an environment language.
type Language struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Codename  string `json:"codename"`
	IsActive  bool   `json:"is_active"`
	IsDefault bool   `json:"is_default"`
}

// NewItem is the payload for creating a content item.
type NewItem struct {
	Name string    `json:"name"`
	Type Reference `json:"type"`
}

// ReferenceList encodes ids as the reference-list shape used by taxonomy and
// linked-items element values.
func ReferenceList(ids ...string) json.RawMessage {
	refs := make([]Reference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, Reference{ID: id})
	}
	b, _ := json.Marshal(refs)
	return b
}
