package personalization

import "github.com/Nickm615/personalization-custom-app-example/pkg/kontent"

// Term is a flattened taxonomy term.
type Term struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Codename string `json:"codename"`
}

// Flatten lists every term of the tree, parents included, in depth-first
// pre-order.
func Flatten(terms []kontent.TaxonomyTerm) []Term {
	out := make([]Term, 0, len(terms))
	walk(terms, func(t *kontent.TaxonomyTerm) bool {
		out = append(out, Term{ID: t.ID, Name: t.Name, Codename: t.Codename})
		return true
	})
	return out
}

// FindTermIDByCodename returns the id of the first term, in pre-order, whose
// codename matches.
func FindTermIDByCodename(terms []kontent.TaxonomyTerm, codename string) (string, bool) {
	var id string
	var found bool
	walk(terms, func(t *kontent.TaxonomyTerm) bool {
		if t.Codename == codename {
			id, found = t.ID, true
			return false
		}
		return true
	})
	return id, found
}

// TermNames maps term id to term name.
func TermNames(terms []Term) map[string]string {
	m := make(map[string]string, len(terms))
	for _, t := range terms {
		m[t.ID] = t.Name
	}
	return m
}

// walk visits terms in pre-order using an explicit stack until visit
// returns false.
func walk(terms []kontent.TaxonomyTerm, visit func(*kontent.TaxonomyTerm) bool) {
	stack := make([]*kontent.TaxonomyTerm, 0, len(terms))
	for i := len(terms) - 1; i >= 0; i-- {
		stack = append(stack, &terms[i])
	}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(t) {
			return
		}
		for i := len(t.Terms) - 1; i >= 0; i-- {
			stack = append(stack, &t.Terms[i])
		}
	}
}
