package personalization

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

func sampleTree() []kontent.TaxonomyTerm {
	return []kontent.TaxonomyTerm{
		{ID: "a", Name: "A", Codename: "a", Terms: []kontent.TaxonomyTerm{
			{ID: "a1", Name: "A1", Codename: "a1", Terms: []kontent.TaxonomyTerm{
				{ID: "a1x", Name: "A1x", Codename: "dup"},
			}},
			{ID: "a2", Name: "A2", Codename: "a2"},
		}},
		{ID: "b", Name: "B", Codename: "dup"},
		{ID: "c", Name: "C", Codename: "c"},
	}
}

func TestFlattenPreOrder(t *testing.T) {
	got := Flatten(sampleTree())
	want := []Term{
		{ID: "a", Name: "A", Codename: "a"},
		{ID: "a1", Name: "A1", Codename: "a1"},
		{ID: "a1x", Name: "A1x", Codename: "dup"},
		{ID: "a2", Name: "A2", Codename: "a2"},
		{ID: "b", Name: "B", Codename: "dup"},
		{ID: "c", Name: "C", Codename: "c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Flatten mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, Flatten(nil))
}

func TestFlattenDeepTree(t *testing.T) {
	root := kontent.TaxonomyTerm{ID: "0", Codename: "0"}
	cur := &root
	for i := 1; i < 10000; i++ {
		cur.Terms = []kontent.TaxonomyTerm{{ID: "x", Codename: "x"}}
		cur = &cur.Terms[0]
	}
	assert.Len(t, Flatten([]kontent.TaxonomyTerm{root}), 10000)
}

func TestFindTermIDByCodename(t *testing.T) {
	id, ok := FindTermIDByCodename(sampleTree(), "dup")
	require.True(t, ok)
	assert.Equal(t, "a1x", id, "first pre-order match wins")

	id, ok = FindTermIDByCodename(sampleTree(), "c")
	require.True(t, ok)
	assert.Equal(t, "c", id)

	_, ok = FindTermIDByCodename(sampleTree(), "missing")
	assert.False(t, ok)
	_, ok = FindTermIDByCodename(nil, "a")
	assert.False(t, ok)
}

func TestTermNames(t *testing.T) {
	names := TermNames(Flatten(sampleTree()))
	assert.Equal(t, "A1x", names["a1x"])
	assert.Len(t, names, 6)
}

func TestBuildElementCodenames(t *testing.T) {
	m := BuildElementCodenames(
		[]kontent.ElementDefinition{
			{ID: "t1", Codename: "title"},
			{ID: "", Codename: "no_id"},
			{ID: "t2", Codename: ""},
		},
		[][]kontent.ElementDefinition{
			{{ID: "s1", Codename: "snip__one"}},
			{{ID: "s2", Codename: "other__two"}, {ID: "t1", Codename: "renamed"}},
		},
	)
	require.Equal(t, 3, m.Len())

	c, ok := m.Codename("t1")
	require.True(t, ok)
	assert.Equal(t, "renamed", c, "last write wins")

	var ids []string
	for id := range m.All() {
		ids = append(ids, id)
	}
	assert.Equal(t, []string{"t1", "s1", "s2"}, ids, "re-set id keeps its position")

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"t1":"renamed","s1":"snip__one","s2":"other__two"}`, string(raw))
}

func TestNilElementCodenames(t *testing.T) {
	var m *ElementCodenames
	assert.Equal(t, 0, m.Len())
	_, ok := m.FindBySuffix("x")
	assert.False(t, ok)
	assert.False(t, HasPersonalizationCapability(m, DefaultCodenames()))
}

func personalizationCodenames() *ElementCodenames {
	return CodenamesFor(personalizedFixture().types[typeID])
}

func TestFindBySuffix(t *testing.T) {
	m := personalizationCodenames()
	id, ok := m.FindBySuffix("variant_type")
	require.True(t, ok)
	assert.Equal(t, elVariant, id)
	_, ok = m.FindBySuffix("nope")
	assert.False(t, ok)
}

func TestHasPersonalizationCapability(t *testing.T) {
	cfg := DefaultCodenames()
	full := personalizationCodenames()
	require.True(t, HasPersonalizationCapability(full, cfg))

	for _, drop := range []string{elVariant, elAudience, elContentVar} {
		t.Run(drop, func(t *testing.T) {
			m := NewElementCodenames()
			for id, c := range full.All() {
				if id != drop {
					m.Set(id, c)
				}
			}
			assert.False(t, HasPersonalizationCapability(m, cfg))
		})
	}
}

func TestResolveElements(t *testing.T) {
	els, ok := ResolveElements(personalizationCodenames(), DefaultCodenames())
	require.True(t, ok)
	assert.Equal(t, Elements{VariantType: elVariant, Audience: elAudience, ContentVariants: elContentVar}, els)
}

func TestResolveElementsIgnoresTypeAudienceElement(t *testing.T) {
	m := NewElementCodenames()
	m.Set("el-target", "target_audience")
	for id, c := range personalizationCodenames().All() {
		m.Set(id, c)
	}
	els, ok := ResolveElements(m, DefaultCodenames())
	require.True(t, ok)
	assert.Equal(t, elAudience, els.Audience)
	assert.Empty(t, AmbiguousSuffixes(m, DefaultCodenames()))
}

func TestAmbiguousSuffixes(t *testing.T) {
	cfg := DefaultCodenames()
	m := personalizationCodenames()
	assert.Empty(t, AmbiguousSuffixes(m, cfg))

	m.Set("el-second", "second__variant_type")
	got := AmbiguousSuffixes(m, cfg)
	assert.Equal(t, map[string][]string{"variant_type": {elVariant, "el-second"}}, got)

	id, _ := m.FindBySuffix("variant_type")
	assert.Equal(t, elVariant, id, "first match still wins")
}

func TestExtractReferenceIDs(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{"ordered", `[{"id":"x"},{"id":"y"},{"id":"z"}]`, []string{"x", "y", "z"}},
		{"extra keys", `[{"id":"x","codename":"cx"}]`, []string{"x"}},
		{"empty list", `[]`, []string{}},
		{"null", `null`, []string{}},
		{"object", `{"id":"x"}`, []string{}},
		{"string", `"x"`, []string{}},
		{"numeric id", `[{"id":1}]`, []string{}},
		{"null id", `[{"id":null}]`, []string{}},
		{"missing id", `[{"codename":"x"}]`, []string{}},
		{"mixed entries", `[{"id":"x"},"y"]`, []string{}},
		{"null entry", `[{"id":"x"},null]`, []string{}},
		{"invalid json", `[{`, []string{}},
		{"rich text", `"<p>hello</p>"`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := []kontent.ElementValue{{Element: kontent.Reference{ID: "e"}, Value: json.RawMessage(tt.value)}}
			got := ExtractReferenceIDs(values, "e")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractReferenceIDsRoundTrip(t *testing.T) {
	ids := []string{"c", "a", "b", "a2"}
	values := []kontent.ElementValue{{Element: kontent.Reference{ID: "e"}, Value: kontent.ReferenceList(ids...)}}
	assert.Equal(t, ids, ExtractReferenceIDs(values, "e"))
}

func TestExtractReferenceIDsMissingElement(t *testing.T) {
	values := []kontent.ElementValue{{Element: kontent.Reference{ID: "e"}, Value: refs("x")}}
	assert.Equal(t, []string{}, ExtractReferenceIDs(values, "other"))
	assert.Equal(t, []string{}, ExtractReferenceIDs(values, ""))
	assert.Equal(t, []string{}, ExtractReferenceIDs(nil, "e"))
}

func TestExtractSingleReferenceID(t *testing.T) {
	values := []kontent.ElementValue{
		{Element: kontent.Reference{ID: "one"}, Value: refs("aud-1", "aud-2")},
		{Element: kontent.Reference{ID: "none"}, Value: refs()},
		{Element: kontent.Reference{ID: "bad"}, Value: json.RawMessage(`"aud-1"`)},
	}
	id, ok := ExtractSingleReferenceID(values, "one")
	require.True(t, ok)
	assert.Equal(t, "aud-1", id)

	_, ok = ExtractSingleReferenceID(values, "none")
	assert.False(t, ok)
	_, ok = ExtractSingleReferenceID(values, "bad")
	assert.False(t, ok)
}

func TestIsVariant(t *testing.T) {
	good := []kontent.ElementValue{{Element: kontent.Reference{ID: elVariant}, Value: refs(termBase, termVariant)}}
	assert.True(t, IsVariant(good, elVariant, termVariant))
	assert.False(t, IsVariant(good, elVariant, "term-other"))

	// Degenerate inputs all classify as base content.
	malformed := []kontent.ElementValue{{Element: kontent.Reference{ID: elVariant}, Value: json.RawMessage(`{"id":"term-variant"}`)}}
	empty := []kontent.ElementValue{{Element: kontent.Reference{ID: elVariant}, Value: refs()}}
	assert.False(t, IsVariant(good, elVariant, ""), "missing term id")
	assert.False(t, IsVariant(good, "", termVariant), "missing element id")
	assert.False(t, IsVariant(nil, elVariant, termVariant), "element absent")
	assert.False(t, IsVariant(malformed, elVariant, termVariant), "malformed value")
	assert.False(t, IsVariant(empty, elVariant, termVariant), "empty list")
}
