package personalization

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// fakeClient is an in-memory kontent.Client. Delays and failures can be
// injected per item id.
type fakeClient struct {
	mu         sync.Mutex
	items      map[string]kontent.ContentItem
	variants   map[string]kontent.LanguageVariant // key: itemID/languageID
	types      map[string]kontent.TypeWithSnippets
	taxonomies map[string]kontent.TaxonomyGroup
	languages  map[string]kontent.Language

	delays       map[string]time.Duration
	failItem     map[string]error
	failVariant  map[string]error
	failTaxonomy error
	failUpsert   error
	nextID       int
	deleted      []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		items:       map[string]kontent.ContentItem{},
		variants:    map[string]kontent.LanguageVariant{},
		types:       map[string]kontent.TypeWithSnippets{},
		taxonomies:  map[string]kontent.TaxonomyGroup{},
		languages:   map[string]kontent.Language{},
		delays:      map[string]time.Duration{},
		failItem:    map[string]error{},
		failVariant: map[string]error{},
	}
}

func variantKey(itemID, languageID string) string { return itemID + "/" + languageID }

func (f *fakeClient) wait(ctx context.Context, itemID string) error {
	f.mu.Lock()
	d := f.delays[itemID]
	f.mu.Unlock()
	if d == 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeClient) FetchItem(ctx context.Context, _, itemID string) (kontent.ContentItem, error) {
	if err := f.wait(ctx, itemID); err != nil {
		return kontent.ContentItem{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failItem[itemID]; err != nil {
		return kontent.ContentItem{}, err
	}
	item, ok := f.items[itemID]
	if !ok {
		return kontent.ContentItem{}, kontent.ErrNotFound
	}
	return item, nil
}

func (f *fakeClient) FetchVariant(ctx context.Context, _, itemID, languageID string) (kontent.LanguageVariant, error) {
	if err := f.wait(ctx, itemID); err != nil {
		return kontent.LanguageVariant{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failVariant[itemID]; err != nil {
		return kontent.LanguageVariant{}, err
	}
	v, ok := f.variants[variantKey(itemID, languageID)]
	if !ok {
		return kontent.LanguageVariant{}, kontent.ErrNotFound
	}
	v.Elements = slices.Clone(v.Elements)
	return v, nil
}

func (f *fakeClient) FetchContentType(_ context.Context, _, typeID string) (kontent.TypeWithSnippets, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.types[typeID]
	if !ok {
		return kontent.TypeWithSnippets{}, kontent.ErrNotFound
	}
	return ts, nil
}

func (f *fakeClient) FetchTaxonomy(_ context.Context, _, codename string) (kontent.TaxonomyGroup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTaxonomy != nil {
		return kontent.TaxonomyGroup{}, f.failTaxonomy
	}
	tg, ok := f.taxonomies[codename]
	if !ok {
		return kontent.TaxonomyGroup{}, kontent.ErrNotFound
	}
	return tg, nil
}

func (f *fakeClient) FetchLanguage(_ context.Context, _, languageID string) (kontent.Language, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	lang, ok := f.languages[languageID]
	if !ok {
		return kontent.Language{}, kontent.ErrNotFound
	}
	return lang, nil
}

func (f *fakeClient) CreateItem(_ context.Context, _ string, item kontent.NewItem) (kontent.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := kontent.ContentItem{ID: fmt.Sprintf("new-%d", f.nextID), Name: item.Name, Type: item.Type}
	f.items[created.ID] = created
	return created, nil
}

func (f *fakeClient) UpsertVariant(_ context.Context, _, itemID, languageID string, elements []kontent.ElementValue) (kontent.LanguageVariant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return kontent.LanguageVariant{}, f.failUpsert
	}
	key := variantKey(itemID, languageID)
	v, ok := f.variants[key]
	if !ok {
		v = kontent.LanguageVariant{Item: kontent.Reference{ID: itemID}, Language: kontent.Reference{ID: languageID}}
	}
	for _, e := range elements {
		replaced := false
		for i := range v.Elements {
			if v.Elements[i].Element.ID == e.Element.ID {
				v.Elements[i].Value = e.Value
				replaced = true
			}
		}
		if !replaced {
			v.Elements = append(v.Elements, e)
		}
	}
	f.variants[key] = v
	return v, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, _, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[itemID]; !ok {
		return kontent.ErrNotFound
	}
	delete(f.items, itemID)
	f.deleted = append(f.deleted, itemID)
	return nil
}

// Fixture ids.
const (
	envID        = "env"
	langID       = "lang-en"
	typeID       = "type-article"
	elVariant    = "el-variant-type"
	elAudience   = "el-audience"
	elContentVar = "el-content-variants"
	elTitle      = "el-title"
	termBase     = "term-base"
	termVariant  = "term-variant"
	termStudents = "term-students"
)

func refs(ids ...string) json.RawMessage { return kontent.ReferenceList(ids...) }

// personalizedFixture returns a client with an article type carrying the
// personalization snippet and both taxonomies.
func personalizedFixture() *fakeClient {
	f := newFakeClient()
	f.types[typeID] = kontent.TypeWithSnippets{
		ContentType: kontent.ContentType{
			ID: typeID, Name: "Article", Codename: "article",
			Elements: []kontent.ElementDefinition{
				{ID: elTitle, Codename: "title", Type: kontent.ElementTypeText},
				{ID: "el-snippet", Codename: "personalization", Type: kontent.ElementTypeSnippet, Snippet: &kontent.Reference{ID: "snip"}},
			},
		},
		Snippets: []kontent.Snippet{{
			ID: "snip", Codename: "personalization",
			Elements: []kontent.ElementDefinition{
				{ID: elVariant, Codename: "personalization__variant_type", Type: "taxonomy"},
				{ID: elAudience, Codename: "personalization__audience", Type: "taxonomy"},
				{ID: elContentVar, Codename: "personalization__content_variants", Type: "modular_content"},
			},
		}},
	}
	f.taxonomies["variant_type"] = kontent.TaxonomyGroup{
		Codename: "variant_type",
		Terms: []kontent.TaxonomyTerm{
			{ID: termBase, Codename: "base", Name: "Base"},
			{ID: termVariant, Codename: "variant", Name: "Variant"},
		},
	}
	f.taxonomies["personalization_audiences"] = kontent.TaxonomyGroup{
		Codename: "personalization_audiences",
		Terms: []kontent.TaxonomyTerm{
			{ID: termStudents, Codename: "students", Name: "Students"},
		},
	}
	f.languages[langID] = kontent.Language{ID: langID, Codename: "en-US", Name: "English"}
	return f
}

// addItem stores an article item with the given personalization values.
func (f *fakeClient) addItem(id, name string, variantType, audience, linked json.RawMessage) {
	f.items[id] = kontent.ContentItem{ID: id, Name: name, Type: kontent.Reference{ID: typeID}}
	var els []kontent.ElementValue
	els = append(els, kontent.ElementValue{Element: kontent.Reference{ID: elTitle}, Value: json.RawMessage(`"` + name + `"`)})
	if variantType != nil {
		els = append(els, kontent.ElementValue{Element: kontent.Reference{ID: elVariant}, Value: variantType})
	}
	if audience != nil {
		els = append(els, kontent.ElementValue{Element: kontent.Reference{ID: elAudience}, Value: audience})
	}
	if linked != nil {
		els = append(els, kontent.ElementValue{Element: kontent.Reference{ID: elContentVar}, Value: linked})
	}
	f.variants[variantKey(id, langID)] = kontent.LanguageVariant{
		Item: kontent.Reference{ID: id}, Language: kontent.Reference{ID: langID}, Elements: els,
	}
}
