package kontent

import (
	"context"
	"time"
)

// Observer receives the outcome of every collaborator call.
type Observer interface {
	ObserveCall(op string, elapsed time.Duration, err error)
}

// Observed wraps a Client so each call is reported to obs.
func Observed(c Client, obs Observer) Client {
	if obs == nil {
		return c
	}
	return &observed{next: c, obs: obs}
}

type observed struct {
	next Client
	obs  Observer
}

func (o *observed) report(op string, start time.Time, err error) {
	o.obs.ObserveCall(op, time.Since(start), err)
}

func (o *observed) FetchItem(ctx context.Context, environmentID, itemID string) (ContentItem, error) {
	start := time.Now()
	item, err := o.next.FetchItem(ctx, environmentID, itemID)
	o.report("fetch_item", start, err)
	return item, err
}

func (o *observed) FetchVariant(ctx context.Context, environmentID, itemID, languageID string) (LanguageVariant, error) {
	start := time.Now()
	v, err := o.next.FetchVariant(ctx, environmentID, itemID, languageID)
	o.report("fetch_variant", start, err)
	return v, err
}

func (o *observed) FetchContentType(ctx context.Context, environmentID, typeID string) (TypeWithSnippets, error) {
	start := time.Now()
	ts, err := o.next.FetchContentType(ctx, environmentID, typeID)
	o.report("fetch_content_type", start, err)
	return ts, err
}

func (o *observed) FetchTaxonomy(ctx context.Context, environmentID, codename string) (TaxonomyGroup, error) {
	start := time.Now()
	tg, err := o.next.FetchTaxonomy(ctx, environmentID, codename)
	o.report("fetch_taxonomy", start, err)
	return tg, err
}

func (o *observed) FetchLanguage(ctx context.Context, environmentID, languageID string) (Language, error) {
	start := time.Now()
	lang, err := o.next.FetchLanguage(ctx, environmentID, languageID)
	o.report("fetch_language", start, err)
	return lang, err
}

func (o *observed) CreateItem(ctx context.Context, environmentID string, item NewItem) (ContentItem, error) {
	start := time.Now()
	created, err := o.next.CreateItem(ctx, environmentID, item)
	o.report("create_item", start, err)
	return created, err
}

func (o *observed) UpsertVariant(ctx context.Context, environmentID, itemID, languageID string, elements []ElementValue) (LanguageVariant, error) {
	start := time.Now()
	v, err := o.next.UpsertVariant(ctx, environmentID, itemID, languageID, elements)
	o.report("upsert_variant", start, err)
	return v, err
}

func (o *observed) DeleteItem(ctx context.Context, environmentID, itemID string) error {
	start := time.Now()
	err := o.next.DeleteItem(ctx, environmentID, itemID)
	o.report("delete_item", start, err)
	return err
}
