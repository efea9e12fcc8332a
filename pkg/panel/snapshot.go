// Package panel assembles what the personalization panel shows for one item
// and keeps the latest result of repeated refreshes.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nickm615/personalization-custom-app-example/pkg/excerpt"
	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
	"github.com/Nickm615/personalization-custom-app-example/pkg/personalization"
)

// Badge and notice texts.
const (
	LabelBaseContent = "Base Content"
	LabelVariant     = "Variant"
	LabelNoAudience  = "No audience"

	NoticeNoSnippet = "This content type does not have the personalization snippet attached. " +
		"The snippet should include variant_type, personalization_audience, and content_variants elements."
	NoticeVariant = "This item is a personalization variant. To manage variants, please open the base content item."

	messageTaxonomyNotFound = "Variant type taxonomy not found"
)

// ItemSummary describes the current item.
type ItemSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Codename   string `json:"codename"`
	TypeName   string `json:"typeName"`
	Status     string `json:"status"`
	IsVariant  bool   `json:"isVariant"`
	HasSnippet bool   `json:"hasSnippet"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// VariantCard is one entry of the variant list.
type VariantCard struct {
	personalization.VariantInfo
	AudienceName string `json:"audienceName,omitempty"`
	// Badge is "Base Content", the audience name, or "No audience".
	Badge string `json:"badge"`
	// Link is empty when the language could not be loaded.
	Link string `json:"link,omitempty"`
}

// Audience is a term of the audience taxonomy.
type Audience struct {
	personalization.Term
	HasVariant bool `json:"hasVariant"`
}

// Snapshot is everything the panel renders for one item. It is never
// modified after Load returns it.
type Snapshot struct {
	EnvironmentID string                    `json:"environmentId"`
	ItemID        string                    `json:"itemId"`
	LanguageID    string                    `json:"languageId"`
	Item          ItemSummary               `json:"item"`
	Language      *kontent.Language         `json:"language,omitempty"`
	Elements      *personalization.Elements `json:"elements,omitempty"`
	Notice        string                    `json:"notice,omitempty"`
	// Variants is only filled for base items with the snippet.
	Variants      []VariantCard `json:"variants"`
	VariantsError string        `json:"variantsError,omitempty"`
	Audiences     []Audience    `json:"audiences"`
	Warnings      []string      `json:"warnings,omitempty"`
	LoadedAt      time.Time     `json:"loadedAt"`
}

// AggregationObserver is told how long each aggregation took.
type AggregationObserver interface {
	ObserveAggregation(elapsed time.Duration, variants int)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Codenames     personalization.Codenames
	Concurrency   int
	ExcerptLength int
	AppURL        string
	Logger        *zap.Logger
	Observer      AggregationObserver
	Excerpts      *excerpt.Extractor
}

// Loader builds Snapshots.
type Loader struct {
	reader     kontent.Reader
	current    *personalization.Loader
	aggregator *personalization.Aggregator
	excerpts   *excerpt.Extractor
	codenames  personalization.Codenames
	appURL     string
	excerptLen int
	logger     *zap.Logger
	observer   AggregationObserver
	now        func() time.Time
}

// NewLoader creates a Loader reading through r.
func NewLoader(r kontent.Reader, cfg LoaderConfig) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ex := cfg.Excerpts
	if ex == nil {
		ex = excerpt.New(logger)
	}
	appURL := strings.TrimRight(cfg.AppURL, "/")
	if appURL == "" {
		appURL = "https://app.kontent.ai"
	}
	opts := []personalization.Option{
		personalization.WithLogger(logger),
		personalization.WithConcurrency(cfg.Concurrency),
	}
	return &Loader{
		reader:     r,
		current:    personalization.NewLoader(r, cfg.Codenames, opts...),
		aggregator: personalization.NewAggregator(r, cfg.Codenames, opts...),
		excerpts:   ex,
		codenames:  cfg.Codenames,
		appURL:     appURL,
		excerptLen: cfg.ExcerptLength,
		logger:     logger,
		observer:   cfg.Observer,
		now:        time.Now,
	}
}

// Load fetches the current item together with its language and the audience
// taxonomy, then resolves the linked variants of a base item. Only a failure
// to load the item itself fails the call; the rest is reported in Warnings
// or VariantsError.
func (l *Loader) Load(ctx context.Context, environmentID, itemID, languageID string) (*Snapshot, error) {
	var (
		view      *personalization.CurrentItemView
		language  *kontent.Language
		audiences []personalization.Term
		warnings  [2]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		view, err = l.current.Load(gctx, environmentID, itemID, languageID)
		return err
	})
	g.Go(func() error {
		lang, err := l.reader.FetchLanguage(gctx, environmentID, languageID)
		if err != nil {
			warnings[0] = "language unavailable: " + err.Error()
			return nil
		}
		language = &lang
		return nil
	})
	g.Go(func() error {
		tg, err := l.reader.FetchTaxonomy(gctx, environmentID, l.codenames.AudienceTaxonomy)
		if err != nil {
			warnings[1] = "audience taxonomy unavailable: " + err.Error()
			return nil
		}
		audiences = personalization.Flatten(tg.Terms)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		EnvironmentID: environmentID,
		ItemID:        itemID,
		LanguageID:    languageID,
		Item:          l.summary(view, language),
		Language:      language,
		Audiences:     make([]Audience, 0, len(audiences)),
		LoadedAt:      l.now().UTC(),
	}
	for _, w := range warnings {
		if w != "" {
			snap.Warnings = append(snap.Warnings, w)
		}
	}

	switch {
	case !view.HasSnippet:
		snap.Notice = NoticeNoSnippet
	case view.IsVariant:
		els := view.Elements
		snap.Elements = &els
		snap.Notice = NoticeVariant
	default:
		els := view.Elements
		snap.Elements = &els
		if err := l.loadVariants(ctx, snap, view, audiences); err != nil {
			return nil, err
		}
	}

	used := make(map[string]bool, len(snap.Variants))
	for _, v := range snap.Variants {
		if v.AudienceTermID != "" {
			used[v.AudienceTermID] = true
		}
	}
	for _, t := range audiences {
		snap.Audiences = append(snap.Audiences, Audience{Term: t, HasVariant: used[t.ID]})
	}
	return snap, nil
}

func (l *Loader) loadVariants(ctx context.Context, snap *Snapshot, view *personalization.CurrentItemView, audiences []personalization.Term) error {
	start := time.Now()
	infos, err := l.aggregator.Aggregate(ctx, snap.EnvironmentID, snap.LanguageID, view.LinkedItemIDs(), view)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, personalization.ErrVariantTaxonomyNotFound) {
			snap.VariantsError = messageTaxonomyNotFound
		} else {
			snap.VariantsError = err.Error()
		}
		snap.Variants = []VariantCard{}
		l.logger.Warn("failed to load variants", zap.String("item_id", snap.ItemID), zap.Error(err))
		return nil
	}
	if l.observer != nil {
		l.observer.ObserveAggregation(time.Since(start), len(infos))
	}

	names := personalization.TermNames(audiences)
	snap.Variants = make([]VariantCard, 0, len(infos))
	for _, info := range infos {
		card := VariantCard{VariantInfo: info}
		if info.AudienceTermID != "" {
			card.AudienceName = names[info.AudienceTermID]
		}
		switch {
		case info.IsBaseContent:
			card.Badge = LabelBaseContent
		case card.AudienceName != "":
			card.Badge = card.AudienceName
		default:
			card.Badge = LabelNoAudience
		}
		if snap.Language != nil {
			card.Link = l.ItemLink(snap.EnvironmentID, snap.Language.ID, info.ID)
		}
		snap.Variants = append(snap.Variants, card)
	}
	return nil
}

// ItemLink returns the editor URL of an item.
func (l *Loader) ItemLink(environmentID, languageID, itemID string) string {
	return fmt.Sprintf("%s/%s/content-inventory/%s/content/%s", l.appURL, environmentID, languageID, itemID)
}

func (l *Loader) summary(view *personalization.CurrentItemView, language *kontent.Language) ItemSummary {
	s := ItemSummary{
		ID:         view.Item.ID,
		Name:       view.Item.Name,
		Codename:   view.Item.Codename,
		TypeName:   view.ContentType.Name,
		Status:     LabelBaseContent,
		IsVariant:  view.IsVariant,
		HasSnippet: view.HasSnippet,
	}
	if view.IsVariant {
		s.Status = LabelVariant
	}
	if l.excerptLen > 0 {
		langCodename := ""
		if language != nil {
			langCodename = language.Codename
		}
		s.Excerpt = l.excerpts.Excerpt(richText(view), langCodename, l.excerptLen)
	}
	return s
}

// richText returns the value of the first rich-text element of the item's
// own content type.
func richText(view *personalization.CurrentItemView) string {
	for _, def := range view.ContentType.Elements {
		if def.Type != kontent.ElementTypeRichText {
			continue
		}
		for _, v := range view.Variant.Elements {
			if v.Element.ID != def.ID {
				continue
			}
			var body string
			if err := json.Unmarshal(v.Value, &body); err == nil {
				return body
			}
		}
	}
	return ""
}

// ErrNotBaseItem is returned when variants are requested for an item that is
// not a base item with the personalization snippet.
var ErrNotBaseItem = errors.New("item is not a personalizable base item")

// VariantRequest resolves everything CreateVariant needs to create a variant
// of a base item for the given audience term.
func (l *Loader) VariantRequest(ctx context.Context, environmentID, itemID, languageID, audienceTermID string) (personalization.CreateVariantRequest, error) {
	view, err := l.baseView(ctx, environmentID, itemID, languageID)
	if err != nil {
		return personalization.CreateVariantRequest{}, err
	}
	termID, err := personalization.VariantTermID(ctx, l.reader, environmentID, l.codenames)
	if err != nil {
		return personalization.CreateVariantRequest{}, err
	}
	tg, err := l.reader.FetchTaxonomy(ctx, environmentID, l.codenames.AudienceTaxonomy)
	if err != nil {
		return personalization.CreateVariantRequest{}, fmt.Errorf("audience taxonomy: %w", err)
	}
	name, ok := personalization.TermNames(personalization.Flatten(tg.Terms))[audienceTermID]
	if !ok {
		return personalization.CreateVariantRequest{}, fmt.Errorf("%w: unknown audience term %q", personalization.ErrInvalidRequest, audienceTermID)
	}
	return personalization.CreateVariantRequest{
		EnvironmentID:            environmentID,
		SourceItemID:             itemID,
		LanguageID:               languageID,
		AudienceTermID:           audienceTermID,
		AudienceName:             name,
		VariantTermID:            termID,
		VariantTypeElementID:     view.Elements.VariantType,
		AudienceElementID:        view.Elements.Audience,
		ContentVariantsElementID: view.Elements.ContentVariants,
	}, nil
}

// BaseElements returns the personalization elements of a base item.
func (l *Loader) BaseElements(ctx context.Context, environmentID, itemID, languageID string) (personalization.Elements, error) {
	view, err := l.baseView(ctx, environmentID, itemID, languageID)
	if err != nil {
		return personalization.Elements{}, err
	}
	return view.Elements, nil
}

func (l *Loader) baseView(ctx context.Context, environmentID, itemID, languageID string) (*personalization.CurrentItemView, error) {
	view, err := l.current.Load(ctx, environmentID, itemID, languageID)
	if err != nil {
		return nil, err
	}
	if !view.HasSnippet || view.IsVariant {
		return nil, ErrNotBaseItem
	}
	return view, nil
}
