package personalization

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// CurrentItemView is the resolved state of the item the panel is open on.
// It is never modified after Load returns it.
type CurrentItemView struct {
	Item             kontent.ContentItem     `json:"item"`
	Variant          kontent.LanguageVariant `json:"variant"`
	ContentType      kontent.ContentType     `json:"contentType"`
	Snippets         []kontent.Snippet       `json:"snippets"`
	ElementCodenames *ElementCodenames       `json:"elementCodenames"`
	// Elements is only meaningful when HasSnippet is true.
	Elements   Elements `json:"elements"`
	IsVariant  bool     `json:"isVariant"`
	HasSnippet bool     `json:"hasSnippet"`
}

// LinkedItemIDs returns the ids listed in the item's content-variants element.
func (v *CurrentItemView) LinkedItemIDs() []string {
	if v == nil || !v.HasSnippet {
		return []string{}
	}
	return ExtractReferenceIDs(v.Variant.Elements, v.Elements.ContentVariants)
}

type settings struct {
	logger      *zap.Logger
	concurrency int
}

// Option configures a Loader, Aggregator or Manager.
type Option func(*settings)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConcurrency bounds how many linked items the Aggregator resolves at once.
func WithConcurrency(n int) Option {
	return func(s *settings) { s.concurrency = n }
}

func newSettings(opts []Option) settings {
	s := settings{logger: zap.NewNop(), concurrency: 8}
	for _, o := range opts {
		o(&s)
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	return s
}

// Loader builds CurrentItemViews.
type Loader struct {
	reader    kontent.Reader
	codenames Codenames
	logger    *zap.Logger
}

// NewLoader creates a Loader reading through r.
func NewLoader(r kontent.Reader, codenames Codenames, opts ...Option) *Loader {
	s := newSettings(opts)
	return &Loader{reader: r, codenames: codenames, logger: s.logger}
}

// Load fetches the item, its language variant and its content type, and
// classifies the item. A failure to read the variant-type taxonomy does not
// fail the load; the item is then treated as base content.
func (l *Loader) Load(ctx context.Context, environmentID, itemID, languageID string) (*CurrentItemView, error) {
	var (
		item            kontent.ContentItem
		variant         kontent.LanguageVariant
		itemErr, varErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		item, itemErr = l.reader.FetchItem(ctx, environmentID, itemID)
		return nil
	})
	g.Go(func() error {
		variant, varErr = l.reader.FetchVariant(ctx, environmentID, itemID, languageID)
		return nil
	})
	_ = g.Wait()

	if itemErr != nil {
		return nil, fetchFailed("item", itemErr)
	}
	if varErr != nil {
		return nil, fetchFailed("variant", varErr)
	}

	ts, err := l.reader.FetchContentType(ctx, environmentID, item.Type.ID)
	if err != nil {
		return nil, fetchFailed("content type", err)
	}

	codenames := CodenamesFor(ts)
	elements, hasSnippet := ResolveElements(codenames, l.codenames)
	for suffix, ids := range AmbiguousSuffixes(codenames, l.codenames) {
		l.logger.Warn("several elements match personalization suffix; using the first",
			zap.String("content_type", ts.ContentType.Codename),
			zap.String("suffix", suffix),
			zap.Strings("element_ids", ids))
	}

	view := &CurrentItemView{
		Item:             item,
		Variant:          variant,
		ContentType:      ts.ContentType,
		Snippets:         ts.Snippets,
		ElementCodenames: codenames,
		HasSnippet:       hasSnippet,
	}
	if !hasSnippet {
		return view, nil
	}
	view.Elements = elements

	termID, err := VariantTermID(ctx, l.reader, environmentID, l.codenames)
	if err != nil {
		l.logger.Debug("classifying item as base content", zap.String("item_id", itemID), zap.Error(err))
		return view, nil
	}
	view.IsVariant = IsVariant(variant.Elements, elements.VariantType, termID)
	return view, nil
}

// VariantTermID reads the variant-type taxonomy and returns the id of the
// sentinel variant term. Both a failed fetch and a missing term are reported
// as ErrVariantTaxonomyNotFound.
func VariantTermID(ctx context.Context, r kontent.Reader, environmentID string, codenames Codenames) (string, error) {
	tg, err := r.FetchTaxonomy(ctx, environmentID, codenames.VariantTypeTaxonomy)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrVariantTaxonomyNotFound, err)
	}
	id, ok := FindTermIDByCodename(tg.Terms, codenames.VariantTerm)
	if !ok {
		return "", ErrVariantTaxonomyNotFound
	}
	return id, nil
}
