package personalization

import (
	"context"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Nickm615/personalization-custom-app-example/pkg/fanout"
	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// VariantInfo summarises one item linked from a base item.
type VariantInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// AudienceTermID is empty when the item references no audience.
	AudienceTermID string `json:"audienceTermId,omitempty"`
	IsBaseContent  bool   `json:"isBaseContent"`
}

// Aggregator resolves the items linked from a base item.
type Aggregator struct {
	reader      kontent.Reader
	codenames   Codenames
	logger      *zap.Logger
	concurrency int
}

// NewAggregator creates an Aggregator reading through r.
func NewAggregator(r kontent.Reader, codenames Codenames, opts ...Option) *Aggregator {
	s := newSettings(opts)
	return &Aggregator{reader: r, codenames: codenames, logger: s.logger, concurrency: s.concurrency}
}

// Aggregate fetches every linked item and its language variant and returns
// their summaries, base content first. Within each group the order of
// linkedItemIDs is kept. Items that fail to load are left out; only a missing
// variant-type taxonomy fails the call.
func (a *Aggregator) Aggregate(ctx context.Context, environmentID, languageID string, linkedItemIDs []string, view *CurrentItemView) ([]VariantInfo, error) {
	if view == nil || len(linkedItemIDs) == 0 {
		return []VariantInfo{}, nil
	}
	elements, ok := ResolveElements(view.ElementCodenames, a.codenames)
	if !ok {
		return []VariantInfo{}, nil
	}

	termID, err := VariantTermID(ctx, a.reader, environmentID, a.codenames)
	if err != nil {
		return nil, err
	}

	results := fanout.Map(ctx, a.concurrency, linkedItemIDs, func(ctx context.Context, id string) (VariantInfo, error) {
		return a.resolve(ctx, environmentID, languageID, id, termID, elements)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]VariantInfo, 0, len(results))
	for i, r := range results {
		if r.Err != nil {
			a.logger.Debug("skipping linked item",
				zap.String("item_id", linkedItemIDs[i]),
				zap.Error(r.Err))
			continue
		}
		out = append(out, r.Value)
	}

	slices.SortStableFunc(out, func(x, y VariantInfo) int {
		switch {
		case x.IsBaseContent == y.IsBaseContent:
			return 0
		case x.IsBaseContent:
			return -1
		default:
			return 1
		}
	})
	return out, nil
}

func (a *Aggregator) resolve(ctx context.Context, environmentID, languageID, itemID, termID string, elements Elements) (VariantInfo, error) {
	var (
		item    kontent.ContentItem
		variant kontent.LanguageVariant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		item, err = a.reader.FetchItem(gctx, environmentID, itemID)
		return err
	})
	g.Go(func() error {
		var err error
		variant, err = a.reader.FetchVariant(gctx, environmentID, itemID, languageID)
		return err
	})
	if err := g.Wait(); err != nil {
		return VariantInfo{}, err
	}

	audience, _ := ExtractSingleReferenceID(variant.Elements, elements.Audience)
	return VariantInfo{
		ID:             itemID,
		Name:           item.Name,
		AudienceTermID: audience,
		IsBaseContent:  !IsVariant(variant.Elements, elements.VariantType, termID),
	}, nil
}
