package personalization

import (
	"slices"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// Elements holds the ids of the three personalization elements of a content
// type.
type Elements struct {
	VariantType     string `json:"variantTypeElementId"`
	Audience        string `json:"audienceElementId"`
	ContentVariants string `json:"contentVariantsElementId"`
}

// ResolveElements locates the personalization elements by codename suffix.
// ok is false unless all three are present.
func ResolveElements(codenames *ElementCodenames, cfg Codenames) (Elements, bool) {
	var e Elements
	var okVT, okA, okCV bool
	e.VariantType, okVT = codenames.FindBySuffix(cfg.VariantTypeSuffix)
	e.Audience, okA = codenames.FindBySuffix(cfg.AudienceSuffix)
	e.ContentVariants, okCV = codenames.FindBySuffix(cfg.ContentVariantsSuffix)
	return e, okVT && okA && okCV
}

// HasPersonalizationCapability reports whether all three personalization
// elements are present on the content type.
func HasPersonalizationCapability(codenames *ElementCodenames, cfg Codenames) bool {
	_, ok := ResolveElements(codenames, cfg)
	return ok
}

// AmbiguousSuffixes returns, per suffix, the matching element ids for every
// suffix that matches more than one element.
func AmbiguousSuffixes(codenames *ElementCodenames, cfg Codenames) map[string][]string {
	var out map[string][]string
	for _, s := range cfg.suffixes() {
		if ids := codenames.MatchesBySuffix(s); len(ids) > 1 {
			if out == nil {
				out = make(map[string][]string)
			}
			out[s] = ids
		}
	}
	return out
}

// IsVariant reports whether the variant-type element references the sentinel
// variant term. Missing ids, a missing element or an unparsable value all
// classify the item as base content.
func IsVariant(values []kontent.ElementValue, variantTypeElementID, variantTermID string) bool {
	if variantTermID == "" || variantTypeElementID == "" {
		return false
	}
	return slices.Contains(ExtractReferenceIDs(values, variantTypeElementID), variantTermID)
}
