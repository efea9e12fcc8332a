// Package personalization resolves the audience-personalization state of a
// content item: whether its content type carries the personalization
// elements, whether the item is a base item or an audience variant, and which
// variants are linked to it.
//
// The resolution functions are pure and never fail on malformed content; only
// the loaders that talk to a kontent.Reader return errors.
package personalization

// Codenames is the configuration surface of the engine: the two taxonomy
// groups it reads, the sentinel term marking a variant, and the codename
// suffixes identifying the personalization elements on a content type.
type Codenames struct {
	AudienceTaxonomy      string `yaml:"audience_taxonomy"`
	VariantTypeTaxonomy   string `yaml:"variant_type_taxonomy"`
	VariantTerm           string `yaml:"variant_term"`
	VariantTypeSuffix     string `yaml:"variant_type_suffix"`
	AudienceSuffix        string `yaml:"audience_suffix"`
	ContentVariantsSuffix string `yaml:"content_variants_suffix"`
}

// DefaultCodenames matches the content model provisioned for the
// personalization snippet. Snippet element codenames are prefixed with the
// snippet codename and a double underscore, so the audience suffix keeps the
// separator: a bare "audience" would also match a type's own element such as
// target_audience, which comes before the snippet elements.
func DefaultCodenames() Codenames {
	return Codenames{
		AudienceTaxonomy:      "personalization_audiences",
		VariantTypeTaxonomy:   "variant_type",
		VariantTerm:           "variant",
		VariantTypeSuffix:     "variant_type",
		AudienceSuffix:        "__audience",
		ContentVariantsSuffix: "content_variants",
	}
}

// suffixes returns the three element suffixes in a fixed order.
func (c Codenames) suffixes() [3]string {
	return [3]string{c.VariantTypeSuffix, c.AudienceSuffix, c.ContentVariantsSuffix}
}
