package personalization

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// CreateVariantRequest asks for a new audience variant of SourceItemID.
type CreateVariantRequest struct {
	EnvironmentID            string `json:"environmentId"`
	SourceItemID             string `json:"sourceItemId"`
	LanguageID               string `json:"languageId"`
	AudienceTermID           string `json:"audienceTermId"`
	AudienceName             string `json:"audienceName"`
	VariantTermID            string `json:"variantTermId"`
	VariantTypeElementID     string `json:"variantTypeElementId"`
	AudienceElementID        string `json:"audienceElementId"`
	ContentVariantsElementID string `json:"contentVariantsElementId"`
}

// CreateVariantResponse identifies the created variant item.
type CreateVariantResponse struct {
	ItemID   string `json:"itemId"`
	ItemName string `json:"itemName"`
}

// Operations accepted by UpdateContentVariants.
const (
	OperationAdd    = "add"
	OperationRemove = "remove"
)

// UpdateContentVariantsRequest adds or removes one link in the base item's
// content-variants element.
type UpdateContentVariantsRequest struct {
	EnvironmentID            string `json:"environmentId"`
	BaseItemID               string `json:"baseItemId"`
	LanguageID               string `json:"languageId"`
	ContentVariantsElementID string `json:"contentVariantsElementId"`
	VariantItemID            string `json:"variantItemId"`
	Operation                string `json:"operation"`
}

// DeleteItemRequest deletes an item.
type DeleteItemRequest struct {
	EnvironmentID string `json:"environmentId"`
	ItemID        string `json:"itemId"`
	LanguageID    string `json:"languageId"`
}

// Manager creates and removes audience variants.
//
// A content-variants list is changed by reading it and writing it back
// whole. Link updates made through one Manager are serialized so concurrent
// calls cannot drop each other's links; writers in other processes are not
// coordinated with.
type Manager struct {
	client kontent.Client
	logger *zap.Logger

	linksMu sync.Mutex
}

// NewManager creates a Manager writing through c.
func NewManager(c kontent.Client, opts ...Option) *Manager {
	s := newSettings(opts)
	return &Manager{client: c, logger: s.logger}
}

// CreateVariant copies the source item into a new item for the audience,
// marks it as a variant and links it from the source. If a step after the
// item was created fails, the new item is deleted again.
func (m *Manager) CreateVariant(ctx context.Context, req CreateVariantRequest) (CreateVariantResponse, error) {
	if err := required(map[string]string{
		"environmentId":            req.EnvironmentID,
		"sourceItemId":             req.SourceItemID,
		"languageId":               req.LanguageID,
		"audienceTermId":           req.AudienceTermID,
		"audienceName":             req.AudienceName,
		"variantTermId":            req.VariantTermID,
		"variantTypeElementId":     req.VariantTypeElementID,
		"audienceElementId":        req.AudienceElementID,
		"contentVariantsElementId": req.ContentVariantsElementID,
	}); err != nil {
		return CreateVariantResponse{}, err
	}

	source, err := m.client.FetchItem(ctx, req.EnvironmentID, req.SourceItemID)
	if err != nil {
		return CreateVariantResponse{}, fetchFailed("item", err)
	}
	sourceVariant, err := m.client.FetchVariant(ctx, req.EnvironmentID, req.SourceItemID, req.LanguageID)
	if err != nil {
		return CreateVariantResponse{}, fetchFailed("variant", err)
	}

	name := fmt.Sprintf("%s (%s)", source.Name, req.AudienceName)
	created, err := m.client.CreateItem(ctx, req.EnvironmentID, kontent.NewItem{Name: name, Type: kontent.Reference{ID: source.Type.ID}})
	if err != nil {
		return CreateVariantResponse{}, fmt.Errorf("create variant item: %w", err)
	}

	elements := variantElements(sourceVariant.Elements, req)
	if _, err := m.client.UpsertVariant(ctx, req.EnvironmentID, created.ID, req.LanguageID, elements); err != nil {
		m.cleanup(ctx, req.EnvironmentID, created.ID)
		return CreateVariantResponse{}, fmt.Errorf("write variant content: %w", err)
	}

	if err := m.UpdateContentVariants(ctx, UpdateContentVariantsRequest{
		EnvironmentID:            req.EnvironmentID,
		BaseItemID:               req.SourceItemID,
		LanguageID:               req.LanguageID,
		ContentVariantsElementID: req.ContentVariantsElementID,
		VariantItemID:            created.ID,
		Operation:                OperationAdd,
	}); err != nil {
		m.cleanup(ctx, req.EnvironmentID, created.ID)
		return CreateVariantResponse{}, err
	}

	m.logger.Info("created audience variant",
		zap.String("source_item_id", req.SourceItemID),
		zap.String("item_id", created.ID),
		zap.String("audience_term_id", req.AudienceTermID))
	return CreateVariantResponse{ItemID: created.ID, ItemName: created.Name}, nil
}

// variantElements copies the source values, overriding the three
// personalization elements.
func variantElements(source []kontent.ElementValue, req CreateVariantRequest) []kontent.ElementValue {
	overrides := map[string]kontent.ElementValue{
		req.VariantTypeElementID:     {Element: kontent.Reference{ID: req.VariantTypeElementID}, Value: kontent.ReferenceList(req.VariantTermID)},
		req.AudienceElementID:        {Element: kontent.Reference{ID: req.AudienceElementID}, Value: kontent.ReferenceList(req.AudienceTermID)},
		req.ContentVariantsElementID: {Element: kontent.Reference{ID: req.ContentVariantsElementID}, Value: kontent.ReferenceList()},
	}
	out := make([]kontent.ElementValue, 0, len(source)+len(overrides))
	for _, v := range source {
		if _, ok := overrides[v.Element.ID]; ok {
			continue
		}
		out = append(out, kontent.ElementValue{Element: kontent.Reference{ID: v.Element.ID}, Value: v.Value})
	}
	for _, id := range []string{req.VariantTypeElementID, req.AudienceElementID, req.ContentVariantsElementID} {
		out = append(out, overrides[id])
	}
	return out
}

func (m *Manager) cleanup(ctx context.Context, environmentID, itemID string) {
	if err := m.client.DeleteItem(context.WithoutCancel(ctx), environmentID, itemID); err != nil {
		m.logger.Error("failed to remove partially created variant",
			zap.String("item_id", itemID), zap.Error(err))
	}
}

// UpdateContentVariants adds or removes VariantItemID in the base item's
// content-variants list. Adding an existing link or removing a missing one
// is a no-op.
func (m *Manager) UpdateContentVariants(ctx context.Context, req UpdateContentVariantsRequest) error {
	if err := required(map[string]string{
		"environmentId":            req.EnvironmentID,
		"baseItemId":               req.BaseItemID,
		"languageId":               req.LanguageID,
		"contentVariantsElementId": req.ContentVariantsElementID,
		"variantItemId":            req.VariantItemID,
		"operation":                req.Operation,
	}); err != nil {
		return err
	}
	if req.Operation != OperationAdd && req.Operation != OperationRemove {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, req.Operation)
	}

	m.linksMu.Lock()
	defer m.linksMu.Unlock()
	_, err := m.updateLinks(ctx, req)
	return err
}

// updateLinks applies req and reports whether the link existed beforehand.
// linksMu must be held.
func (m *Manager) updateLinks(ctx context.Context, req UpdateContentVariantsRequest) (bool, error) {
	base, err := m.client.FetchVariant(ctx, req.EnvironmentID, req.BaseItemID, req.LanguageID)
	if err != nil {
		return false, fetchFailed("variant", err)
	}
	ids := ExtractReferenceIDs(base.Elements, req.ContentVariantsElementID)
	present := slices.Contains(ids, req.VariantItemID)

	switch {
	case req.Operation == OperationAdd && !present:
		ids = append(ids, req.VariantItemID)
	case req.Operation == OperationRemove && present:
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == req.VariantItemID })
	default:
		return present, nil
	}

	_, err = m.client.UpsertVariant(ctx, req.EnvironmentID, req.BaseItemID, req.LanguageID, []kontent.ElementValue{
		{Element: kontent.Reference{ID: req.ContentVariantsElementID}, Value: kontent.ReferenceList(ids...)},
	})
	if err != nil {
		return present, fmt.Errorf("update content variants: %w", err)
	}
	return present, nil
}

// DeleteItem deletes an item in every language.
func (m *Manager) DeleteItem(ctx context.Context, req DeleteItemRequest) error {
	if err := required(map[string]string{
		"environmentId": req.EnvironmentID,
		"itemId":        req.ItemID,
		"languageId":    req.LanguageID,
	}); err != nil {
		return err
	}
	if err := m.client.DeleteItem(ctx, req.EnvironmentID, req.ItemID); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// DeleteVariant unlinks variantItemID from the base item, then deletes it.
// Only an item linked from the base item's content-variants list can be
// deleted this way; anything else fails with ErrNotLinked and nothing is
// changed.
func (m *Manager) DeleteVariant(ctx context.Context, environmentID, baseItemID, languageID, contentVariantsElementID, variantItemID string) error {
	req := UpdateContentVariantsRequest{
		EnvironmentID:            environmentID,
		BaseItemID:               baseItemID,
		LanguageID:               languageID,
		ContentVariantsElementID: contentVariantsElementID,
		VariantItemID:            variantItemID,
		Operation:                OperationRemove,
	}
	if err := required(map[string]string{
		"environmentId":            environmentID,
		"baseItemId":               baseItemID,
		"languageId":               languageID,
		"contentVariantsElementId": contentVariantsElementID,
		"variantItemId":            variantItemID,
	}); err != nil {
		return err
	}
	if variantItemID == baseItemID {
		return fmt.Errorf("%w: %s is the base item", ErrNotLinked, variantItemID)
	}

	m.linksMu.Lock()
	present, err := m.updateLinks(ctx, req)
	m.linksMu.Unlock()
	if err != nil {
		return err
	}
	if !present {
		return fmt.Errorf("%w: %s is not linked from %s", ErrNotLinked, variantItemID, baseItemID)
	}
	return m.DeleteItem(ctx, DeleteItemRequest{EnvironmentID: environmentID, ItemID: variantItemID, LanguageID: languageID})
}

func required(fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
}
