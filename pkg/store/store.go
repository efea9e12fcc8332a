// Package store serves a Kontent.ai environment snapshot from SQLite. It
// implements kontent.Client so the panel and the variant manager can run
// without network access.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// Store reads and writes entities stored as JSON bodies.
type Store struct {
	db    *sql.DB
	newID func() string
}

var _ kontent.Client = (*Store)(nil)

// New wraps a migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, newID: uuid.NewString}
}

// DB returns the underlying connection.
func (s *Store) DB() *sql.DB { return s.db }

// getJSON loads one body into dst. A missing row is kontent.ErrNotFound.
func getJSON(ctx context.Context, db DBExecutor, dst any, query string, args ...any) error {
	var body string
	err := db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return kontent.ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("decode stored entity: %w", err)
	}
	return nil
}

func putJSON(ctx context.Context, db DBExecutor, v any, query string, args ...any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query, append(args, string(b))...)
	return err
}

func (s *Store) FetchItem(ctx context.Context, environmentID, itemID string) (kontent.ContentItem, error) {
	var item kontent.ContentItem
	err := getJSON(ctx, s.db, &item, `SELECT body FROM items WHERE environment_id = ? AND id = ?`, environmentID, itemID)
	return item, err
}

func (s *Store) FetchVariant(ctx context.Context, environmentID, itemID, languageID string) (kontent.LanguageVariant, error) {
	return fetchVariant(ctx, s.db, environmentID, itemID, languageID)
}

func fetchVariant(ctx context.Context, db DBExecutor, environmentID, itemID, languageID string) (kontent.LanguageVariant, error) {
	var v kontent.LanguageVariant
	err := getJSON(ctx, db, &v,
		`SELECT body FROM variants WHERE environment_id = ? AND item_id = ? AND language_id = ?`,
		environmentID, itemID, languageID)
	return v, err
}

// FetchContentType returns the type with its snippets in attachment order.
func (s *Store) FetchContentType(ctx context.Context, environmentID, typeID string) (kontent.TypeWithSnippets, error) {
	var ct kontent.ContentType
	if err := getJSON(ctx, s.db, &ct, `SELECT body FROM content_types WHERE environment_id = ? AND id = ?`, environmentID, typeID); err != nil {
		return kontent.TypeWithSnippets{}, err
	}
	ids := ct.SnippetIDs()
	snippets := make([]kontent.Snippet, 0, len(ids))
	for _, id := range ids {
		var sn kontent.Snippet
		if err := getJSON(ctx, s.db, &sn, `SELECT body FROM snippets WHERE environment_id = ? AND id = ?`, environmentID, id); err != nil {
			return kontent.TypeWithSnippets{}, fmt.Errorf("snippet %s: %w", id, err)
		}
		snippets = append(snippets, sn)
	}
	return kontent.TypeWithSnippets{ContentType: ct, Snippets: snippets}, nil
}

func (s *Store) FetchTaxonomy(ctx context.Context, environmentID, codename string) (kontent.TaxonomyGroup, error) {
	var tg kontent.TaxonomyGroup
	err := getJSON(ctx, s.db, &tg, `SELECT body FROM taxonomies WHERE environment_id = ? AND codename = ?`, environmentID, codename)
	return tg, err
}

func (s *Store) FetchLanguage(ctx context.Context, environmentID, languageID string) (kontent.Language, error) {
	var lang kontent.Language
	err := getJSON(ctx, s.db, &lang, `SELECT body FROM languages WHERE environment_id = ? AND id = ?`, environmentID, languageID)
	return lang, err
}

// CreateItem stores a new item with a generated id and codename.
func (s *Store) CreateItem(ctx context.Context, environmentID string, item kontent.NewItem) (kontent.ContentItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return kontent.ContentItem{}, fmt.Errorf("item name must be non-empty")
	}
	id := s.newID()
	created := kontent.ContentItem{
		ID:       id,
		Name:     item.Name,
		Codename: codename(item.Name, id),
		Type:     kontent.Reference{ID: item.Type.ID},
	}
	err := putJSON(ctx, s.db, created, `INSERT INTO items (environment_id, id, body) VALUES (?, ?, ?)`, environmentID, id)
	if err != nil {
		return kontent.ContentItem{}, fmt.Errorf("insert item: %w", err)
	}
	return created, nil
}

// UpsertVariant merges elements into the stored variant; listed elements
// are replaced and the rest keep their value. The item must exist.
func (s *Store) UpsertVariant(ctx context.Context, environmentID, itemID, languageID string, elements []kontent.ElementValue) (kontent.LanguageVariant, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kontent.LanguageVariant{}, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM items WHERE environment_id = ? AND id = ?`, environmentID, itemID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kontent.LanguageVariant{}, kontent.ErrNotFound
		}
		return kontent.LanguageVariant{}, err
	}

	v, err := fetchVariant(ctx, tx, environmentID, itemID, languageID)
	if errors.Is(err, kontent.ErrNotFound) {
		v = kontent.LanguageVariant{Item: kontent.Reference{ID: itemID}, Language: kontent.Reference{ID: languageID}}
	} else if err != nil {
		return kontent.LanguageVariant{}, err
	}
	v.Elements = mergeElements(v.Elements, elements)

	err = putJSON(ctx, tx, v,
		`INSERT INTO variants (environment_id, item_id, language_id, body) VALUES (?, ?, ?, ?)
		 ON CONFLICT(environment_id, item_id, language_id)
		 DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP`,
		environmentID, itemID, languageID)
	if err != nil {
		return kontent.LanguageVariant{}, fmt.Errorf("upsert variant: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return kontent.LanguageVariant{}, err
	}
	return v, nil
}

func mergeElements(current, updates []kontent.ElementValue) []kontent.ElementValue {
	out := make([]kontent.ElementValue, len(current), len(current)+len(updates))
	copy(out, current)
	pos := make(map[string]int, len(out))
	for i, e := range out {
		pos[e.Element.ID] = i
	}
	for _, u := range updates {
		if i, ok := pos[u.Element.ID]; ok {
			out[i].Value = u.Value
			continue
		}
		pos[u.Element.ID] = len(out)
		out = append(out, u)
	}
	return out
}

// DeleteItem removes the item and all its language variants.
func (s *Store) DeleteItem(ctx context.Context, environmentID, itemID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE environment_id = ? AND id = ?`, environmentID, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return kontent.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE environment_id = ? AND item_id = ?`, environmentID, itemID); err != nil {
		return err
	}
	return tx.Commit()
}

// codename joins the lowercase words of name with underscores and appends
// the first eight characters of id.
func codename(name, id string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	base := strings.TrimSuffix(b.String(), "_")
	if len(id) >= 8 {
		id = id[:8]
	}
	if base == "" {
		return "item_" + id
	}
	return base + "_" + id
}
