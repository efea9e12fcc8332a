package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Nickm615/personalization-custom-app-example/pkg/kontent"
)

// Snapshot is an export of the entities of one environment.
type Snapshot struct {
	EnvironmentID string                    `json:"environment_id"`
	Items         []kontent.ContentItem     `json:"items"`
	Variants      []kontent.LanguageVariant `json:"variants"`
	Types         []kontent.ContentType     `json:"types"`
	Snippets      []kontent.Snippet         `json:"snippets"`
	Taxonomies    []kontent.TaxonomyGroup   `json:"taxonomies"`
	Languages     []kontent.Language        `json:"languages"`
}

// ImportStats counts the rows written by Import.
type ImportStats struct {
	Items, Variants, Types, Snippets, Taxonomies, Languages int
}

// Total returns the number of rows written.
func (s ImportStats) Total() int {
	return s.Items + s.Variants + s.Types + s.Snippets + s.Taxonomies + s.Languages
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeSnapshot(f)
}

// DecodeSnapshot parses a snapshot document.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if snap.EnvironmentID == "" {
		return nil, fmt.Errorf("snapshot has no environment_id")
	}
	return &snap, nil
}

// Import writes every entity of snap in one transaction, replacing rows with
// the same key.
func (s *Store) Import(ctx context.Context, snap *Snapshot) (ImportStats, error) {
	var stats ImportStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, err
	}
	defer tx.Rollback()

	env := snap.EnvironmentID
	for _, it := range snap.Items {
		if err := putJSON(ctx, tx, it, `INSERT OR REPLACE INTO items (environment_id, id, body) VALUES (?, ?, ?)`, env, it.ID); err != nil {
			return stats, fmt.Errorf("import item %s: %w", it.ID, err)
		}
		stats.Items++
	}
	for _, v := range snap.Variants {
		err := putJSON(ctx, tx, v, `INSERT OR REPLACE INTO variants (environment_id, item_id, language_id, body) VALUES (?, ?, ?, ?)`,
			env, v.Item.ID, v.Language.ID)
		if err != nil {
			return stats, fmt.Errorf("import variant %s/%s: %w", v.Item.ID, v.Language.ID, err)
		}
		stats.Variants++
	}
	for _, ct := range snap.Types {
		if err := putJSON(ctx, tx, ct, `INSERT OR REPLACE INTO content_types (environment_id, id, body) VALUES (?, ?, ?)`, env, ct.ID); err != nil {
			return stats, fmt.Errorf("import type %s: %w", ct.ID, err)
		}
		stats.Types++
	}
	for _, sn := range snap.Snippets {
		if err := putJSON(ctx, tx, sn, `INSERT OR REPLACE INTO snippets (environment_id, id, body) VALUES (?, ?, ?)`, env, sn.ID); err != nil {
			return stats, fmt.Errorf("import snippet %s: %w", sn.ID, err)
		}
		stats.Snippets++
	}
	for _, tg := range snap.Taxonomies {
		if err := putJSON(ctx, tx, tg, `INSERT OR REPLACE INTO taxonomies (environment_id, codename, body) VALUES (?, ?, ?)`, env, tg.Codename); err != nil {
			return stats, fmt.Errorf("import taxonomy %s: %w", tg.Codename, err)
		}
		stats.Taxonomies++
	}
	for _, l := range snap.Languages {
		if err := putJSON(ctx, tx, l, `INSERT OR REPLACE INTO languages (environment_id, id, body) VALUES (?, ?, ?)`, env, l.ID); err != nil {
			return stats, fmt.Errorf("import language %s: %w", l.ID, err)
		}
		stats.Languages++
	}

	if err := tx.Commit(); err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}
