// Package kontent holds the content model types of a Kontent.ai environment
// and the data-access interfaces the personalization engine consumes.
//
// Two implementations live in this repository: HTTPClient talks to the
// Management API v2, and store.Store serves an imported snapshot from SQLite.
package kontent

import (
	"context"
	"errors"
	"fmt"
)

// Reader fetches the entities needed to resolve personalization state.
// Every method returns either a populated result or an error, never both.
type Reader interface {
	FetchItem(ctx context.Context, environmentID, itemID string) (ContentItem, error)
	FetchVariant(ctx context.Context, environmentID, itemID, languageID string) (LanguageVariant, error)
	FetchContentType(ctx context.Context, environmentID, typeID string) (TypeWithSnippets, error)
	FetchTaxonomy(ctx context.Context, environmentID, codename string) (TaxonomyGroup, error)
	FetchLanguage(ctx context.Context, environmentID, languageID string) (Language, error)
}

// Writer creates, updates and deletes content.
type Writer interface {
	CreateItem(ctx context.Context, environmentID string, item NewItem) (ContentItem, error)
	// UpsertVariant writes the given element values; elements not listed
	// keep their current value.
	UpsertVariant(ctx context.Context, environmentID, itemID, languageID string, elements []ElementValue) (LanguageVariant, error)
	DeleteItem(ctx context.Context, environmentID, itemID string) error
}

// Client is a full data-access collaborator.
type Client interface {
	Reader
	Writer
}

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("kontent: not found")

// APIError is a non-success response from the Management API.
type APIError struct {
	StatusCode int
	RequestID  string `json:"request_id"`
	ErrorCode  int    `json:"error_code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("kontent: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("kontent: status %d", e.StatusCode)
}

// Is makes 404 responses match ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
