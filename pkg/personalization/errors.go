package personalization

import (
	"errors"
	"fmt"
)

// ErrVariantTaxonomyNotFound means the variant-type taxonomy, or its
// sentinel term, is missing from the environment.
var ErrVariantTaxonomyNotFound = errors.New("variant type taxonomy not found")

// FetchError is a failed top-level fetch. Message is what the panel shows.
type FetchError struct {
	Entity  string
	Message string
	Cause   error
}

func (e *FetchError) Error() string { return e.Message }

func (e *FetchError) Unwrap() error { return e.Cause }

// fetchFailed builds a FetchError using the collaborator's message, or the
// fallback when it has none.
func fetchFailed(entity string, err error) *FetchError {
	msg := fmt.Sprintf("Failed to fetch %s", entity)
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &FetchError{Entity: entity, Message: msg, Cause: err}
}

// ErrInvalidRequest wraps request validation failures of the Manager.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotLinked means an item is not a variant linked from the given base item.
var ErrNotLinked = errors.New("item is not a linked variant")
