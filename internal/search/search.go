package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/BRO3886/survey-index/internal/types"
)

var ErrInvalidQuery = errors.New("invalid query")

// Store holds emitted view rows, one per document id.
type Store interface {
	// Index inserts or replaces the row for rec.ID.
	Index(ctx context.Context, rec types.IndexRecord) error
	// DeIndex removes the row for id. Removing a missing row is not an error.
	DeIndex(ctx context.Context, id string) error
	Query(ctx context.Context, q Query) (Page, error)
	Close() error
}

// Query selects the rows of one form model, optionally narrowed to a tag
// and a modification window. Since and Until are inclusive epoch millis.
// A zero Limit returns every remaining row.
type Query struct {
	FormModelID string
	Tag         string
	Since       *int64
	Until       *int64
	Skip        int
	Limit       int
	Descending  bool
}

func (q Query) Validate() error {
	if q.FormModelID == "" {
		return fmt.Errorf("%w: form model id is required", ErrInvalidQuery)
	}
	if q.Skip < 0 {
		return fmt.Errorf("%w: skip must not be negative", ErrInvalidQuery)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidQuery)
	}
	if q.Since != nil && q.Until != nil && *q.Since > *q.Until {
		return fmt.Errorf("%w: since is after until", ErrInvalidQuery)
	}
	return nil
}

// Page is one slice of query results. Total counts every row of the form
// model, ignoring tag, window and paging.
type Page struct {
	Total int                 `json:"total_rows"`
	Skip  int                 `json:"offset"`
	Rows  []types.IndexRecord `json:"rows"`
}
