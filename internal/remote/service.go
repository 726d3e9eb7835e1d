// Package remote stores records in a search service shared by a team.
package remote

import (
	"context"

	"github.com/kalambet/errorblob/internal/model"
)

// Service is the remote search service as seen by Store. Implementations
// assign ids on Upsert and rank results themselves.
type Service interface {
	// Upsert stores rec (whose ID is empty) and returns the assigned id.
	Upsert(ctx context.Context, rec model.Record) (string, error)
	// Query returns up to k records, most relevant first.
	Query(ctx context.Context, text string, k int) ([]model.Match, error)
	// Delete removes id and reports whether the service held it.
	Delete(ctx context.Context, id string) (bool, error)
	// List returns every record in the namespace.
	List(ctx context.Context) ([]model.Record, error)
	// Count returns the number of records in the namespace.
	Count(ctx context.Context) (int, error)
	Close() error
}
