// Package store persists match records and registered queries.
package store

import (
	"context"

	"github.com/hyperjump/mihari/internal/ident"
	"github.com/hyperjump/mihari/internal/models"
)

// MatchStore accumulates match records keyed by originating query and
// keeps them durable. Records are append-only per query.
type MatchStore interface {
	// PutQuery durably saves a registered query so it survives restarts.
	PutQuery(ctx context.Context, q *models.PersistentQuery) error
	// Queries returns every persisted query, for registry rehydration.
	Queries(ctx context.Context) ([]*models.PersistentQuery, error)

	// Store durably persists rec and makes it visible to Results. The
	// record is not durable until Store returns nil. On acceptance the
	// owning query's result count is incremented. Failures are reported
	// as storage errors, never dropped.
	Store(ctx context.Context, owner *models.PersistentQuery, rec *models.IndexData) error
	// Results returns all records belonging to query id, oldest first.
	// An id with no records yields an empty slice, never an error.
	Results(id ident.QueryID) []*models.IndexData

	// CountRecords reports the total number of stored records.
	CountRecords() int64

	Close() error
}
