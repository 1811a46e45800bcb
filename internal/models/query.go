// Package models defines core data structures for queries, documents, and match records.
package models

import (
	"fmt"
	"sync/atomic"

	"github.com/hyperjump/mihari/internal/ident"
)

// PersistentQuery is a standing search request. Once registered it is
// evaluated against every future incoming document until removed.
//
// All fields except ResultCount are immutable after creation. ResultCount
// is bumped by the match store on every accepted match and must be
// accessed through AddResult/Results because queries are shared across
// registry snapshots.
type PersistentQuery struct {
	ID             ident.QueryID `json:"id"`
	Name           string        `json:"name"`
	QueryText      string        `json:"query_text"`
	ScoreThreshold int64         `json:"score_threshold"`
	ResultCount    uint32        `json:"result_count"`
}

// NewPersistentQuery builds a query with a fresh id.
func NewPersistentQuery(name, text string, threshold int64) *PersistentQuery {
	return &PersistentQuery{
		ID:             ident.NewQueryID(),
		Name:           name,
		QueryText:      text,
		ScoreThreshold: threshold,
	}
}

// Validate checks the query is acceptable for registration.
// A threshold of zero or below is rejected rather than treated as
// "accept everything": a meaningless threshold is almost always a
// client bug, and an explicit low positive value expresses the intent.
func (q *PersistentQuery) Validate() error {
	if q.QueryText == "" {
		return fmt.Errorf("query text cannot be empty")
	}
	if q.ScoreThreshold <= 0 {
		return fmt.Errorf("score threshold must be positive, got %d", q.ScoreThreshold)
	}
	return nil
}

// AddResult atomically increments the accepted-match counter.
func (q *PersistentQuery) AddResult() {
	atomic.AddUint32(&q.ResultCount, 1)
}

// Results returns the current accepted-match count.
func (q *PersistentQuery) Results() uint32 {
	return atomic.LoadUint32(&q.ResultCount)
}
