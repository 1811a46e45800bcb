package models

import "github.com/hyperjump/mihari/internal/ident"

// IndexData is the durable evidence that a document matched a query.
// Exactly one record is produced per (query, document) pair that clears
// the query's threshold. Records are immutable once stored.
type IndexData struct {
	// SourceQuery is the id of the query this match belongs to.
	SourceQuery ident.QueryID `json:"source_query"`
	// Key uniquely identifies this record within the query's namespace.
	Key ident.RecordID `json:"key"`
	// DocumentID is the document that produced the match. The document
	// itself is not retained.
	DocumentID ident.DocumentID `json:"document_id"`
	// Name is a copy of the document's label, kept so results can be
	// displayed without re-reading the source.
	Name string `json:"name,omitempty"`
	// MatchIndices holds inclusive [start, end] rune ranges of the
	// highlighted spans, ascending and non-overlapping. Empty when fewer
	// than two raw positions matched.
	MatchIndices [][2]int `json:"match_indices"`
	// Score is the fuzzy match score; always >= the originating query's
	// threshold.
	Score int64 `json:"score"`
}

// LoadCapacity is a lightweight load report for operational visibility.
type LoadCapacity struct {
	ConnectionCount   uint32 `json:"connection_count"`
	PendingQueryCount uint32 `json:"pending_query_count"`
}
