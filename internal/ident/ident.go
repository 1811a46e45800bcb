// Package ident defines the identifier types used across the engine.
//
// Every entity gets its own 64-bit id type so a query id can never be
// passed where a document id is expected.
package ident

import (
	"encoding/binary"
	"strconv"

	"github.com/google/uuid"
)

// QueryID identifies a persistent query. It is the namespace under which
// all of the query's match records are stored.
type QueryID uint64

// DocumentID identifies an ingested text source. Documents are not
// retained after matching; the id survives only inside match records.
type DocumentID uint64

// RecordID identifies a single match record.
type RecordID uint64

// NewQueryID returns a random QueryID.
func NewQueryID() QueryID { return QueryID(random64()) }

// NewDocumentID returns a random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(random64()) }

// NewRecordID returns a random RecordID.
func NewRecordID() RecordID { return RecordID(random64()) }

// random64 draws 64 bits from a fresh UUID. Zero is reserved as the
// "unset" value for all id types and is never returned.
func random64() uint64 {
	for {
		u := uuid.New()
		if v := binary.BigEndian.Uint64(u[:8]); v != 0 {
			return v
		}
	}
}

// ParseQueryID parses a decimal query id as found in URL paths.
func ParseQueryID(s string) (QueryID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	return QueryID(v), err
}

func (id QueryID) String() string    { return strconv.FormatUint(uint64(id), 10) }
func (id DocumentID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id RecordID) String() string   { return strconv.FormatUint(uint64(id), 10) }
