package models

import (
	"fmt"

	"github.com/hyperjump/mihari/internal/ident"
)

// TextSource is an ingested unit of text. It is consumed exactly once by
// the ingestion pipeline and discarded afterwards; only derived match
// records persist.
type TextSource struct {
	ID   ident.DocumentID `json:"id"`
	Name string           `json:"name,omitempty"`
	Data string           `json:"data"`
}

// NewTextSource builds a document with a fresh id. name is an optional
// source label such as a filename.
func NewTextSource(data, name string) *TextSource {
	return &TextSource{
		ID:   ident.NewDocumentID(),
		Name: name,
		Data: data,
	}
}

// Validate checks the document is acceptable for ingestion.
func (t *TextSource) Validate() error {
	if t.Data == "" {
		return fmt.Errorf("document body cannot be empty")
	}
	return nil
}
