package models

import (
	"errors"
	"time"
)

// RawDocument holds the unstructured text fetched from a market listing page.
// It is produced once by the raw content source and consumed once by the
// structuring engine.
type RawDocument struct {
	SourceText string    `json:"source_text"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Validate checks that the document carries usable content.
func (d *RawDocument) Validate() error {
	if d.SourceText == "" {
		return errors.New("source text must not be empty")
	}
	if d.FetchedAt.IsZero() {
		return errors.New("fetched at must be set")
	}
	return nil
}
