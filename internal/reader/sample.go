package reader

import (
	"context"
	_ "embed"
	"time"

	"github.com/marketsnap/marketsnap/internal/models"
)

// samplePage is a captured listing-page render used by offline runs.
//
//go:embed sample_page.md
var samplePage string

// SampleSource serves the bundled listing page without touching the
// network. It backs the --test-sample flag.
type SampleSource struct{}

// NewSampleSource creates the fixture-backed source.
func NewSampleSource() *SampleSource {
	return &SampleSource{}
}

// Fetch returns the embedded sample page.
func (s *SampleSource) Fetch(_ context.Context, _ string) (models.RawDocument, error) {
	return models.RawDocument{
		SourceText: StripURLs(samplePage),
		FetchedAt:  time.Now(),
	}, nil
}
