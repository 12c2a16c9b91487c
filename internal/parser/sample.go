package parser

import (
	"context"
	_ "embed"
)

// sampleResponse is a captured service response, prose and code fences
// included, so offline runs exercise the same extraction path as live ones.
//
//go:embed sample_response.txt
var sampleResponse string

// SampleService returns the bundled fixture response regardless of prompt.
// It backs the --test-sample flag for deterministic offline runs.
type SampleService struct{}

// NewSampleService creates the fixture-backed service.
func NewSampleService() *SampleService {
	return &SampleService{}
}

// Generate returns the embedded sample response.
func (s *SampleService) Generate(_ context.Context, _ string) (string, error) {
	return sampleResponse, nil
}
