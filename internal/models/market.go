// Package models defines the core domain entities for the marketsnap pipeline.
// These models represent raw fetched listings, structured market records, and
// the dated catalog snapshots persisted for historical comparison.
// All models include built-in validation to ensure data integrity throughout
// the pipeline.
//
// Terminology:
//   - Record: one prediction market (a question with priced outcomes).
//   - Catalog: the full set of records produced by one structuring run.
//   - Snapshot: a catalog persisted under a calendar date.
package models

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// PriceSumTolerance is the allowed deviation of the outcome price sum from 1.0.
// The extraction prompt maps "<1%" odds to 0.005, so binary markets can
// legitimately sum to 0.995.
const PriceSumTolerance = 0.02

// MarketRecord represents a single prediction market extracted from a listing
// page. Outcomes and Prices are positionally aligned: Prices[i] is the current
// price of Outcomes[i].
type MarketRecord struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Outcomes    []string   `json:"outcomes"`
	Prices      []float64  `json:"current_prices"`
	Volume24h   float64    `json:"volume_24h"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	GroupTitle  string     `json:"group_title,omitempty"`
	Category    string     `json:"category,omitempty"`
}

// Validate checks that all record fields are valid. A record failing
// validation is dropped by the structuring engine, never silently coerced.
func (r *MarketRecord) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return errors.New("title must not be empty")
	}
	if len(r.Outcomes) < 2 {
		return errors.New("market must have at least 2 outcomes")
	}
	seen := make(map[string]struct{}, len(r.Outcomes))
	for _, outcome := range r.Outcomes {
		if strings.TrimSpace(outcome) == "" {
			return errors.New("outcome name must not be empty")
		}
		if _, dup := seen[outcome]; dup {
			return errors.New("outcome names must be unique")
		}
		seen[outcome] = struct{}{}
	}
	if len(r.Prices) != len(r.Outcomes) {
		return errors.New("prices must align with outcomes")
	}
	var sum float64
	for _, p := range r.Prices {
		if p < 0.0 || p > 1.0 {
			return errors.New("price must be between 0.0 and 1.0")
		}
		sum += p
	}
	if sum < 1.0-PriceSumTolerance || sum > 1.0+PriceSumTolerance {
		return errors.New("prices should approximately sum to 1.0")
	}
	if r.Volume24h < 0 {
		return errors.New("volume 24h must not be negative")
	}
	return nil
}

// DedupeKey returns the composite identity key used for deduplication and
// snapshot diffing: the normalized lowercase title plus the sorted,
// case-folded outcome set. Two records with the same key describe the same
// market regardless of outcome order or title casing.
func (r *MarketRecord) DedupeKey() string {
	outcomes := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		outcomes[i] = strings.ToLower(strings.TrimSpace(o))
	}
	sort.Strings(outcomes)

	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(r.Title)))
	b.WriteByte('|')
	b.WriteString(strings.Join(outcomes, ","))
	return b.String()
}

// CatalogMetadata describes how and when a catalog was produced.
type CatalogMetadata struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	TotalMarkets    int       `json:"total_markets"`
	ProcessingStage string    `json:"processing_stage"`
}

// MarketCatalog is the full set of market records produced by one pipeline
// run, plus run metadata. TotalMarkets must always equal len(Markets).
type MarketCatalog struct {
	Metadata CatalogMetadata `json:"metadata"`
	Markets  []MarketRecord  `json:"markets"`
}

// Validate checks catalog-level invariants and every contained record.
func (c *MarketCatalog) Validate() error {
	if c.Metadata.TotalMarkets != len(c.Markets) {
		return errors.New("total markets must equal the number of records")
	}
	for i := range c.Markets {
		if err := c.Markets[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
