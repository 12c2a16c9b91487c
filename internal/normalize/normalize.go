// Package normalize turns a structured catalog into its canonical form:
// duplicates collapsed onto the most complete record, grouped markets made
// contiguous, deterministic ordering, and metadata recomputed. Normalization
// is a pure function of the input catalog except for the metadata timestamp.
package normalize

import (
	"sort"
	"time"

	"github.com/marketsnap/marketsnap/internal/logger"
	"github.com/marketsnap/marketsnap/internal/models"
)

// StageNormalized marks a catalog that completed normalization.
const StageNormalized = "normalized"

// Normalize deduplicates, groups, and sorts the catalog's records.
// Re-normalizing an already normalized catalog yields the same catalog,
// timestamp aside.
func Normalize(catalog models.MarketCatalog) models.MarketCatalog {
	deduped := dedupe(catalog.Markets)
	ordered := order(deduped)

	return models.MarketCatalog{
		Metadata: models.CatalogMetadata{
			Timestamp:       time.Now(),
			Source:          catalog.Metadata.Source,
			TotalMarkets:    len(ordered),
			ProcessingStage: StageNormalized,
		},
		Markets: ordered,
	}
}

// dedupe collapses records sharing a composite key (normalized title +
// outcome set). The survivor is the record with more optional fields filled
// in, then the higher 24h volume; ties keep the first-seen record. The
// survivor's group assignment wins for the whole duplicate set.
func dedupe(records []models.MarketRecord) []models.MarketRecord {
	byKey := make(map[string]int, len(records))
	out := make([]models.MarketRecord, 0, len(records))

	for i := range records {
		key := records[i].DedupeKey()
		idx, seen := byKey[key]
		if !seen {
			byKey[key] = len(out)
			out = append(out, records[i])
			continue
		}
		if prefer(&records[i], &out[idx]) {
			logger.Debug("Dedupe: %q replaces earlier duplicate", records[i].Title)
			out[idx] = records[i]
		} else {
			logger.Debug("Dedupe: dropping duplicate of %q", out[idx].Title)
		}
	}

	return out
}

// prefer reports whether challenger should replace incumbent.
func prefer(challenger, incumbent *models.MarketRecord) bool {
	cc, ic := completeness(challenger), completeness(incumbent)
	if cc != ic {
		return cc > ic
	}
	return challenger.Volume24h > incumbent.Volume24h
}

// completeness counts the optional fields a record carries.
func completeness(r *models.MarketRecord) int {
	n := 0
	if r.EndDate != nil {
		n++
	}
	if r.GroupTitle != "" {
		n++
	}
	if r.Category != "" {
		n++
	}
	return n
}

// order produces the canonical record ordering: each group as a contiguous
// block sorted by descending volume, groups sorted by their peak volume
// (group title as tie-break), then ungrouped records by descending volume.
// All sorts are stable so equal-volume records keep first-seen order.
func order(records []models.MarketRecord) []models.MarketRecord {
	groupOrder := make([]string, 0)
	grouped := make(map[string][]models.MarketRecord)
	var ungrouped []models.MarketRecord

	for i := range records {
		title := records[i].GroupTitle
		if title == "" {
			ungrouped = append(ungrouped, records[i])
			continue
		}
		if _, seen := grouped[title]; !seen {
			groupOrder = append(groupOrder, title)
		}
		grouped[title] = append(grouped[title], records[i])
	}

	peak := func(title string) float64 {
		max := 0.0
		for _, r := range grouped[title] {
			if r.Volume24h > max {
				max = r.Volume24h
			}
		}
		return max
	}

	sort.SliceStable(groupOrder, func(i, j int) bool {
		pi, pj := peak(groupOrder[i]), peak(groupOrder[j])
		if pi != pj {
			return pi > pj
		}
		return groupOrder[i] < groupOrder[j]
	})

	out := make([]models.MarketRecord, 0, len(records))
	for _, title := range groupOrder {
		block := grouped[title]
		sort.SliceStable(block, func(i, j int) bool {
			return block[i].Volume24h > block[j].Volume24h
		})
		out = append(out, block...)
	}

	sort.SliceStable(ungrouped, func(i, j int) bool {
		return ungrouped[i].Volume24h > ungrouped[j].Volume24h
	})
	out = append(out, ungrouped...)

	return out
}
