package normalize_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marketsnap/marketsnap/internal/models"
	"github.com/marketsnap/marketsnap/internal/normalize"
)

func record(title string, outcomes []string, prices []float64, volume float64) models.MarketRecord {
	return models.MarketRecord{
		Title:     title,
		Outcomes:  outcomes,
		Prices:    prices,
		Volume24h: volume,
	}
}

func catalog(records ...models.MarketRecord) models.MarketCatalog {
	return models.MarketCatalog{
		Metadata: models.CatalogMetadata{
			Source:          "test",
			TotalMarkets:    len(records),
			ProcessingStage: "structured",
		},
		Markets: records,
	}
}

func TestNormalize_DedupePrefersHigherVolume(t *testing.T) {
	// Same market with different title casing and outcome order; the higher
	// volume record survives.
	first := record("X", []string{"Y", "N"}, []float64{0.6, 0.4}, 100)
	second := record("x", []string{"N", "Y"}, []float64{0.45, 0.55}, 200)

	out := normalize.Normalize(catalog(first, second))

	require.Len(t, out.Markets, 1)
	require.Equal(t, "x", out.Markets[0].Title)
	require.Equal(t, 200.0, out.Markets[0].Volume24h)
}

func TestNormalize_DedupePrefersCompleteRecord(t *testing.T) {
	category := record("Fed cut?", []string{"Yes", "No"}, []float64{0.6, 0.4}, 100)
	category.Category = "Economy"
	bare := record("fed cut?", []string{"No", "Yes"}, []float64{0.4, 0.6}, 900)

	out := normalize.Normalize(catalog(bare, category))

	// Completeness beats volume.
	require.Len(t, out.Markets, 1)
	require.Equal(t, "Economy", out.Markets[0].Category)
}

func TestNormalize_DedupeTieKeepsFirstSeen(t *testing.T) {
	first := record("Even", []string{"Yes", "No"}, []float64{0.5, 0.5}, 100)
	first.Description = "first"
	second := record("even", []string{"Yes", "No"}, []float64{0.5, 0.5}, 100)
	second.Description = "second"

	out := normalize.Normalize(catalog(first, second))

	require.Len(t, out.Markets, 1)
	require.Equal(t, "first", out.Markets[0].Description)
}

func TestNormalize_SurvivorGroupWins(t *testing.T) {
	grouped := record("Winner?", []string{"Yes", "No"}, []float64{0.5, 0.5}, 500)
	grouped.GroupTitle = "Election"
	other := record("winner?", []string{"No", "Yes"}, []float64{0.5, 0.5}, 100)
	other.GroupTitle = "Politics"

	out := normalize.Normalize(catalog(other, grouped))

	// Both carry one optional field; higher volume wins and so does its group.
	require.Len(t, out.Markets, 1)
	require.Equal(t, "Election", out.Markets[0].GroupTitle)
}

func TestNormalize_GroupingContiguity(t *testing.T) {
	standalone := record("Standalone high", []string{"Yes", "No"}, []float64{0.5, 0.5}, 9000)
	a1 := record("A low", []string{"Yes", "No"}, []float64{0.5, 0.5}, 10)
	a1.GroupTitle = "A"
	b1 := record("B only", []string{"Yes", "No"}, []float64{0.5, 0.5}, 500)
	b1.GroupTitle = "B"
	a2 := record("A high", []string{"Yes", "No"}, []float64{0.5, 0.5}, 1000)
	a2.GroupTitle = "A"

	out := normalize.Normalize(catalog(standalone, a1, b1, a2))

	require.Len(t, out.Markets, 4)

	// Group A (peak 1000) first, volume-descending inside; then group B;
	// ungrouped records trail regardless of volume.
	titles := []string{out.Markets[0].Title, out.Markets[1].Title, out.Markets[2].Title, out.Markets[3].Title}
	require.Equal(t, []string{"A high", "A low", "B only", "Standalone high"}, titles)

	// Contiguity: every group forms one block.
	seen := map[string]bool{}
	last := ""
	for _, m := range out.Markets {
		if m.GroupTitle != last {
			require.False(t, seen[m.GroupTitle], "group %q split across blocks", m.GroupTitle)
			seen[m.GroupTitle] = true
			last = m.GroupTitle
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	g := record("Grouped", []string{"Yes", "No"}, []float64{0.7, 0.3}, 300)
	g.GroupTitle = "G"
	in := catalog(
		record("Dup", []string{"Yes", "No"}, []float64{0.6, 0.4}, 100),
		record("dup", []string{"No", "Yes"}, []float64{0.4, 0.6}, 200),
		g,
		record("Solo", []string{"Up", "Down"}, []float64{0.5, 0.5}, 50),
	)

	once := normalize.Normalize(in)
	twice := normalize.Normalize(once)

	require.Equal(t, once.Markets, twice.Markets)
	require.Equal(t, once.Metadata.TotalMarkets, twice.Metadata.TotalMarkets)
	require.Equal(t, once.Metadata.ProcessingStage, twice.Metadata.ProcessingStage)
}

func TestNormalize_Metadata(t *testing.T) {
	before := time.Now()
	out := normalize.Normalize(catalog(
		record("A", []string{"Yes", "No"}, []float64{0.5, 0.5}, 1),
		record("a", []string{"No", "Yes"}, []float64{0.5, 0.5}, 2),
	))

	require.Equal(t, 1, out.Metadata.TotalMarkets)
	require.Equal(t, normalize.StageNormalized, out.Metadata.ProcessingStage)
	require.Equal(t, "test", out.Metadata.Source)
	require.False(t, out.Metadata.Timestamp.Before(before))
}

func TestNormalize_EmptyCatalog(t *testing.T) {
	out := normalize.Normalize(catalog())
	require.Empty(t, out.Markets)
	require.Equal(t, 0, out.Metadata.TotalMarkets)
}
