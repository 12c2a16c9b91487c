// snapdiff compares two dated catalog snapshots from the history directory
// and prints the markets that were added, removed, or repriced between them.
// With no dates given it compares the two most recent snapshots.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/marketsnap/marketsnap/internal/config"
	"github.com/marketsnap/marketsnap/internal/models"
	"github.com/marketsnap/marketsnap/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	fromDate   = flag.String("from", "", "Earlier snapshot date (YYYY-MM-DD)")
	toDate     = flag.String("to", "", "Later snapshot date (YYYY-MM-DD)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(storage.Config{
		DataDir:     cfg.Storage.DataDir,
		RawFile:     cfg.Storage.RawFile,
		CatalogFile: cfg.Storage.CatalogFile,
		HistoryDir:  cfg.Storage.HistoryDir,
		ReportFile:  cfg.Storage.ReportFile,
	})
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}

	from, to, err := resolveDates(store)
	if err != nil {
		log.Fatalf("%v", err)
	}

	diff, err := store.Diff(from, to)
	if err != nil {
		log.Fatalf("Diff failed: %v", err)
	}

	fmt.Printf("Snapshot diff %s -> %s\n\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if diff.Empty() {
		fmt.Println("No changes.")
		return
	}

	if len(diff.Added) > 0 {
		fmt.Printf("Added (%d):\n", len(diff.Added))
		for i := range diff.Added {
			printMarket(&diff.Added[i])
		}
		fmt.Println()
	}
	if len(diff.Removed) > 0 {
		fmt.Printf("Removed (%d):\n", len(diff.Removed))
		for i := range diff.Removed {
			printMarket(&diff.Removed[i])
		}
		fmt.Println()
	}
	if len(diff.Changed) > 0 {
		fmt.Printf("Changed (%d):\n", len(diff.Changed))
		for i := range diff.Changed {
			printChange(&diff.Changed[i])
		}
	}
}

// resolveDates picks the comparison pair: explicit flags when given,
// otherwise the two most recent snapshots.
func resolveDates(store *storage.Store) (time.Time, time.Time, error) {
	if *fromDate != "" && *toDate != "" {
		from, err := time.Parse("2006-01-02", *fromDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -from date: %v", err)
		}
		to, err := time.Parse("2006-01-02", *toDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid -to date: %v", err)
		}
		return from, to, nil
	}
	if *fromDate != "" || *toDate != "" {
		return time.Time{}, time.Time{}, fmt.Errorf("-from and -to must be given together")
	}

	dates, err := store.Dates()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if len(dates) < 2 {
		fmt.Fprintln(os.Stderr, "Need at least two snapshots to compare.")
		os.Exit(1)
	}
	return dates[len(dates)-2], dates[len(dates)-1], nil
}

func printMarket(r *models.MarketRecord) {
	fmt.Printf("  %s (vol $%s)\n", r.Title, humanize.Commaf(r.Volume24h))
	for i, outcome := range r.Outcomes {
		fmt.Printf("    %-20s %.1f%%\n", outcome, r.Prices[i]*100)
	}
}

func printChange(c *storage.ChangedPair) {
	fmt.Printf("  %s (vol $%s -> $%s)\n", c.After.Title,
		humanize.Commaf(c.Before.Volume24h), humanize.Commaf(c.After.Volume24h))

	// Pair prices by outcome name; the two snapshots may list the same
	// outcomes in different orders.
	before := make(map[string]float64, len(c.Before.Outcomes))
	for i, outcome := range c.Before.Outcomes {
		if i < len(c.Before.Prices) {
			before[strings.ToLower(strings.TrimSpace(outcome))] = c.Before.Prices[i]
		}
	}
	for i, outcome := range c.After.Outcomes {
		if prev, ok := before[strings.ToLower(strings.TrimSpace(outcome))]; ok {
			fmt.Printf("    %-20s %.1f%% -> %.1f%%\n", outcome, prev*100, c.After.Prices[i]*100)
		} else {
			fmt.Printf("    %-20s new at %.1f%%\n", outcome, c.After.Prices[i]*100)
		}
	}
}
