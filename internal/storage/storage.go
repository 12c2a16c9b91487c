// Package storage persists pipeline artifacts to a local data directory:
// the raw document, the current structured catalog, the run report, and a
// date-partitioned history of catalog snapshots (one file per calendar day).
//
// Every write goes to a temporary file first and is then renamed into place,
// so a reader never observes a partially written artifact and an interrupted
// run cannot leave a truncated snapshot behind. Snapshots for past dates are
// immutable once published; only today's snapshot may be rewritten.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/marketsnap/marketsnap/internal/models"
)

const (
	snapshotPrefix = "structured-data-"
	snapshotSuffix = ".json"
	dateLayout     = "2006-01-02"

	filePermissions = os.FileMode(0o644)
	dirPermissions  = os.FileMode(0o755)
)

// Tolerances below which a price or volume difference does not count as a
// change in Diff output.
const (
	diffPriceTolerance  = 0.0001
	diffVolumeTolerance = 0.01
)

// ErrNotFound is returned when no snapshot or artifact exists for a request.
var ErrNotFound = errors.New("not found")

// ErrPastImmutable is returned when a save would overwrite a snapshot
// published on an earlier calendar day.
var ErrPastImmutable = errors.New("snapshot for a past date is immutable")

// WriteError wraps a failed artifact write with the path involved.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Config describes the on-disk layout.
type Config struct {
	DataDir     string
	RawFile     string
	CatalogFile string
	HistoryDir  string
	ReportFile  string
}

// Store manages the artifact files and the snapshot history directory.
type Store struct {
	dataDir     string
	rawPath     string
	catalogPath string
	historyDir  string
	reportPath  string

	// now is injectable for testing the today-only rewrite rule.
	now func() time.Time
}

// ChangedPair holds the before/after records of a market whose prices or
// volume moved between two snapshots.
type ChangedPair struct {
	Before models.MarketRecord `json:"before"`
	After  models.MarketRecord `json:"after"`
}

// Diff is the result of comparing two dated snapshots.
type Diff struct {
	Added   []models.MarketRecord `json:"added"`
	Removed []models.MarketRecord `json:"removed"`
	Changed []ChangedPair         `json:"changed"`
}

// Empty reports whether the two snapshots were identical within tolerance.
func (d *Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// New creates a Store, ensures the data and history directories exist, and
// removes stale temporary files left by interrupted runs.
func New(cfg Config) (*Store, error) {
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Join(os.TempDir(), "marketsnap")
	}
	historyDir := filepath.Join(cfg.DataDir, cfg.HistoryDir)
	if err := os.MkdirAll(historyDir, dirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	s := &Store{
		dataDir:     cfg.DataDir,
		rawPath:     filepath.Join(cfg.DataDir, cfg.RawFile),
		catalogPath: filepath.Join(cfg.DataDir, cfg.CatalogFile),
		historyDir:  historyDir,
		reportPath:  filepath.Join(cfg.DataDir, cfg.ReportFile),
		now:         time.Now,
	}
	s.cleanStaleTemp()
	return s, nil
}

// cleanStaleTemp removes *.tmp leftovers from crashed runs so they are never
// mistaken for valid artifacts.
func (s *Store) cleanStaleTemp() {
	for _, dir := range []string{s.dataDir, s.historyDir} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
		if err != nil {
			continue
		}
		for _, m := range matches {
			_ = os.Remove(m)
		}
	}
}

// snapshotPath returns the history file path for a calendar date.
func (s *Store) snapshotPath(date time.Time) string {
	return filepath.Join(s.historyDir, snapshotPrefix+date.Format(dateLayout)+snapshotSuffix)
}

// Save writes the snapshot for the given calendar date. Re-saving today's
// snapshot overwrites it (idempotent reruns); overwriting a snapshot for a
// past date is rejected.
func (s *Store) Save(catalog models.MarketCatalog, date time.Time) error {
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	path := s.snapshotPath(date)
	today := s.now().Format(dateLayout)
	if date.Format(dateLayout) != today {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrPastImmutable, date.Format(dateLayout))
		}
	}

	return s.writeJSON(path, catalog)
}

// Load reads the snapshot for a calendar date.
func (s *Store) Load(date time.Time) (models.MarketCatalog, error) {
	var catalog models.MarketCatalog
	if err := s.readJSON(s.snapshotPath(date), &catalog); err != nil {
		return models.MarketCatalog{}, err
	}
	return catalog, nil
}

// Latest returns the most recently dated snapshot and its date.
func (s *Store) Latest() (models.MarketCatalog, time.Time, error) {
	dates, err := s.Dates()
	if err != nil {
		return models.MarketCatalog{}, time.Time{}, err
	}
	if len(dates) == 0 {
		return models.MarketCatalog{}, time.Time{}, ErrNotFound
	}

	latest := dates[len(dates)-1]
	catalog, err := s.Load(latest)
	if err != nil {
		return models.MarketCatalog{}, time.Time{}, err
	}
	return catalog, latest, nil
}

// Dates lists all snapshot dates in ascending order. Files whose names do
// not parse as snapshot dates are ignored.
func (s *Store) Dates() ([]time.Time, error) {
	entries, err := os.ReadDir(s.historyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var dates []time.Time
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		dateStr := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix)
		date, err := time.Parse(dateLayout, dateStr)
		if err != nil {
			continue
		}
		dates = append(dates, date)
	}

	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// Diff compares the snapshots of two dates, matching markets on the same
// composite key used for deduplication. A matched pair counts as changed
// only when a price or the volume moved beyond tolerance.
func (s *Store) Diff(dateA, dateB time.Time) (Diff, error) {
	catalogA, err := s.Load(dateA)
	if err != nil {
		return Diff{}, fmt.Errorf("snapshot %s: %w", dateA.Format(dateLayout), err)
	}
	catalogB, err := s.Load(dateB)
	if err != nil {
		return Diff{}, fmt.Errorf("snapshot %s: %w", dateB.Format(dateLayout), err)
	}

	indexA := make(map[string]int, len(catalogA.Markets))
	for i := range catalogA.Markets {
		indexA[catalogA.Markets[i].DedupeKey()] = i
	}

	var diff Diff
	seenInB := make(map[string]struct{}, len(catalogB.Markets))
	for i := range catalogB.Markets {
		key := catalogB.Markets[i].DedupeKey()
		seenInB[key] = struct{}{}
		j, ok := indexA[key]
		if !ok {
			diff.Added = append(diff.Added, catalogB.Markets[i])
			continue
		}
		if recordChanged(&catalogA.Markets[j], &catalogB.Markets[i]) {
			diff.Changed = append(diff.Changed, ChangedPair{
				Before: catalogA.Markets[j],
				After:  catalogB.Markets[i],
			})
		}
	}

	for i := range catalogA.Markets {
		if _, ok := seenInB[catalogA.Markets[i].DedupeKey()]; !ok {
			diff.Removed = append(diff.Removed, catalogA.Markets[i])
		}
	}

	return diff, nil
}

// recordChanged reports whether prices or volume moved beyond tolerance.
// Prices are matched by outcome name, folded the same way as the dedupe key,
// because a matched pair may list the same outcomes in a different order.
// An outcome present on only one side counts as changed.
func recordChanged(before, after *models.MarketRecord) bool {
	if len(before.Outcomes) != len(after.Outcomes) ||
		len(before.Prices) != len(before.Outcomes) ||
		len(after.Prices) != len(after.Outcomes) {
		return true
	}

	prices := make(map[string]float64, len(before.Outcomes))
	for i, outcome := range before.Outcomes {
		prices[foldOutcome(outcome)] = before.Prices[i]
	}
	for i, outcome := range after.Outcomes {
		p, ok := prices[foldOutcome(outcome)]
		if !ok {
			return true
		}
		if math.Abs(p-after.Prices[i]) > diffPriceTolerance {
			return true
		}
	}

	return math.Abs(before.Volume24h-after.Volume24h) > diffVolumeTolerance
}

func foldOutcome(outcome string) string {
	return strings.ToLower(strings.TrimSpace(outcome))
}

// SaveRaw persists the stage-1 raw document artifact.
func (s *Store) SaveRaw(doc models.RawDocument) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid raw document: %w", err)
	}
	return s.writeJSON(s.rawPath, doc)
}

// LoadRaw reads the stage-1 raw document artifact.
func (s *Store) LoadRaw() (models.RawDocument, error) {
	var doc models.RawDocument
	if err := s.readJSON(s.rawPath, &doc); err != nil {
		return models.RawDocument{}, err
	}
	return doc, nil
}

// SaveCatalog persists the current structured catalog (stage-2 artifact).
func (s *Store) SaveCatalog(catalog models.MarketCatalog) error {
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return s.writeJSON(s.catalogPath, catalog)
}

// LoadCatalog reads the current structured catalog.
func (s *Store) LoadCatalog() (models.MarketCatalog, error) {
	var catalog models.MarketCatalog
	if err := s.readJSON(s.catalogPath, &catalog); err != nil {
		return models.MarketCatalog{}, err
	}
	return catalog, nil
}

// SaveReport persists the run report artifact.
func (s *Store) SaveReport(report models.RunReport) error {
	return s.writeJSON(s.reportPath, report)
}

// writeJSON marshals v and atomically publishes it at path via a temporary
// file and rename.
func (s *Store) writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, filePermissions); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// readJSON loads path into v, mapping a missing file to ErrNotFound.
func (s *Store) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}
	return nil
}
