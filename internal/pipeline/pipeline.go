// Package pipeline sequences the three stages of a catalog run: acquiring
// raw content, structuring and normalizing it, and publishing the dated
// snapshot. Stages are selected explicitly, execute in ascending order, and
// fail fast: a stage whose precondition artifact is missing fails with a
// precondition reason and halts everything downstream.
//
// Stage outputs are handed downstream in memory within a single invocation,
// but every stage also persists its artifact, so a later invocation can run
// a stage subset against previously persisted outputs.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/marketsnap/marketsnap/internal/logger"
	"github.com/marketsnap/marketsnap/internal/models"
	"github.com/marketsnap/marketsnap/internal/normalize"
	"github.com/marketsnap/marketsnap/internal/storage"
)

// Stage numbers, in execution order.
const (
	StageAcquire   = 1
	StageStructure = 2
	StageSnapshot  = 3
)

var stageNames = map[int]string{
	StageAcquire:   "acquire-raw",
	StageStructure: "structure-normalize",
	StageSnapshot:  "snapshot",
}

// PreconditionError indicates a stage was asked to run without its upstream
// artifact, either in memory or on disk.
type PreconditionError struct {
	Stage   int
	Missing string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition not met for stage %d: missing %s", e.Stage, e.Missing)
}

// Source supplies raw listing content (stage 1 collaborator).
type Source interface {
	Fetch(ctx context.Context, url string) (models.RawDocument, error)
}

// Structurer converts a raw document into a market catalog (stage 2).
type Structurer interface {
	Structure(ctx context.Context, raw models.RawDocument) (models.MarketCatalog, error)
}

// Pipeline orchestrates the stages over a shared artifact store.
type Pipeline struct {
	source    Source
	engine    Structurer
	store     *storage.Store
	targetURL string
	now       func() time.Time

	// Outputs of stages already run in this invocation.
	raw     *models.RawDocument
	catalog *models.MarketCatalog
}

// New creates a pipeline over the given collaborators.
func New(source Source, engine Structurer, store *storage.Store, targetURL string) *Pipeline {
	return &Pipeline{
		source:    source,
		engine:    engine,
		store:     store,
		targetURL: targetURL,
		now:       time.Now,
	}
}

// Run executes the selected stages in ascending order and returns the run
// report plus the first stage error, if any. Selected stages that never ran
// because an earlier stage failed remain Pending in the report. The report
// is persisted as the automation-status artifact regardless of outcome.
func (p *Pipeline) Run(ctx context.Context, stages []int) (models.RunReport, error) {
	selected, err := normalizeSelection(stages)
	if err != nil {
		return models.RunReport{}, err
	}

	report := models.RunReport{
		RunID:     uuid.New().String(),
		StartedAt: p.now(),
	}
	for _, stage := range selected {
		report.Stages = append(report.Stages, models.StageReport{
			Stage:  stage,
			Name:   stageNames[stage],
			Status: models.StagePending,
		})
	}

	var runErr error
	for i, stage := range selected {
		entry := &report.Stages[i]
		entry.Status = models.StageRunning
		entry.StartedAt = p.now()
		logger.Info("Stage %d (%s) started", stage, entry.Name)

		err := p.runStage(ctx, stage)

		entry.FinishedAt = p.now()
		if err != nil {
			entry.Status = models.StageFailed
			entry.Error = err.Error()
			logger.Error("Stage %d (%s) failed after %v: %v", stage, entry.Name, entry.Duration(), err)
			runErr = fmt.Errorf("stage %d (%s): %w", stage, entry.Name, err)
			break
		}
		entry.Status = models.StageSucceeded
		logger.Info("Stage %d (%s) succeeded in %v", stage, entry.Name, entry.Duration())
	}

	report.FinishedAt = p.now()
	report.Success = runErr == nil && allSucceeded(report.Stages)

	if err := p.store.SaveReport(report); err != nil {
		logger.Warn("Failed to persist run report: %v", err)
	}

	return report, runErr
}

func (p *Pipeline) runStage(ctx context.Context, stage int) error {
	switch stage {
	case StageAcquire:
		return p.runAcquire(ctx)
	case StageStructure:
		return p.runStructure(ctx)
	case StageSnapshot:
		return p.runSnapshot()
	default:
		return fmt.Errorf("unknown stage: %d", stage)
	}
}

// runAcquire fetches raw content and persists the stage-1 artifact.
func (p *Pipeline) runAcquire(ctx context.Context) error {
	doc, err := p.source.Fetch(ctx, p.targetURL)
	if err != nil {
		return err
	}
	logger.Info("Fetched %s of raw content", humanize.Bytes(uint64(len(doc.SourceText))))

	if err := p.store.SaveRaw(doc); err != nil {
		return err
	}
	p.raw = &doc
	return nil
}

// runStructure structures and normalizes the raw document into the current
// catalog artifact. The raw document comes from this invocation when stage 1
// ran, otherwise from disk.
func (p *Pipeline) runStructure(ctx context.Context) error {
	raw := p.raw
	if raw == nil {
		doc, err := p.store.LoadRaw()
		if err != nil {
			if err == storage.ErrNotFound {
				return &PreconditionError{Stage: StageStructure, Missing: "raw document artifact"}
			}
			return err
		}
		raw = &doc
	}

	structured, err := p.engine.Structure(ctx, *raw)
	if err != nil {
		return err
	}

	catalog := normalize.Normalize(structured)
	logger.Info("Catalog normalized: %d markets (%d before normalization)",
		catalog.Metadata.TotalMarkets, structured.Metadata.TotalMarkets)

	if err := p.store.SaveCatalog(catalog); err != nil {
		return err
	}
	p.catalog = &catalog
	return nil
}

// runSnapshot publishes the current catalog under today's date.
func (p *Pipeline) runSnapshot() error {
	catalog := p.catalog
	if catalog == nil {
		loaded, err := p.store.LoadCatalog()
		if err != nil {
			if err == storage.ErrNotFound {
				return &PreconditionError{Stage: StageSnapshot, Missing: "structured catalog artifact"}
			}
			return err
		}
		catalog = &loaded
	}

	today := p.now()
	if err := p.store.Save(*catalog, today); err != nil {
		return err
	}
	logger.Info("Snapshot published for %s (%d markets)", today.Format("2006-01-02"), catalog.Metadata.TotalMarkets)
	return nil
}

// normalizeSelection validates, deduplicates, and sorts the stage subset.
// An empty selection means all stages.
func normalizeSelection(stages []int) ([]int, error) {
	if len(stages) == 0 {
		return []int{StageAcquire, StageStructure, StageSnapshot}, nil
	}

	seen := make(map[int]struct{}, len(stages))
	var out []int
	for _, stage := range stages {
		if _, ok := stageNames[stage]; !ok {
			return nil, fmt.Errorf("unknown stage: %d", stage)
		}
		if _, dup := seen[stage]; dup {
			continue
		}
		seen[stage] = struct{}{}
		out = append(out, stage)
	}
	sort.Ints(out)
	return out, nil
}

func allSucceeded(stages []models.StageReport) bool {
	for i := range stages {
		if stages[i].Status != models.StageSucceeded {
			return false
		}
	}
	return true
}
