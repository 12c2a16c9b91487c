// Package parser implements the structuring engine: it sends raw listing
// content to a text-understanding service under a fixed extraction contract,
// recovers the JSON payload from the free-form response, repairs near-miss
// field names, and validates every record before admitting it to the catalog.
package parser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marketsnap/marketsnap/internal/logger"
	"github.com/marketsnap/marketsnap/internal/models"
)

// CatalogSource identifies where a catalog's content came from.
const CatalogSource = "marketsnap-structuring-engine"

// StageStructured marks a catalog that passed structuring but not yet
// normalization.
const StageStructured = "structured"

// StructuringError indicates the service was unreachable or its output
// unusable after all retries. RawResponse carries the last response body for
// diagnostics; it is empty when the service never answered.
type StructuringError struct {
	RawResponse string
	Err         error
}

func (e *StructuringError) Error() string {
	return fmt.Sprintf("structuring failed: %v", e.Err)
}

func (e *StructuringError) Unwrap() error { return e.Err }

// EngineConfig tunes the retry policy for transient service failures.
type EngineConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Engine converts raw documents into validated market catalogs.
type Engine struct {
	service TextService
	cfg     EngineConfig
}

// NewEngine creates a structuring engine on top of a text service.
func NewEngine(service TextService, cfg EngineConfig) *Engine {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Engine{service: service, cfg: cfg}
}

// Structure runs the extraction contract against the raw document and
// returns a validated catalog. Transient service failures and unparseable
// responses are retried with doubling backoff; a response that is valid JSON
// but fails the schema is a data problem and fails immediately. Records
// failing validation are dropped and logged, never fatal; zero surviving
// markets is a valid empty catalog.
func (e *Engine) Structure(ctx context.Context, raw models.RawDocument) (models.MarketCatalog, error) {
	if err := raw.Validate(); err != nil {
		return models.MarketCatalog{}, &StructuringError{Err: fmt.Errorf("invalid raw document: %w", err)}
	}

	prompt := extractionPrompt + raw.SourceText

	var lastResponse string
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryDelayBase * time.Duration(1<<(attempt-1))
			logger.Debug("Structuring retry %d/%d after %v", attempt, e.cfg.MaxRetries, delay)
			select {
			case <-ctx.Done():
				return models.MarketCatalog{}, &StructuringError{RawResponse: lastResponse, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		response, err := e.service.Generate(ctx, prompt)
		if err != nil {
			lastErr = err
			var transient *TransientError
			if errors.As(err, &transient) {
				logger.Warn("Transient service error: %v", err)
				continue
			}
			return models.MarketCatalog{}, &StructuringError{Err: err}
		}
		lastResponse = response

		payload, err := extractJSON(response)
		if err != nil {
			// The model produced prose without a JSON document; worth one
			// more attempt.
			lastErr = err
			logger.Warn("Response contained no JSON payload: %v", err)
			continue
		}

		records, err := decodeRecords(payload)
		if err != nil {
			// Valid JSON with the wrong shape is a data problem, not a
			// transient one. Retrying the same prompt will not fix it.
			return models.MarketCatalog{}, &StructuringError{RawResponse: response, Err: err}
		}

		return e.buildCatalog(records, raw.FetchedAt), nil
	}

	return models.MarketCatalog{}, &StructuringError{RawResponse: lastResponse, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

// buildCatalog validates records, drops and logs failures, and assembles the
// structured (pre-normalization) catalog.
func (e *Engine) buildCatalog(records []models.MarketRecord, fetchedAt time.Time) models.MarketCatalog {
	accepted := make([]models.MarketRecord, 0, len(records))
	dropped := 0
	for i := range records {
		if err := records[i].Validate(); err != nil {
			dropped++
			logger.Warn("Dropping record %q: %v", records[i].Title, err)
			continue
		}
		accepted = append(accepted, records[i])
	}
	if dropped > 0 {
		logger.Info("Structuring dropped %d of %d records", dropped, len(records))
	}

	return models.MarketCatalog{
		Metadata: models.CatalogMetadata{
			Timestamp:       fetchedAt,
			Source:          CatalogSource,
			TotalMarkets:    len(accepted),
			ProcessingStage: StageStructured,
		},
		Markets: accepted,
	}
}
