// Package pipeline orchestrates the end-to-end processing of one returns
// work item: fetch the work item and its scanned paperwork, run extraction
// and confidence routing, enrich the serial against piece inventory, and
// write the outcome back onto the work item.
//
// The write-back happens exactly once per run, via defer, so a panic or an
// error on any stage still leaves the work item in a terminal state instead
// of stuck in processing.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/docproc"
	"github.com/fpang/returns-docintel/internal/enrich"
	"github.com/fpang/returns-docintel/internal/workitems"
)

// Analyzer runs one document through extraction and routing.
type Analyzer interface {
	ProcessBytes(ctx context.Context, data []byte, contentType, modelID, correlationID string) *analysis.Result
}

// Enricher resolves a serial to a piece record.
type Enricher interface {
	Lookup(ctx context.Context, serial, correlationID string) (*enrich.Record, error)
}

// Processor runs the work-item pipeline.
type Processor struct {
	store    workitems.Store
	source   DocumentSource
	analyzer Analyzer
	enricher Enricher
	now      func() time.Time
}

// New builds a Processor. The enricher may be nil when no piece info service
// is configured; enrichment is then skipped.
func New(store workitems.Store, source DocumentSource, analyzer Analyzer, enricher Enricher) *Processor {
	return &Processor{
		store:    store,
		source:   source,
		analyzer: analyzer,
		enricher: enricher,
		now:      time.Now,
	}
}

// Run processes one work item and returns the result that was written back.
// It never returns an error: every failure mode ends in a terminal result
// status, and every run attempts exactly one write-back.
func (p *Processor) Run(ctx context.Context, workItemID, correlationID string) (result *workitems.ProcessingResult) {
	if correlationID == "" {
		correlationID = docproc.NewCorrelationID()
	}
	result = &workitems.ProcessingResult{
		WorkItemID:    workItemID,
		CorrelationID: correlationID,
		Status:        workitems.StatusFailed,
	}

	item, err := p.store.GetWorkItem(ctx, workItemID)
	if err != nil {
		msg := fmt.Sprintf("work item lookup failed: %v", err)
		result.ErrorMessage = &msg
		log.Error().Err(err).Str("workItemId", workItemID).Msg("Work item lookup failed")
		p.writeBack(ctx, result)
		return result
	}
	if item == nil {
		// The write-back is still attempted; the store's conditional update
		// refuses to create a phantom item, and the failure is logged.
		msg := "work item not found"
		result.ErrorMessage = &msg
		log.Warn().Str("workItemId", workItemID).Msg("Work item not found")
		p.writeBack(ctx, result)
		return result
	}

	// From here on, whatever happens, including a panic in a downstream
	// stage, the result gets written back.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("pipeline panic: %v", r)
			result.Status = workitems.StatusFailed
			result.ErrorMessage = &msg
			log.Error().
				Str("workItemId", workItemID).
				Interface("panic", r).
				Msg("Recovered from pipeline panic")
		}
		p.writeBack(ctx, result)
	}()

	if err := p.store.SetStatus(ctx, workItemID, workitems.StatusProcessing); err != nil {
		log.Warn().Err(err).Str("workItemId", workItemID).Msg("Could not mark work item processing")
	}

	doc, contentType, err := p.source.Fetch(ctx, item.DocumentKey)
	if err != nil {
		msg := fmt.Sprintf("document fetch failed: %v", err)
		result.ErrorMessage = &msg
		log.Error().Err(err).Str("workItemId", workItemID).Str("documentKey", item.DocumentKey).Msg("Document fetch failed")
		return result
	}
	if len(doc) == 0 {
		msg := fmt.Sprintf("document fetch failed: object %s is empty", item.DocumentKey)
		result.ErrorMessage = &msg
		log.Error().Str("workItemId", workItemID).Str("documentKey", item.DocumentKey).Msg("Fetched document is empty")
		return result
	}
	if contentType == "" {
		contentType = item.ContentType
	}

	res := p.analyzer.ProcessBytes(ctx, doc, contentType, "", correlationID)

	switch res.Status {
	case analysis.StatusSucceeded:
		result.Status = workitems.StatusCompleted
	case analysis.StatusRequiresReview:
		result.Status = workitems.StatusLowConfidence
	default:
		result.Status = workitems.StatusFailed
		if res.Err != nil {
			msg := res.Err.Message
			result.ErrorMessage = &msg
		}
	}
	if res.SerialField.Value != nil {
		v := *res.SerialField.Value
		result.Serial = &v
	}

	record := p.enrichSerial(ctx, result.Serial, correlationID)
	if record != nil {
		if record.SKU != "" {
			sku := record.SKU
			result.SKU = &sku
		}
		if record.Family != "" {
			family := record.Family
			result.Family = &family
		}
	}

	result.ConfidenceScore = Composite(
		res.SerialField.Confidence,
		record != nil,
		record != nil && record.SKU != "" && record.Family != "",
	)

	log.Info().
		Str("workItemId", workItemID).
		Str("status", string(result.Status)).
		Float64("confidenceScore", result.ConfidenceScore).
		Bool("enriched", record != nil).
		Msg("Work item processed")
	return result
}

// enrichSerial resolves the serial to a piece record. No serial and lookup
// failures both yield nil; the two cases are logged distinctly.
func (p *Processor) enrichSerial(ctx context.Context, serial *string, correlationID string) *enrich.Record {
	if serial == nil || *serial == "" {
		log.Debug().Str("correlationId", correlationID).Msg("Enrichment skipped: no extracted serial")
		return nil
	}
	if p.enricher == nil {
		log.Debug().Str("correlationId", correlationID).Msg("Enrichment skipped: no piece info service configured")
		return nil
	}
	record, err := p.enricher.Lookup(ctx, *serial, correlationID)
	if err != nil {
		log.Warn().Err(err).Str("serial", *serial).Msg("Piece lookup failed, continuing without enrichment")
		return nil
	}
	if record == nil {
		log.Info().Str("serial", *serial).Msg("Serial not found in piece inventory")
	}
	return record
}

// writeBack persists the result. It runs on a context detached from the
// caller's cancellation so a timed-out run still records its failure.
func (p *Processor) writeBack(ctx context.Context, result *workitems.ProcessingResult) {
	result.ProcessedAt = p.now().UTC()
	wbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.WriteResult(wbCtx, result); err != nil {
		log.Error().Err(err).Str("workItemId", result.WorkItemID).Msg("Result write-back failed")
	}
}
