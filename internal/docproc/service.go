// Package docproc runs one document through extraction, confidence routing,
// and the optional review archive. It is the shared core behind the HTTP
// API, the pipeline worker, and the CLI.
//
// The service never returns a Go error: every failure becomes a Failed
// result carrying a structured error, so callers always have something to
// serialize or write back.
package docproc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/docintel"
)

// Extractor is the extraction client dependency.
type Extractor interface {
	Analyze(ctx context.Context, req docintel.AnalyzeRequest) (*analysis.RawResult, *analysis.Error)
}

// Archiver stores low-confidence documents for review.
type Archiver interface {
	Archive(ctx context.Context, doc []byte, contentType string, result *analysis.Result) *analysis.StorageInfo
}

// Service orchestrates a single analysis.
type Service struct {
	extractor Extractor
	archiver  Archiver
	cfg       *config.Config

	// fetch downloads a URL source when the archive needs the bytes.
	fetch func(ctx context.Context, url string) ([]byte, string, error)
}

// New builds a Service. The archiver may be nil when archival is disabled
// outright (CLI dry runs).
func New(extractor Extractor, archiver Archiver, cfg *config.Config) *Service {
	return &Service{
		extractor: extractor,
		archiver:  archiver,
		cfg:       cfg,
		fetch:     httpFetch,
	}
}

// NewID returns a fresh analysis id.
func NewID() string {
	return "analysis-" + uuid.NewString()
}

// NewCorrelationID returns a fresh correlation id.
func NewCorrelationID() string {
	return "corr-" + uuid.NewString()
}

// ProcessURL analyzes a document addressed by URL. The document bytes are
// downloaded only if the result needs archival.
func (s *Service) ProcessURL(ctx context.Context, docURL, modelID, correlationID string) *analysis.Result {
	return s.process(ctx, docintel.AnalyzeRequest{
		ModelID:     s.modelOrDefault(modelID),
		DocumentURL: docURL,
	}, correlationID, func(ctx context.Context) ([]byte, string, error) {
		return s.fetch(ctx, docURL)
	})
}

// ProcessBytes analyzes an uploaded document.
func (s *Service) ProcessBytes(ctx context.Context, data []byte, contentType, modelID, correlationID string) *analysis.Result {
	return s.process(ctx, docintel.AnalyzeRequest{
		ModelID:     s.modelOrDefault(modelID),
		Document:    data,
		ContentType: contentType,
	}, correlationID, func(ctx context.Context) ([]byte, string, error) {
		return data, contentType, nil
	})
}

func (s *Service) modelOrDefault(modelID string) string {
	if modelID != "" {
		return modelID
	}
	return s.cfg.DefaultModelID
}

func (s *Service) process(ctx context.Context, req docintel.AnalyzeRequest, correlationID string, loadDoc func(ctx context.Context) ([]byte, string, error)) *analysis.Result {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	req.CorrelationID = correlationID

	result := &analysis.Result{
		AnalysisID:          NewID(),
		CorrelationID:       correlationID,
		ModelID:             req.ModelID,
		ConfidenceThreshold: s.cfg.ConfidenceThreshold,
		SerialField: analysis.ExtractedField{
			FieldName:       docintel.SerialFieldName,
			Status:          analysis.FieldExtractionError,
			BoundingRegions: []analysis.BoundingRegion{},
			Spans:           []analysis.Span{},
		},
	}
	start := time.Now()
	defer func() {
		result.ProcessingTimeMS = time.Since(start).Milliseconds()
	}()

	log.Info().
		Str("analysisId", result.AnalysisID).
		Str("correlationId", correlationID).
		Str("modelId", req.ModelID).
		Msg("Starting document analysis")

	raw, aerr := s.extractor.Analyze(ctx, req)
	if aerr != nil && raw == nil {
		result.Status = analysis.StatusFailed
		result.Err = aerr
		log.Warn().
			Str("analysisId", result.AnalysisID).
			Str("errorCode", aerr.Code).
			Str("errorMessage", aerr.Message).
			Msg("Document analysis failed before routing")
		return result
	}

	outcome := analysis.Evaluate(*raw, docintel.SerialFieldName, s.cfg.ConfidenceThreshold)
	result.Status = outcome.Status
	result.SerialField = outcome.Field
	result.APIVersion = raw.APIVersion
	result.PageCount = raw.PageCount
	if raw.ModelID != "" {
		result.ModelID = raw.ModelID
	}
	if aerr != nil {
		result.Err = aerr
	}

	s.maybeArchive(ctx, outcome, result, loadDoc)

	log.Info().
		Str("analysisId", result.AnalysisID).
		Str("status", string(result.Status)).
		Str("fieldStatus", string(result.SerialField.Status)).
		Float64("confidence", result.SerialField.Confidence).
		Msg("Document analysis complete")
	return result
}

// maybeArchive applies the archive decision and records the skip reason when
// the document is not archived.
func (s *Service) maybeArchive(ctx context.Context, outcome analysis.Outcome, result *analysis.Result, loadDoc func(ctx context.Context) ([]byte, string, error)) {
	skip := func(reason string) {
		log.Debug().
			Str("analysisId", result.AnalysisID).
			Str("skipReason", reason).
			Msg("Review archive not required")
	}

	switch {
	case !outcome.ArchiveNeeded && result.Status == analysis.StatusSucceeded:
		skip("meets_threshold")
		return
	case !outcome.ArchiveNeeded:
		skip("extraction_failed")
		return
	case !s.cfg.EnableArchive || s.archiver == nil:
		skip("archive_disabled")
		return
	}

	doc, contentType, err := loadDoc(ctx)
	if err != nil {
		log.Error().Err(err).Str("analysisId", result.AnalysisID).Msg("Could not load document bytes for archival")
		result.Storage = &analysis.StorageInfo{Stored: false, Reason: fmt.Sprintf("document fetch failed: %v", err)}
		return
	}
	result.Storage = s.archiver.Archive(ctx, doc, contentType, result)
}

// httpFetch downloads a URL source, capped at 100 MB.
func httpFetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("document download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 100*1024*1024))
	if err != nil {
		return nil, "", fmt.Errorf("reading document body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
