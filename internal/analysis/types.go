// Package analysis defines the stable result shapes produced by the document
// pipeline and the confidence-based routing decision applied to them. The
// provider-specific response structure is flattened into these types by the
// extraction client; nothing downstream ever sees provider SDK shapes.
package analysis

import "time"

// Status is the overall outcome of one document analysis.
type Status string

const (
	StatusSucceeded      Status = "succeeded"
	StatusRequiresReview Status = "requires_review"
	StatusFailed         Status = "failed"
)

// FieldStatus describes the extraction outcome for a single target field.
type FieldStatus string

const (
	FieldExtracted       FieldStatus = "extracted"
	FieldLowConfidence   FieldStatus = "low_confidence"
	FieldNotFound        FieldStatus = "not_found"
	FieldExtractionError FieldStatus = "extraction_error"
)

// Error codes attached to failed results.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeProviderError   = "PROVIDER_ERROR"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeStorageError    = "STORAGE_ERROR"
)

// BoundingRegion locates extracted text on a page. The polygon is the
// provider's ordered coordinate sequence, passed through untouched.
type BoundingRegion struct {
	PageNumber int       `json:"pageNumber"`
	Polygon    []float64 `json:"polygon"`
}

// Span is an offset/length pair into the document's full text content.
type Span struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// ExtractionMeta keeps the routing inputs alongside the field for debugging
// and review-store metadata. RawValue holds whatever text the provider
// returned even when the authoritative Value is withheld; it must never be
// surfaced as the extracted value.
type ExtractionMeta struct {
	MeetsThreshold      bool   `json:"meetsThreshold"`
	ExtractionSucceeded bool   `json:"extractionSucceeded"`
	RawValue            string `json:"rawExtractedValue,omitempty"`
}

// ExtractedField is the normalized result for the target field.
//
// Invariants:
//   - Status == FieldExtracted implies Value != nil and the confidence met
//     the threshold at evaluation time.
//   - Status == FieldNotFound or FieldExtractionError implies Value == nil.
type ExtractedField struct {
	FieldName       string           `json:"fieldName"`
	Value           *string          `json:"value"`
	Confidence      float64          `json:"confidence"`
	Status          FieldStatus      `json:"status"`
	BoundingRegions []BoundingRegion `json:"boundingRegions"`
	Spans           []Span           `json:"spans"`
	Meta            ExtractionMeta   `json:"extractionMetadata"`
}

// StorageInfo records the outcome of the review-archive attempt for one
// analysis. Stored == false with a Reason means the archive degraded without
// failing the analysis.
type StorageInfo struct {
	Stored      bool   `json:"stored"`
	Container   string `json:"container,omitempty"`
	DocumentKey string `json:"documentKey,omitempty"`
	MetadataKey string `json:"metadataKey,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Error is the structured failure detail embedded in a failed Result.
type Error struct {
	Code          string    `json:"code"`
	Message       string    `json:"message"`
	Details       string    `json:"details,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Result is the complete outcome of one analysis request. It is created per
// request and returned to the caller or embedded in review-store metadata;
// it is never persisted as a standalone entity. Storage and ProcessingTimeMS
// are filled in as later pipeline stages complete.
type Result struct {
	AnalysisID          string         `json:"analysisId"`
	CorrelationID       string         `json:"correlationId"`
	Status              Status         `json:"status"`
	SerialField         ExtractedField `json:"serialField"`
	ModelID             string         `json:"modelId"`
	APIVersion          string         `json:"apiVersion,omitempty"`
	ConfidenceThreshold float64        `json:"confidenceThreshold"`
	PageCount           int            `json:"pageCount"`
	ProcessingTimeMS    int64          `json:"processingTimeMs"`
	Storage             *StorageInfo   `json:"storageInfo,omitempty"`
	Err                 *Error         `json:"error,omitempty"`
}

// RawField is the normalized provider output for the target field, before
// the routing decision. Collections are always non-nil.
type RawField struct {
	Found           bool
	Value           string
	Confidence      float64
	BoundingRegions []BoundingRegion
	Spans           []Span
}

// RawResult is the normalized provider response. ProviderFailed marks a
// provider-level failure that produced no usable field data.
type RawResult struct {
	APIVersion     string
	ModelID        string
	Content        string
	PageCount      int
	Serial         RawField
	ProviderFailed bool
}
