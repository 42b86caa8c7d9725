package analysis

// Outcome is the routing decision for one raw extraction. ArchiveNeeded is
// true exactly when the document should land in the review archive.
type Outcome struct {
	Status        Status
	Field         ExtractedField
	ArchiveNeeded bool
}

// Evaluate applies the confidence decision table to a normalized provider
// result. It is a pure function of its inputs: no I/O, no clock, no logging.
//
//	provider failed            -> failed / extraction_error
//	field absent or empty      -> failed / not_found
//	confidence >= threshold    -> succeeded / extracted (value exposed)
//	confidence <  threshold    -> requires_review / low_confidence (value withheld)
//
// The threshold comparison is inclusive: a confidence exactly equal to the
// threshold succeeds.
func Evaluate(raw RawResult, fieldName string, threshold float64) Outcome {
	field := ExtractedField{
		FieldName:       fieldName,
		Status:          FieldNotFound,
		BoundingRegions: raw.Serial.BoundingRegions,
		Spans:           raw.Serial.Spans,
	}
	if field.BoundingRegions == nil {
		field.BoundingRegions = []BoundingRegion{}
	}
	if field.Spans == nil {
		field.Spans = []Span{}
	}

	if raw.ProviderFailed {
		field.Status = FieldExtractionError
		return Outcome{Status: StatusFailed, Field: field}
	}

	extracted := raw.Serial.Found && raw.Serial.Value != ""
	field.Meta.ExtractionSucceeded = extracted
	if !extracted {
		return Outcome{Status: StatusFailed, Field: field}
	}

	field.Confidence = raw.Serial.Confidence
	field.Meta.MeetsThreshold = raw.Serial.Confidence >= threshold
	if field.Meta.MeetsThreshold {
		v := raw.Serial.Value
		field.Value = &v
		field.Status = FieldExtracted
		return Outcome{Status: StatusSucceeded, Field: field}
	}

	// Low confidence: the raw text survives only in metadata, never as the
	// authoritative value.
	field.Status = FieldLowConfidence
	field.Meta.RawValue = raw.Serial.Value
	return Outcome{Status: StatusRequiresReview, Field: field, ArchiveNeeded: true}
}
