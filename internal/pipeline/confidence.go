package pipeline

// Composite blends the extraction confidence with enrichment signals into
// the score written back to the work item:
//
//	0.8 * extraction + 0.1 if the serial resolved to a piece record
//	                 + 0.1 if that record carried both SKU and family
//
// The result is clamped to [0, 1].
func Composite(extraction float64, enrichmentFound, fieldsPopulated bool) float64 {
	score := 0.8 * extraction
	if enrichmentFound {
		score += 0.1
	}
	if fieldsPopulated {
		score += 0.1
	}
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
