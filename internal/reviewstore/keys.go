package reviewstore

import (
	"fmt"
	"strings"
	"time"
)

// Review stages. A document enters at pending-review and is moved by the
// human workflow; retrieval probes all three.
const (
	StagePending    = "pending-review"
	StageReviewed   = "reviewed"
	StageRetraining = "retraining"
)

var stages = []string{StagePending, StageReviewed, StageRetraining}

// extensionFor maps a MIME type to the stored file extension. Unknown types
// fall back to .bin so the byte stream is still preserved.
func extensionFor(contentType string) string {
	base := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	switch base {
	case "application/pdf":
		return "pdf"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/tiff":
		return "tiff"
	default:
		return "bin"
	}
}

// documentKey builds the date-partitioned object key for the document bytes:
//
//	{prefix}/pending-review/{YYYY/MM/DD}/{analysisID}/document.{ext}
//
// The derivation is deterministic for a given (analysisID, contentType, day),
// so a retried store overwrites its own objects instead of duplicating them.
func documentKey(prefix, analysisID, contentType string, day time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s/document.%s",
		prefix, StagePending, day.UTC().Format("2006/01/02"), analysisID, extensionFor(contentType))
}

// metadataKey is the sibling key holding the analysis result JSON.
func metadataKey(prefix, analysisID string, day time.Time) string {
	return fmt.Sprintf("%s/%s/%s/%s/metadata.json",
		prefix, StagePending, day.UTC().Format("2006/01/02"), analysisID)
}
