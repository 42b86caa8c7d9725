package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/docproc"
)

// analyzeURLBody is the JSON request for analyzing a document by URL.
type analyzeURLBody struct {
	DocumentURL string `json:"documentUrl"`
	ModelID     string `json:"modelId,omitempty"`
}

// handleAnalyze accepts either a JSON body naming a document URL or a
// multipart upload with a "document" part.
func handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	correlationID := correlationIDFrom(r)

	var result *analysis.Result
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		var body analyzeURLBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid JSON body", correlationID)
			return
		}
		if body.DocumentURL == "" {
			httpError(w, http.StatusBadRequest, "documentUrl is required", correlationID)
			return
		}
		result = service.ProcessURL(r.Context(), body.DocumentURL, body.ModelID, correlationID)

	case strings.HasPrefix(contentType, "multipart/form-data"):
		data, partType, modelID, err := readUpload(r)
		if err != nil {
			httpError(w, http.StatusBadRequest, err.Error(), correlationID)
			return
		}
		result = service.ProcessBytes(r.Context(), data, partType, modelID, correlationID)

	default:
		httpError(w, http.StatusUnsupportedMediaType, "expected application/json or multipart/form-data", correlationID)
		return
	}

	status := http.StatusOK
	if result.Status == analysis.StatusFailed && result.Err != nil && result.Err.Code == analysis.CodeValidationError {
		status = http.StatusBadRequest
	}
	respondJSON(w, status, result)
}

// readUpload extracts the document part from a multipart request. The part
// may be named "document" or "file"; an optional "modelId" form value
// overrides the default model.
func readUpload(r *http.Request) ([]byte, string, string, error) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		return nil, "", "", fmt.Errorf("invalid multipart body: %w", err)
	}
	modelID := r.FormValue("modelId")

	for _, name := range []string{"document", "file"} {
		file, header, err := r.FormFile(name)
		if err != nil {
			continue
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, "", "", fmt.Errorf("reading upload: %w", err)
		}
		partType := header.Header.Get("Content-Type")
		if partType == "" {
			partType = contentTypeFromName(header.Filename)
		}
		return data, partType, modelID, nil
	}
	return nil, "", "", fmt.Errorf("multipart body must contain a document part")
}

// contentTypeFromName infers a MIME type from a filename extension for
// browsers that omit the part content type.
func contentTypeFromName(name string) string {
	switch strings.ToLower(name[strings.LastIndex(name, ".")+1:]) {
	case "pdf":
		return "application/pdf"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// handleAnalysisRoutes serves GET /api/documents/analyses/{id}.
func handleAnalysisRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	correlationID := correlationIDFrom(r)

	id := strings.TrimPrefix(r.URL.Path, "/api/documents/analyses/")
	if id == "" || strings.Contains(id, "/") {
		httpError(w, http.StatusBadRequest, "analysis id is required", correlationID)
		return
	}

	rec, err := archive.Retrieve(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("analysisId", id).Msg("Review record retrieval failed")
		httpError(w, http.StatusInternalServerError, "could not retrieve review record", correlationID)
		return
	}
	if rec == nil {
		httpError(w, http.StatusNotFound, "analysis not found", correlationID)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"analysisId":  rec.AnalysisID,
		"stage":       rec.Stage,
		"documentKey": rec.DocumentKey,
		"contentType": rec.ContentType,
		"sizeBytes":   len(rec.Document),
		"metadata":    rec.Metadata,
	})
}

// handlePendingReview serves GET /api/documents/pending-review?days=N.
func handlePendingReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	correlationID := correlationIDFrom(r)

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 90 {
			httpError(w, http.StatusBadRequest, "days must be between 1 and 90", correlationID)
			return
		}
		days = n
	}

	summaries, err := archive.ListPending(r.Context(), days)
	if err != nil {
		log.Error().Err(err).Int("days", days).Msg("Pending review listing failed")
		httpError(w, http.StatusInternalServerError, "could not list pending reviews", correlationID)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"days":    days,
		"count":   len(summaries),
		"pending": summaries,
	})
}

// handleHealth reports whether the pipeline's dependencies are configured.
func handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{
		"extraction":    "ok",
		"reviewArchive": "ok",
	}
	healthy := true
	if err := cfg.Validate(); err != nil {
		components["extraction"] = err.Error()
		healthy = false
	}
	if cfg.ReviewBucket == "" {
		components["reviewArchive"] = "review bucket not configured"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":     state,
		"components": components,
	})
}

func correlationIDFrom(r *http.Request) string {
	if id := r.Header.Get("X-Correlation-ID"); id != "" {
		return id
	}
	return docproc.NewCorrelationID()
}
