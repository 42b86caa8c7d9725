// Package main provides the Lambda entry point for the piece information
// API, a read-through aggregation over the upstream inventory, product
// master, and vendor services.
//
// Endpoints:
//
//	GET /api/pieceinfo/{pieceNumber} — merged piece record
//	GET /api/pieceinfo/health        — upstream configuration check
package main

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/docproc"
	"github.com/fpang/returns-docintel/internal/enrich"
	"github.com/fpang/returns-docintel/internal/lambdaboot"
	"github.com/fpang/returns-docintel/internal/logging"
	"github.com/fpang/returns-docintel/internal/metrics"
)

// pieceNumberRegex bounds what we forward upstream: alphanumerics, dots,
// hyphens, underscores.
var pieceNumberRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

var (
	cfg    *config.Config
	client *enrich.Client
)

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	lambdaboot.LoadSubscriptionKey(clients.SSM)

	cfg = config.Load()
	if cfg.PieceInfoBaseURL == "" {
		log.Fatal().Msg("PIECEINFO_BASE_URL is required")
	}
	client = enrich.New(cfg)

	lambdaboot.StartupLog("pieceinfo-lambda", initStart).
		Endpoint("pieceInfo", cfg.PieceInfoBaseURL).
		Log()
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/pieceinfo/", handlePieceInfo)

	adapter := httpadapter.NewV2(mux)
	lambda.Start(adapter.ProxyWithContext)
}

func handlePieceInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	start := time.Now()

	pieceNumber := strings.TrimPrefix(r.URL.Path, "/api/pieceinfo/")
	if pieceNumber == "health" {
		respondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "upstream": cfg.PieceInfoBaseURL})
		return
	}
	if !pieceNumberRegex.MatchString(pieceNumber) {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid piece number"})
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = docproc.NewCorrelationID()
	}

	info, err := client.AggregatePieceInfo(r.Context(), pieceNumber, correlationID)

	status := http.StatusOK
	switch {
	case err != nil:
		log.Error().Err(err).Str("pieceNumber", pieceNumber).Msg("Piece info aggregation failed")
		status = http.StatusBadGateway
		respondJSON(w, status, map[string]string{"error": "upstream piece lookup failed", "correlationId": correlationID})
	case info == nil:
		status = http.StatusNotFound
		respondJSON(w, status, map[string]string{"error": "piece not found", "correlationId": correlationID})
	default:
		respondJSON(w, status, info)
	}

	metrics.New().
		Dimension("Endpoint", "/api/pieceinfo/{pieceNumber}").
		Timing("RequestLatencyMs", start).
		Count("RequestCount").
		Property("statusCode", status).
		Flush()
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
