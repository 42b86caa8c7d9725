// Package main provides the Lambda entry point for the document analysis
// API.
//
// Endpoints:
//
//	POST /api/documents/analyze        — analyze a document (JSON URL request or multipart upload)
//	GET  /api/documents/analyses/{id}  — fetch an archived review record
//	GET  /api/documents/pending-review — list documents awaiting review (?days=N)
//	GET  /api/health                   — component health
//
// The document intelligence API key is loaded from SSM Parameter Store at
// cold start unless DOCINTEL_KEY is set.
package main

import (
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/docintel"
	"github.com/fpang/returns-docintel/internal/docproc"
	"github.com/fpang/returns-docintel/internal/lambdaboot"
	"github.com/fpang/returns-docintel/internal/logging"
	"github.com/fpang/returns-docintel/internal/reviewstore"
)

var (
	cfg     *config.Config
	service *docproc.Service
	archive *reviewstore.Store
)

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	lambdaboot.LoadDocIntelKey(clients.SSM)

	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid analysis configuration")
	}

	archive = reviewstore.New(lambdaboot.InitS3(clients.Config), cfg)
	service = docproc.New(docintel.New(cfg), archive, cfg)

	lambdaboot.StartupLog("analysis-lambda", initStart).
		Endpoint("docintel", cfg.DocIntelEndpoint).
		S3Bucket("review", cfg.ReviewBucket).
		Config("defaultModelId", cfg.DefaultModelID).
		Config("confidenceThreshold", logging.EnvOrDefault("CONFIDENCE_THRESHOLD", "0.7")).
		Feature("reviewArchive", cfg.EnableArchive).
		Log()
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/documents/analyze", handleAnalyze)
	mux.HandleFunc("/api/documents/analyses/", handleAnalysisRoutes)
	mux.HandleFunc("/api/documents/pending-review", handlePendingReview)
	mux.HandleFunc("/api/health", handleHealth)

	adapter := httpadapter.NewV2(withMetrics(mux))
	lambda.Start(adapter.ProxyWithContext)
}
