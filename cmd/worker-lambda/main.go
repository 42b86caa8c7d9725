// Package main provides the Lambda entry point for the returns pipeline
// worker. It is invoked asynchronously (lambda:Invoke, InvocationType=Event)
// with one work item per event, runs the full extract-route-enrich pipeline,
// and writes the result back to the work-items table.
//
// Event format:
//
//	{
//	  "workItemId": "wi-...",
//	  "correlationId": "corr-..."   // optional
//	}
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/docintel"
	"github.com/fpang/returns-docintel/internal/docproc"
	"github.com/fpang/returns-docintel/internal/enrich"
	"github.com/fpang/returns-docintel/internal/lambdaboot"
	"github.com/fpang/returns-docintel/internal/logging"
	"github.com/fpang/returns-docintel/internal/metrics"
	"github.com/fpang/returns-docintel/internal/pipeline"
	"github.com/fpang/returns-docintel/internal/reviewstore"
)

// WorkEvent is the invocation payload.
type WorkEvent struct {
	WorkItemID    string `json:"workItemId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// WorkSummary is returned to the invoker (visible on synchronous test
// invocations and in destination payloads).
type WorkSummary struct {
	WorkItemID      string  `json:"workItemId"`
	Status          string  `json:"status"`
	ConfidenceScore float64 `json:"confidenceScore"`
	Error           string  `json:"error,omitempty"`
}

var processor *pipeline.Processor

func init() {
	initStart := time.Now()
	logging.Init()

	clients := lambdaboot.InitAWS()
	lambdaboot.LoadDocIntelKey(clients.SSM)
	lambdaboot.LoadSubscriptionKey(clients.SSM)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid worker configuration")
	}
	if cfg.AssetsBucket == "" {
		log.Fatal().Msg("ASSETS_BUCKET_NAME is required")
	}

	s3Client := lambdaboot.InitS3(clients.Config)
	store := lambdaboot.InitWorkItems(clients.Config, "WORKITEMS_TABLE_NAME")
	archive := reviewstore.New(s3Client, cfg)
	analyzer := docproc.New(docintel.New(cfg), archive, cfg)
	source := pipeline.NewS3Source(s3Client, cfg.AssetsBucket)

	var enricher pipeline.Enricher
	if cfg.PieceInfoBaseURL != "" {
		enricher = enrich.New(cfg)
	} else {
		log.Warn().Msg("PIECEINFO_BASE_URL not set, enrichment disabled")
	}

	processor = pipeline.New(store, source, analyzer, enricher)

	lambdaboot.StartupLog("worker-lambda", initStart).
		Endpoint("docintel", cfg.DocIntelEndpoint).
		S3Bucket("assets", cfg.AssetsBucket).
		S3Bucket("review", cfg.ReviewBucket).
		DynamoTable("workItems", logging.EnvOrDefault("WORKITEMS_TABLE_NAME", "")).
		Feature("enrichment", enricher != nil).
		Log()
}

func handler(ctx context.Context, event WorkEvent) (WorkSummary, error) {
	if event.WorkItemID == "" {
		return WorkSummary{}, fmt.Errorf("workItemId is required")
	}
	start := time.Now()

	result := processor.Run(ctx, event.WorkItemID, event.CorrelationID)

	summary := WorkSummary{
		WorkItemID:      result.WorkItemID,
		Status:          string(result.Status),
		ConfidenceScore: result.ConfidenceScore,
	}
	if result.ErrorMessage != nil {
		summary.Error = *result.ErrorMessage
	}

	metrics.New().
		Dimension("Status", summary.Status).
		Timing("PipelineLatencyMs", start).
		Count("WorkItemCount").
		Metric("ConfidenceScore", result.ConfidenceScore, metrics.UnitNone).
		Property("workItemId", result.WorkItemID).
		Property("correlationId", result.CorrelationID).
		Flush()

	// Pipeline failures are terminal states recorded on the work item, not
	// invocation errors; returning an error would trigger Lambda retries
	// and a second write-back.
	return summary, nil
}

func main() {
	lambda.Start(handler)
}
