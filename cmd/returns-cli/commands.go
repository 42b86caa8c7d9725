package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/docintel"
	"github.com/fpang/returns-docintel/internal/docproc"
	"github.com/fpang/returns-docintel/internal/enrich"
	"github.com/fpang/returns-docintel/internal/lambdaboot"
	"github.com/fpang/returns-docintel/internal/pipeline"
	"github.com/fpang/returns-docintel/internal/reviewstore"
)

var (
	modelFlag     string
	thresholdFlag float64
	daysFlag      int
	noArchiveFlag bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run serial extraction on a local document",
	Args:  cobra.ExactArgs(1),
	Run:   runAnalyze,
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List documents awaiting human review",
	Args:  cobra.NoArgs,
	Run:   runPending,
}

var processCmd = &cobra.Command{
	Use:   "process <work-item-id>",
	Short: "Run the full pipeline for one work item",
	Args:  cobra.ExactArgs(1),
	Run:   runProcess,
}

func init() {
	analyzeCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Extraction model id (default from DEFAULT_MODEL_ID)")
	analyzeCmd.Flags().Float64VarP(&thresholdFlag, "threshold", "t", 0, "Confidence threshold override (0 = use CONFIDENCE_THRESHOLD)")
	analyzeCmd.Flags().BoolVar(&noArchiveFlag, "no-archive", false, "Skip the review archive even for low-confidence results")
	pendingCmd.Flags().IntVar(&daysFlag, "days", 7, "How many days back to list")
}

// loadConfig applies CLI overrides on top of the environment configuration.
func loadConfig() *config.Config {
	if thresholdFlag > 0 {
		os.Setenv("CONFIDENCE_THRESHOLD", fmt.Sprintf("%g", thresholdFlag))
	}
	if noArchiveFlag {
		os.Setenv("ENABLE_REVIEW_ARCHIVE", "false")
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Missing configuration")
	}
	return cfg
}

func newArchive(cfg *config.Config) *reviewstore.Store {
	if cfg.ReviewBucket == "" {
		return nil
	}
	clients := lambdaboot.InitAWS()
	return reviewstore.New(s3.NewFromConfig(clients.Config), cfg)
}

func runAnalyze(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Could not read document")
	}

	var archiver docproc.Archiver
	if store := newArchive(cfg); store != nil {
		archiver = store
	}
	service := docproc.New(docintel.New(cfg), archiver, cfg)

	result := service.ProcessBytes(context.Background(), data, contentTypeForFile(path), modelFlag, "")
	printJSON(result)

	if result.SerialField.Value != nil {
		fmt.Fprintf(os.Stderr, "\nSerial: %s (confidence %.3f)\n", *result.SerialField.Value, result.SerialField.Confidence)
	} else {
		fmt.Fprintf(os.Stderr, "\nNo serial released (status %s, field %s)\n", result.Status, result.SerialField.Status)
	}
}

func runPending(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	store := newArchive(cfg)
	if store == nil {
		log.Fatal().Msg("REVIEW_BUCKET_NAME is required")
	}

	summaries, err := store.ListPending(context.Background(), daysFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Listing failed")
	}
	if len(summaries) == 0 {
		fmt.Printf("No documents pending review in the last %d day(s)\n", daysFlag)
		return
	}
	for _, s := range summaries {
		fmt.Printf("%-12s %-40s raw=%q\n", s.Date, s.AnalysisID, s.Serial)
	}
}

func runProcess(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.AssetsBucket == "" {
		log.Fatal().Msg("ASSETS_BUCKET_NAME is required")
	}

	clients := lambdaboot.InitAWS()
	s3Client := s3.NewFromConfig(clients.Config)
	store := lambdaboot.InitWorkItems(clients.Config, "WORKITEMS_TABLE_NAME")
	analyzer := docproc.New(docintel.New(cfg), reviewstore.New(s3Client, cfg), cfg)

	var enricher pipeline.Enricher
	if cfg.PieceInfoBaseURL != "" {
		enricher = enrich.New(cfg)
	}

	processor := pipeline.New(store, pipeline.NewS3Source(s3Client, cfg.AssetsBucket), analyzer, enricher)
	result := processor.Run(context.Background(), args[0], "")
	printJSON(result)
}

func contentTypeForFile(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("Could not encode result")
	}
	fmt.Println(string(out))
}
