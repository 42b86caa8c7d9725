// Package main provides the returns-cli tool for running the document
// pipeline from a workstation: analyze a local file, list documents pending
// review, or process a work item end to end. It shares the exact internals
// used by the Lambdas, so a local run exercises the production code paths.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/returns-docintel/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "returns-cli",
	Short: "Warehouse returns document pipeline tools",
	Long: `returns-cli runs the returns document pipeline against real services.

It talks to the same document intelligence endpoint, review bucket, and
work-items table as the deployed Lambdas; configuration comes from the same
environment variables (DOCINTEL_ENDPOINT, DOCINTEL_KEY, REVIEW_BUCKET_NAME,
WORKITEMS_TABLE_NAME, ...).

Examples:
  returns-cli analyze ./scans/return-1234.pdf
  returns-cli analyze ./scans/return-1234.pdf --model serialnumber --threshold 0.8
  returns-cli pending --days 14
  returns-cli process wi-7c2f1a90`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func main() {
	rootCmd.AddCommand(analyzeCmd, pendingCmd, processCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
