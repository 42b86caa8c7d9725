// Package config collects the environment-variable configuration consumed by
// the document pipeline. Every knob has a production default so a function can
// cold-start with only its secrets and resource names set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the corresponding environment variable is unset.
const (
	DefaultModelID           = "serialnumber"
	DefaultConfidenceThresh  = 0.7
	DefaultMaxFileSizeMB     = 50
	DefaultMaxRetryAttempts  = 3
	DefaultRetryBaseDelay    = 2 * time.Second
	DefaultAPITimeout        = 300 * time.Second
	DefaultReviewPrefix      = "document-intelligence"
	DefaultSupportedTypesCSV = "application/pdf,image/jpeg,image/png,image/tiff"
)

// Config holds the pipeline configuration resolved from the environment.
type Config struct {
	// Extraction provider.
	DocIntelEndpoint string
	DocIntelKey      string
	DefaultModelID   string

	// Decision policy.
	ConfidenceThreshold float64
	MaxFileSizeBytes    int64
	SupportedTypes      []string

	// Retry policy, shared by the extraction and review-store clients.
	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	APITimeout       time.Duration

	// Review archive.
	ReviewBucket  string
	ReviewPrefix  string
	EnableArchive bool

	// Enrichment.
	PieceInfoBaseURL string
	SubscriptionKey  string

	// System of record and binary assets.
	WorkItemsTable string
	AssetsBucket   string
}

// Load resolves configuration from environment variables, applying defaults.
// It never fails: missing secrets surface later as client errors carrying a
// correlation id, which is more useful than a cold-start panic.
func Load() *Config {
	return &Config{
		DocIntelEndpoint:    os.Getenv("DOCINTEL_ENDPOINT"),
		DocIntelKey:         os.Getenv("DOCINTEL_KEY"),
		DefaultModelID:      envOr("DEFAULT_MODEL_ID", DefaultModelID),
		ConfidenceThreshold: envFloat("CONFIDENCE_THRESHOLD", DefaultConfidenceThresh),
		MaxFileSizeBytes:    int64(envInt("MAX_FILE_SIZE_MB", DefaultMaxFileSizeMB)) * 1024 * 1024,
		SupportedTypes:      splitCSV(envOr("SUPPORTED_CONTENT_TYPES", DefaultSupportedTypesCSV)),
		MaxRetryAttempts:    envInt("MAX_RETRY_ATTEMPTS", DefaultMaxRetryAttempts),
		RetryBaseDelay:      time.Duration(envInt("RETRY_BASE_DELAY_SECONDS", int(DefaultRetryBaseDelay/time.Second))) * time.Second,
		APITimeout:          time.Duration(envInt("API_TIMEOUT_SECONDS", int(DefaultAPITimeout/time.Second))) * time.Second,
		ReviewBucket:        os.Getenv("REVIEW_BUCKET_NAME"),
		ReviewPrefix:        envOr("REVIEW_CONTAINER_PREFIX", DefaultReviewPrefix),
		EnableArchive:       envBool("ENABLE_REVIEW_ARCHIVE", true),
		PieceInfoBaseURL:    os.Getenv("PIECEINFO_BASE_URL"),
		SubscriptionKey:     os.Getenv("OCP_APIM_SUBSCRIPTION_KEY"),
		WorkItemsTable:      os.Getenv("WORKITEMS_TABLE_NAME"),
		AssetsBucket:        os.Getenv("ASSETS_BUCKET_NAME"),
	}
}

// SupportsContentType reports whether the given MIME type is accepted for
// upload. Comparison ignores any charset suffix ("application/pdf; charset=x").
func (c *Config) SupportsContentType(contentType string) bool {
	base := strings.TrimSpace(strings.ToLower(contentType))
	if i := strings.Index(base, ";"); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	for _, t := range c.SupportedTypes {
		if base == t {
			return true
		}
	}
	return false
}

// Validate checks the fields required for the extraction path and returns a
// single error naming every missing variable.
func (c *Config) Validate() error {
	var missing []string
	if c.DocIntelEndpoint == "" {
		missing = append(missing, "DOCINTEL_ENDPOINT")
	}
	if c.DocIntelKey == "" {
		missing = append(missing, "DOCINTEL_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	default:
		return false
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
