package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.DefaultModelID != "serialnumber" {
		t.Errorf("expected default model id 'serialnumber', got %q", cfg.DefaultModelID)
	}
	if cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("expected default threshold 0.7, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.MaxFileSizeBytes != 50*1024*1024 {
		t.Errorf("expected 50 MB size cap, got %d", cfg.MaxFileSizeBytes)
	}
	if cfg.MaxRetryAttempts != 3 {
		t.Errorf("expected 3 retry attempts, got %d", cfg.MaxRetryAttempts)
	}
	if cfg.RetryBaseDelay != 2*time.Second {
		t.Errorf("expected 2s base delay, got %v", cfg.RetryBaseDelay)
	}
	if cfg.APITimeout != 300*time.Second {
		t.Errorf("expected 300s API timeout, got %v", cfg.APITimeout)
	}
	if !cfg.EnableArchive {
		t.Error("expected archive enabled by default")
	}
	if cfg.ReviewPrefix != "document-intelligence" {
		t.Errorf("unexpected review prefix %q", cfg.ReviewPrefix)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")
	t.Setenv("MAX_FILE_SIZE_MB", "10")
	t.Setenv("ENABLE_REVIEW_ARCHIVE", "false")
	t.Setenv("SUPPORTED_CONTENT_TYPES", "application/pdf, Image/JPEG")

	cfg := Load()

	if cfg.ConfidenceThreshold != 0.85 {
		t.Errorf("expected threshold 0.85, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.MaxFileSizeBytes != 10*1024*1024 {
		t.Errorf("expected 10 MB size cap, got %d", cfg.MaxFileSizeBytes)
	}
	if cfg.EnableArchive {
		t.Error("expected archive disabled")
	}
	if len(cfg.SupportedTypes) != 2 {
		t.Fatalf("expected 2 supported types, got %v", cfg.SupportedTypes)
	}
	if cfg.SupportedTypes[1] != "image/jpeg" {
		t.Errorf("expected lowercased type, got %q", cfg.SupportedTypes[1])
	}
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("CONFIDENCE_THRESHOLD", "not-a-number")
	t.Setenv("MAX_RETRY_ATTEMPTS", "many")

	cfg := Load()

	if cfg.ConfidenceThreshold != 0.7 {
		t.Errorf("expected fallback threshold 0.7, got %v", cfg.ConfidenceThreshold)
	}
	if cfg.MaxRetryAttempts != 3 {
		t.Errorf("expected fallback attempts 3, got %d", cfg.MaxRetryAttempts)
	}
}

func TestSupportsContentType(t *testing.T) {
	cfg := Load()

	cases := []struct {
		ct   string
		want bool
	}{
		{"application/pdf", true},
		{"APPLICATION/PDF", true},
		{"image/jpeg; charset=binary", true},
		{"image/png", true},
		{"image/tiff", true},
		{"video/mp4", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := cfg.SupportsContentType(tc.ct); got != tc.want {
			t.Errorf("SupportsContentType(%q) = %v, want %v", tc.ct, got, tc.want)
		}
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing endpoint and key")
	}

	t.Setenv("DOCINTEL_ENDPOINT", "https://docintel.example.com")
	t.Setenv("DOCINTEL_KEY", "secret")
	cfg = Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}
