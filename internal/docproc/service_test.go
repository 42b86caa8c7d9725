package docproc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/docintel"
)

type fakeExtractor struct {
	raw  *analysis.RawResult
	aerr *analysis.Error
	got  docintel.AnalyzeRequest
}

func (f *fakeExtractor) Analyze(ctx context.Context, req docintel.AnalyzeRequest) (*analysis.RawResult, *analysis.Error) {
	f.got = req
	return f.raw, f.aerr
}

type fakeArchiver struct {
	calls int
	doc   []byte
	info  *analysis.StorageInfo
}

func (f *fakeArchiver) Archive(ctx context.Context, doc []byte, contentType string, result *analysis.Result) *analysis.StorageInfo {
	f.calls++
	f.doc = doc
	if f.info != nil {
		return f.info
	}
	return &analysis.StorageInfo{Stored: true, Container: "review-bucket"}
}

func rawSerial(confidence float64) *analysis.RawResult {
	return &analysis.RawResult{
		APIVersion: "2024-11-30",
		ModelID:    "serialnumber",
		PageCount:  2,
		Serial: analysis.RawField{
			Found:           true,
			Value:           "SN-777",
			Confidence:      confidence,
			BoundingRegions: []analysis.BoundingRegion{},
			Spans:           []analysis.Span{},
		},
	}
}

func testService(t *testing.T, ex *fakeExtractor, ar *fakeArchiver) *Service {
	t.Helper()
	s := New(ex, ar, config.Load())
	s.fetch = func(ctx context.Context, url string) ([]byte, string, error) {
		return []byte("downloaded-bytes"), "application/pdf", nil
	}
	return s
}

func TestProcessURL_HighConfidenceSucceedsWithoutArchive(t *testing.T) {
	ex := &fakeExtractor{raw: rawSerial(0.95)}
	ar := &fakeArchiver{}
	s := testService(t, ex, ar)

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "", "corr-1")
	if res.Status != analysis.StatusSucceeded {
		t.Fatalf("status = %q", res.Status)
	}
	if res.SerialField.Value == nil || *res.SerialField.Value != "SN-777" {
		t.Errorf("serial value = %v", res.SerialField.Value)
	}
	if ar.calls != 0 {
		t.Error("no archive expected for a confident result")
	}
	if res.Storage != nil {
		t.Errorf("storage info should be absent, got %+v", res.Storage)
	}
	if ex.got.ModelID != "serialnumber" {
		t.Errorf("default model not applied: %q", ex.got.ModelID)
	}
	if !strings.HasPrefix(res.AnalysisID, "analysis-") {
		t.Errorf("analysis id = %q", res.AnalysisID)
	}
	if res.PageCount != 2 {
		t.Errorf("page count = %d", res.PageCount)
	}
}

func TestProcessURL_LowConfidenceArchivesDownloadedBytes(t *testing.T) {
	ex := &fakeExtractor{raw: rawSerial(0.3)}
	ar := &fakeArchiver{}
	s := testService(t, ex, ar)

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "serialnumber", "corr-1")
	if res.Status != analysis.StatusRequiresReview {
		t.Fatalf("status = %q", res.Status)
	}
	if res.SerialField.Value != nil {
		t.Error("low-confidence value must be withheld")
	}
	if ar.calls != 1 {
		t.Fatalf("expected one archive call, got %d", ar.calls)
	}
	if string(ar.doc) != "downloaded-bytes" {
		t.Errorf("archived bytes = %q", ar.doc)
	}
	if res.Storage == nil || !res.Storage.Stored {
		t.Errorf("storage = %+v", res.Storage)
	}
}

func TestProcessBytes_ArchivesOriginalUpload(t *testing.T) {
	ex := &fakeExtractor{raw: rawSerial(0.3)}
	ar := &fakeArchiver{}
	s := testService(t, ex, ar)

	res := s.ProcessBytes(context.Background(), []byte("upload-bytes"), "image/png", "", "")
	if res.Status != analysis.StatusRequiresReview {
		t.Fatalf("status = %q", res.Status)
	}
	if string(ar.doc) != "upload-bytes" {
		t.Errorf("archived bytes = %q", ar.doc)
	}
	if res.CorrelationID == "" || !strings.HasPrefix(res.CorrelationID, "corr-") {
		t.Errorf("correlation id not generated: %q", res.CorrelationID)
	}
}

func TestProcess_SerialNotFoundFailsWithoutArchive(t *testing.T) {
	ex := &fakeExtractor{raw: &analysis.RawResult{
		Serial: analysis.RawField{BoundingRegions: []analysis.BoundingRegion{}, Spans: []analysis.Span{}},
	}}
	ar := &fakeArchiver{}
	s := testService(t, ex, ar)

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "", "corr-1")
	if res.Status != analysis.StatusFailed {
		t.Fatalf("status = %q", res.Status)
	}
	if res.SerialField.Status != analysis.FieldNotFound {
		t.Errorf("field status = %q", res.SerialField.Status)
	}
	if ar.calls != 0 {
		t.Error("failed extraction must not be archived")
	}
}

func TestProcess_ProviderErrorBecomesFailedResult(t *testing.T) {
	ex := &fakeExtractor{aerr: &analysis.Error{Code: analysis.CodeProviderError, Message: "boom"}}
	s := testService(t, ex, &fakeArchiver{})

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "", "corr-1")
	if res.Status != analysis.StatusFailed {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Err == nil || res.Err.Code != analysis.CodeProviderError {
		t.Errorf("error not carried: %+v", res.Err)
	}
}

func TestProcess_ArchiveDisabledSkips(t *testing.T) {
	t.Setenv("ENABLE_REVIEW_ARCHIVE", "false")
	ex := &fakeExtractor{raw: rawSerial(0.3)}
	ar := &fakeArchiver{}
	s := testService(t, ex, ar)

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "", "corr-1")
	if res.Status != analysis.StatusRequiresReview {
		t.Fatalf("status = %q", res.Status)
	}
	if ar.calls != 0 {
		t.Error("archive must be skipped when disabled")
	}
}

func TestProcess_FetchFailureDegradesStorage(t *testing.T) {
	ex := &fakeExtractor{raw: rawSerial(0.3)}
	ar := &fakeArchiver{}
	s := testService(t, ex, ar)
	s.fetch = func(ctx context.Context, url string) ([]byte, string, error) {
		return nil, "", errors.New("connection reset")
	}

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "", "corr-1")
	if res.Status != analysis.StatusRequiresReview {
		t.Fatalf("fetch failure must not change routing, got %q", res.Status)
	}
	if res.Storage == nil || res.Storage.Stored {
		t.Fatalf("storage = %+v", res.Storage)
	}
	if !strings.Contains(res.Storage.Reason, "document fetch failed") {
		t.Errorf("reason = %q", res.Storage.Reason)
	}
	if ar.calls != 0 {
		t.Error("archiver must not be called without bytes")
	}
}

func TestProcess_DegradedStoreReported(t *testing.T) {
	ex := &fakeExtractor{raw: rawSerial(0.3)}
	ar := &fakeArchiver{info: &analysis.StorageInfo{Stored: false, Reason: "bucket unavailable"}}
	s := testService(t, ex, ar)

	res := s.ProcessURL(context.Background(), "https://assets/doc.pdf", "", "corr-1")
	if res.Status != analysis.StatusRequiresReview {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Storage == nil || res.Storage.Stored || res.Storage.Reason != "bucket unavailable" {
		t.Errorf("storage = %+v", res.Storage)
	}
}
