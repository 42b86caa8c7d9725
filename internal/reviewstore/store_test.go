package reviewstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/config"
)

// fakeS3 is an in-memory s3API, safe for concurrent use like the real
// client. Failure hooks let tests inject errors for specific keys.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	bucketExists bool
	putCalls     int
	failPut      func(key string) error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
		bucketExists: true,
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failPut != nil {
		if err := f.failPut(*in.Key); err != nil {
			return nil, err
		}
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = b
	if in.ContentType != nil {
		f.contentTypes[*in.Key] = *in.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	ct := f.contentTypes[*in.Key]
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(b)),
		ContentType: &ct,
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, *in.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for i := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: &keys[i]})
	}
	truncated := false
	out.IsTruncated = &truncated
	return out, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bucketExists {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func testStore(t *testing.T, fake *fakeS3) *Store {
	t.Helper()
	t.Setenv("REVIEW_BUCKET_NAME", "review-bucket")
	s := New(fake, config.Load())
	s.policy.BaseDelay = time.Millisecond
	s.now = func() time.Time { return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC) }
	return s
}

func reviewResult(analysisID string) *analysis.Result {
	return &analysis.Result{
		AnalysisID:    analysisID,
		CorrelationID: "corr-1",
		Status:        analysis.StatusRequiresReview,
		SerialField: analysis.ExtractedField{
			FieldName: "SerialNumber",
			Status:    analysis.FieldLowConfidence,
			Meta:      analysis.ExtractionMeta{ExtractionSucceeded: true, RawValue: "SN-42"},
		},
	}
}

func TestKeyDerivation(t *testing.T) {
	day := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	got := documentKey("document-intelligence", "analysis-abc", "application/pdf", day)
	want := "document-intelligence/pending-review/2026/03/14/analysis-abc/document.pdf"
	if got != want {
		t.Errorf("documentKey = %q, want %q", got, want)
	}
	if again := documentKey("document-intelligence", "analysis-abc", "application/pdf", day); again != got {
		t.Error("key derivation must be deterministic")
	}

	exts := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", "jpg"},
		{"image/png", "png"},
		{"image/tiff", "tiff"},
		{"application/octet-stream", "bin"},
		{"", "bin"},
		{"application/pdf; charset=binary", "pdf"},
	}
	for _, tc := range exts {
		if got := extensionFor(tc.contentType); got != tc.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}

	if got := metadataKey("document-intelligence", "analysis-abc", day); !strings.HasSuffix(got, "/analysis-abc/metadata.json") {
		t.Errorf("metadataKey = %q", got)
	}
}

func TestArchive_Success(t *testing.T) {
	fake := newFakeS3()
	s := testStore(t, fake)

	info := s.Archive(context.Background(), []byte("%PDF-1.7"), "application/pdf", reviewResult("analysis-1"))
	if !info.Stored {
		t.Fatalf("expected stored, got reason %q", info.Reason)
	}
	wantDoc := "document-intelligence/pending-review/2026/03/14/analysis-1/document.pdf"
	if info.DocumentKey != wantDoc {
		t.Errorf("document key = %q, want %q", info.DocumentKey, wantDoc)
	}
	if _, ok := fake.objects[info.DocumentKey]; !ok {
		t.Error("document object missing")
	}

	var meta Metadata
	if err := json.Unmarshal(fake.objects[info.MetadataKey], &meta); err != nil {
		t.Fatalf("metadata not valid JSON: %v", err)
	}
	if meta.AnalysisID != "analysis-1" || meta.Result.Status != analysis.StatusRequiresReview {
		t.Errorf("metadata content wrong: %+v", meta)
	}
}

func TestArchive_CreatesMissingBucket(t *testing.T) {
	fake := newFakeS3()
	fake.bucketExists = false
	s := testStore(t, fake)

	info := s.Archive(context.Background(), []byte("doc"), "image/png", reviewResult("analysis-2"))
	if !info.Stored {
		t.Fatalf("expected stored after bucket creation, got %q", info.Reason)
	}
	if !fake.bucketExists {
		t.Error("bucket should have been created")
	}
}

func TestArchive_TransientPutRetried(t *testing.T) {
	fake := newFakeS3()
	failures := 2
	fake.failPut = func(key string) error {
		if failures > 0 {
			failures--
			return errors.New("throttled")
		}
		return nil
	}
	s := testStore(t, fake)

	info := s.Archive(context.Background(), []byte("doc"), "application/pdf", reviewResult("analysis-3"))
	if !info.Stored {
		t.Fatalf("expected stored after retries, got %q", info.Reason)
	}
}

func TestArchive_PartialFailureReported(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = func(key string) error {
		if strings.HasSuffix(key, "metadata.json") {
			return errors.New("persistent failure")
		}
		return nil
	}
	s := testStore(t, fake)

	info := s.Archive(context.Background(), []byte("doc"), "application/pdf", reviewResult("analysis-4"))
	if info.Stored {
		t.Fatal("partial write must not report stored")
	}
	if !strings.Contains(info.Reason, "metadata upload failed") {
		t.Errorf("reason = %q", info.Reason)
	}
	if info.DocumentKey == "" {
		t.Error("document key should still be reported for the partial write")
	}
}

func TestArchive_NoBucketConfigured(t *testing.T) {
	fake := newFakeS3()
	s := New(fake, config.Load())

	info := s.Archive(context.Background(), []byte("doc"), "application/pdf", reviewResult("analysis-5"))
	if info.Stored {
		t.Fatal("expected skip without bucket")
	}
	if fake.putCalls != 0 {
		t.Error("no puts expected when bucket is unset")
	}
}

func TestArchive_ConcurrentUse(t *testing.T) {
	fake := newFakeS3()
	fake.bucketExists = false
	s := testStore(t, fake)

	const workers = 8
	var wg sync.WaitGroup
	infos := make([]*analysis.StorageInfo, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("analysis-c%d", i)
			infos[i] = s.Archive(context.Background(), []byte("doc"), "application/pdf", reviewResult(id))
		}(i)
	}
	wg.Wait()

	for i, info := range infos {
		if !info.Stored {
			t.Errorf("worker %d: not stored, reason %q", i, info.Reason)
		}
	}
	if len(fake.objects) != 2*workers {
		t.Errorf("expected %d objects, got %d", 2*workers, len(fake.objects))
	}
}

func TestRetrieve_ProbesStages(t *testing.T) {
	fake := newFakeS3()
	s := testStore(t, fake)

	fake.objects["document-intelligence/reviewed/2026/03/10/analysis-7/document.jpg"] = []byte("jpeg-bytes")
	fake.contentTypes["document-intelligence/reviewed/2026/03/10/analysis-7/document.jpg"] = "image/jpeg"
	meta, _ := json.Marshal(Metadata{AnalysisID: "analysis-7", ContentType: "image/jpeg"})
	fake.objects["document-intelligence/reviewed/2026/03/10/analysis-7/metadata.json"] = meta

	rec, err := s.Retrieve(context.Background(), "analysis-7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected record")
	}
	if rec.Stage != StageReviewed {
		t.Errorf("stage = %q, want reviewed", rec.Stage)
	}
	if string(rec.Document) != "jpeg-bytes" {
		t.Errorf("document bytes = %q", rec.Document)
	}
	if rec.Metadata == nil || rec.Metadata.AnalysisID != "analysis-7" {
		t.Errorf("metadata = %+v", rec.Metadata)
	}
}

func TestRetrieve_AbsentReturnsNilNil(t *testing.T) {
	s := testStore(t, newFakeS3())
	rec, err := s.Retrieve(context.Background(), "analysis-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %+v", rec)
	}
}

func TestListPending(t *testing.T) {
	fake := newFakeS3()
	s := testStore(t, fake)

	store := func(id string, archivedAt time.Time) {
		key := "document-intelligence/pending-review/" + archivedAt.Format("2006/01/02") + "/" + id + "/metadata.json"
		meta, _ := json.Marshal(Metadata{
			AnalysisID:  id,
			ArchivedAt:  archivedAt,
			ContentType: "application/pdf",
			Result: analysis.Result{SerialField: analysis.ExtractedField{
				Meta: analysis.ExtractionMeta{RawValue: "SN-" + id},
			}},
		})
		fake.objects[key] = meta
	}
	now := s.now()
	store("analysis-today", now)
	store("analysis-yesterday", now.AddDate(0, 0, -1))
	store("analysis-old", now.AddDate(0, 0, -10))

	got, err := s.ListPending(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries within window, got %d: %+v", len(got), got)
	}
	if got[0].AnalysisID != "analysis-today" || got[1].AnalysisID != "analysis-yesterday" {
		t.Errorf("wrong order: %+v", got)
	}
	if got[0].Serial != "SN-analysis-today" {
		t.Errorf("raw serial not surfaced: %+v", got[0])
	}
}

func TestListPending_UnreadableMetadataStillListed(t *testing.T) {
	fake := newFakeS3()
	s := testStore(t, fake)

	key := "document-intelligence/pending-review/" + s.now().Format("2006/01/02") + "/analysis-bad/metadata.json"
	fake.objects[key] = []byte("{not json")

	got, err := s.ListPending(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected the entry despite unreadable metadata, got %d", len(got))
	}
	if got[0].AnalysisID != "analysis-bad" {
		t.Errorf("analysis id = %q", got[0].AnalysisID)
	}
	if got[0].Serial != "" || got[0].DocumentKey != "" {
		t.Errorf("details should be empty for unreadable metadata: %+v", got[0])
	}
}
