// Package reviewstore archives low-confidence documents to S3 for human
// review. Objects are date-partitioned under a stage prefix (pending-review,
// reviewed, retraining); each archived analysis is a pair of objects, the
// original document bytes and a metadata.json with the full analysis result.
//
// Archival is best-effort: a storage failure degrades the analysis response
// (stored=false with a reason) but never fails it.
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
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/retry"
)

// s3API is the subset of the S3 client the store uses. Narrowed for tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Metadata is the JSON document stored next to each archived document.
type Metadata struct {
	AnalysisID    string          `json:"analysisId"`
	CorrelationID string          `json:"correlationId"`
	ArchivedAt    time.Time       `json:"archivedAt"`
	ContentType   string          `json:"contentType"`
	Result        analysis.Result `json:"analysisResult"`
}

// Record is a retrieved archive entry.
type Record struct {
	AnalysisID  string
	Stage       string
	DocumentKey string
	MetadataKey string
	Document    []byte
	ContentType string
	Metadata    *Metadata
}

// Summary is one pending-review entry from a listing.
type Summary struct {
	AnalysisID  string    `json:"analysisId"`
	Date        string    `json:"date"`
	DocumentKey string    `json:"documentKey"`
	ArchivedAt  time.Time `json:"archivedAt,omitempty"`
	Serial      string    `json:"rawSerial,omitempty"`
}

// Store archives and retrieves review documents. Safe for concurrent use.
type Store struct {
	client  s3API
	bucket  string
	prefix  string
	policy  retry.Policy
	now     func() time.Time
	created atomic.Bool
}

// New builds a Store on the configured review bucket.
func New(client s3API, cfg *config.Config) *Store {
	return &Store{
		client: client,
		bucket: cfg.ReviewBucket,
		prefix: strings.Trim(cfg.ReviewPrefix, "/"),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
		},
		now: time.Now,
	}
}

// Archive writes the document and its metadata, returning storage info that
// is always non-nil. A partial or total failure is reported in the info, not
// as an error; the pipeline treats the archive as advisory.
func (s *Store) Archive(ctx context.Context, doc []byte, contentType string, result *analysis.Result) *analysis.StorageInfo {
	if s.bucket == "" {
		log.Warn().Str("analysisId", result.AnalysisID).Msg("Review archive skipped: no bucket configured")
		return &analysis.StorageInfo{Stored: false, Reason: "review bucket not configured"}
	}
	if len(doc) == 0 {
		log.Warn().Str("analysisId", result.AnalysisID).Msg("Review archive skipped: no document bytes available")
		return &analysis.StorageInfo{Stored: false, Reason: "document bytes not available"}
	}

	if err := s.ensureBucket(ctx); err != nil {
		log.Error().Err(err).Str("bucket", s.bucket).Msg("Review bucket unavailable")
		return &analysis.StorageInfo{Stored: false, Reason: fmt.Sprintf("bucket unavailable: %v", err)}
	}

	day := s.now()
	docKey := documentKey(s.prefix, result.AnalysisID, contentType, day)
	metaKey := metadataKey(s.prefix, result.AnalysisID, day)
	info := &analysis.StorageInfo{
		Container:   s.bucket,
		DocumentKey: docKey,
		MetadataKey: metaKey,
	}

	if err := s.put(ctx, docKey, doc, contentType); err != nil {
		log.Error().Err(err).Str("key", docKey).Msg("Failed to archive review document")
		info.Reason = fmt.Sprintf("document upload failed: %v", err)
		return info
	}

	meta := Metadata{
		AnalysisID:    result.AnalysisID,
		CorrelationID: result.CorrelationID,
		ArchivedAt:    day.UTC(),
		ContentType:   contentType,
		Result:        *result,
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		info.Reason = fmt.Sprintf("metadata encoding failed: %v", err)
		return info
	}
	if err := s.put(ctx, metaKey, payload, "application/json"); err != nil {
		// Document landed but metadata did not. Report the partial write so
		// the review tooling knows the entry is incomplete.
		log.Error().Err(err).Str("key", metaKey).Msg("Failed to archive review metadata")
		info.Reason = fmt.Sprintf("metadata upload failed: %v", err)
		return info
	}

	info.Stored = true
	log.Info().
		Str("analysisId", result.AnalysisID).
		Str("documentKey", docKey).
		Msg("Low-confidence document archived for review")
	return info
}

// Retrieve finds an archived analysis by id, probing each review stage in
// order. Returns nil, nil when no stage holds it.
func (s *Store) Retrieve(ctx context.Context, analysisID string) (*Record, error) {
	for _, stage := range stages {
		rec, err := s.findInStage(ctx, stage, analysisID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}
	return nil, nil
}

// ListPending returns pending-review entries archived within the last
// daysBack days, newest first.
func (s *Store) ListPending(ctx context.Context, daysBack int) ([]Summary, error) {
	if daysBack < 1 {
		daysBack = 1
	}
	summaries := []Summary{}
	for i := 0; i < daysBack; i++ {
		day := s.now().UTC().AddDate(0, 0, -i)
		prefix := fmt.Sprintf("%s/%s/%s/", s.prefix, StagePending, day.Format("2006/01/02"))
		keys, err := s.listKeys(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, key := range keys {
			if !strings.HasSuffix(key, "/metadata.json") {
				continue
			}
			sum := Summary{
				AnalysisID: analysisIDFromKey(key),
				Date:       day.Format("2006-01-02"),
			}
			meta, err := s.getMetadata(ctx, key)
			if err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Pending review metadata unreadable, listing entry without details")
			} else if meta != nil {
				sum.ArchivedAt = meta.ArchivedAt
				sum.Serial = meta.Result.SerialField.Meta.RawValue
				sum.DocumentKey = strings.TrimSuffix(key, "metadata.json") + "document." + extensionFor(meta.ContentType)
			}
			summaries = append(summaries, sum)
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ArchivedAt.After(summaries[j].ArchivedAt) })
	return summaries, nil
}

// ensureBucket verifies the review bucket exists, creating it on first use.
// Races with concurrent creators are tolerated; a failed check is retried on
// the next archive.
func (s *Store) ensureBucket(ctx context.Context) error {
	if s.created.Load() {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		s.created.Store(true)
		return nil
	}
	var nf *s3types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("HeadBucket %s: %w", s.bucket, err)
	}
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return fmt.Errorf("CreateBucket %s: %w", s.bucket, err)
		}
	}
	s.created.Store(true)
	return nil
}

func (s *Store) put(ctx context.Context, key string, body []byte, contentType string) error {
	return s.policy.Do(ctx, "reviewstore.put", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("S3 PutObject %s: %w", key, err)
		}
		return nil
	})
}

func (s *Store) findInStage(ctx context.Context, stage, analysisID string) (*Record, error) {
	prefix := fmt.Sprintf("%s/%s/", s.prefix, stage)
	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}

	needle := "/" + analysisID + "/"
	rec := &Record{AnalysisID: analysisID, Stage: stage}
	for _, key := range keys {
		if !strings.Contains(key, needle) {
			continue
		}
		if strings.HasSuffix(key, "/metadata.json") {
			rec.MetadataKey = key
		} else {
			rec.DocumentKey = key
		}
	}
	if rec.DocumentKey == "" && rec.MetadataKey == "" {
		return nil, nil
	}

	if rec.DocumentKey != "" {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(rec.DocumentKey),
		})
		if err != nil {
			return nil, fmt.Errorf("S3 GetObject %s: %w", rec.DocumentKey, err)
		}
		rec.Document, err = io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rec.DocumentKey, err)
		}
		if out.ContentType != nil {
			rec.ContentType = *out.ContentType
		}
	}
	if rec.MetadataKey != "" {
		meta, err := s.getMetadata(ctx, rec.MetadataKey)
		if err != nil {
			return nil, err
		}
		rec.Metadata = meta
	}
	return rec, nil
}

func (s *Store) getMetadata(ctx context.Context, key string) (*Metadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer out.Body.Close()
	var meta Metadata
	if err := json.NewDecoder(out.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding metadata %s: %w", key, err)
	}
	return &meta, nil
}

func (s *Store) listKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

// analysisIDFromKey extracts the analysis id segment from an archive key:
// the path element just before the object file name.
func analysisIDFromKey(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
