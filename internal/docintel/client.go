// Package docintel wraps the document intelligence REST API behind a client
// that never lets a provider failure escape as a Go error. Every call returns
// either a normalized result or a structured analysis.Error; transient
// provider trouble (throttling, 5xx, transport resets) is retried with
// exponential backoff before giving up.
package docintel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/returns-docintel/internal/analysis"
	"github.com/fpang/returns-docintel/internal/config"
	"github.com/fpang/returns-docintel/internal/retry"
)

const (
	apiVersion = "2024-11-30"

	// SerialFieldName is the model field carrying the serial number.
	SerialFieldName = "Serial"

	defaultPollInterval = 2 * time.Second
)

// Client talks to the document intelligence analyze API.
type Client struct {
	endpoint     string
	key          string
	httpClient   *http.Client
	policy       retry.Policy
	pollInterval time.Duration
	timeout      time.Duration
	maxFileSize  int64
	cfg          *config.Config
}

// AnalyzeRequest describes one extraction. Exactly one of DocumentURL and
// Document must be set.
type AnalyzeRequest struct {
	ModelID       string
	DocumentURL   string
	Document      []byte
	ContentType   string
	CorrelationID string
}

// New builds a client from pipeline configuration. The HTTP client timeout
// covers a single request; the overall analyze deadline is enforced per call.
func New(cfg *config.Config) *Client {
	return &Client{
		endpoint: strings.TrimRight(cfg.DocIntelEndpoint, "/"),
		key:      cfg.DocIntelKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			Retryable:   isTransient,
		},
		pollInterval: defaultPollInterval,
		timeout:      cfg.APITimeout,
		maxFileSize:  cfg.MaxFileSizeBytes,
		cfg:          cfg,
	}
}

// statusError marks a non-2xx provider response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}

// isTransient reports whether the failure is worth another attempt:
// throttling, server-side errors, and transport-level failures qualify.
// Client errors (auth, bad model, malformed input) never do.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	// Anything that never produced an HTTP status is a transport failure.
	return true
}

// Analyze runs one extraction end to end: validate, submit, poll, normalize.
// It returns a structured error instead of a Go error so callers can embed
// the failure directly in their response.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (*analysis.RawResult, *analysis.Error) {
	if verr := c.validate(req); verr != nil {
		return nil, verr
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	modelID := req.ModelID
	start := time.Now()

	var opURL string
	err := c.policy.Do(ctx, "docintel.submit", func(ctx context.Context) error {
		var err error
		opURL, err = c.submit(ctx, req)
		return err
	})
	if err != nil {
		return nil, providerError(err, req.CorrelationID)
	}

	var op *operationResponse
	err = c.policy.Do(ctx, "docintel.poll", func(ctx context.Context) error {
		var err error
		op, err = c.poll(ctx, opURL)
		return err
	})
	if err != nil {
		return nil, providerError(err, req.CorrelationID)
	}

	log.Debug().
		Str("modelId", modelID).
		Str("operationStatus", op.Status).
		Dur("elapsed", time.Since(start)).
		Msg("Document analysis operation finished")

	if op.Status != "succeeded" || op.AnalyzeResult == nil {
		msg := "analysis operation did not succeed"
		if op.Error != nil {
			msg = op.Error.Message
		}
		return &analysis.RawResult{ModelID: modelID, ProviderFailed: true}, &analysis.Error{
			Code:          analysis.CodeProviderError,
			Message:       msg,
			CorrelationID: req.CorrelationID,
			Timestamp:     time.Now().UTC(),
		}
	}

	raw := normalize(op.AnalyzeResult, modelID)
	return &raw, nil
}

func (c *Client) validate(req AnalyzeRequest) *analysis.Error {
	fail := func(msg string) *analysis.Error {
		return &analysis.Error{
			Code:          analysis.CodeValidationError,
			Message:       msg,
			CorrelationID: req.CorrelationID,
			Timestamp:     time.Now().UTC(),
		}
	}

	if c.endpoint == "" || c.key == "" {
		return fail("document intelligence endpoint or key not configured")
	}
	if req.ModelID == "" {
		return fail("model id must not be empty")
	}
	hasURL := req.DocumentURL != ""
	hasBytes := len(req.Document) > 0
	if hasURL == hasBytes {
		return fail("exactly one of document URL and document bytes must be provided")
	}
	if hasBytes {
		if int64(len(req.Document)) > c.maxFileSize {
			return fail(fmt.Sprintf("document exceeds size limit of %d bytes", c.maxFileSize))
		}
		if !c.cfg.SupportsContentType(req.ContentType) {
			return fail(fmt.Sprintf("unsupported content type %q", req.ContentType))
		}
	}
	return nil
}

// submit starts an analysis and returns the operation URL from the
// Operation-Location header.
func (c *Client) submit(ctx context.Context, req AnalyzeRequest) (string, error) {
	u := fmt.Sprintf("%s/documentintelligence/documentModels/%s:analyze?api-version=%s",
		c.endpoint, req.ModelID, apiVersion)

	var body io.Reader
	contentType := req.ContentType
	if req.DocumentURL != "" {
		payload, err := json.Marshal(analyzeURLRequest{URLSource: req.DocumentURL})
		if err != nil {
			return "", fmt.Errorf("encoding analyze request: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	} else {
		body = bytes.NewReader(req.Document)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", fmt.Errorf("building analyze request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submitting document for analysis: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", readStatusError(resp)
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("provider accepted analysis but returned no Operation-Location header")
	}
	return opURL, nil
}

// poll waits for the operation to leave the running state. A terminal
// operation is returned as-is; the caller decides whether it succeeded.
func (c *Client) poll(ctx context.Context, opURL string) (*operationResponse, error) {
	for {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building poll request: %w", err)
		}
		httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("polling analysis operation: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			serr := readStatusError(resp)
			resp.Body.Close()
			return nil, serr
		}

		var op operationResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&op)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decoding operation response: %w", decodeErr)
		}

		switch op.Status {
		case "succeeded", "failed":
			return &op, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func readStatusError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &statusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}

func providerError(err error, correlationID string) *analysis.Error {
	code := analysis.CodeProviderError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = analysis.CodeInternalError
	}
	return &analysis.Error{
		Code:          code,
		Message:       "document analysis failed",
		Details:       err.Error(),
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
}

// normalize flattens the provider payload into the pipeline's raw result.
// Missing collections become empty slices so downstream code never checks
// for nil.
func normalize(res *analyzeResult, modelID string) analysis.RawResult {
	raw := analysis.RawResult{
		APIVersion: res.APIVersion,
		ModelID:    modelID,
		Content:    res.Content,
		PageCount:  len(res.Pages),
		Serial: analysis.RawField{
			BoundingRegions: []analysis.BoundingRegion{},
			Spans:           []analysis.Span{},
		},
	}
	if res.ModelID != "" {
		raw.ModelID = res.ModelID
	}

	if len(res.Documents) == 0 {
		return raw
	}
	field, ok := res.Documents[0].Fields[SerialFieldName]
	if !ok {
		return raw
	}

	value := field.ValueString
	if value == "" {
		value = field.Content
	}
	raw.Serial.Found = true
	raw.Serial.Value = strings.TrimSpace(value)
	raw.Serial.Confidence = field.Confidence
	for _, r := range field.BoundingRegions {
		raw.Serial.BoundingRegions = append(raw.Serial.BoundingRegions, analysis.BoundingRegion{
			PageNumber: r.PageNumber,
			Polygon:    r.Polygon,
		})
	}
	for _, s := range field.Spans {
		raw.Serial.Spans = append(raw.Serial.Spans, analysis.Span{Offset: s.Offset, Length: s.Length})
	}
	return raw
}
