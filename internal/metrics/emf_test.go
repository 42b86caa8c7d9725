package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestNew_AutoDimension(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "returns-analysis")

	r := New()
	if r.namespace != Namespace {
		t.Errorf("expected namespace %s, got %s", Namespace, r.namespace)
	}
	if r.dimensions["FunctionName"] != "returns-analysis" {
		t.Errorf("expected FunctionName dimension, got %s", r.dimensions["FunctionName"])
	}
}

func TestRecorder_FlushOutput(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")

	var buf bytes.Buffer
	rec := New().SetOutput(&buf)
	rec.Dimension("Operation", "analyze")
	rec.Metric("AnalysisLatencyMs", 1234.5, UnitMilliseconds)
	rec.Count("AnalysisCount")
	rec.Property("analysisId", "analysis-abc")
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("EMF output is not valid JSON: %v\nOutput: %s", err, buf.String())
	}

	awsDir, ok := doc["_aws"].(map[string]interface{})
	if !ok {
		t.Fatal("missing _aws directive in EMF output")
	}
	cw, ok := awsDir["CloudWatchMetrics"].([]interface{})
	if !ok || len(cw) != 1 {
		t.Fatalf("CloudWatchMetrics = %v", awsDir["CloudWatchMetrics"])
	}
	entry := cw[0].(map[string]interface{})
	if entry["Namespace"] != Namespace {
		t.Errorf("namespace = %v", entry["Namespace"])
	}

	if doc["Operation"] != "analyze" {
		t.Errorf("dimension value missing: %v", doc["Operation"])
	}
	if doc["AnalysisLatencyMs"] != 1234.5 {
		t.Errorf("metric value = %v", doc["AnalysisLatencyMs"])
	}
	if doc["AnalysisCount"] != 1.0 {
		t.Errorf("count value = %v", doc["AnalysisCount"])
	}
	if doc["analysisId"] != "analysis-abc" {
		t.Errorf("property missing: %v", doc["analysisId"])
	}
}

func TestRecorder_EmptyFlushEmitsNothing(t *testing.T) {
	var buf bytes.Buffer
	New().SetOutput(&buf).Property("analysisId", "x").Flush()
	if buf.Len() != 0 {
		t.Errorf("expected no output without metrics, got %q", buf.String())
	}
}

func TestRecorder_Timing(t *testing.T) {
	var buf bytes.Buffer
	rec := New().SetOutput(&buf)
	rec.Timing("DurationMs", time.Now().Add(-25*time.Millisecond))
	rec.Flush()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	ms, ok := doc["DurationMs"].(float64)
	if !ok || ms < 25 {
		t.Errorf("DurationMs = %v", doc["DurationMs"])
	}
}
