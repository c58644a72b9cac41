package fingerprint

import (
	"encoding/base64"
	"testing"

	"shiftbook/backend/internal/domain"
)

func encode(t *testing.T, payload string) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte(payload))
}

func TestAnalyzeWithoutFingerprint(t *testing.T) {
	got := NewAnalyzer().Analyze("  ", []string{"abc"})
	if got.AnomalyTag != domain.DeviceAnomalyNoFingerprint {
		t.Fatalf("expected no fingerprint tag, got %q", got.AnomalyTag)
	}
}

func TestAnalyzeFirstSubmissionIsBaseline(t *testing.T) {
	got := NewAnalyzer().Analyze(`{"ua":"x"}`, nil)
	if got.AnomalyTag != "" {
		t.Fatalf("expected empty tag on first submission, got %q", got.AnomalyTag)
	}
}

func TestAnalyzeExactMatch(t *testing.T) {
	fp := encode(t, `{"ua":"Safari","screen":"390x844","tz":"Asia/Taipei"}`)
	got := NewAnalyzer().Analyze(fp, []string{"other", fp})
	if got.AnomalyTag != "" || got.Similarity != 1 {
		t.Fatalf("expected exact match, got %+v", got)
	}
}

func TestAnalyzeStructuredSimilarity(t *testing.T) {
	base := encode(t, `{"ua":"Safari","screen":"390x844","tz":"Asia/Taipei","lang":"zh-TW","platform":"iPhone"}`)
	near := encode(t, `{"ua":"Safari 17","screen":"390x844","tz":"Asia/Taipei","lang":"zh-TW","platform":"iPhone"}`)
	far := encode(t, `{"ua":"Chrome","screen":"1920x1080","tz":"Asia/Taipei","lang":"en-US","platform":"Win32"}`)

	a := NewAnalyzer()
	if got := a.Analyze(near, []string{base}); got.AnomalyTag != "" || got.Similarity != 0.8 {
		t.Fatalf("expected 0.8 similarity without anomaly, got %+v", got)
	}
	if got := a.Analyze(far, []string{base}); got.AnomalyTag != domain.DeviceAnomalyNewDevice {
		t.Fatalf("expected new device tag, got %+v", got)
	}
	if got := a.Analyze(far, []string{base, near, far + "x", encode(t, `{"ua":"Chrome","screen":"1920x1080","tz":"Asia/Taipei","lang":"en-US","platform":"Win32","extra":1}`)}); got.AnomalyTag != "" {
		t.Fatalf("expected best match across history to clear anomaly, got %+v", got)
	}
}

func TestSimilarityFallbackOnDecodeFailure(t *testing.T) {
	if got := Similarity("not-a-payload", `{"a":1}`); got != FallbackSimilarity {
		t.Fatalf("expected fallback similarity, got %v", got)
	}
	got := NewAnalyzer().Analyze("device-A", []string{"device-B"})
	if got.AnomalyTag != domain.DeviceAnomalyNewDevice || got.Similarity != FallbackSimilarity {
		t.Fatalf("expected opaque mismatch to tag new device, got %+v", got)
	}
}

func TestAnalyzeBoundsHistory(t *testing.T) {
	match := `{"id":"old"}`
	history := make([]string, 0, HistoryLimit+1)
	for i := 0; i < HistoryLimit; i++ {
		history = append(history, `{"id":"recent"}`)
	}
	history = append(history, match)

	got := NewAnalyzer().Analyze(match, history)
	if got.AnomalyTag != domain.DeviceAnomalyNewDevice {
		t.Fatalf("expected entries beyond the history limit to be ignored, got %+v", got)
	}
}
