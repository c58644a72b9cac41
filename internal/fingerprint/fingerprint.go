package fingerprint

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	"shiftbook/backend/internal/domain"
)

const (
	HistoryLimit        = 30
	SimilarityThreshold = 0.8
	FallbackSimilarity  = 0.3
)

var errNotObject = errors.New("fingerprint is not a structured payload")

type Analysis struct {
	AnomalyTag string  `json:"anomaly_tag"`
	Similarity float64 `json:"similarity"`
}

type Analyzer struct {
	threshold float64
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{threshold: SimilarityThreshold}
}

// Analyze never fails; the tag is advisory and never blocks a clock event.
// history is expected newest first; only the first HistoryLimit entries are compared.
func (a *Analyzer) Analyze(current string, history []string) Analysis {
	current = strings.TrimSpace(current)
	if current == "" {
		return Analysis{AnomalyTag: domain.DeviceAnomalyNoFingerprint}
	}
	if len(history) > HistoryLimit {
		history = history[:HistoryLimit]
	}
	if len(history) == 0 {
		return Analysis{Similarity: 1}
	}

	best := 0.0
	for _, previous := range history {
		if previous == current {
			return Analysis{Similarity: 1}
		}
		if score := Similarity(current, previous); score > best {
			best = score
		}
	}

	if best < a.threshold {
		return Analysis{AnomalyTag: domain.DeviceAnomalyNewDevice, Similarity: best}
	}
	return Analysis{Similarity: best}
}

// Similarity is matching key/value pairs over keys common to both payloads.
// Payloads that fail to decode score FallbackSimilarity.
func Similarity(a string, b string) float64 {
	if a == b {
		return 1
	}
	left, err := Decode(a)
	if err != nil {
		return FallbackSimilarity
	}
	right, err := Decode(b)
	if err != nil {
		return FallbackSimilarity
	}

	common, matching := 0, 0
	for key, lv := range left {
		rv, ok := right[key]
		if !ok {
			continue
		}
		common++
		if reflect.DeepEqual(lv, rv) {
			matching++
		}
	}
	if common == 0 {
		return 0
	}
	return float64(matching) / float64(common)
}

// Decode accepts a JSON object or a base64 (std or url, padded or raw) encoded JSON object.
func Decode(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return decodeObject([]byte(raw))
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		decoded, err := enc.DecodeString(raw)
		if err != nil {
			continue
		}
		return decodeObject(decoded)
	}
	return nil, errNotObject
}

func decodeObject(payload []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNotObject
	}
	return out, nil
}
