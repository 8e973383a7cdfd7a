package analysis

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/lansoscan/lansoscan-go/internal/datastore"
	"github.com/lansoscan/lansoscan-go/internal/errors"
)

// Result is the parsed verdict of a model response.
type Result struct {
	DiseaseDetected bool     `json:"disease_detected"`
	DiseaseName     string   `json:"disease_name"`
	Confidence      float64  `json:"confidence"`
	Severity        string   `json:"severity"`
	Recommendations []string `json:"recommendations"`

	// Heuristic is set when the verdict came from keyword matching over the
	// raw text instead of the JSON schema.
	Heuristic bool `json:"-"`
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

	// "disease: anthracnose", "disease name - fruit rot", "identified as leaf spot"
	diseaseNameRe = regexp.MustCompile(`(?i)(?:disease(?:\s+name)?|diagnosis|identified\s+as)\s*[:\-]?\s*([a-z][a-z\- ]{2,40}?)(?:[.,\n]|$)`)

	// "87%", "confidence: 0.87", "confidence of 87"
	percentRe    = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	confidenceRe = regexp.MustCompile(`(?i)confidence\D{0,12}(\d?\.\d+|\d{1,3})`)
)

var diseaseKeywords = []string{
	"disease", "infected", "infection", "fungal", "fungus",
	"anthracnose", "rot", "blight", "leaf spot", "algal spot",
	"sooty mold", "lesion", "scale insect", "pest damage",
}

var healthyPhrases = []string{
	"healthy", "no disease", "not detected", "no signs", "no visible",
	"disease_detected: false", "appears normal",
}

// ParseResponse extracts a verdict from the model's text output. Well-formed
// JSON is decoded against the schema; anything else goes through the keyword
// fallback and is flagged as heuristic.
func ParseResponse(text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.Newf("model response is empty").
			Category(errors.CategoryResponseParsing).
			Component("analysis").
			Build()
	}

	if result, ok := parseJSON(trimmed); ok {
		result.normalize()
		return result, nil
	}

	result := parseHeuristic(trimmed)
	result.normalize()
	return result, nil
}

// parseJSON strips code fences, locates the outermost JSON object, and
// decodes it. ok is false when no usable object is present.
func parseJSON(text string) (*Result, bool) {
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}

	var result Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, false
	}

	// An object that carries none of the schema keys is not a verdict
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &keys); err != nil {
		return nil, false
	}
	if _, ok := keys["disease_detected"]; !ok {
		return nil, false
	}

	return &result, true
}

// parseHeuristic scrapes a best-effort verdict out of free-form text.
func parseHeuristic(text string) *Result {
	lower := strings.ToLower(text)
	result := &Result{Heuristic: true}

	for _, phrase := range healthyPhrases {
		if strings.Contains(lower, phrase) {
			result.DiseaseDetected = false
			result.Confidence = heuristicConfidence(lower, 0.5)
			return result
		}
	}

	for _, keyword := range diseaseKeywords {
		if strings.Contains(lower, keyword) {
			result.DiseaseDetected = true
			break
		}
	}

	if result.DiseaseDetected {
		if m := diseaseNameRe.FindStringSubmatch(text); m != nil {
			result.DiseaseName = strings.TrimSpace(strings.ToLower(m[1]))
		}
		result.Severity = heuristicSeverity(lower)
	}

	result.Confidence = heuristicConfidence(lower, 0.5)
	return result
}

// heuristicConfidence captures a percentage or fraction from the text,
// falling back to the given default.
func heuristicConfidence(lower string, fallback float64) float64 {
	if m := confidenceRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			if v > 1 {
				v /= 100
			}
			return v
		}
	}
	if m := percentRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v / 100
		}
	}
	return fallback
}

func heuristicSeverity(lower string) string {
	switch {
	case strings.Contains(lower, "severe") || strings.Contains(lower, "advanced"):
		return datastore.SeveritySevere
	case strings.Contains(lower, "moderate"):
		return datastore.SeverityModerate
	case strings.Contains(lower, "mild") || strings.Contains(lower, "early stage"):
		return datastore.SeverityMild
	default:
		return datastore.SeverityModerate
	}
}

// normalize enforces the verdict invariants: confidence in [0,1], a known
// severity value, and no disease name on a healthy verdict.
func (r *Result) normalize() {
	if r.Confidence < 0 {
		r.Confidence = 0
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}

	r.Severity = strings.ToLower(strings.TrimSpace(r.Severity))
	switch r.Severity {
	case datastore.SeverityMild, datastore.SeverityModerate, datastore.SeveritySevere:
	default:
		if r.DiseaseDetected {
			r.Severity = datastore.SeverityModerate
		} else {
			r.Severity = datastore.SeverityNone
		}
	}

	if !r.DiseaseDetected {
		r.DiseaseName = ""
		r.Severity = datastore.SeverityNone
	}
}
