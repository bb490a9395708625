package models

import "time"

// FeatureCount is the length of the feature vector consumed by the
// classification model. The model was trained against this exact positional
// layout; reordering or resizing silently corrupts predictions.
const FeatureCount = 9

// FeatureVector is the ordered numeric representation of a URL.
type FeatureVector [FeatureCount]float64

// Slice returns the vector as a []float64 for wire encoding.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Positions within a FeatureVector.
const (
	FeatureHostLength = iota
	FeatureHostIsIPv4
	FeatureHasAtSign
	FeatureURLLength
	FeaturePathDepth
	FeatureDoubleSlashInPath
	FeatureSchemeHTTPS
	FeatureShortenerHost
	FeatureHyphenInHost
)

// Verdict labels attached to an analysis.
const (
	VerdictPhishing    = "phishing"
	VerdictSafe        = "safe"
	VerdictUnavailable = "unavailable" // model could not produce a score
)

// AnalysisResult represents the complete output of a URL analysis
type AnalysisResult struct {
	ID             string        `json:"id"`
	URL            string        `json:"url"`       // original input URL
	FinalURL       string        `json:"final_url"` // URL after redirect expansion
	PageTitle      string        `json:"page_title,omitempty"`
	Slug           string        `json:"slug,omitempty"`
	ReportPath     string        `json:"report_path,omitempty"` // archive location of the JSON report
	Features       FeatureVector `json:"features"`
	Score          float64       `json:"score"` // phishing probability, negative when no score was produced
	Verdict        string        `json:"verdict"`
	AnalyzedAt     time.Time     `json:"analyzed_at"`
	ProcessingTime float64       `json:"processing_time_seconds"`
	Cached         bool          `json:"cached"`
	Warnings       []string      `json:"warnings,omitempty"` // Non-fatal processing warnings
}

// PredictRequest is the payload sent to the model inference server.
type PredictRequest struct {
	Instances [][]float64 `json:"instances"`
}

// PredictResponse is the payload returned by the model inference server.
type PredictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error,omitempty"`
}

// ModelStatus describes a served model as reported by the inference server.
type ModelStatus struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Version string `json:"version,omitempty"`
}
