// Package phishguard classifies candidate URLs as phishing or benign. It
// expands redirect chains to a terminal destination, derives a fixed-length
// feature vector from the resolved URL, and scores it against an external
// classification model.
package phishguard

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aliasimcoskun/phishguard/models"
	"github.com/aliasimcoskun/phishguard/scorer"
	"github.com/aliasimcoskun/phishguard/slug"
)

// PhishingThreshold is the closed lower bound of the phishing label: a score
// of exactly 0.5 classifies as phishing.
const PhishingThreshold = 0.5

// ErrEmptyURL is returned for empty or whitespace-only input. No network or
// model work happens in that case.
var ErrEmptyURL = errors.New("enter a URL")

// Scorer produces a phishing probability for a feature vector, or a negative
// sentinel when no valid score can be produced.
type Scorer interface {
	Score(ctx context.Context, vec models.FeatureVector) float64
}

// Config contains analyzer configuration
type Config struct {
	MaxRedirectHops int
	HopTimeout      time.Duration // per redirect hop
	PageTimeout     time.Duration // terminal page title fetch
	ScorerBaseURL   string
	ScorerModel     string
	FetchPageTitle  bool
}

// DefaultConfig returns default analyzer configuration
func DefaultConfig() Config {
	return Config{
		MaxRedirectHops: DefaultMaxHops,
		HopTimeout:      DefaultHopTimeout,
		PageTimeout:     10 * time.Second,
		ScorerBaseURL:   scorer.DefaultBaseURL,
		ScorerModel:     scorer.DefaultModel,
		FetchPageTitle:  true,
	}
}

// Analyzer orchestrates a single URL analysis: resolve, extract, score,
// label.
type Analyzer struct {
	config   Config
	resolver *Resolver
	scorer   Scorer
}

// New creates a new Analyzer instance.
// sc may be nil, in which case a client for the configured inference server
// is used.
func New(config Config, sc Scorer) *Analyzer {
	if sc == nil {
		sc = scorer.NewClient(config.ScorerBaseURL, config.ScorerModel)
	}
	return &Analyzer{
		config:   config,
		resolver: NewResolver(config.HopTimeout),
		scorer:   sc,
	}
}

// Analyze classifies a single URL. Only empty input is an error; every other
// failure inside the pipeline degrades to a usable result, with the model
// being unreachable surfaced as VerdictUnavailable rather than a fabricated
// label.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*models.AnalysisResult, error) {
	start := time.Now()
	warnings := []string{} // Track non-fatal processing issues

	input := strings.TrimSpace(rawURL)
	if input == "" {
		return nil, ErrEmptyURL
	}

	// Everything downstream operates on the resolved URL, and it is also the
	// value offered for any subsequent navigation.
	finalURL := a.resolver.Expand(ctx, input, a.config.MaxRedirectHops)

	features := ExtractFeatures(finalURL)

	score := a.scorer.Score(ctx, features)
	verdict := VerdictFor(score)
	if verdict == models.VerdictUnavailable {
		log.Printf("model scoring unavailable for %s", finalURL)
		warnings = append(warnings, "model scoring unavailable, no verdict produced")
	}

	var title string
	if a.config.FetchPageTitle {
		var err error
		title, err = fetchPageTitle(ctx, finalURL, a.config.PageTimeout)
		if err != nil {
			log.Printf("page title fetch failed for %s: %v", finalURL, err)
			warnings = append(warnings, "page title unavailable")
		}
	}

	return &models.AnalysisResult{
		ID:             uuid.New().String(),
		URL:            input,
		FinalURL:       finalURL,
		PageTitle:      title,
		Slug:           slug.GenerateWithFallback(title, finalURL),
		Features:       features,
		Score:          score,
		Verdict:        verdict,
		AnalyzedAt:     time.Now(),
		ProcessingTime: time.Since(start).Seconds(),
		Cached:         false,
		Warnings:       warnings,
	}, nil
}

// VerdictFor maps a model score to its label. Negative scores are the
// "no valid score" sentinel and map to VerdictUnavailable.
func VerdictFor(score float64) string {
	switch {
	case score < 0:
		return models.VerdictUnavailable
	case score >= PhishingThreshold:
		return models.VerdictPhishing
	default:
		return models.VerdictSafe
	}
}
