// Package scorer is the client for the phishing classification model served
// over HTTP. The model is an external collaborator: this package knows its
// wire shape (1x9 in, 1x1 out) and nothing about its internals.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aliasimcoskun/phishguard/models"
)

const (
	// DefaultBaseURL is the default model inference server address.
	DefaultBaseURL = "http://localhost:8501"

	// DefaultModel is the name the phishing model is served under.
	DefaultModel = "phishing_url"

	// ScoreUnavailable is the sentinel returned when no valid probability
	// could be produced. Callers must treat it as a distinct outcome, never
	// as a score.
	ScoreUnavailable = -1.0

	defaultTimeout = 10 * time.Second
)

// Client scores feature vectors against the inference server. The served
// model is probed lazily on first use; if that probe fails the client stays
// unavailable and every Score call returns the sentinel. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client

	loadOnce sync.Once
	loadErr  error
}

// NewClient creates a scorer client. Empty arguments select the defaults.
func NewClient(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout,
		},
	}
}

// ensureLoaded probes the served model exactly once. Concurrent callers
// arriving during the probe wait for its outcome rather than starting a
// second one.
func (c *Client) ensureLoaded(ctx context.Context) error {
	c.loadOnce.Do(func() {
		c.loadErr = c.probeModel(ctx)
	})
	return c.loadErr
}

func (c *Client) probeModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/models/%s", c.baseURL, c.model), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model %q not available: HTTP %d", c.model, resp.StatusCode)
	}

	var status models.ModelStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode model status: %w", err)
	}
	if status.State != "" && status.State != "AVAILABLE" {
		return fmt.Errorf("model %q in state %s", c.model, status.State)
	}
	return nil
}

// Available reports whether the model probe has succeeded. It triggers the
// probe if it has not run yet.
func (c *Client) Available(ctx context.Context) bool {
	return c.ensureLoaded(ctx) == nil
}

// Score returns the phishing probability for a feature vector, or
// ScoreUnavailable when the model is not loaded, the request fails, or the
// response does not carry exactly one probability in [0,1].
func (c *Client) Score(ctx context.Context, vec models.FeatureVector) float64 {
	if err := c.ensureLoaded(ctx); err != nil {
		return ScoreUnavailable
	}

	payload, err := json.Marshal(models.PredictRequest{
		Instances: [][]float64{vec.Slice()},
	})
	if err != nil {
		return ScoreUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/models/%s:predict", c.baseURL, c.model),
		bytes.NewReader(payload))
	if err != nil {
		return ScoreUnavailable
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ScoreUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ScoreUnavailable
	}

	var prediction models.PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&prediction); err != nil {
		return ScoreUnavailable
	}
	if prediction.Error != "" {
		return ScoreUnavailable
	}
	if len(prediction.Predictions) != 1 || len(prediction.Predictions[0]) != 1 {
		return ScoreUnavailable
	}

	p := prediction.Predictions[0][0]
	if p < 0 || p > 1 {
		return ScoreUnavailable
	}
	return p
}
