package scorer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aliasimcoskun/phishguard/models"
)

// newInferenceServer returns a mock inference server serving one model with a
// fixed prediction payload.
func newInferenceServer(t *testing.T, model string, predictions [][]float64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/"+model, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.ModelStatus{Name: model, State: "AVAILABLE"})
	})
	mux.HandleFunc("/v1/models/"+model+":predict", func(w http.ResponseWriter, r *http.Request) {
		var req models.PredictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if len(req.Instances) != 1 || len(req.Instances[0]) != models.FeatureCount {
			http.Error(w, "shape mismatch", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.PredictResponse{Predictions: predictions})
	})
	return httptest.NewServer(mux)
}

func TestScore(t *testing.T) {
	server := newInferenceServer(t, "phishing_url", [][]float64{{0.42}})
	defer server.Close()

	c := NewClient(server.URL, "phishing_url")

	var vec models.FeatureVector
	if got := c.Score(context.Background(), vec); got != 0.42 {
		t.Errorf("Score() = %v, want 0.42", got)
	}
}

func TestScoreShapeMismatch(t *testing.T) {
	tests := []struct {
		name        string
		predictions [][]float64
	}{
		{"empty", [][]float64{}},
		{"too many rows", [][]float64{{0.1}, {0.2}}},
		{"too many columns", [][]float64{{0.1, 0.2}}},
		{"empty row", [][]float64{{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newInferenceServer(t, "phishing_url", tt.predictions)
			defer server.Close()

			c := NewClient(server.URL, "phishing_url")
			var vec models.FeatureVector
			if got := c.Score(context.Background(), vec); got != ScoreUnavailable {
				t.Errorf("Score() = %v, want sentinel for malformed shape", got)
			}
		})
	}
}

func TestScoreOutOfRangeProbability(t *testing.T) {
	for _, p := range []float64{-0.5, 1.5} {
		server := newInferenceServer(t, "phishing_url", [][]float64{{p}})
		c := NewClient(server.URL, "phishing_url")

		var vec models.FeatureVector
		if got := c.Score(context.Background(), vec); got != ScoreUnavailable {
			t.Errorf("Score() with probability %v = %v, want sentinel", p, got)
		}
		server.Close()
	}
}

func TestScoreUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c := NewClient(url, "phishing_url")
	var vec models.FeatureVector
	if got := c.Score(context.Background(), vec); got != ScoreUnavailable {
		t.Errorf("Score() = %v, want sentinel when server is unreachable", got)
	}
}

func TestLoadFailureIsSticky(t *testing.T) {
	var statusCalls, predictCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/phishing_url", func(w http.ResponseWriter, r *http.Request) {
		statusCalls.Add(1)
		http.Error(w, "loading failed", http.StatusInternalServerError)
	})
	mux.HandleFunc("/v1/models/phishing_url:predict", func(w http.ResponseWriter, r *http.Request) {
		predictCalls.Add(1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, "phishing_url")

	var vec models.FeatureVector
	for i := 0; i < 3; i++ {
		if got := c.Score(context.Background(), vec); got != ScoreUnavailable {
			t.Fatalf("Score() = %v, want sentinel after failed load", got)
		}
	}

	if n := statusCalls.Load(); n != 1 {
		t.Errorf("Expected exactly one load probe, got %d", n)
	}
	if n := predictCalls.Load(); n != 0 {
		t.Errorf("Expected no predict calls after failed load, got %d", n)
	}
}

func TestConcurrentLoadHappensOnce(t *testing.T) {
	var statusCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/phishing_url", func(w http.ResponseWriter, r *http.Request) {
		statusCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.ModelStatus{Name: "phishing_url", State: "AVAILABLE"})
	})
	mux.HandleFunc("/v1/models/phishing_url:predict", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(models.PredictResponse{Predictions: [][]float64{{0.3}}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, "phishing_url")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var vec models.FeatureVector
			if got := c.Score(context.Background(), vec); got != 0.3 {
				t.Errorf("Score() = %v, want 0.3", got)
			}
		}()
	}
	wg.Wait()

	if n := statusCalls.Load(); n != 1 {
		t.Errorf("Expected exactly one load probe across concurrent callers, got %d", n)
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", "")
	if c.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want %q", c.baseURL, DefaultBaseURL)
	}
	if c.model != DefaultModel {
		t.Errorf("model = %q, want %q", c.model, DefaultModel)
	}
}
