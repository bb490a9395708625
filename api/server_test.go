package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aliasimcoskun/phishguard"
	"github.com/aliasimcoskun/phishguard/models"
)

// fakeStore is an in-memory Store for handler tests.
type fakeStore struct {
	byID  map[string]*models.AnalysisResult
	byURL map[string]*models.AnalysisResult
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:  make(map[string]*models.AnalysisResult),
		byURL: make(map[string]*models.AnalysisResult),
	}
}

func (f *fakeStore) SaveAnalysis(result *models.AnalysisResult) error {
	f.byID[result.ID] = result
	f.byURL[result.URL] = result
	return nil
}

func (f *fakeStore) GetByID(id string) (*models.AnalysisResult, error) {
	return f.byID[id], nil
}

func (f *fakeStore) GetByURL(url string) (*models.AnalysisResult, error) {
	return f.byURL[url], nil
}

func (f *fakeStore) List(limit, offset int) ([]*models.AnalysisResult, error) {
	var out []*models.AnalysisResult
	for _, r := range f.byID {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) Delete(id string) error {
	if _, ok := f.byID[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeStore) Count() (int, error) {
	return len(f.byID), nil
}

func (f *fakeStore) CountByVerdict() (map[string]int, error) {
	counts := make(map[string]int)
	for _, r := range f.byID {
		counts[r.Verdict]++
	}
	return counts, nil
}

// fakeArchive is an in-memory report archive.
type fakeArchive struct {
	reports map[string][]byte
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{reports: make(map[string][]byte)}
}

// SaveReport mirrors the filesystem backend's collision handling: a repeated
// slug gets a counter suffix rather than overwriting the earlier report.
func (f *fakeArchive) SaveReport(_ context.Context, data []byte, slug string) (string, error) {
	path := slug + ".json"
	for counter := 1; ; counter++ {
		if _, ok := f.reports[path]; !ok {
			break
		}
		path = fmt.Sprintf("%s-%d.json", slug, counter)
	}
	f.reports[path] = data
	return path, nil
}

func (f *fakeArchive) ReadReport(_ context.Context, path string) ([]byte, error) {
	if data, ok := f.reports[path]; ok {
		return data, nil
	}
	return nil, errors.New("report not found")
}

func (f *fakeArchive) DeleteReport(_ context.Context, path string) error {
	delete(f.reports, path)
	return nil
}

// stubScorer returns a fixed score.
type stubScorer struct {
	score float64
}

func (s *stubScorer) Score(ctx context.Context, vec models.FeatureVector) float64 {
	return s.score
}

func setupTestServer(t *testing.T, score float64) (*Server, *fakeStore) {
	t.Helper()

	analyzerConfig := phishguard.DefaultConfig()
	analyzerConfig.MaxRedirectHops = 0 // keep handler tests off the network
	analyzerConfig.FetchPageTitle = false
	analyzer := phishguard.New(analyzerConfig, &stubScorer{score: score})

	store := newFakeStore()
	server := newServer(store, newFakeArchive(), analyzer, Config{
		Addr:        ":0",
		CORSEnabled: false,
	})
	return server, store
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleAnalyze(t *testing.T) {
	server, store := setupTestServer(t, 0.42)

	rec := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/login"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	var result models.AnalysisResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if result.Verdict != models.VerdictSafe {
		t.Errorf("Verdict = %q, want %q", result.Verdict, models.VerdictSafe)
	}
	if result.Score != 0.42 {
		t.Errorf("Score = %v, want 0.42", result.Score)
	}
	if result.Cached {
		t.Error("Fresh analysis should not be marked cached")
	}
	if saved, _ := store.GetByID(result.ID); saved == nil {
		t.Error("analysis was not persisted")
	}
}

func TestHandleAnalyzeEmptyURL(t *testing.T) {
	server, _ := setupTestServer(t, 0.42)

	for _, url := range []string{"", "   "} {
		rec := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: url})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status for %q = %d, want 400", url, rec.Code)
		}
	}
}

func TestHandleAnalyzeMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t, 0.42)

	rec := doRequest(server, http.MethodGet, "/api/analyze", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleAnalyzeReturnsCachedResult(t *testing.T) {
	server, _ := setupTestServer(t, 0.42)

	first := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/"})
	if first.Code != http.StatusOK {
		t.Fatalf("first analysis failed: %d", first.Code)
	}
	var firstResult models.AnalysisResult
	json.NewDecoder(first.Body).Decode(&firstResult)

	second := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/"})
	var secondResult models.AnalysisResult
	json.NewDecoder(second.Body).Decode(&secondResult)

	if !secondResult.Cached {
		t.Error("Expected the second analysis to be served from cache")
	}
	if secondResult.ID != firstResult.ID {
		t.Errorf("Cached ID = %q, want %q", secondResult.ID, firstResult.ID)
	}

	forced := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/", Force: true})
	var forcedResult models.AnalysisResult
	json.NewDecoder(forced.Body).Decode(&forcedResult)

	if forcedResult.Cached {
		t.Error("Forced re-analysis should not be marked cached")
	}
	if forcedResult.ID == firstResult.ID {
		t.Error("Forced re-analysis should produce a new ID")
	}
}

func TestHandleAnalyzeUnavailableScorer(t *testing.T) {
	server, _ := setupTestServer(t, -1)

	rec := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var result models.AnalysisResult
	json.NewDecoder(rec.Body).Decode(&result)

	// Scoring being down is a distinct outcome, not an error and not a label.
	if result.Verdict != models.VerdictUnavailable {
		t.Errorf("Verdict = %q, want %q", result.Verdict, models.VerdictUnavailable)
	}
}

func TestHandleGetAndDelete(t *testing.T) {
	server, store := setupTestServer(t, 0.9)

	rec := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://phish.example/"})
	var result models.AnalysisResult
	json.NewDecoder(rec.Body).Decode(&result)

	got := doRequest(server, http.MethodGet, "/api/analyses/"+result.ID, nil)
	if got.Code != http.StatusOK {
		t.Errorf("GET status = %d, want 200", got.Code)
	}

	missing := doRequest(server, http.MethodGet, "/api/analyses/nope", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("GET missing status = %d, want 404", missing.Code)
	}

	deleted := doRequest(server, http.MethodDelete, "/api/analyses/"+result.ID, nil)
	if deleted.Code != http.StatusOK {
		t.Errorf("DELETE status = %d, want 200", deleted.Code)
	}
	if r, _ := store.GetByID(result.ID); r != nil {
		t.Error("Expected analysis to be deleted from the store")
	}

	again := doRequest(server, http.MethodDelete, "/api/analyses/"+result.ID, nil)
	if again.Code != http.StatusNotFound {
		t.Errorf("DELETE again status = %d, want 404", again.Code)
	}
}

func TestHandleReport(t *testing.T) {
	analyzerConfig := phishguard.DefaultConfig()
	analyzerConfig.MaxRedirectHops = 0
	analyzerConfig.FetchPageTitle = false
	analyzer := phishguard.New(analyzerConfig, &stubScorer{score: 0.42})

	store := newFakeStore()
	archive := newFakeArchive()
	server := newServer(store, archive, analyzer, Config{Addr: ":0"})

	first := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/login"})
	var firstResult models.AnalysisResult
	json.NewDecoder(first.Body).Decode(&firstResult)

	if firstResult.ReportPath == "" {
		t.Fatal("Expected the analysis to record its archive path")
	}

	rec := doRequest(server, http.MethodGet, "/api/analyses/"+firstResult.ID+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET report status = %d, want 200", rec.Code)
	}
	var report models.AnalysisResult
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if report.ID != firstResult.ID {
		t.Errorf("report ID = %q, want %q", report.ID, firstResult.ID)
	}

	// A forced re-analysis of the same URL repeats the slug, so the archive
	// stores the new report under a suffixed path. The route must serve the
	// new analysis's own report, not the first one's.
	forced := doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: "https://example.com/login", Force: true})
	var forcedResult models.AnalysisResult
	json.NewDecoder(forced.Body).Decode(&forcedResult)

	if forcedResult.ReportPath == firstResult.ReportPath {
		t.Fatalf("Forced re-analysis reused archive path %q", forcedResult.ReportPath)
	}

	rec = doRequest(server, http.MethodGet, "/api/analyses/"+forcedResult.ID+"/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET forced report status = %d, want 200", rec.Code)
	}
	json.NewDecoder(rec.Body).Decode(&report)
	if report.ID != forcedResult.ID {
		t.Errorf("forced report ID = %q, want %q", report.ID, forcedResult.ID)
	}

	// Deleting the forced analysis must remove its report and nobody else's.
	doRequest(server, http.MethodDelete, "/api/analyses/"+forcedResult.ID, nil)
	if _, ok := archive.reports[forcedResult.ReportPath]; ok {
		t.Error("Expected the forced analysis's report to be deleted")
	}
	if _, ok := archive.reports[firstResult.ReportPath]; !ok {
		t.Error("Deleting one analysis removed another's report")
	}
}

func TestHandleReportFallsBackToStoredRow(t *testing.T) {
	server, store := setupTestServer(t, 0.42)

	// Rows without an archived copy, or whose archived copy has gone missing,
	// still get a report from the stored row itself.
	for _, result := range []*models.AnalysisResult{
		{ID: "no-archive", URL: "https://a.example/", Verdict: models.VerdictSafe},
		{ID: "stale-archive", URL: "https://b.example/", Verdict: models.VerdictSafe, ReportPath: "gone.json"},
	} {
		if err := store.SaveAnalysis(result); err != nil {
			t.Fatalf("SaveAnalysis() error = %v", err)
		}

		rec := doRequest(server, http.MethodGet, "/api/analyses/"+result.ID+"/report", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET report for %s status = %d, want 200", result.ID, rec.Code)
		}
		var report models.AnalysisResult
		if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
			t.Fatalf("failed to decode report: %v", err)
		}
		if report.ID != result.ID {
			t.Errorf("report ID = %q, want %q", report.ID, result.ID)
		}
	}
}

func TestHandleList(t *testing.T) {
	server, _ := setupTestServer(t, 0.1)

	for _, url := range []string{"https://a.example/", "https://b.example/"} {
		doRequest(server, http.MethodPost, "/api/analyze", AnalyzeRequest{URL: url})
	}

	rec := doRequest(server, http.MethodGet, "/api/analyses", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload struct {
		Analyses []*models.AnalysisResult `json:"analyses"`
		Count    int                      `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Count != 2 {
		t.Errorf("Count = %d, want 2", payload.Count)
	}
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t, 0.1)

	rec := doRequest(server, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var payload map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&payload)
	if payload["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", payload["status"])
	}
}
