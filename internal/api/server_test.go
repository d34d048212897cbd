package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/docdiff/internal/config"
	"github.com/dgallion1/docdiff/internal/differ"
	"github.com/dgallion1/docdiff/internal/metrics"
	"github.com/dgallion1/docdiff/internal/pipeline"
	"github.com/dgallion1/docdiff/internal/wikiapi"
)

const (
	prevWiki = "Lead text.\n== History ==\nFounded in 1900.\n== Legacy ==\nStill here.\n"
	currWiki = "Lead text.\n== History ==\nFounded in 1901.\n== Legacy ==\nStill here.\n"
)

// wikiServer serves revision 20 (currWiki) with parent 19 (prevWiki).
func wikiServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var revID, parentID int64
		var content string
		switch r.URL.Query().Get("revids") {
		case "20":
			revID, parentID, content = 20, 19, currWiki
		case "19":
			revID, parentID, content = 19, 0, prevWiki
		default:
			fmt.Fprintf(w, `{"query":{"badrevids":{"%s":{"missing":true}}}}`, r.URL.Query().Get("revids"))
			return
		}
		body, _ := json.Marshal(map[string]any{
			"query": map[string]any{
				"pages": []any{map[string]any{
					"title": "Example",
					"revisions": []any{map[string]any{
						"revid":    revID,
						"parentid": parentID,
						"slots":    map[string]any{"main": map[string]any{"content": content}},
					}},
				}},
			},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/{lang}/api.php"
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.WorkerCount = 1
	cfg.WikiAPIURL = wikiServer(t)
	if mutate != nil {
		mutate(&cfg)
	}
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	wiki := wikiapi.NewClient(cfg.WikiAPIURL, cfg.UserAgent, 0, 1)
	runner := pipeline.NewRunner(wiki, metrics.NewWindow(cfg.StatsWindow), log, cfg.MaxCells)
	orch := pipeline.NewOrchestrator(cfg, runner, log)
	orch.Start(context.Background())
	t.Cleanup(orch.Stop)
	return NewServer(orch, runner, log, cfg)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	postJSON(t, s, "/api/diff", map[string]any{"previous": prevWiki, "current": currWiki})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "docdiff_comparisons_total") {
		t.Error("expected comparison counter in metrics output")
	}
}

func TestDiff_Wikitext(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postJSON(t, s, "/api/diff", map[string]any{"previous": prevWiki, "current": currWiki})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	diff := decode[differ.Diff](t, rec)
	if len(diff.Change) != 1 || len(diff.Remove) != 0 || len(diff.Insert) != 0 {
		t.Fatalf("expected exactly one change, got %+v", diff)
	}
	c := diff.Change[0]
	if c.Curr.Section != "History (S.2)" || c.Curr.Text != "Founded in 1901." {
		t.Errorf("unexpected change: %+v", c)
	}
	if _, ok := diff.SectionsPrev["History (S.2)"]; !ok {
		t.Errorf("expected History in sections-prev, got %v", diff.SectionsPrev)
	}
	if !strings.Contains(rec.Body.String(), `"sections-curr"`) {
		t.Error("expected sections-curr key in body")
	}
}

func TestDiff_Markdown(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postJSON(t, s, "/api/diff", map[string]any{
		"previous": "# Title\n\nIntro.\n",
		"current":  "# Title\n\nIntro.\n\n## New\n\nAdded.\n",
		"dialect":  "markdown",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	diff := decode[differ.Diff](t, rec)
	if len(diff.Insert) != 2 {
		t.Errorf("expected heading and paragraph inserted, got %+v", diff.Insert)
	}
}

func TestDiff_Validation(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{"previous":`},
		{"unknown dialect", `{"previous":"a","current":"b","dialect":"rtf"}`},
		{"negative timeout", `{"previous":"a","current":"b","timeout_ms":-5}`},
		{"revision on sync endpoint", `{"lang":"en","revid":5}`},
		{"revid without lang", `{"revid":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/diff", strings.NewReader(tt.body))
			rec := do(t, s, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestDiff_TooLarge(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.MaxCells = 1 })
	rec := postJSON(t, s, "/api/diff", map[string]any{"previous": prevWiki, "current": currWiki})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "too_large" || body["error"] == "" {
		t.Errorf("unexpected error body: %v", body)
	}
}

func TestDiff_Timeout(t *testing.T) {
	// A budget that is already spent.
	s := newTestServer(t, func(c *config.Config) {
		c.DefaultTimeout = -time.Second
		c.MaxTimeout = -time.Second
	})
	rec := postJSON(t, s, "/api/diff", map[string]any{"previous": prevWiki, "current": currWiki})
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode[map[string]string](t, rec); body["status"] != "timeout" {
		t.Errorf("expected timeout status, got %v", body)
	}
}

func TestDiffUpload(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, content := range map[string]string{
		"previous": "# Doc\n\nold\n",
		"current":  "# Doc\n\nnew\n",
	} {
		fw, err := mw.CreateFormFile(field, "../"+field+".md")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/diff/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	diff := decode[differ.Diff](t, rec)
	if len(diff.Change) != 1 || diff.Change[0].Curr.Type != "Paragraph" {
		t.Errorf("expected one paragraph change, got %+v", diff)
	}
}

func TestDiffUpload_MissingFile(t *testing.T) {
	s := newTestServer(t, nil)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("current", "a.md")
	fw.Write([]byte("# A\n"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/diff/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if rec := do(t, s, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDiffRevision(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/diff/revision?lang=en&revid=20", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	diff := decode[differ.Diff](t, rec)
	if len(diff.Change) != 1 || diff.Change[0].Prev.Text != "Founded in 1900." {
		t.Errorf("unexpected diff: %+v", diff)
	}
}

func TestDiffRevision_Errors(t *testing.T) {
	s := newTestServer(t, nil)
	tests := []struct {
		query string
		code  int
	}{
		{"lang=en&revid=abc", http.StatusBadRequest},
		{"lang=en&revid=-3", http.StatusBadRequest},
		{"lang=EN!&revid=20", http.StatusBadRequest},
		{"lang=en&revid=404", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/diff/revision?"+tt.query, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d: %s", tt.query, tt.code, rec.Code, rec.Body.String())
		}
	}
}

func TestJobs_SubmitAndPoll(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postJSON(t, s, "/api/jobs", map[string]any{"lang": "en", "revid": 20})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	accepted := decode[map[string]any](t, rec)
	pollURL, _ := accepted["poll_url"].(string)
	if pollURL == "" {
		t.Fatalf("expected poll_url, got %v", accepted)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec = do(t, s, httptest.NewRequest(http.MethodGet, pollURL, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		snap := decode[pipeline.JobSnapshot](t, rec)
		if snap.Status.Done() {
			if snap.Status != pipeline.StatusCompleted || snap.Diff == nil || len(snap.Diff.Change) != 1 {
				t.Fatalf("unexpected finished job: %+v", snap)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish")
}

func TestJobs_BadLang(t *testing.T) {
	s := newTestServer(t, nil)
	rec := postJSON(t, s, "/api/jobs", map[string]any{"lang": "e n", "revid": 20})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJobs_NotFound(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCompareStats(t *testing.T) {
	s := newTestServer(t, nil)
	postJSON(t, s, "/api/diff", map[string]any{"previous": prevWiki, "current": currWiki})
	postJSON(t, s, "/api/diff", map[string]any{"previous": "a", "current": "b"})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats/compare", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Window string           `json:"window"`
		Stats  metrics.Snapshot `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Stats.Count != 2 || body.Stats.Outcomes["ok"] != 2 {
		t.Errorf("expected two ok samples, got %+v", body.Stats)
	}
	if body.Window != "1h0m0s" {
		t.Errorf("expected 1h window, got %q", body.Window)
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.APIKey = "secret" })

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats/compare", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/compare", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := do(t, s, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/stats/compare", nil)
	req.Header.Set("Authorization", "Bearer secret")
	if rec := do(t, s, req); rec.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", rec.Code)
	}

	if rec := do(t, s, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Errorf("expected health to stay public, got %d", rec.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd": "passwd",
		"notes.md":         "notes.md",
		"":                 "unnamed",
		"a..b.md":          "a_b.md",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q): expected %q, got %q", in, want, got)
		}
	}
}
