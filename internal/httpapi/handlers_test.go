package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/domain"
	"github.com/hamed0406/urlchecker/internal/probe"
)

// ---- test helpers ----

type recordingRunner struct {
	mu   sync.Mutex
	got  [][]string
	fail error
}

func (r *recordingRunner) CheckAll(_ context.Context, urls []string) ([]domain.CheckResult, error) {
	r.mu.Lock()
	r.got = append(r.got, urls)
	r.mu.Unlock()
	out := make([]domain.CheckResult, len(urls))
	for i, u := range urls {
		code := 200
		out[i] = domain.CheckResult{URL: u, StatusCode: &code}
	}
	return out, r.fail
}

func (r *recordingRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type notifierFunc func(ctx context.Context, title, text string) error

func (f notifierFunc) Send(ctx context.Context, title, text string) error { return f(ctx, title, text) }

func setupRouter(t *testing.T, runner BatchChecker, opts Options) *httptest.Server {
	t.Helper()
	srv := NewServer(zap.NewNop(), runner, 50)
	ts := httptest.NewServer(srv.Router(opts))
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return e.Error
}

// ---- tests ----

func TestCheckURLs_RejectsBadBatches(t *testing.T) {
	runner := &recordingRunner{}
	ts := setupRouter(t, runner, Options{})

	fiftyOne := `{"urls":[` + strings.TrimSuffix(strings.Repeat(`"https://example.com",`, 51), ",") + `]}`
	cases := []struct {
		name    string
		body    string
		wantSub string
	}{
		{"empty list", `{"urls":[]}`, "must not be empty"},
		{"missing field", `{}`, `"urls"`},
		{"null field", `{"urls":null}`, `"urls"`},
		{"not an array", `{"urls":"https://example.com"}`, `"urls"`},
		{"non-string items", `{"urls":[1,2]}`, `"urls"`},
		{"too many", fiftyOne, "at most 50"},
		{"not json", `urls=x`, "JSON"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/check-urls", c.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("want 400, got %d", resp.StatusCode)
			}
			if msg := decodeError(t, resp); !strings.Contains(msg, c.wantSub) {
				t.Fatalf("error %q should contain %q", msg, c.wantSub)
			}
		})
	}
	if runner.calls() != 0 {
		t.Fatalf("rejected batches must not reach the runner")
	}
}

func TestCheckURLs_ReturnsResultsAndCount(t *testing.T) {
	runner := &recordingRunner{}
	ts := setupRouter(t, runner, Options{})

	resp := postJSON(t, ts.URL+"/check-urls", `{"urls":["https://a.example","https://b.example"]}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Batch-ID") == "" {
		t.Fatalf("missing batch id header")
	}
	var out domain.BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || len(out.Results) != 2 || out.Results[1].URL != "https://b.example" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestCheckURLs_FaultsStillReturnResults(t *testing.T) {
	runner := &recordingRunner{fail: errors.New("check panicked")}
	ts := setupRouter(t, runner, Options{})

	resp := postJSON(t, ts.URL+"/check-urls", `{"urls":["https://a.example"]}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 with per-item data, got %d", resp.StatusCode)
	}
}

func TestCheckURLs_InvalidURLIsPerItemError(t *testing.T) {
	// real checker; every probe would blow up if reached
	c := probe.NewURLChecker(zap.NewNop(), mustNotFetch{}, mustNotResolve{}, nil, nil)
	ts := setupRouter(t, probe.NewBatchRunner(zap.NewNop(), c), Options{})

	resp := postJSON(t, ts.URL+"/check-urls", `{"urls":["htp://invalid"]}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	var raw struct {
		Results []map[string]any `json:"results"`
		Count   int              `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if raw.Count != 1 {
		t.Fatalf("count wrong: %d", raw.Count)
	}
	r := raw.Results[0]
	if r["url"] != "htp://invalid" || r["error"] != probe.InvalidURL || r["status_code"] != nil || r["ip"] != nil {
		t.Fatalf("unexpected result: %v", r)
	}
}

type mustNotFetch struct{}

func (mustNotFetch) Fetch(context.Context, string) (probe.HTTPResponse, error) {
	panic("fetch must not be called")
}

type mustNotResolve struct{}

func (mustNotResolve) Resolve(context.Context, string) (string, error) {
	panic("resolve must not be called")
}

func TestCheckURLs_RequiresKeyWhenConfigured(t *testing.T) {
	ts := setupRouter(t, &recordingRunner{}, Options{APIKeys: []string{"k_test"}})

	if resp := postJSON(t, ts.URL+"/check-urls", `{"urls":["https://a.example"]}`, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 without key, got %d", resp.StatusCode)
	}
	if resp := postJSON(t, ts.URL+"/check-urls", `{"urls":["https://a.example"]}`, map[string]string{"X-API-Key": "k_test"}); resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200 with key, got %d", resp.StatusCode)
	}
}

func TestCheckURLs_AlertsOnMaliciousResults(t *testing.T) {
	flagged := &flaggingRunner{}
	srv := NewServer(zap.NewNop(), flagged, 50)
	sent := make(chan string, 1)
	srv.Notifier = notifierFunc(func(_ context.Context, title, text string) error {
		sent <- text
		return nil
	})
	ts := httptest.NewServer(srv.Router(Options{}))
	defer ts.Close()

	postJSON(t, ts.URL+"/check-urls", `{"urls":["https://evil.example"]}`, nil)
	select {
	case text := <-sent:
		if !strings.Contains(text, "https://evil.example") {
			t.Fatalf("alert text wrong: %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no alert sent")
	}
}

type flaggingRunner struct{}

func (flaggingRunner) CheckAll(_ context.Context, urls []string) ([]domain.CheckResult, error) {
	out := make([]domain.CheckResult, len(urls))
	for i, u := range urls {
		out[i] = domain.CheckResult{URL: u, Reputation: &domain.ReputationResult{Verdict: &domain.Reputation{Malicious: 4}}}
	}
	return out, nil
}

func TestHealth(t *testing.T) {
	ts := setupRouter(t, &recordingRunner{}, Options{APIKeys: []string{"k"}})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health must not need a key, got %d", resp.StatusCode)
	}
	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["status"] != "OK" {
		t.Fatalf("status wrong: %v", body)
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"]); err != nil {
		t.Fatalf("timestamp not RFC3339: %q", body["timestamp"])
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	ts := setupRouter(t, &recordingRunner{}, Options{})
	resp, err := http.Get(ts.URL + "/geoip/1.2.3.4")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		t.Fatalf("want JSON 404, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if msg := decodeError(t, resp); msg != "endpoint not found" {
		t.Fatalf("message wrong: %q", msg)
	}
}

type panicRunner struct{}

func (panicRunner) CheckAll(context.Context, []string) ([]domain.CheckResult, error) {
	panic("unexpected")
}

func TestPanicIsJSON500(t *testing.T) {
	ts := setupRouter(t, panicRunner{}, Options{})
	resp := postJSON(t, ts.URL+"/check-urls", `{"urls":["https://a.example"]}`, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", resp.StatusCode)
	}
	if msg := decodeError(t, resp); msg != "internal server error" {
		t.Fatalf("message wrong: %q", msg)
	}
}

func TestCORS_Preflight(t *testing.T) {
	ts := setupRouter(t, &recordingRunner{}, Options{AllowedOrigins: []string{"https://ui.example"}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/check-urls", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://ui.example" {
		t.Fatalf("allow-origin wrong: %q", got)
	}
}
