package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/gateway"
	"github.com/PeterFile/hyphae-platform/proxy"
	"github.com/PeterFile/hyphae-platform/registry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAdapter struct {
	name   string
	agents []hyphae.UnifiedAgent
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Search(context.Context, string, hyphae.SearchFilters) ([]hyphae.UnifiedAgent, error) {
	return append([]hyphae.UnifiedAgent(nil), s.agents...), nil
}

func (s *stubAdapter) GetByID(_ context.Context, originalID string) (*hyphae.UnifiedAgent, error) {
	for _, a := range s.agents {
		if a.OriginalID == originalID {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (s *stubAdapter) CheckAvailability(context.Context, string) hyphae.AvailabilityResult {
	status := http.StatusOK
	return hyphae.AvailabilityResult{IsOnline: true, StatusCode: &status}
}

func newAgent(t *testing.T, id, endpoint string, cents int64) hyphae.UnifiedAgent {
	t.Helper()
	a, err := hyphae.NewUnifiedAgent("stub", id, hyphae.Endpoint{URL: endpoint})
	if err != nil {
		t.Fatal(err)
	}
	a.Name = id
	a.Pricing.AmountUSDCCents = cents
	return *a
}

// newTestServer wires a full stack over one stub adapter. When allowLoopback
// is set the SSRF guard is replaced so httptest upstreams are reachable.
func newTestServer(t *testing.T, allowLoopback bool, agents ...hyphae.UnifiedAgent) http.Handler {
	t.Helper()
	reg := registry.New().MustRegister(&stubAdapter{name: "stub", agents: agents})

	var opts []proxy.Option
	if allowLoopback {
		opts = append(opts, proxy.WithTargetValidator(func(string) error { return nil }))
	}
	px, err := proxy.New(reg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := gateway.New(reg, px)
	if err != nil {
		t.Fatal(err)
	}
	return New(svc, WithMaxBodyBytes(1024)).Handler()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Status    string   `json:"status"`
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || len(body.Providers) != 1 || body.Providers[0] != "stub" {
		t.Errorf("body = %+v", body)
	}
	if rec.Header().Get(HeaderRequestID) == "" {
		t.Error("missing request id header")
	}
}

func TestRequestIDReused(t *testing.T) {
	h := newTestServer(t, false)
	id := "0b6f7c4e-9d1a-4c55-8f3e-2a7b9c1d0e4f"

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != id {
		t.Errorf("request id = %q, want %q", got, id)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid\nInjected: 1")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); strings.Contains(got, "Injected") {
		t.Errorf("request id echoed untrusted value %q", got)
	}
}

func TestSearch(t *testing.T) {
	h := newTestServer(t, false,
		newAgent(t, "pricey", "https://example.com/a", 500),
		newAgent(t, "cheap", "https://example.com/b", 5),
		newAgent(t, "free", "https://example.com/c", 0),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?sort=price_asc&maxPrice=100&pageSize=1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res hyphae.SearchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || len(res.Results) != 1 {
		t.Fatalf("total=%d len=%d", res.Total, len(res.Results))
	}
	if res.Results[0].ID != "stub:free" {
		t.Errorf("first = %s", res.Results[0].ID)
	}
	if res.Errors == nil {
		t.Error("errors must serialise as an empty list")
	}
}

func TestSearch_PageBeyondResults(t *testing.T) {
	h := newTestServer(t, false, newAgent(t, "only", "https://example.com/a", 5))

	for _, page := range []int{2, math.MaxInt / 2, math.MaxInt} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?page="+strconv.Itoa(page), nil))
		if rec.Code != http.StatusOK {
			t.Errorf("page=%d: status = %d: %s", page, rec.Code, rec.Body.String())
			continue
		}
		var res hyphae.SearchResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Total != 1 || len(res.Results) != 0 || res.Page != page {
			t.Errorf("page=%d: total=%d len=%d page=%d", page, res.Total, len(res.Results), res.Page)
		}
	}
}

func TestSearch_BadParams(t *testing.T) {
	h := newTestServer(t, false)

	for _, query := range []string{
		"minPrice=abc",
		"maxPrice=-1",
		"page=0",
		"pageSize=x",
		"sort=random",
		"minPrice=10&maxPrice=1",
		"provider=unknown",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", query, rec.Code)
			continue
		}
		if code := decodeError(t, rec).Code; code != hyphae.ErrCodeInvalidRequest {
			t.Errorf("%s: code = %s", query, code)
		}
	}
}

func TestParseFilters(t *testing.T) {
	q, _ := url.ParseQuery("q=weather&provider=coinbase,payai&provider=thirdweb&category=data&minPrice=1&page=2")
	f, err := ParseFilters(q)
	if err != nil {
		t.Fatalf("ParseFilters: %v", err)
	}
	if f.Query != "weather" || f.Category != "data" || f.Page != 2 {
		t.Errorf("filters = %+v", f)
	}
	if len(f.Providers) != 3 || f.Providers[2] != "thirdweb" {
		t.Errorf("providers = %v", f.Providers)
	}
	if f.MinPrice == nil || *f.MinPrice != 1 || f.MaxPrice != nil {
		t.Errorf("price bounds = %v %v", f.MinPrice, f.MaxPrice)
	}
	if f.Sort != hyphae.SortRelevance || f.PageSize != hyphae.DefaultPageSize {
		t.Errorf("defaults not applied: %+v", f)
	}
}

func TestAgentRoutes(t *testing.T) {
	h := newTestServer(t, false,
		newAgent(t, "public", "https://api.example.com/run", 1),
		newAgent(t, "internal", "http://192.168.1.10/run", 1),
	)

	tests := []struct {
		path   string
		status int
		code   hyphae.ErrorCode
	}{
		{"/api/agents/stub:public", http.StatusOK, ""},
		{"/api/agents/stub:missing", http.StatusNotFound, hyphae.ErrCodeAgentNotFound},
		{"/api/agents/nocolon", http.StatusBadRequest, hyphae.ErrCodeInvalidRequest},
		{"/api/agents/stub:public/availability", http.StatusOK, ""},
		{"/api/agents/stub:internal/availability", http.StatusForbidden, hyphae.ErrCodeSSRFBlocked},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf("%s: status = %d, want %d (%s)", tt.path, rec.Code, tt.status, rec.Body.String())
			continue
		}
		if tt.code != "" {
			if code := decodeError(t, rec).Code; code != tt.code {
				t.Errorf("%s: code = %s, want %s", tt.path, code, tt.code)
			}
		}
	}
}

func TestInvoke_Relays402(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-PAYMENT") != "" {
			w.Header().Set("X-PAYMENT-RESPONSE", "settled")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"x402Version":1,"accepts":[]}`))
	}))
	defer upstream.Close()

	h := newTestServer(t, true, newAgent(t, "paid", upstream.URL, 1))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoke", strings.NewReader(`{"id":"stub:paid","input":{}}`)))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("unpaid: status = %d: %s", rec.Code, rec.Body.String())
	}

	body := `{"id":"stub:paid","input":{},"payment":{"header":"X-PAYMENT","value":"token"}}`
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoke", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("paid: status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-PAYMENT-RESPONSE") != "settled" {
		t.Errorf("settlement header not relayed")
	}
	var resp struct {
		Status int             `json:"status"`
		Body   json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != `{"ok":true}` {
		t.Errorf("envelope = %d %s", resp.Status, resp.Body)
	}
}

func TestInvoke_BodilessStatus(t *testing.T) {
	for _, status := range []int{http.StatusNoContent, http.StatusNotModified} {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("PAYMENT-RESPONSE", "settled")
			w.WriteHeader(status)
		}))

		h := newTestServer(t, true, newAgent(t, "quiet", upstream.URL, 1))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoke", strings.NewReader(`{"id":"stub:quiet"}`)))
		upstream.Close()

		if rec.Code != status {
			t.Errorf("status = %d; want %d", rec.Code, status)
		}
		if rec.Header().Get("PAYMENT-RESPONSE") != "settled" {
			t.Errorf("%d: settlement header not relayed", status)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("%d: body = %q; want empty", status, rec.Body.String())
		}
	}
}

func TestInvoke_Rejections(t *testing.T) {
	h := newTestServer(t, false, newAgent(t, "internal", "http://127.0.0.1:9/run", 1))

	tests := []struct {
		name   string
		body   string
		status int
		code   hyphae.ErrorCode
	}{
		{"ssrf", `{"id":"stub:internal"}`, http.StatusForbidden, hyphae.ErrCodeSSRFBlocked},
		{"too large", `{"id":"stub:internal","input":{"x":"` + strings.Repeat("a", 2048) + `"}}`, http.StatusRequestEntityTooLarge, hyphae.ErrCodeBodyTooLarge},
		{"bad header", `{"id":"stub:internal","payment":{"header":"Cookie","value":"x"}}`, http.StatusBadRequest, hyphae.ErrCodeUnsupportedPaymentHeader},
		{"missing agent", `{"id":"stub:nope"}`, http.StatusNotFound, hyphae.ErrCodeAgentNotFound},
		{"malformed", `{`, http.StatusBadRequest, hyphae.ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/invoke", strings.NewReader(tt.body)))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body.String())
			}
			if code := decodeError(t, rec).Code; code != tt.code {
				t.Errorf("code = %s, want %s", code, tt.code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, false)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hyphae_http_requests_total") {
		t.Error("metrics output missing hyphae_http_requests_total")
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[hyphae.ErrorCode]int{
		hyphae.ErrCodeInvalidRequest:           400,
		hyphae.ErrCodeAgentNotFound:            404,
		hyphae.ErrCodeSSRFBlocked:              403,
		hyphae.ErrCodeBodyTooLarge:             413,
		hyphae.ErrCodeUnsupportedPaymentHeader: 400,
		hyphae.ErrCodeUpstreamTimeout:          504,
		hyphae.ErrCodeUpstreamUnreachable:      502,
		hyphae.ErrCodeUpstreamTooLarge:         502,
		"SOMETHING_ELSE":                       500,
	}
	for code, want := range tests {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}
