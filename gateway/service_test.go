package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/proxy"
	"github.com/PeterFile/hyphae-platform/registry"
)

type stubAdapter struct {
	name   string
	agents []hyphae.UnifiedAgent
	err    error
	calls  atomic.Int32
	probes atomic.Int32
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Search(_ context.Context, query string, _ hyphae.SearchFilters) ([]hyphae.UnifiedAgent, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]hyphae.UnifiedAgent, len(s.agents))
	copy(out, s.agents)
	return out, nil
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
	s.probes.Add(1)
	status := http.StatusOK
	latency := int64(12)
	return hyphae.AvailabilityResult{IsOnline: true, LastChecked: time.Now(), LatencyMs: &latency, StatusCode: &status}
}

func agent(t *testing.T, provider, id, url string, cents int64) hyphae.UnifiedAgent {
	t.Helper()
	a, err := hyphae.NewUnifiedAgent(provider, id, hyphae.Endpoint{URL: url, Method: hyphae.MethodGET})
	if err != nil {
		t.Fatal(err)
	}
	a.Name = id
	a.Pricing.AmountUSDCCents = cents
	return *a
}

func allowAll(string) error { return nil }

func newService(t *testing.T, validator func(string) error, adapters ...*stubAdapter) *Service {
	t.Helper()
	reg := registry.New(registry.WithTimeout(time.Second))
	for _, a := range adapters {
		if err := reg.Register(a); err != nil {
			t.Fatal(err)
		}
	}
	var opts []proxy.Option
	if validator != nil {
		opts = append(opts, proxy.WithTargetValidator(validator))
	}
	px, err := proxy.New(reg, opts...)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(reg, px)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestSearch_PagesFromCache(t *testing.T) {
	stub := &stubAdapter{name: "alpha"}
	for _, id := range []string{"a", "b", "c"} {
		stub.agents = append(stub.agents, agent(t, "alpha", id, "https://example.com/"+id, 1))
	}
	svc := newService(t, allowAll, stub)

	first, err := svc.Search(context.Background(), hyphae.SearchFilters{PageSize: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if first.Total != 3 || len(first.Results) != 2 {
		t.Fatalf("page 1: total=%d len=%d", first.Total, len(first.Results))
	}

	second, err := svc.Search(context.Background(), hyphae.SearchFilters{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(second.Results) != 1 || second.Results[0].ID != "alpha:c" {
		t.Errorf("page 2 = %+v", second.Results)
	}
	if n := stub.calls.Load(); n != 1 {
		t.Errorf("adapter called %d times, want 1", n)
	}
}

func TestSearch_PartialResultsNotCached(t *testing.T) {
	good := &stubAdapter{name: "good", agents: []hyphae.UnifiedAgent{}}
	good.agents = append(good.agents, agent(t, "good", "x", "https://example.com/x", 5))
	bad := &stubAdapter{name: "bad", err: errors.New("boom")}
	svc := newService(t, allowAll, good, bad)

	for i := 0; i < 2; i++ {
		res, err := svc.Search(context.Background(), hyphae.SearchFilters{})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(res.Results) != 1 || len(res.Errors) != 1 {
			t.Fatalf("results=%d errors=%d", len(res.Results), len(res.Errors))
		}
		if res.Errors[0].Type != hyphae.ProviderErrorAdapter {
			t.Errorf("error type = %s", res.Errors[0].Type)
		}
	}
	if n := good.calls.Load(); n != 2 {
		t.Errorf("good adapter called %d times, want 2", n)
	}
}

func TestSearch_InvalidFilters(t *testing.T) {
	svc := newService(t, allowAll, &stubAdapter{name: "alpha"})

	lo, hi := int64(10), int64(5)
	tests := []hyphae.SearchFilters{
		{Sort: "cheapest"},
		{MinPrice: &lo, MaxPrice: &hi},
		{Providers: []string{"nobody"}},
	}
	for _, f := range tests {
		_, err := svc.Search(context.Background(), f)
		if hyphae.CodeOf(err) != hyphae.ErrCodeInvalidRequest {
			t.Errorf("filters %+v: got %v", f, err)
		}
	}
}

func TestSearch_AvailabilitySortProbes(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer live.Close()
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	stub := &stubAdapter{name: "alpha"}
	stub.agents = append(stub.agents,
		agent(t, "alpha", "dead", deadURL, 1),
		agent(t, "alpha", "live", live.URL, 2),
	)
	svc := newService(t, allowAll, stub)

	res, err := svc.Search(context.Background(), hyphae.SearchFilters{Sort: hyphae.SortAvailability})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d", len(res.Results))
	}
	if res.Results[0].OriginalID != "live" || !res.Results[0].Availability.IsOnline {
		t.Errorf("first = %+v", res.Results[0])
	}
	if res.Results[1].Availability.IsOnline || res.Results[1].Availability.StatusCode != nil {
		t.Errorf("dead endpoint availability = %+v", res.Results[1].Availability)
	}
}

func TestSearch_ProbeSkipsBlockedTargets(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	stub := &stubAdapter{name: "alpha"}
	stub.agents = append(stub.agents, agent(t, "alpha", "internal", server.URL, 1))
	// nil validator keeps the default SSRF guard, which rejects 127.0.0.1.
	svc := newService(t, nil, stub)

	res, err := svc.Search(context.Background(), hyphae.SearchFilters{Sort: hyphae.SortAvailability})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Results[0].Availability.IsOnline {
		t.Error("blocked target reported online")
	}
	if hits.Load() != 0 {
		t.Errorf("blocked target received %d requests", hits.Load())
	}
}

func TestAvailability(t *testing.T) {
	stub := &stubAdapter{name: "alpha"}
	stub.agents = append(stub.agents,
		agent(t, "alpha", "public", "https://api.example.com/run", 1),
		agent(t, "alpha", "private", "http://10.0.0.5/run", 1),
	)
	svc := newService(t, nil, stub)

	res, err := svc.Availability(context.Background(), "alpha:public")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if !res.IsOnline || stub.probes.Load() != 1 {
		t.Errorf("result = %+v, probes = %d", res, stub.probes.Load())
	}

	_, err = svc.Availability(context.Background(), "alpha:private")
	if hyphae.CodeOf(err) != hyphae.ErrCodeSSRFBlocked {
		t.Errorf("private target: got %v", err)
	}
	if stub.probes.Load() != 1 {
		t.Errorf("private target was probed")
	}

	_, err = svc.Availability(context.Background(), "alpha:missing")
	if hyphae.CodeOf(err) != hyphae.ErrCodeAgentNotFound {
		t.Errorf("missing agent: got %v", err)
	}
}

func TestAgent(t *testing.T) {
	stub := &stubAdapter{name: "alpha"}
	stub.agents = append(stub.agents, agent(t, "alpha", "one", "https://example.com", 3))
	svc := newService(t, allowAll, stub)

	got, err := svc.Agent(context.Background(), "alpha:one")
	if err != nil {
		t.Fatalf("Agent: %v", err)
	}
	if got.Pricing.AmountUSDCCents != 3 {
		t.Errorf("agent = %+v", got)
	}

	tests := map[string]hyphae.ErrorCode{
		"alpha:two": hyphae.ErrCodeAgentNotFound,
		"beta:one":  hyphae.ErrCodeAgentNotFound,
		"nocolon":   hyphae.ErrCodeInvalidRequest,
	}
	for id, want := range tests {
		if _, err := svc.Agent(context.Background(), id); hyphae.CodeOf(err) != want {
			t.Errorf("Agent(%q) = %v, want %s", id, err, want)
		}
	}
}

func TestInvoke(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo":"` + r.URL.Query().Get("msg") + `"}`))
	}))
	defer server.Close()

	stub := &stubAdapter{name: "alpha"}
	stub.agents = append(stub.agents, agent(t, "alpha", "echo", server.URL, 0))
	svc := newService(t, allowAll, stub)

	resp, err := svc.Invoke(context.Background(), &proxy.InvokeRequest{
		ID:    "alpha:echo",
		Input: []byte(`{"msg":"hi"}`),
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d", resp.Status)
	}
	raw, ok := resp.Body.(json.RawMessage)
	if !ok || string(raw) != `{"echo":"hi"}` {
		t.Errorf("body = %#v", resp.Body)
	}
}

func TestPageKeyIgnoresPagingAndCase(t *testing.T) {
	a := hyphae.SearchFilters{Query: "Weather  API", Providers: []string{"b", "A"}, Page: 1, PageSize: 10}
	b := hyphae.SearchFilters{Query: "weather api", Providers: []string{"a", "B"}, Page: 3, PageSize: 50}
	if pageKey(a) != pageKey(b) {
		t.Errorf("keys differ:\n%s\n%s", pageKey(a), pageKey(b))
	}
	c := b
	c.Sort = hyphae.SortPriceAsc
	if pageKey(b) == pageKey(c) {
		t.Error("sort mode must be part of the key")
	}
}
