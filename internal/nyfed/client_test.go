package nyfed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(baseURL string) *Client {
	return New(Options{BaseURL: baseURL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseDataset(t *testing.T) {
	cases := map[string]Dataset{
		"reference_rates":              DatasetReferenceRates,
		"rates":                        DatasetReferenceRates,
		" Repo_Reverse_Repo ":          DatasetRepoReverseRepo,
		"rp":                           DatasetRepoReverseRepo,
		"central_bank_liquidity_swaps": DatasetLiquiditySwaps,
		"CBLS":                         DatasetLiquiditySwaps,
	}
	for name, want := range cases {
		got, err := ParseDataset(name)
		if err != nil {
			t.Fatalf("ParseDataset(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("ParseDataset(%q) = %q, want %q", name, got, want)
		}
	}

	if _, err := ParseDataset("treasuries"); err == nil {
		t.Fatal("unknown dataset should be rejected")
	}
}

func TestFetchUnsupportedDataset(t *testing.T) {
	c := newTestClient("http://127.0.0.1:0")

	_, err := c.Fetch(context.Background(), FetchSpec{Dataset: "treasuries", Key: "ALL"}, day("2024-01-01"), day("2024-01-31"))

	var unsupported *UnsupportedDatasetError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedDatasetError, got %v", err)
	}
	if unsupported.Dataset != "treasuries" {
		t.Fatalf("error should name the requested dataset, got %q", unsupported.Dataset)
	}
}

func TestReferenceRatesSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rates/all/search.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("startDate") != "2024-01-01" {
			t.Fatalf("missing startDate, got %q", r.URL.Query().Get("startDate"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"refRates": []map[string]any{
				{"type": "SOFR", "effectiveDate": "2024-01-03", "percentRate": "5.31"},
				{"type": "SOFR", "effectiveDate": "2024-01-02", "percentRate": "5.30"},
				{"type": "EFFR", "effectiveDate": "2024-01-02", "percentRate": "5.33"},
				{"type": "SOFR", "effectiveDate": "2024-01-04", "percentRate": "."},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetReferenceRates, Key: "sofr"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 SOFR points (placeholder row dropped), got %d", len(points))
	}
	if !points[0].Date.Equal(day("2024-01-02")) || !points[1].Date.Equal(day("2024-01-03")) {
		t.Fatalf("points should be ascending by date: %+v", points)
	}
	if points[0].Value != 5.30 {
		t.Fatalf("expected 5.30, got %f", points[0].Value)
	}
}

func TestReferenceRatesFallbackToLatest(t *testing.T) {
	latestCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rates/all/search.json":
			w.WriteHeader(http.StatusInternalServerError)
		case "/rates/all/latest.json":
			latestCalled = true
			_ = json.NewEncoder(w).Encode(map[string]any{
				"refRates": []map[string]any{
					{"type": "SOFR", "effectiveDate": "2024-01-15", "percentRate": 5.32},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetReferenceRates, Key: "SOFR"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fallback should succeed, got %v", err)
	}
	if !latestCalled {
		t.Fatal("latest endpoint should have been attempted after the 500")
	}
	if len(points) != 1 || points[0].Value != 5.32 {
		t.Fatalf("expected the latest-only row, got %+v", points)
	}
}

func TestReferenceRatesBothEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetReferenceRates, Key: "SOFR"}, day("2024-01-01"), day("2024-01-31"))

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.Dataset != DatasetReferenceRates {
		t.Fatalf("FetchError should carry the dataset, got %q", fetchErr.Dataset)
	}
}

func TestReferenceRatesFieldPriority(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"refRates": []map[string]any{
				{"type": "SOFR", "effectiveDate": "2024-01-02", "percentRate": "1.5", "average30day": "9.9"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetReferenceRates, Key: "ALL"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 1 || points[0].Value != 1.5 {
		t.Fatalf("percentRate should win over average30day, got %+v", points)
	}
}

func TestRepoReverseRepoSummation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rp/rpops/search.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"repo": map[string]any{
				"operations": []map[string]any{
					{"operationDate": "2024-01-02", "totalAmtAccepted": "10.0"},
					{"operationDate": "2024-01-02", "totalAmtAccepted": "15.0"},
				},
			},
			"reverseRepo": map[string]any{
				"operations": []map[string]any{
					{"operationDate": "2024-01-02", "totalAmtAccepted": "5.0"},
					{"operationDate": "2024-01-03", "totalAmtAccepted": "7.0"},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetRepoReverseRepo, Key: "ALL"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(points) != 2 {
		t.Fatalf("expected 2 daily totals, got %+v", points)
	}
	if points[0].Value != 30.0 {
		t.Fatalf("same-date operations should sum across both sides for ALL, got %f", points[0].Value)
	}
	if points[1].Value != 7.0 {
		t.Fatalf("expected 7.0 for 2024-01-03, got %f", points[1].Value)
	}
}

func TestRepoKeySelectsSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"repo": map[string]any{
				"operations": []map[string]any{
					{"operationDate": "2024-01-02", "totalAmtAccepted": "10.0"},
				},
			},
			"reverseRepo": map[string]any{
				"operations": []map[string]any{
					{"operationDate": "2024-01-02", "totalAmtAccepted": "5.0"},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetRepoReverseRepo, Key: "RRP_TOTAL"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 1 || points[0].Value != 5.0 {
		t.Fatalf("RRP_TOTAL should select only the reverse repo side, got %+v", points)
	}

	points, err = c.Fetch(context.Background(), FetchSpec{Dataset: DatasetRepoReverseRepo, Key: "REPO_TOTAL"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 1 || points[0].Value != 10.0 {
		t.Fatalf("REPO_TOTAL should select only the repo side, got %+v", points)
	}
}

func TestRepoFallbackChain(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/rp/all/all/results/lastTwoWeeks.json" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"repo": map[string]any{
					"operations": []map[string]any{
						{"operationDate": "2024-01-02", "amount": 12.0},
					},
				},
			})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetRepoReverseRepo, Key: "ALL"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("third candidate should have served the request: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected all three candidates attempted in order, got %v", paths)
	}
	if len(points) != 1 || points[0].Value != 12.0 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestRepoAllEndpointsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetRepoReverseRepo, Key: "ALL"}, day("2024-01-01"), day("2024-01-31"))

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("all-candidates failure should propagate a FetchError, got %v", err)
	}
}

func TestLiquiditySwapsNestedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Rows buried at different depths, deliberately out of date order.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"fxSwaps": map[string]any{
				"results": map[string]any{
					"operations": []map[string]any{
						{"counterparty": "ECB", "operationDate": "2024-01-05", "amount": "3,000"},
						{"counterparty": "ECB", "operationDate": "2024-01-03", "amount": "1,000"},
					},
				},
				"other": []map[string]any{
					{"counterparty": "BOJ", "operationDate": "2024-01-04", "amount": "2000"},
				},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)

	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetLiquiditySwaps, Key: "ecb"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("key filter should keep only ECB rows, got %+v", points)
	}
	if !points[0].Date.Equal(day("2024-01-03")) {
		t.Fatalf("scan-order rows must be re-sorted by date, got %+v", points)
	}
	if points[0].Value != 1000 || points[1].Value != 3000 {
		t.Fatalf("thousands separators should be stripped, got %+v", points)
	}

	points, err = c.Fetch(context.Background(), FetchSpec{Dataset: DatasetLiquiditySwaps, Key: "ALL"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("ALL should keep every counterparty, got %+v", points)
	}
}

func TestLiquiditySwapsFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fxs/all/results/search.json" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if r.URL.Path != "/fxs/usdollar/last/14.json" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"type": "USD", "operationDate": "2024-01-10", "value": 42.0},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetLiquiditySwaps, Key: "USD"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if len(points) != 1 || points[0].Value != 42.0 {
		t.Fatalf("unexpected points: %+v", points)
	}
}

func TestFetchWindowBoundsEnforced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"refRates": []map[string]any{
				{"type": "SOFR", "effectiveDate": "2023-12-31", "percentRate": "5.1"},
				{"type": "SOFR", "effectiveDate": "2024-01-02", "percentRate": "5.2"},
				{"type": "SOFR", "effectiveDate": "2024-02-01", "percentRate": "5.3"},
			},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	points, err := c.Fetch(context.Background(), FetchSpec{Dataset: DatasetReferenceRates, Key: "SOFR"}, day("2024-01-01"), day("2024-01-31"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 1 || !points[0].Date.Equal(day("2024-01-02")) {
		t.Fatalf("rows outside [start,end] must be dropped, got %+v", points)
	}
}
