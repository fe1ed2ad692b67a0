package nyfed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Dataset identifies one supported NY Fed Markets API product. The set is
// closed: ParseDataset rejects anything else at FetchSpec construction.
type Dataset string

const (
	DatasetReferenceRates  Dataset = "reference_rates"
	DatasetRepoReverseRepo Dataset = "repo_reverse_repo"
	DatasetLiquiditySwaps  Dataset = "central_bank_liquidity_swaps"
)

// SupportedDatasets lists every dataset Fetch accepts.
var SupportedDatasets = []Dataset{
	DatasetReferenceRates,
	DatasetRepoReverseRepo,
	DatasetLiquiditySwaps,
}

// ParseDataset normalises a configured dataset name into a Dataset tag.
// Short aliases from the upstream API path families are accepted.
func ParseDataset(name string) (Dataset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "reference_rates", "rates":
		return DatasetReferenceRates, nil
	case "repo_reverse_repo", "rp":
		return DatasetRepoReverseRepo, nil
	case "central_bank_liquidity_swaps", "cbls":
		return DatasetLiquiditySwaps, nil
	}
	return "", &UnsupportedDatasetError{Dataset: name}
}

// FetchSpec names what to pull: a dataset plus a series key within it.
// Key "ALL" (or empty, for the repo dataset) selects everything.
type FetchSpec struct {
	Dataset Dataset
	Key     string
}

// NewFetchSpec validates the dataset name and builds a spec.
func NewFetchSpec(dataset, key string) (FetchSpec, error) {
	d, err := ParseDataset(dataset)
	if err != nil {
		return FetchSpec{}, err
	}
	return FetchSpec{Dataset: d, Key: key}, nil
}

// UnsupportedDatasetError reports a dataset name outside the supported set.
type UnsupportedDatasetError struct {
	Dataset string
}

func (e *UnsupportedDatasetError) Error() string {
	names := make([]string, len(SupportedDatasets))
	for i, d := range SupportedDatasets {
		names[i] = string(d)
	}
	return fmt.Sprintf("unsupported NY Fed dataset %q (supported: %s)", e.Dataset, strings.Join(names, ", "))
}

// FetchError reports that every endpoint in a dataset's fallback chain
// failed. It carries the last attempt's error.
type FetchError struct {
	Dataset Dataset
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("nyfed: fetch %s: %v", e.Dataset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Point is one normalised (date, value) pair returned by Fetch.
type Point struct {
	Date  time.Time
	Value float64
}

// SeriesFetcher retrieves a normalised series window from the upstream API.
type SeriesFetcher interface {
	Fetch(ctx context.Context, spec FetchSpec, start, end time.Time) ([]Point, error)
}

// Options parameterise the NY Fed client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the NY Fed Markets API and normalises the three structurally
// different payload shapes into ordered (date, value) sequences.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// New constructs a NY Fed client.
func New(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://markets.newyorkfed.org/api"
	}

	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "nyfed_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Fetch returns the chronologically ordered, deduplicated series window for
// the spec, strictly within [start, end]. Endpoint fallbacks inside a dataset
// are tried in priority order; only the last attempt's failure propagates,
// wrapped in *FetchError. Individual malformed records are skipped, never
// errors.
//
// A fallback endpoint that ignores the requested window ("latest", "last two
// weeks", "last 14") can yield a narrower range than asked for; no explicit
// partial-result flag is returned.
func (c *Client) Fetch(ctx context.Context, spec FetchSpec, start, end time.Time) ([]Point, error) {
	switch spec.Dataset {
	case DatasetReferenceRates:
		return c.fetchReferenceRates(ctx, spec, start, end)
	case DatasetRepoReverseRepo:
		return c.fetchRepoReverseRepo(ctx, spec, start, end)
	case DatasetLiquiditySwaps:
		return c.fetchLiquiditySwaps(ctx, spec, start, end)
	}
	return nil, &UnsupportedDatasetError{Dataset: string(spec.Dataset)}
}

// getJSON performs one GET and decodes the body. Non-2xx statuses are errors.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "nyfed-stress/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpStatusError(resp.StatusCode, payload)
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func httpStatusError(status int, payload []byte) error {
	body := strings.TrimSpace(string(payload))
	if len(body) > 200 {
		body = body[:200]
	}
	if body != "" {
		return fmt.Errorf("nyfed api error (%d): %s", status, body)
	}
	return fmt.Errorf("nyfed api error (%d)", status)
}

func targetKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

var _ SeriesFetcher = (*Client)(nil)
