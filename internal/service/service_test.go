package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"nyfed-stress/internal/alerting"
	"nyfed-stress/internal/config"
	"nyfed-stress/internal/nyfed"
	"nyfed-stress/internal/storage"
)

type fakeStore struct {
	obs       map[string][]storage.Observation
	alerts    []storage.AlertRecord
	upsertErr error
	alertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{obs: make(map[string][]storage.Observation)}
}

func (f *fakeStore) UpsertObservations(_ context.Context, seriesID string, rows []storage.Observation) (int, error) {
	if f.upsertErr != nil {
		return 0, f.upsertErr
	}
	for _, row := range rows {
		replaced := false
		for i, existing := range f.obs[seriesID] {
			if existing.Date.Equal(row.Date) {
				f.obs[seriesID][i] = row
				replaced = true
				break
			}
		}
		if !replaced {
			f.obs[seriesID] = append(f.obs[seriesID], row)
		}
	}
	sort.Slice(f.obs[seriesID], func(i, j int) bool {
		return f.obs[seriesID][i].Date.Before(f.obs[seriesID][j].Date)
	})
	return len(rows), nil
}

func (f *fakeStore) LoadRange(_ context.Context, seriesID string, start, end time.Time) ([]storage.Observation, error) {
	out := make([]storage.Observation, 0)
	for _, o := range f.obs[seriesID] {
		if !o.Date.Before(start) && !o.Date.After(end) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestDate(_ context.Context, seriesID string) (time.Time, bool, error) {
	rows := f.obs[seriesID]
	if len(rows) == 0 {
		return time.Time{}, false, nil
	}
	return rows[len(rows)-1].Date, true, nil
}

func (f *fakeStore) ListSeriesIDs(context.Context) ([]string, error) {
	ids := make([]string, 0, len(f.obs))
	for id := range f.obs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) InsertAlert(_ context.Context, ts time.Time, seriesID, level, message string) error {
	if f.alertErr != nil {
		return f.alertErr
	}
	f.alerts = append(f.alerts, storage.AlertRecord{AlertTS: ts, SeriesID: seriesID, Level: level, Message: message})
	return nil
}

func (f *fakeStore) ListRecentAlerts(_ context.Context, limit int) ([]storage.AlertRecord, error) {
	if limit > len(f.alerts) {
		limit = len(f.alerts)
	}
	return f.alerts[len(f.alerts)-limit:], nil
}

type fakeClient struct {
	points map[string][]nyfed.Point
	errs   map[string]error
	starts map[string]time.Time
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		points: make(map[string][]nyfed.Point),
		errs:   make(map[string]error),
		starts: make(map[string]time.Time),
	}
}

func (f *fakeClient) Fetch(_ context.Context, spec nyfed.FetchSpec, start, _ time.Time) ([]nyfed.Point, error) {
	f.starts[spec.Key] = start
	if err := f.errs[spec.Key]; err != nil {
		return nil, err
	}
	return f.points[spec.Key], nil
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return nil
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func testConfig(series ...config.SeriesConfig) *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{
			LookbackDays: 30,
			MinHistory:   10,
			AlertScore:   30,
		},
		Stress: config.StressConfig{
			Weights: config.WeightsConfig{ZComponent: 0.6, PctileComponent: 0.2, DeltaComponent: 0.2},
		},
		Series: series,
	}
}

func sofrSeries() config.SeriesConfig {
	return config.SeriesConfig{
		ID:    "sofr",
		Label: "SOFR",
		Fetch: config.FetchConfig{Dataset: "reference_rates", Key: "SOFR"},
	}
}

func newTestService(cfg *config.Config, client *fakeClient, store *fakeStore, notifier alerting.Notifier) *Service {
	svc := New(cfg, client, store, store, notifier, zerolog.Nop())
	svc.SetPlotFunc(nil)
	svc.SetClock(func() time.Time { return day("2024-03-01") })
	return svc
}

// seedFlat stores count observations of the given value ending the day before
// asOf.
func seedFlat(store *fakeStore, seriesID string, count int, value float64, lastDate time.Time) {
	for i := count - 1; i >= 0; i-- {
		store.obs[seriesID] = append(store.obs[seriesID], storage.Observation{
			Date:  lastDate.AddDate(0, 0, -i),
			Value: value,
		})
	}
}

func TestRunOnceIncrementalFetchWindow(t *testing.T) {
	store := newFakeStore()
	seedFlat(store, "sofr", 15, 5.3, day("2024-02-27"))

	client := newFakeClient()
	svc := newTestService(testConfig(sofrSeries()), client, store, nil)

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	want := day("2024-02-28")
	if !client.starts["SOFR"].Equal(want) {
		t.Fatalf("fetch should start the day after the latest stored date, got %v want %v", client.starts["SOFR"], want)
	}
}

func TestRunOnceEmptySeriesFetchesFullBaseline(t *testing.T) {
	store := newFakeStore()
	client := newFakeClient()
	svc := newTestService(testConfig(sofrSeries()), client, store, nil)

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	// lookback 30 + 10 padding days before asOf.
	want := day("2024-03-01").AddDate(0, 0, -40)
	if !client.starts["SOFR"].Equal(want) {
		t.Fatalf("empty series should fetch from the full baseline start, got %v want %v", client.starts["SOFR"], want)
	}
}

func TestRunOnceFetchFailureIsolatesSeries(t *testing.T) {
	store := newFakeStore()
	seedFlat(store, "rrp", 12, 100, day("2024-02-29"))

	client := newFakeClient()
	client.errs["SOFR"] = &nyfed.FetchError{Dataset: nyfed.DatasetReferenceRates, Err: errors.New("upstream down")}

	rrp := config.SeriesConfig{ID: "rrp", Label: "RRP", Fetch: config.FetchConfig{Dataset: "repo_reverse_repo", Key: "RRP_TOTAL"}}
	svc := newTestService(testConfig(sofrSeries(), rrp), client, store, nil)

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("a failed fetch must not abort the pass: %v", err)
	}
	if _, attempted := client.starts["RRP_TOTAL"]; !attempted {
		t.Fatal("the second series should still be processed")
	}
}

func TestRunOnceMinHistoryGate(t *testing.T) {
	store := newFakeStore()
	seedFlat(store, "sofr", 9, 5.3, day("2024-02-29"))

	client := newFakeClient()
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(sofrSeries()), client, store, notifier)

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(store.alerts) != 0 {
		t.Fatal("a series with 9 observations must not be scored")
	}

	// One more observation reaches the minimum and scoring proceeds.
	seedFlat(store, "sofr2", 10, 5.3, day("2024-02-29"))
	sofr2 := sofrSeries()
	sofr2.ID = "sofr2"
	svc = newTestService(testConfig(sofr2), client, store, notifier)
	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("scoring with exactly 10 observations should not error: %v", err)
	}
}

func TestRunOnceTriggerInsertsAlertAndNotifies(t *testing.T) {
	store := newFakeStore()
	// Flat baseline then a big spike: pctile and delta paths trigger.
	seedFlat(store, "sofr", 14, 100, day("2024-02-28"))
	store.obs["sofr"] = append(store.obs["sofr"], storage.Observation{Date: day("2024-02-29"), Value: 500})

	client := newFakeClient()
	notifier := &recordingNotifier{}
	svc := newTestService(testConfig(sofrSeries()), client, store, notifier)

	score, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}

	if len(store.alerts) != 1 {
		t.Fatalf("expected 1 alert row, got %d", len(store.alerts))
	}
	alert := store.alerts[0]
	if alert.SeriesID != "sofr" || alert.Level != "ALERT" {
		t.Fatalf("unexpected alert row: %+v", alert)
	}
	if !strings.Contains(alert.Message, "reasons:") {
		t.Fatalf("alert message should carry the trigger reasons, got %q", alert.Message)
	}

	// Series alert plus the system score alert. With an undefined z the
	// pctile and delta components each contribute 0.2: score = 40.
	if len(notifier.notes) != 2 {
		t.Fatalf("expected series + system notifications, got %d", len(notifier.notes))
	}
	if score < 39.9 || score > 40.1 {
		t.Fatalf("expected a system score of 40, got %f", score)
	}
}

func TestRunOnceAlertInsertFailureAbortsPass(t *testing.T) {
	store := newFakeStore()
	seedFlat(store, "sofr", 14, 100, day("2024-02-28"))
	store.obs["sofr"] = append(store.obs["sofr"], storage.Observation{Date: day("2024-02-29"), Value: 500})
	store.alertErr = &storage.StorageError{Op: "insert alert", Err: errors.New("connection lost")}

	client := newFakeClient()
	svc := newTestService(testConfig(sofrSeries()), client, store, nil)

	if _, err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("a failed alert write must surface, not vanish")
	}
}

func TestRunOnceUpsertFailureAbortsPass(t *testing.T) {
	store := newFakeStore()
	store.upsertErr = &storage.StorageError{Op: "upsert observations", Err: errors.New("connection lost")}

	client := newFakeClient()
	client.points["SOFR"] = []nyfed.Point{{Date: day("2024-02-29"), Value: 5.3}}

	svc := newTestService(testConfig(sofrSeries()), client, store, nil)

	_, err := svc.RunOnce(context.Background())
	var storageErr *storage.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("storage failures should propagate as StorageError, got %v", err)
	}
}

func TestComputeAllSkipsShortSeries(t *testing.T) {
	store := newFakeStore()
	seedFlat(store, "sofr", 12, 5.3, day("2024-02-29"))
	seedFlat(store, "rrp", 5, 100, day("2024-02-29"))

	rrp := config.SeriesConfig{ID: "rrp", Fetch: config.FetchConfig{Dataset: "repo_reverse_repo", Key: "ALL"}}
	svc := newTestService(testConfig(sofrSeries(), rrp), newFakeClient(), store, nil)

	results, err := svc.ComputeAll(context.Background(), 30)
	if err != nil {
		t.Fatalf("compute all: %v", err)
	}
	if len(results) != 1 || results[0].SeriesID != "sofr" {
		t.Fatalf("only the series with enough history should be scored, got %+v", results)
	}
}
