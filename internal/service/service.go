package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nyfed-stress/internal/alerting"
	"nyfed-stress/internal/config"
	"nyfed-stress/internal/nyfed"
	"nyfed-stress/internal/plot"
	"nyfed-stress/internal/storage"
	"nyfed-stress/internal/stress"
)

// Baseline windows reach a little further back than the configured lookback
// so the 7-period delta has history to lean on at the window edge.
const baselinePadDays = 10

const alertLevel = "ALERT"

// PlotFunc renders one series window to a PNG file.
type PlotFunc func(path, label string, rows []storage.Observation) error

// Service orchestrates the per-series fetch, upsert, and scoring cycle.
type Service struct {
	cfg        *config.Config
	client     nyfed.SeriesFetcher
	store      storage.ObservationStore
	alertStore storage.AlertStore
	notifier   alerting.Notifier
	renderPlot PlotFunc
	logger     zerolog.Logger
	now        func() time.Time
}

// New constructs the monitoring service.
func New(cfg *config.Config, client nyfed.SeriesFetcher, store storage.ObservationStore, alertStore storage.AlertStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		client:     client,
		store:      store,
		alertStore: alertStore,
		notifier:   notifier,
		renderPlot: plot.RenderSeriesPNG,
		logger:     logger.With().Str("component", "service").Logger(),
		now:        time.Now,
	}
}

// RunOnce executes one ingestion pass over every configured series: fetch the
// missing window, upsert it, score the full baseline window, and alert on
// triggers. A failed fetch isolates that series; a storage failure aborts the
// pass. Returns the system score (max over series).
func (s *Service) RunOnce(ctx context.Context) (float64, error) {
	today := dateOnly(s.now().UTC())
	baselineStart := today.AddDate(0, 0, -(s.cfg.Monitor.LookbackDays + baselinePadDays))

	systemScore := 0.0
	triggeredSeries := 0

	for _, series := range s.cfg.Series {
		res, scored, err := s.processSeries(ctx, series, baselineStart, today)
		if err != nil {
			return systemScore, err
		}
		if !scored {
			continue
		}

		if res.Score > systemScore {
			systemScore = res.Score
		}
		if res.Triggered {
			triggeredSeries++
		}
	}

	s.logger.Info().
		Float64("system_score", systemScore).
		Int("triggered", triggeredSeries).
		Int("series", len(s.cfg.Series)).
		Msg("ingestion pass complete")

	if systemScore >= s.cfg.Monitor.AlertScore && s.notifier != nil {
		note := alerting.Notification{
			AlertTS: s.now().UTC(),
			Title:   "SYSTEM STRESS SCORE ALERT",
			Message: fmt.Sprintf("system_score=%.1f >= %.1f", systemScore, s.cfg.Monitor.AlertScore),
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch system score alert")
		}
	}

	return systemScore, nil
}

// processSeries runs the fetch-upsert-score cycle for one series. The second
// return value reports whether the series produced a stress result; a nil
// error with scored=false means the series was skipped (fetch failure or too
// little history). A non-nil error is a storage failure and aborts the pass.
func (s *Service) processSeries(ctx context.Context, series config.SeriesConfig, baselineStart, today time.Time) (stress.Result, bool, error) {
	logger := s.logger.With().Str("series_id", series.ID).Logger()

	spec, err := series.Fetch.Spec()
	if err != nil {
		// Config validation rejects bad datasets up front; reaching this
		// means the config was built programmatically. Skip, don't abort.
		logger.Error().Err(err).Msg("invalid fetch spec")
		return stress.Result{}, false, nil
	}

	last, found, err := s.store.LatestDate(ctx, series.ID)
	if err != nil {
		return stress.Result{}, false, fmt.Errorf("latest date for %s: %w", series.ID, err)
	}

	// Incremental ingestion: only fetch what's missing.
	fetchStart := baselineStart
	if found {
		next := last.AddDate(0, 0, 1)
		if next.After(fetchStart) {
			fetchStart = next
		}
	}

	if !fetchStart.After(today) {
		points, fetchErr := s.client.Fetch(ctx, spec, fetchStart, today)
		if fetchErr != nil {
			// One bad series must not halt the run.
			logger.Warn().Err(fetchErr).Msg("fetch failed, skipping series this pass")
			return stress.Result{}, false, nil
		}
		if len(points) > 0 {
			rows := make([]storage.Observation, len(points))
			for i, p := range points {
				rows[i] = storage.Observation{Date: p.Date, Value: p.Value}
			}
			written, upsertErr := s.store.UpsertObservations(ctx, series.ID, rows)
			if upsertErr != nil {
				return stress.Result{}, false, fmt.Errorf("upsert %s: %w", series.ID, upsertErr)
			}
			logger.Debug().Int("rows", written).Msg("fresh observations stored")
		}
	}

	obs, err := s.store.LoadRange(ctx, series.ID, baselineStart, today)
	if err != nil {
		return stress.Result{}, false, fmt.Errorf("load range for %s: %w", series.ID, err)
	}
	if len(obs) < s.cfg.Monitor.MinHistory {
		logger.Debug().Int("points", len(obs)).Int("min", s.cfg.Monitor.MinHistory).Msg("not enough history to score")
		return stress.Result{}, false, nil
	}

	values := make([]float64, len(obs))
	for i, o := range obs {
		values[i] = o.Value
	}

	res := stress.Compute(series.ID, values, thresholds(series.Triggers), weights(s.cfg.Stress.Weights))

	logger.Info().
		Float64("latest", res.LatestValue).
		Float64("score", res.Score).
		Bool("triggered", res.Triggered).
		Msg("series scored")

	if res.Triggered {
		if err := s.handleTrigger(ctx, series, obs, res, today); err != nil {
			return res, true, err
		}
	}

	return res, true, nil
}

func (s *Service) handleTrigger(ctx context.Context, series config.SeriesConfig, obs []storage.Observation, res stress.Result, today time.Time) error {
	logger := s.logger.With().Str("series_id", series.ID).Logger()

	plotPath := ""
	if s.cfg.Monitor.PlotsDir != "" && s.renderPlot != nil {
		plotPath = filepath.Join(s.cfg.Monitor.PlotsDir, fmt.Sprintf("%s_%s.png", series.ID, today.Format("2006-01-02")))
		if err := s.renderPlot(plotPath, seriesLabel(series), obs); err != nil {
			logger.Error().Err(err).Str("path", plotPath).Msg("failed to render alert plot")
			plotPath = ""
		}
	}

	msg := formatAlertMessage(series, res, plotPath)
	ts := s.now().UTC()

	if s.alertStore != nil {
		if err := s.alertStore.InsertAlert(ctx, ts, series.ID, alertLevel, msg); err != nil {
			// The alert log is the primary external signal; a failed write
			// aborts the pass rather than vanishing.
			return fmt.Errorf("insert alert for %s: %w", series.ID, err)
		}
	}

	if s.notifier != nil {
		note := alerting.Notification{
			AlertTS:  ts,
			SeriesID: series.ID,
			Label:    seriesLabel(series),
			Title:    "NYFed Stress Alert",
			Message:  msg,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			logger.Error().Err(err).Msg("failed to dispatch alert")
		}
	}

	return nil
}

// ComputeAll scores every configured series from stored data only, skipping
// series with less than the minimum history. Used by the read-side API.
func (s *Service) ComputeAll(ctx context.Context, lookbackDays int) ([]stress.Result, error) {
	if lookbackDays <= 0 {
		lookbackDays = s.cfg.Monitor.LookbackDays
	}
	today := dateOnly(s.now().UTC())
	start := today.AddDate(0, 0, -(lookbackDays + baselinePadDays))

	results := make([]stress.Result, 0, len(s.cfg.Series))
	for _, series := range s.cfg.Series {
		obs, err := s.store.LoadRange(ctx, series.ID, start, today)
		if err != nil {
			return nil, err
		}
		if len(obs) < s.cfg.Monitor.MinHistory {
			continue
		}
		values := make([]float64, len(obs))
		for i, o := range obs {
			values[i] = o.Value
		}
		results = append(results, stress.Compute(series.ID, values, thresholds(series.Triggers), weights(s.cfg.Stress.Weights)))
	}
	return results, nil
}

// SetPlotFunc overrides the plot renderer. Intended for tests.
func (s *Service) SetPlotFunc(fn PlotFunc) {
	s.renderPlot = fn
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func formatAlertMessage(series config.SeriesConfig, res stress.Result, plotPath string) string {
	builder := strings.Builder{}
	builder.WriteString(seriesLabel(series) + "\n")
	builder.WriteString(fmt.Sprintf("latest=%.4g  z=%.2f  pctile=%.3f  delta7d=%.1f%%\n",
		res.LatestValue, res.Z, res.Pctile, res.Delta7dPct))
	builder.WriteString("reasons: " + strings.Join(res.Reasons, ", "))
	if plotPath != "" {
		builder.WriteString("\nplot: " + plotPath)
	}
	return builder.String()
}

func seriesLabel(series config.SeriesConfig) string {
	if series.Label != "" {
		return series.Label
	}
	return series.ID
}

func thresholds(t config.TriggersConfig) stress.Thresholds {
	return stress.Thresholds{
		ZAbs:       t.ZAbs,
		Pctile:     t.Pctile,
		Delta7dPct: t.Delta7dPct,
	}
}

func weights(w config.WeightsConfig) stress.Weights {
	return stress.Weights{
		ZComponent:      w.ZComponent,
		PctileComponent: w.PctileComponent,
		DeltaComponent:  w.DeltaComponent,
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
