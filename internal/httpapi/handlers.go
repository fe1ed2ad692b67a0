package httpapi

import (
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"nyfed-stress/internal/plot"
	"nyfed-stress/internal/stress"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500

	minLookbackDays = 30
	maxLookbackDays = 5000
)

type observationJSON struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type seriesResponse struct {
	SeriesID     string            `json:"series_id"`
	Start        string            `json:"start"`
	End          string            `json:"end"`
	Observations []observationJSON `json:"observations"`
}

type alertJSON struct {
	AlertTS  string `json:"alert_ts"`
	SeriesID string `json:"series_id"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}

type stressResultJSON struct {
	SeriesID    string   `json:"series_id"`
	LatestValue float64  `json:"latest_value"`
	Z           *float64 `json:"z"`
	Pctile      *float64 `json:"pctile"`
	Delta7dPct  *float64 `json:"delta_7d_pct"`
	Score       float64  `json:"score"`
	Triggered   bool     `json:"triggered"`
	Reasons     []string `json:"reasons"`
}

func (s *Server) listSeries(c echo.Context) error {
	ids, err := s.store.ListSeriesIDs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]string{"series_ids": ids})
}

func (s *Server) getSeries(c echo.Context) error {
	seriesID := c.Param("id")
	today := time.Now().UTC().Truncate(24 * time.Hour)

	start, err := parseDateParam(c.QueryParam("start"), today.AddDate(0, 0, -365))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid start date")
	}
	end, err := parseDateParam(c.QueryParam("end"), today)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid end date")
	}

	obs, err := s.store.LoadRange(c.Request().Context(), seriesID, start, end)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(obs) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "series not found or empty")
	}

	out := seriesResponse{
		SeriesID:     seriesID,
		Start:        start.Format("2006-01-02"),
		End:          end.Format("2006-01-02"),
		Observations: make([]observationJSON, len(obs)),
	}
	for i, o := range obs {
		out.Observations[i] = observationJSON{Date: o.Date.Format("2006-01-02"), Value: o.Value}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getAlerts(c echo.Context) error {
	limit := defaultAlertLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = parsed
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}

	alerts, err := s.alerts.ListRecentAlerts(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	out := make([]alertJSON, len(alerts))
	for i, a := range alerts {
		out[i] = alertJSON{
			AlertTS:  a.AlertTS.UTC().Format(time.RFC3339),
			SeriesID: a.SeriesID,
			Level:    a.Level,
			Message:  a.Message,
		}
	}
	return c.JSON(http.StatusOK, map[string][]alertJSON{"alerts": out})
}

func (s *Server) latestStress(c echo.Context) error {
	lookback, err := lookbackParam(c.QueryParam("lookback_days"), s.cfg.Monitor.LookbackDays)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lookback_days")
	}

	results, err := s.svc.ComputeAll(c.Request().Context(), lookback)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	systemScore := 0.0
	out := make([]stressResultJSON, len(results))
	for i, res := range results {
		if res.Score > systemScore {
			systemScore = res.Score
		}
		out[i] = toStressJSON(res)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"asof":         time.Now().UTC().Format("2006-01-02"),
		"system_score": systemScore,
		"results":      out,
	})
}

func (s *Server) plotSeries(c echo.Context) error {
	file := c.Param("file")
	seriesID := strings.TrimSuffix(file, ".png")
	if seriesID == file || seriesID == "" {
		return echo.NewHTTPError(http.StatusNotFound, "plot not found")
	}

	lookback, err := lookbackParam(c.QueryParam("lookback_days"), s.cfg.Monitor.LookbackDays)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lookback_days")
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -(lookback + 10))

	obs, err := s.store.LoadRange(c.Request().Context(), seriesID, start, today)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if len(obs) < s.cfg.Monitor.MinHistory {
		return echo.NewHTTPError(http.StatusNotFound, "not enough data to plot")
	}

	dir, err := os.MkdirTemp("", "nyfed-stress-plot")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, seriesID+".png")
	if err := plot.RenderSeriesPNG(path, seriesID, obs); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	png, err := os.ReadFile(path)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func toStressJSON(res stress.Result) stressResultJSON {
	reasons := res.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return stressResultJSON{
		SeriesID:    res.SeriesID,
		LatestValue: res.LatestValue,
		Z:           nanToNull(res.Z),
		Pctile:      nanToNull(res.Pctile),
		Delta7dPct:  nanToNull(res.Delta7dPct),
		Score:       res.Score,
		Triggered:   res.Triggered,
		Reasons:     reasons,
	}
}

// nanToNull maps undefined statistics to JSON null; encoding/json rejects NaN.
func nanToNull(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func parseDateParam(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	return time.Parse("2006-01-02", raw)
}

func lookbackParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if parsed < minLookbackDays {
		parsed = minLookbackDays
	}
	if parsed > maxLookbackDays {
		parsed = maxLookbackDays
	}
	return parsed, nil
}
