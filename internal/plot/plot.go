package plot

import (
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"nyfed-stress/internal/storage"
)

const bandSigma = 2.0

// RenderSeriesPNG draws one series with its baseline mean and ±2σ bands and
// highlights the latest point. The baseline excludes the latest observation,
// matching the stress engine's definition.
func RenderSeriesPNG(path, label string, rows []storage.Observation) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(rows))
	values := make([]float64, len(rows))
	for i, row := range rows {
		x[i] = row.Date
		values[i] = row.Value
	}

	baseline := values
	if len(values) > 1 {
		baseline = values[:len(values)-1]
	}
	mu, sd := meanStddev(baseline)

	series := []chart.Series{
		chart.TimeSeries{
			Name:    label,
			XValues: x,
			YValues: values,
		},
		constantSeries("mean", x, mu, chart.Style{
			StrokeColor:     drawing.ColorFromHex("888888"),
			StrokeDashArray: []float64{5.0, 5.0},
			StrokeWidth:     1.0,
		}),
	}

	if !math.IsNaN(sd) && sd > 0 {
		bandStyle := chart.Style{
			StrokeColor:     drawing.ColorFromHex("bbbbbb"),
			StrokeDashArray: []float64{2.0, 4.0},
			StrokeWidth:     1.0,
		}
		series = append(series,
			constantSeries("+2s", x, mu+bandSigma*sd, bandStyle),
			constantSeries("-2s", x, mu-bandSigma*sd, bandStyle),
		)
	}

	series = append(series, chart.TimeSeries{
		Name:    "latest",
		XValues: x[len(x)-1:],
		YValues: values[len(values)-1:],
		Style: chart.Style{
			StrokeWidth: chart.Disabled,
			DotWidth:    5.0,
			DotColor:    drawing.ColorRed,
		},
	})

	graph := chart.Chart{
		Title:  label,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func constantSeries(name string, x []time.Time, y float64, style chart.Style) chart.TimeSeries {
	values := make([]float64, len(x))
	for i := range values {
		values[i] = y
	}
	return chart.TimeSeries{Name: name, XValues: x, YValues: values, Style: style}
}

func meanStddev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mu := sum / float64(len(values))

	if len(values) <= 2 {
		return mu, math.NaN()
	}
	sq := 0.0
	for _, v := range values {
		d := v - mu
		sq += d * d
	}
	return mu, math.Sqrt(sq / float64(len(values)-1))
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
