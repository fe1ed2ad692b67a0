package stress

import (
	"fmt"
	"math"
)

const (
	defaultZAbs       = 3.0
	defaultPctile     = 0.95
	defaultDelta7dPct = 50.0

	defaultZWeight      = 0.6
	defaultPctileWeight = 0.2
	defaultDeltaWeight  = 0.2
)

// Thresholds define the trigger levels for a single series.
// Zero-valued fields fall back to the package defaults.
type Thresholds struct {
	ZAbs       float64
	Pctile     float64
	Delta7dPct float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.ZAbs <= 0 {
		t.ZAbs = defaultZAbs
	}
	if t.Pctile <= 0 {
		t.Pctile = defaultPctile
	}
	if t.Delta7dPct <= 0 {
		t.Delta7dPct = defaultDelta7dPct
	}
	return t
}

// Weights blend the three signal components into the composite score.
// An all-zero value falls back to the 0.6/0.2/0.2 defaults.
type Weights struct {
	ZComponent      float64
	PctileComponent float64
	DeltaComponent  float64
}

func (w Weights) withDefaults() Weights {
	if w.ZComponent == 0 && w.PctileComponent == 0 && w.DeltaComponent == 0 {
		return Weights{
			ZComponent:      defaultZWeight,
			PctileComponent: defaultPctileWeight,
			DeltaComponent:  defaultDeltaWeight,
		}
	}
	return w
}

// Result carries the computed stress statistics for one series.
// Undefined statistics are NaN and never contribute to score or triggers.
type Result struct {
	SeriesID    string
	LatestValue float64
	Z           float64
	Pctile      float64
	Delta7dPct  float64
	Score       float64
	Triggered   bool
	Reasons     []string
}

// Compute scores an ordered oldest-to-newest value history.
// The baseline is every value except the latest (or the single value for a
// length-1 history) with NaN entries removed. Degenerate inputs produce NaN
// statistics, not errors: a zero-variance baseline yields an undefined z, an
// empty baseline an undefined percentile, and fewer than 8 points an undefined
// 7-period delta.
func Compute(seriesID string, values []float64, thresholds Thresholds, weights Weights) Result {
	thresholds = thresholds.withDefaults()
	weights = weights.withDefaults()

	latest := values[len(values)-1]

	baseline := values
	if len(values) > 1 {
		baseline = values[:len(values)-1]
	}
	baseline = dropNaN(baseline)

	mu := mean(baseline)
	sd := sampleStddev(baseline, mu)

	z := math.NaN()
	if !math.IsNaN(sd) && sd > 0 {
		z = (latest - mu) / sd
	}

	pctile := percentileOf(baseline, latest)

	delta7d := math.NaN()
	if len(values) >= 8 && values[len(values)-8] != 0 {
		prev := values[len(values)-8]
		delta7d = (latest - prev) / math.Abs(prev) * 100.0
	}

	zComponent := 0.0
	if !math.IsNaN(z) {
		zComponent = math.Min(1.0, math.Abs(z)/math.Max(0.001, thresholds.ZAbs))
	}

	pctComponent := 0.0
	if !math.IsNaN(pctile) {
		pctComponent = math.Max(0.0, (pctile-thresholds.Pctile)/(1.0-thresholds.Pctile))
	}

	deltaComponent := 0.0
	if !math.IsNaN(delta7d) {
		deltaComponent = math.Min(1.0, math.Abs(delta7d)/math.Max(1e-6, thresholds.Delta7dPct))
	}

	score := 100.0 * (weights.ZComponent*zComponent +
		weights.PctileComponent*pctComponent +
		weights.DeltaComponent*deltaComponent)

	var reasons []string
	triggered := false

	if !math.IsNaN(z) && math.Abs(z) >= thresholds.ZAbs {
		triggered = true
		reasons = append(reasons, fmt.Sprintf("|z|=%.3f >= %.3f", z, thresholds.ZAbs))
	}
	if !math.IsNaN(pctile) && pctile >= thresholds.Pctile {
		triggered = true
		reasons = append(reasons, fmt.Sprintf("pctile=%.3f >= %.3f", pctile, thresholds.Pctile))
	}
	if !math.IsNaN(delta7d) && math.Abs(delta7d) >= thresholds.Delta7dPct {
		triggered = true
		reasons = append(reasons, fmt.Sprintf("|delta7d|=%.1f%% >= %.1f%%", delta7d, thresholds.Delta7dPct))
	}

	return Result{
		SeriesID:    seriesID,
		LatestValue: latest,
		Z:           z,
		Pctile:      pctile,
		Delta7dPct:  delta7d,
		Score:       score,
		Triggered:   triggered,
		Reasons:     reasons,
	}
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleStddev is Bessel-corrected (divisor n-1) and requires more than two
// baseline points; anything shorter is treated as undefined variance.
func sampleStddev(values []float64, mu float64) float64 {
	if len(values) <= 2 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range values {
		d := v - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// percentileOf is the empirical CDF of the baseline evaluated at x.
func percentileOf(baseline []float64, x float64) float64 {
	if len(baseline) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range baseline {
		if v <= x {
			n++
		}
	}
	return float64(n) / float64(len(baseline))
}
