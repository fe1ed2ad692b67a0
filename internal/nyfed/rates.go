package nyfed

import (
	"context"
	"net/url"
	"time"
)

// Field priority orders for the reference rates payload. First present and
// parseable wins.
var (
	refRateDateFields  = []string{"effectiveDate", "date"}
	refRateValueFields = []string{"percentRate", "value", "index", "average30day", "average90day", "average180day"}
)

type refRatesPayload struct {
	RefRates []map[string]any `json:"refRates"`
}

// fetchReferenceRates pulls /rates/all/search.json for the requested window
// and falls back to /rates/all/latest.json on any transport or status
// failure. The latest endpoint ignores the window, so the fallback result may
// cover a narrower range than requested.
func (c *Client) fetchReferenceRates(ctx context.Context, spec FetchSpec, start, end time.Time) ([]Point, error) {
	params := url.Values{}
	params.Set("startDate", start.Format(dateLayout))
	params.Set("endDate", end.Format(dateLayout))

	var payload refRatesPayload
	if err := c.getJSON(ctx, "/rates/all/search.json", params, &payload); err != nil {
		c.logger.Debug().Err(err).Msg("rates search failed, falling back to latest")

		payload = refRatesPayload{}
		if fallbackErr := c.getJSON(ctx, "/rates/all/latest.json", nil, &payload); fallbackErr != nil {
			return nil, &FetchError{Dataset: DatasetReferenceRates, Err: fallbackErr}
		}
	}

	target := targetKey(spec.Key)
	out := make([]Point, 0, len(payload.RefRates))
	seen := make(map[time.Time]struct{})
	for _, row := range payload.RefRates {
		rowType := targetKey(stringField(row, "type"))
		if target != "" && target != "ALL" && rowType != target {
			continue
		}

		d, ok := coerceDate(row, refRateDateFields)
		if !ok || !inRange(d, start, end) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}

		v, ok := coerceFloat(row, refRateValueFields)
		if !ok {
			continue
		}

		seen[d] = struct{}{}
		out = append(out, Point{Date: d, Value: v})
	}

	sortByDate(out)
	return out, nil
}

func stringField(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}
