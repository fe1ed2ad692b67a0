package nyfed

import (
	"context"
	"net/url"
	"time"
)

// Field priority orders for central bank liquidity swaps. The payload shape
// for this product is not contractually fixed, so the identifying key is
// taken from whichever field is present first.
var (
	swapKeyFields   = []string{"type", "series", "seriesId", "metric", "counterparty"}
	swapDateFields  = []string{"operationDate", "effectiveDate", "date", "asOfDate"}
	swapValueFields = []string{"value", "amount", "total", "outstanding", "usdAmount", "dollarAmount", "totalAmtAccepted", "totalAmtSubmitted"}
)

// fetchLiquiditySwaps tries the dated fxs search, then the last-14
// observations fallback. Rows are recovered from the arbitrarily nested
// payload by a bounded recursive scan, so the final sort by date is
// mandatory.
func (c *Client) fetchLiquiditySwaps(ctx context.Context, spec FetchSpec, start, end time.Time) ([]Point, error) {
	params := url.Values{}
	params.Set("startDate", start.Format(dateLayout))
	params.Set("endDate", end.Format(dateLayout))

	candidates := []struct {
		path   string
		params url.Values
	}{
		{"/fxs/all/results/search.json", params},
		{"/fxs/usdollar/last/14.json", nil},
	}

	var payload any
	var lastErr error
	fetched := false
	for _, candidate := range candidates {
		payload = nil
		if err := c.getJSON(ctx, candidate.path, candidate.params, &payload); err != nil {
			lastErr = err
			c.logger.Debug().Err(err).Str("path", candidate.path).Msg("fxs endpoint failed, trying next")
			continue
		}
		fetched = true
		break
	}
	if !fetched {
		return nil, &FetchError{Dataset: DatasetLiquiditySwaps, Err: lastErr}
	}

	rows := extractRows(payload)
	target := targetKey(spec.Key)
	out := make([]Point, 0, len(rows))
	seen := make(map[time.Time]struct{})
	for _, row := range rows {
		rowKey := targetKey(firstStringField(row, swapKeyFields))
		if target != "" && target != "ALL" && rowKey != "" && rowKey != target {
			continue
		}

		d, ok := coerceDate(row, swapDateFields)
		if !ok || !inRange(d, start, end) {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}

		v, ok := coerceFloat(row, swapValueFields)
		if !ok {
			continue
		}

		seen[d] = struct{}{}
		out = append(out, Point{Date: d, Value: v})
	}

	sortByDate(out)
	return out, nil
}

func firstStringField(row map[string]any, keys []string) string {
	for _, key := range keys {
		if s, ok := row[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
