package nyfed

import (
	"context"
	"net/url"
	"time"
)

// Field priority orders for repo/reverse-repo operations. Accepted-total
// variants come before submitted-total variants before generic amounts.
var (
	repoDateFields   = []string{"operationDate", "effectiveDate", "date"}
	repoAmountFields = []string{"totalAmtAccepted", "totalAcceptedAmt", "totalAmtSubmitted", "acceptedAmount", "amount", "value"}
)

type repoPayload struct {
	Repo        repoOperations `json:"repo"`
	ReverseRepo repoOperations `json:"reverseRepo"`
}

type repoOperations struct {
	Operations []map[string]any `json:"operations"`
}

// fetchRepoReverseRepo tries the dated rpops search, then the two
// last-two-weeks endpoints, using the first that responds. The requested key
// selects which side contributes; multiple operations on one date are summed
// because this dataset represents daily operation totals.
func (c *Client) fetchRepoReverseRepo(ctx context.Context, spec FetchSpec, start, end time.Time) ([]Point, error) {
	params := url.Values{}
	params.Set("startDate", start.Format(dateLayout))
	params.Set("endDate", end.Format(dateLayout))

	candidates := []struct {
		path   string
		params url.Values
	}{
		{"/rp/rpops/search.json", params},
		{"/rp/rpops/lastTwoWeeks.json", nil},
		{"/rp/all/all/results/lastTwoWeeks.json", nil},
	}

	var payload repoPayload
	var lastErr error
	fetched := false
	for _, candidate := range candidates {
		payload = repoPayload{}
		if err := c.getJSON(ctx, candidate.path, candidate.params, &payload); err != nil {
			lastErr = err
			c.logger.Debug().Err(err).Str("path", candidate.path).Msg("repo endpoint failed, trying next")
			continue
		}
		fetched = true
		break
	}
	if !fetched {
		return nil, &FetchError{Dataset: DatasetRepoReverseRepo, Err: lastErr}
	}

	target := targetKey(spec.Key)
	includeRepo := target == "" || target == "ALL" || target == "REPO_TOTAL" || target == "REPO_TOTAL_ACCEPTED"
	includeRRP := target == "ALL" || target == "RRP_TOTAL" || target == "RRP_TOTAL_ACCEPTED" || target == "REVERSE_REPO_TOTAL"

	totals := make(map[time.Time]float64)
	if includeRepo {
		accumulateOperations(totals, payload.Repo.Operations, start, end)
	}
	if includeRRP {
		accumulateOperations(totals, payload.ReverseRepo.Operations, start, end)
	}

	out := make([]Point, 0, len(totals))
	for d, v := range totals {
		out = append(out, Point{Date: d, Value: v})
	}
	sortByDate(out)
	return out, nil
}

func accumulateOperations(totals map[time.Time]float64, rows []map[string]any, start, end time.Time) {
	for _, row := range rows {
		d, ok := coerceDate(row, repoDateFields)
		if !ok || !inRange(d, start, end) {
			continue
		}
		v, ok := coerceFloat(row, repoAmountFields)
		if !ok {
			continue
		}
		totals[d] += v
	}
}
