package nyfed

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Placeholder texts the upstream uses for "no value".
var floatPlaceholders = map[string]struct{}{
	"":     {},
	".":    {},
	"null": {},
	"None": {},
}

// coerceDate tries the given field names in order and returns the first that
// parses as an ISO calendar date. Only the first 10 characters are considered,
// so timestamps with a time-of-day suffix truncate to their date.
func coerceDate(row map[string]any, keys []string) (time.Time, bool) {
	for _, key := range keys {
		raw, ok := row[key]
		if !ok || raw == nil {
			continue
		}
		txt, ok := raw.(string)
		if !ok || txt == "" {
			continue
		}
		if len(txt) > 10 {
			txt = txt[:10]
		}
		if d, err := time.Parse(dateLayout, txt); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

// coerceFloat tries the given field names in order and returns the first
// parseable number. Text values are trimmed, thousands-separators stripped,
// and the upstream's null placeholders rejected. A failed parse moves on to
// the next candidate field rather than erroring.
func coerceFloat(row map[string]any, keys []string) (float64, bool) {
	for _, key := range keys {
		raw, ok := row[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return v, true
		case string:
			txt := strings.TrimSpace(v)
			if _, skip := floatPlaceholders[txt]; skip {
				continue
			}
			txt = strings.ReplaceAll(txt, ",", "")
			if f, err := strconv.ParseFloat(txt, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// maxWalkDepth bounds the recursive payload scan; the swaps payload shape is
// not contractually fixed.
const maxWalkDepth = 12

// extractRows collects every JSON array whose elements are all objects,
// scanning the payload tree recursively. Collection order is scan order, not
// date order, so callers must sort the final result.
func extractRows(node any) []map[string]any {
	var rows []map[string]any
	walkRows(node, 0, &rows)
	return rows
}

func walkRows(node any, depth int, rows *[]map[string]any) {
	if depth > maxWalkDepth {
		return
	}
	switch v := node.(type) {
	case []any:
		if len(v) > 0 && allObjects(v) {
			for _, item := range v {
				*rows = append(*rows, item.(map[string]any))
			}
		}
		for _, item := range v {
			walkRows(item, depth+1, rows)
		}
	case map[string]any:
		for _, value := range v {
			walkRows(value, depth+1, rows)
		}
	}
}

func allObjects(items []any) bool {
	for _, item := range items {
		if _, ok := item.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func sortByDate(points []Point) {
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
}

func inRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}
