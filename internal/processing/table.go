package processing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/DeafMist/news-digest/internal/models"
)

// ErrBadTimestamp is returned when a timestamp matches none of the accepted layouts.
var ErrBadTimestamp = errors.New("unparseable timestamp")

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// NormalizeTimestamp drops a "+hh:mm" suffix and parses the remainder as a
// zone-less instant. The result carries the wall clock in UTC.
func NormalizeTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if i := strings.IndexByte(value, '+'); i >= 0 {
		value = value[:i]
	}
	value = strings.TrimSuffix(strings.TrimSuffix(value, "Z"), "z")

	for _, layout := range naiveLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}

	// negative offsets survive the split; keep their wall clock too
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return WallClock(ts), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, raw)
}

// WallClock re-labels the clock reading of ts as UTC.
func WallClock(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), ts.Second(), ts.Nanosecond(), time.UTC)
}

// SortedSources returns the source names of news in lexical order.
func SortedSources(news map[string][]models.Article) []string {
	names := make([]string, 0, len(news))
	for name := range news {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AssembleRows flattens news into document rows. Row indexes follow source
// order, then article order, and are assigned before incomplete articles are
// dropped. Strict mode turns an incomplete article or a bad timestamp into an error.
func AssembleRows(news map[string][]models.Article, strict bool) ([]models.DocumentRow, error) {
	rows := make([]models.DocumentRow, 0)
	index := 0
	for _, source := range SortedSources(news) {
		for i, article := range news[source] {
			pos := index
			index++

			if !article.Complete() {
				if strict {
					return nil, fmt.Errorf("source %s article %d: %w", source, i, article.Validate())
				}
				continue
			}

			date, err := NormalizeTimestamp(article.Timestamp)
			if err != nil {
				if strict {
					return nil, fmt.Errorf("source %s article %d: %w", source, i, err)
				}
				continue
			}

			rows = append(rows, models.DocumentRow{
				Index:    pos,
				Document: article.Title + " " + article.Text,
				Date:     date,
				Link:     article.FullLink,
				Title:    article.Title,
			})
		}
	}
	return rows, nil
}

// FilterByDate keeps rows dated within [start, end].
func FilterByDate(rows []models.DocumentRow, start, end time.Time) []models.DocumentRow {
	out := make([]models.DocumentRow, 0, len(rows))
	for _, row := range rows {
		if row.Date.Before(start) || row.Date.After(end) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Documents returns the document column.
func Documents(rows []models.DocumentRow) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		out[i] = row.Document
	}
	return out
}
