// Package report normalises activity rows and renders them as text or spreadsheets.
package report

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/Jules02/NLQ-Agent/internal/domain"
)

const (
	// NoActivityMessage is rendered instead of a report when there are no rows.
	NoActivityMessage = "No activity data found for the specified period."

	// MissingPlaceholder stands in for absent identifiers and dates.
	MissingPlaceholder = "N/A"

	ruleWidth = 50
)

// ActivityRow is a normalised activity entry ready for display.
type ActivityRow struct {
	Date     string  `json:"date"`
	ReportID string  `json:"report_id"`
	Hours    float64 `json:"hours"`
	Status   string  `json:"status"`
}

// FormatActivityData normalises raw query rows and sorts them most recent first.
func FormatActivityData(rows []map[string]any) ([]ActivityRow, error) {
	out := make([]ActivityRow, 0, len(rows))
	for i, row := range rows {
		hours, err := toHours(row["hours"])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, ActivityRow{
			Date:     toDate(row["date"]),
			ReportID: toIdentifier(row["report_id"]),
			Hours:    hours,
			Status:   capitalize(toText(row["status"])),
		})
	}
	sortByDateDesc(out)
	return out, nil
}

// FromEntries normalises typed activity entries the same way FormatActivityData does.
func FromEntries(entries []domain.ActivityEntry) []ActivityRow {
	out := make([]ActivityRow, 0, len(entries))
	for _, e := range entries {
		out = append(out, ActivityRow{
			Date:     toDate(e.Date),
			ReportID: toIdentifier(e.ReportID),
			Hours:    e.Hours,
			Status:   capitalize(e.Status),
		})
	}
	sortByDateDesc(out)
	return out
}

// FormatActivityReport renders rows, expected newest first, as a text report.
func FormatActivityReport(rows []ActivityRow) string {
	if len(rows) == 0 {
		return NoActivityMessage
	}
	var total float64
	for _, r := range rows {
		total += r.Hours
	}
	oldest, newest := period(rows)
	lines := []string{
		"📊 Activity Report",
		strings.Repeat("=", ruleWidth),
		fmt.Sprintf("Period: %s to %s", oldest, newest),
		fmt.Sprintf("Total Entries: %d", len(rows)),
		fmt.Sprintf("Total Hours: %.1f", total),
		strings.Repeat("-", ruleWidth),
	}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("📅 %s | ID: %s | Hours: %.1f | Status: %s", r.Date, r.ReportID, r.Hours, r.Status))
	}
	return strings.Join(lines, "\n")
}

// TotalHours sums the hours of all rows.
func TotalHours(rows []ActivityRow) float64 {
	var total float64
	for _, r := range rows {
		total += r.Hours
	}
	return total
}

// sortByDateDesc orders rows newest first; rows without a date go last.
func sortByDateDesc(rows []ActivityRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := rows[i].Date, rows[j].Date
		if di == MissingPlaceholder || dj == MissingPlaceholder {
			return dj == MissingPlaceholder && di != MissingPlaceholder
		}
		return di > dj
	})
}

// period returns the oldest and newest dates of rows sorted newest first,
// ignoring undated rows.
func period(rows []ActivityRow) (string, string) {
	oldest, newest := MissingPlaceholder, MissingPlaceholder
	for _, r := range rows {
		if r.Date == MissingPlaceholder {
			continue
		}
		if newest == MissingPlaceholder {
			newest = r.Date
		}
		oldest = r.Date
	}
	return oldest, newest
}

func toDate(v any) string {
	switch d := v.(type) {
	case nil:
		return MissingPlaceholder
	case time.Time:
		return d.Format(domain.DateLayout)
	case *time.Time:
		if d == nil {
			return MissingPlaceholder
		}
		return d.Format(domain.DateLayout)
	}
	s := strings.TrimSpace(toText(v))
	if s == "" {
		return MissingPlaceholder
	}
	if len(s) >= len(domain.DateLayout) {
		if _, err := time.Parse(domain.DateLayout, s[:len(domain.DateLayout)]); err == nil {
			return s[:len(domain.DateLayout)]
		}
	}
	return s
}

func toHours(v any) (float64, error) {
	switch h := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return h, nil
	case float32:
		return float64(h), nil
	case int:
		return float64(h), nil
	case int32:
		return float64(h), nil
	case int64:
		return float64(h), nil
	case uint64:
		return float64(h), nil
	case []byte:
		return parseHours(string(h))
	case string:
		return parseHours(h)
	default:
		return 0, fmt.Errorf("hours: unsupported value %v (%T)", v, v)
	}
}

func parseHours(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("hours: %q is not a number", s)
	}
	return f, nil
}

func toIdentifier(v any) string {
	s := strings.TrimSpace(toText(v))
	if s == "" {
		return MissingPlaceholder
	}
	return s
}

func toText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
