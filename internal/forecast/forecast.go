// Package forecast turns raw weather samples into per-day maxima and selects
// the days hot enough to justify a weather leave.
package forecast

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Jules02/NLQ-Agent/internal/domain"
)

// ErrInvalidDateRange is returned when a range starts after it ends.
var ErrInvalidDateRange = errors.New("invalid date range")

// AggregateDailyMax groups samples by calendar date and keeps the highest
// temperature seen for each date. Sample order and spacing do not matter.
func AggregateDailyMax(samples []domain.ForecastSample) domain.DailyMaxForecast {
	daily := make(domain.DailyMaxForecast)
	for _, s := range samples {
		day := s.Timestamp.Format(domain.DateLayout)
		if current, ok := daily[day]; !ok || s.TemperatureC > current {
			daily[day] = s.TemperatureC
		}
	}
	return daily
}

// QualifyingDays returns the days in [start, end] whose maximum reaches threshold,
// oldest first. Days missing from daily (past the forecast horizon) are skipped.
func QualifyingDays(daily domain.DailyMaxForecast, start, end time.Time, threshold float64) ([]domain.QualifyingDay, error) {
	from := start.Format(domain.DateLayout)
	to := end.Format(domain.DateLayout)
	if from > to {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidDateRange, from, to)
	}
	days := []domain.QualifyingDay{}
	for day, maxTemp := range daily {
		if day < from || day > to {
			continue
		}
		if maxTemp >= threshold {
			days = append(days, domain.QualifyingDay{Date: day, MaxTemperatureC: maxTemp})
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseRange parses both ends of a date range and checks their order.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	from, err := ParseDate(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := ParseDate(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %s is after %s", ErrInvalidDateRange, start, end)
	}
	return from, to, nil
}
