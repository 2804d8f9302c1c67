// Package series restores the chronological order of the boiler's
// consumption history buffers.
//
// The firmware keeps each history as a fixed array indexed by hour, day or
// month. Reconstruct rotates that array around the current wall-clock anchor
// so the result reads most-recent-first.
package series

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tejusbharadwaj/nbeconnect/internal/models"
)

// ErrDataQuality is returned when a history string cannot be parsed
var ErrDataQuality = errors.New("consumption data quality error")

// Parse turns a raw "v1,v2,..." value (optionally prefixed with "key=") into
// numbers. A single malformed or non-finite token fails the whole parse.
func Parse(raw string) ([]float64, error) {
	if _, rest, ok := strings.Cut(raw, "="); ok {
		raw = rest
	}

	var values []float64
	for i, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: token %d %q: %v", ErrDataQuality, i, token, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: token %d %q is not finite", ErrDataQuality, i, token)
		}
		values = append(values, v)
	}
	return values, nil
}

// Reconstruct parses raw and reorders it for the given period using anchor
// as the current time. On error the returned series is empty.
func Reconstruct(raw string, kind models.PeriodKind, anchor time.Time) (models.ConsumptionSeries, error) {
	out := models.ConsumptionSeries{
		Period:        kind,
		ExpectedCount: kind.ExpectedCount(),
		Values:        []float64{},
	}

	values, err := Parse(raw)
	if err != nil {
		out.Stats = Summarize(out.Values)
		return out, err
	}

	ordered, err := reorder(values, kind, anchor)
	if err != nil {
		out.Stats = Summarize(out.Values)
		return out, err
	}

	if ordered != nil {
		out.Values = ordered
	}
	out.Stats = Summarize(ordered)
	return out, nil
}

func reorder(values []float64, kind models.PeriodKind, anchor time.Time) ([]float64, error) {
	switch kind {
	case models.PeriodHourly:
		return rotateBack(values, 24, anchor.Hour())
	case models.PeriodDaily:
		return Daily(values, anchor.Day()), nil
	case models.PeriodMonthly:
		return rotateBack(values, 12, int(anchor.Month())-1)
	case models.PeriodYearly:
		// The yearly slot layout is unverified on current firmware, so the
		// buffer is passed through untouched.
		return append([]float64(nil), values...), nil
	default:
		return nil, fmt.Errorf("unknown period kind %q", kind)
	}
}

// rotateBack emits values[(current - i) mod n] for i in [0, n)
func rotateBack(values []float64, n, current int) ([]float64, error) {
	if len(values) < n {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrDataQuality, n, len(values))
	}
	result := make([]float64, n)
	for i := 0; i < n; i++ {
		result[i] = values[((current-i)%n+n)%n]
	}
	return result, nil
}

// Hourly reorders a 24 slot buffer to most-recent-hour-first
func Hourly(values []float64, currentHour int) ([]float64, error) {
	return rotateBack(values, 24, currentHour)
}

// Monthly reorders a 12 slot buffer to most-recent-month-first.
// currentMonth is 1-based.
func Monthly(values []float64, currentMonth int) ([]float64, error) {
	return rotateBack(values, 12, currentMonth-1)
}

// Daily splits the buffer at currentDay and reverses both halves, giving the
// days of this month newest first followed by the tail of the prior month.
func Daily(values []float64, currentDay int) []float64 {
	split := currentDay
	if split > len(values) {
		split = len(values)
	}
	if split < 0 {
		split = 0
	}

	result := make([]float64, 0, len(values))
	for i := split - 1; i >= 0; i-- {
		result = append(result, values[i])
	}
	for i := len(values) - 1; i >= split; i-- {
		result = append(result, values[i])
	}
	return result
}

// Summarize computes the rounded statistics of values.
// Average is 0 and Max/Min are nil for an empty slice.
func Summarize(values []float64) models.SeriesStats {
	stats := models.SeriesStats{Count: len(values)}
	if len(values) == 0 {
		return stats
	}

	sum := 0.0
	maxV, minV := values[0], values[0]
	for _, v := range values {
		sum += v
		maxV = math.Max(maxV, v)
		minV = math.Min(minV, v)
	}

	maxR, minR := round2(maxV), round2(minV)
	stats.Sum = round2(sum)
	stats.Average = round2(sum / float64(len(values)))
	stats.Max = &maxR
	stats.Min = &minR
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
