package series

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/nbeconnect/internal/models"
)

func seq(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func join(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return strings.Join(parts, ",")
}

func TestHourly(t *testing.T) {
	got, err := Hourly(seq(24), 5)
	require.NoError(t, err)

	want := []float64{5, 4, 3, 2, 1, 0, 23, 22, 21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6}
	assert.Equal(t, want, got)
}

func TestDaily(t *testing.T) {
	v := seq(31)
	got := Daily(v, 3)

	want := []float64{2, 1, 0}
	for i := 30; i >= 3; i-- {
		want = append(want, float64(i))
	}
	assert.Equal(t, want, got)
	assert.Len(t, got, 31)
}

func TestDailyDayBeyondBuffer(t *testing.T) {
	got := Daily([]float64{1, 2, 3}, 31)
	assert.Equal(t, []float64{3, 2, 1}, got)
}

func TestMonthly(t *testing.T) {
	got, err := Monthly(seq(12), 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1, 0, 11, 10, 9, 8, 7, 6, 5, 4, 3}, got)

	got, err = Monthly(seq(12), 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}, got)
}

func TestReconstruct(t *testing.T) {
	anchor := time.Date(2026, time.March, 3, 5, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		raw   string
		kind  models.PeriodKind
		first float64
		count int
	}{
		{"hourly", join(seq(24)), models.PeriodHourly, 5, 24},
		{"hourly with key prefix", "total_hours=" + join(seq(24)), models.PeriodHourly, 5, 24},
		{"daily", join(seq(31)), models.PeriodDaily, 2, 31},
		{"monthly", join(seq(12)), models.PeriodMonthly, 2, 12},
		{"yearly stays raw", join(seq(12)), models.PeriodYearly, 0, 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Reconstruct(tt.raw, tt.kind, anchor)
			require.NoError(t, err)
			require.Len(t, s.Values, tt.count)
			assert.Equal(t, tt.first, s.Values[0])
			assert.Equal(t, tt.kind.ExpectedCount(), s.ExpectedCount)
			assert.Equal(t, tt.count, s.Stats.Count)
		})
	}
}

func TestYearlyIsNotReordered(t *testing.T) {
	raw := "3.5, 1.25, 7, 0, 0, 0, 0, 0, 0, 0, 0, 2"
	s, err := Reconstruct(raw, models.PeriodYearly, time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5, 1.25, 7, 0, 0, 0, 0, 0, 0, 0, 0, 2}, s.Values)
}

func TestParseFailureIsolation(t *testing.T) {
	s, err := Reconstruct("1,2,x,4", models.PeriodYearly, time.Now())

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDataQuality))
	assert.Empty(t, s.Values)
	assert.Equal(t, 0, s.Stats.Count)
	assert.Equal(t, 0.0, s.Stats.Average)
	assert.Nil(t, s.Stats.Max)
}

func TestNonFiniteTokenIsDataQualityError(t *testing.T) {
	for _, token := range []string{"nan", "NaN", "inf", "-Inf", "Infinity"} {
		t.Run(token, func(t *testing.T) {
			s, err := Reconstruct(join(seq(30))+","+token, models.PeriodDaily, time.Now())

			assert.True(t, errors.Is(err, ErrDataQuality))
			assert.Empty(t, s.Values)
			assert.Equal(t, 0.0, s.Stats.Sum)
			assert.Nil(t, s.Stats.Max)
		})
	}
}

func TestShortBufferIsDataQualityError(t *testing.T) {
	s, err := Reconstruct("1,2,3", models.PeriodHourly, time.Now())

	assert.True(t, errors.Is(err, ErrDataQuality))
	assert.Empty(t, s.Values)
}

func TestParseSkipsEmptyTokens(t *testing.T) {
	values, err := Parse(" 1.5 , 2,,3, ")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 3}, values)
}

func TestSummarize(t *testing.T) {
	stats := Summarize([]float64{1.111, 2.222, 3.333})

	assert.Equal(t, 6.67, stats.Sum)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 2.22, stats.Average)
	require.NotNil(t, stats.Max)
	require.NotNil(t, stats.Min)
	assert.Equal(t, 3.33, *stats.Max)
	assert.Equal(t, 1.11, *stats.Min)
}

func TestSummarizeEmpty(t *testing.T) {
	stats := Summarize(nil)

	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, 0.0, stats.Average)
	assert.Equal(t, 0.0, stats.Sum)
	assert.Nil(t, stats.Max)
	assert.Nil(t, stats.Min)
}

func TestReconstructEmptyInput(t *testing.T) {
	s, err := Reconstruct("", models.PeriodYearly, time.Now())
	require.NoError(t, err)

	assert.Empty(t, s.Values)
	assert.Equal(t, 0.0, s.Stats.Average)
	assert.Nil(t, s.Stats.Max)
	assert.Nil(t, s.Stats.Min)
}
