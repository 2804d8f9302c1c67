package server

import (
	"fmt"
	"time"

	"github.com/tejusbharadwaj/nbeconnect/internal/database"
)

const maxTimeRange = 2 * 365 * 24 * time.Hour

// HistoryQuery is a validated QueryHistory request
type HistoryQuery struct {
	Key         string
	Start       time.Time
	End         time.Time
	Window      string
	Aggregation string
}

type RequestValidator struct {
	validWindows      map[string]string
	validAggregations map[string]string
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{
		validWindows:      database.Windows,
		validAggregations: database.Aggregations,
	}
}

// Validate checks if the query parameters are valid
func (v *RequestValidator) Validate(q HistoryQuery) error {
	if q.Key == "" {
		return fmt.Errorf("missing key")
	}

	if q.Start.IsZero() || q.End.IsZero() || q.Start.Equal(time.Unix(0, 0)) || q.End.Equal(time.Unix(0, 0)) {
		return fmt.Errorf("missing timestamp")
	}

	if q.Start.After(q.End) {
		return fmt.Errorf("start time must be before end time")
	}

	if q.End.Sub(q.Start) > maxTimeRange {
		return fmt.Errorf("time range exceeds maximum allowed")
	}

	if _, ok := v.validWindows[q.Window]; !ok {
		return fmt.Errorf("invalid window: %s", q.Window)
	}

	if _, ok := v.validAggregations[q.Aggregation]; !ok {
		return fmt.Errorf("invalid aggregation: %s", q.Aggregation)
	}

	return nil
}
