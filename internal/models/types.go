package models

import "time"

// Datapoint is a single key/value pair as reported by the boiler
type Datapoint struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SemanticClass describes what a sensor value measures
type SemanticClass string

const (
	ClassNone                SemanticClass = ""
	ClassTemperature         SemanticClass = "temperature"
	ClassWeight              SemanticClass = "weight"
	ClassPower               SemanticClass = "power"
	ClassWindSpeed           SemanticClass = "wind_speed"
	ClassAtmosphericPressure SemanticClass = "atmospheric_pressure"
	ClassDuration            SemanticClass = "duration"
	ClassDistance            SemanticClass = "distance"
	ClassCurrent             SemanticClass = "current"
	ClassFrequency           SemanticClass = "frequency"
)

// AggregationKind tells whether a value is a point reading or a history buffer
type AggregationKind string

const (
	AggregationInstant           AggregationKind = "instant"
	AggregationCumulativeHistory AggregationKind = "cumulative_history"
)

// PeriodKind is the granularity of a cumulative-history counter
type PeriodKind string

const (
	PeriodHourly  PeriodKind = "hourly"
	PeriodDaily   PeriodKind = "daily"
	PeriodMonthly PeriodKind = "monthly"
	PeriodYearly  PeriodKind = "yearly"
)

// ExpectedCount returns the number of slots the firmware keeps for the period
func (p PeriodKind) ExpectedCount() int {
	switch p {
	case PeriodHourly:
		return 24
	case PeriodDaily:
		return 31
	case PeriodMonthly, PeriodYearly:
		return 12
	default:
		return 0
	}
}

// SensorDefinition is the classification of a single key
type SensorDefinition struct {
	Key           string          `json:"key" yaml:"key"`
	DisplayName   string          `json:"display_name" yaml:"display_name"`
	Unit          string          `json:"unit,omitempty" yaml:"unit,omitempty"`
	SemanticClass SemanticClass   `json:"semantic_class,omitempty" yaml:"semantic_class,omitempty"`
	Aggregation   AggregationKind `json:"aggregation" yaml:"aggregation"`
	Writable      bool            `json:"writable" yaml:"writable"`
	Measurement   bool            `json:"measurement" yaml:"measurement"`
	Scale         float64         `json:"scale" yaml:"scale"`
}

// SeriesStats summarises a reconstructed consumption series.
// Max and Min are nil for an empty series.
type SeriesStats struct {
	Sum     float64  `json:"total"`
	Count   int      `json:"count"`
	Average float64  `json:"average"`
	Max     *float64 `json:"max,omitempty"`
	Min     *float64 `json:"min,omitempty"`
}

// ConsumptionSeries is a history buffer restored to most-recent-first order
type ConsumptionSeries struct {
	Period        PeriodKind  `json:"period"`
	ExpectedCount int         `json:"expected_count"`
	Values        []float64   `json:"values"`
	Stats         SeriesStats `json:"stats"`
}

// TimeSeriesData represents a single stored sensor reading
type TimeSeriesData struct {
	Time  time.Time `json:"time"`
	Key   string    `json:"key"`
	Value float64   `json:"value"`
}
