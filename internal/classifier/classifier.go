// Package classifier maps boiler datapoint keys to sensor metadata.
//
// Classification is a pure function of the key string. Callers recompute it
// on every read instead of caching the result.
package classifier

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tejusbharadwaj/nbeconnect/internal/models"
)

const (
	PrefixOperating = "operating_data/"
	PrefixAdvanced  = "advanced_data/"
	PrefixSettings  = "settings/"

	// CounterKey is the raw consumption counter, a scalar without a sensor of its own
	CounterKey = "consumption_data/counter"
)

// historyKeys maps every cumulative-history key to its period
var historyKeys = map[string]models.PeriodKind{
	"consumption_data/total_hours":  models.PeriodHourly,
	"consumption_data/total_days":   models.PeriodDaily,
	"consumption_data/total_months": models.PeriodMonthly,
	"consumption_data/total_years":  models.PeriodYearly,
	"consumption_data/dhw_hours":    models.PeriodHourly,
	"consumption_data/dhw_days":     models.PeriodDaily,
	"consumption_data/dhw_months":   models.PeriodMonthly,
	"consumption_data/dhw_years":    models.PeriodYearly,
}

var excludedTokens = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
	"allweek",
	"vacuum",
}

// Classify returns the sensor definition for key
func Classify(key string) models.SensorDefinition {
	r := lookup(strings.ToLower(key))

	scale := 1.0
	if r.scale != nil {
		scale = r.scale(strings.ToLower(key))
	}

	def := models.SensorDefinition{
		Key:           key,
		DisplayName:   DisplayName(key),
		Unit:          r.unit,
		SemanticClass: r.class,
		Aggregation:   models.AggregationInstant,
		Writable:      IsWritable(key),
		Measurement:   r.measurement,
		Scale:         scale,
	}
	if _, ok := historyKeys[key]; ok {
		def.Aggregation = models.AggregationCumulativeHistory
	}
	return def
}

// RuleName returns the name of the classification rule key falls under
func RuleName(key string) string {
	return lookup(strings.ToLower(key)).name
}

// IsWritable reports whether key may be written to the device
func IsWritable(key string) bool {
	return strings.HasPrefix(key, PrefixSettings)
}

// PeriodFor returns the period of a cumulative-history key
func PeriodFor(key string) (models.PeriodKind, bool) {
	p, ok := historyKeys[key]
	return p, ok
}

// HistoryKeys returns the cumulative-history keys in fetch order
func HistoryKeys() []string {
	return []string{
		"consumption_data/total_hours",
		"consumption_data/total_days",
		"consumption_data/total_months",
		"consumption_data/total_years",
		"consumption_data/dhw_hours",
		"consumption_data/dhw_days",
		"consumption_data/dhw_months",
		"consumption_data/dhw_years",
	}
}

// Excluded reports whether key must not get a generic sensor.
// Schedule bitmasks and vacuum data are dropped, the raw counter has no sensor.
func Excluded(key string) bool {
	if key == CounterKey {
		return true
	}
	for _, token := range excludedTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// DisplayName derives a human readable name from key
func DisplayName(key string) string {
	switch {
	case strings.HasPrefix(key, PrefixOperating):
		return title(strings.TrimPrefix(key, PrefixOperating))
	case strings.HasPrefix(key, PrefixAdvanced):
		return title(strings.TrimPrefix(key, PrefixAdvanced))
	case strings.HasPrefix(key, PrefixSettings):
		rest := strings.TrimPrefix(key, PrefixSettings)
		if parts := strings.Split(rest, "/"); len(parts) == 2 {
			return title(parts[0]) + " " + title(parts[1])
		}
		return title(rest)
	default:
		return title(key)
	}
}

func title(s string) string {
	s = strings.NewReplacer("/", " ", "_", " ").Replace(s)
	return cases.Title(language.Und).String(s)
}
