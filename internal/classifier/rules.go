package classifier

import (
	"strings"

	"github.com/tejusbharadwaj/nbeconnect/internal/models"
)

// rule is one row of the classification table. Rules are evaluated in order
// against the lower-cased key and the first match wins.
type rule struct {
	name        string
	match       func(key string) bool
	unit        string
	class       models.SemanticClass
	measurement bool
	// scale is applied to numeric values by presentation code; 0 means 1
	scale func(key string) float64
}

func containsAny(key string, parts ...string) bool {
	for _, p := range parts {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// Firmware reports hopper content in tenths of a kilogram, but only under
// operating_data/.
func contentScale(key string) float64 {
	if strings.HasPrefix(key, "operating_data/") {
		return 10
	}
	return 1
}

var rules = []rule{
	{
		name:        "temperature",
		match:       func(k string) bool { return containsAny(k, "temp", "temperature") },
		unit:        "°C",
		class:       models.ClassTemperature,
		measurement: true,
	},
	{
		name: "content",
		match: func(k string) bool {
			return strings.Contains(k, "content") && !strings.Contains(k, "min_content")
		},
		unit:        "kg",
		class:       models.ClassWeight,
		measurement: true,
		scale:       contentScale,
	},
	{
		name: "weight",
		match: func(k string) bool {
			return containsAny(k, "pellet", "dose", "trip", "consumption", "capacity") &&
				!strings.Contains(k, "auger_capacity")
		},
		unit:        "kg",
		class:       models.ClassWeight,
		measurement: true,
	},
	{
		name:        "power_percent",
		match:       func(k string) bool { return containsAny(k, "_power_actual", "_power_pct") },
		unit:        "%",
		measurement: true,
	},
	{
		name:        "power",
		match:       func(k string) bool { return containsAny(k, "kw", "_power") },
		unit:        "kW",
		class:       models.ClassPower,
		measurement: true,
	},
	{
		name:        "wind_speed",
		match:       func(k string) bool { return strings.Contains(k, "wind_speed") },
		unit:        "m/s",
		class:       models.ClassWindSpeed,
		measurement: true,
	},
	{
		name:        "wind_direction",
		match:       func(k string) bool { return strings.Contains(k, "wind_direction") },
		unit:        "°",
		measurement: true,
	},
	{
		name: "percent",
		match: func(k string) bool {
			return containsAny(k, "pct", "percent", "_speed", "level", "oxygen", "o2_", "clean", "uptime", "humid")
		},
		unit:        "%",
		measurement: true,
	},
	{
		name:        "pressure",
		match:       func(k string) bool { return strings.Contains(k, "pressure") },
		unit:        "hPa",
		class:       models.ClassAtmosphericPressure,
		measurement: true,
	},
	{
		name:  "duration",
		match: func(k string) bool { return containsAny(k, "auger_run", "auger_pause", "_time") },
		unit:  "s",
		class: models.ClassDuration,
	},
	{
		name:        "gram",
		match:       func(k string) bool { return containsAny(k, "auger_capacity", "min_dose") },
		unit:        "g",
		measurement: true,
	},
	{
		name:        "distance",
		match:       func(k string) bool { return strings.Contains(k, "distance") },
		unit:        "cm",
		class:       models.ClassDistance,
		measurement: true,
	},
	{
		name:        "liter",
		match:       func(k string) bool { return containsAny(k, "liter", "flow_") },
		unit:        "L",
		measurement: true,
	},
	{
		name:        "current",
		match:       func(k string) bool { return strings.Contains(k, "ampere") },
		unit:        "mA",
		class:       models.ClassCurrent,
		measurement: true,
	},
	{
		name:        "frequency",
		match:       func(k string) bool { return strings.Contains(k, "freq") },
		unit:        "Hz",
		class:       models.ClassFrequency,
		measurement: true,
	},
	{
		// PID gains and offsets
		name:        "control",
		match:       func(k string) bool { return containsAny(k, "gain", "diff", "part_", "corr_") },
		measurement: true,
	},
}

// fallback applies when no rule matches
var fallback = rule{
	name:  "default",
	match: func(string) bool { return true },
}

func lookup(lowerKey string) rule {
	for _, r := range rules {
		if r.match(lowerKey) {
			return r
		}
	}
	return fallback
}
