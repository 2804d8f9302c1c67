// Package sensors turns the datapoint store into typed sensors: one dynamic
// sensor per discovered key, fixed binary sensors and the consumption
// history sensors.
package sensors

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tejusbharadwaj/nbeconnect/internal/classifier"
	"github.com/tejusbharadwaj/nbeconnect/internal/models"
	"github.com/tejusbharadwaj/nbeconnect/internal/series"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

const namePrefix = "NBE "

// Kind of sensor
type Kind string

const (
	KindDynamic Kind = "dynamic"
	KindBinary  Kind = "binary"
	KindHistory Kind = "history"
)

// Sensor is a typed view on one datapoint
type Sensor struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name"`
	Kind       Kind                    `json:"kind"`
	Definition models.SensorDefinition `json:"definition"`
	// DeviceClass is the binary sensor class (heat, problem, running, opening)
	DeviceClass string `json:"device_class,omitempty"`

	isOn func(raw string) bool
}

type binaryDef struct {
	name, key, id, class string
	isOn                 func(string) bool
}

func powerOn(raw string) bool {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	return err == nil && v > 0
}

func equals(want string) func(string) bool {
	return func(raw string) bool { return raw == want }
}

var binarySensors = []binaryDef{
	{"Boiler Running", "operating_data/power_pct", "v2_boiler_running", "heat", powerOn},
	{"Boiler Alarm", "operating_data/off_on_alarm", "v2_boiler_alarm", "problem", equals("2")},
	{"Boiler Pump", "operating_data/boiler_pump_state", "v2_boiler_pump", "running", equals("1")},
	{"DHW Valve", "operating_data/dhw_valve_state", "v2_dhw_valve", "opening", equals("1")},
	{"House Pump", "operating_data/house_pump_state", "v2_house_pump", "running", equals("1")},
	{"Sun Pump", "operating_data/sun_pump_state", "v2_sun_pump", "running", equals("1")},
}

var historySensors = []struct {
	name, key, id string
}{
	{"Consumption Hourly", "consumption_data/total_hours", "v2_consumption_hourly"},
	{"Consumption Daily", "consumption_data/total_days", "v2_consumption_daily"},
	{"Consumption Monthly", "consumption_data/total_months", "v2_consumption_monthly"},
	{"Consumption Yearly", "consumption_data/total_years", "v2_consumption_yearly"},
	{"DHW Consumption Hourly", "consumption_data/dhw_hours", "v2_dhw_hourly"},
	{"DHW Consumption Daily", "consumption_data/dhw_days", "v2_dhw_daily"},
	{"DHW Consumption Monthly", "consumption_data/dhw_months", "v2_dhw_monthly"},
	{"DHW Consumption Yearly", "consumption_data/dhw_years", "v2_dhw_yearly"},
}

// dedicated lists keys owned by a binary or history sensor
var dedicated = func() map[string]bool {
	m := make(map[string]bool)
	for _, b := range binarySensors {
		m[b.key] = true
	}
	for _, h := range historySensors {
		m[h.key] = true
	}
	return m
}()

// DynamicID returns the unique id of the dynamic sensor for key
func DynamicID(key string) string {
	return "v2_" + strings.ReplaceAll(key, "/", "_")
}

// Catalog is the set of sensors derived from one set of keys
type Catalog struct {
	sensors []Sensor
	byID    map[string]int
}

// Build creates the fixed sensors plus one dynamic sensor for every key that
// is neither excluded nor owned by a fixed sensor.
func Build(keys []string) *Catalog {
	c := &Catalog{byID: make(map[string]int)}

	for _, b := range binarySensors {
		def := classifier.Classify(b.key)
		def.DisplayName = b.name
		def.Unit = ""
		def.SemanticClass = models.ClassNone
		def.Writable = false
		def.Scale = 1
		c.add(Sensor{
			ID:          b.id,
			Name:        namePrefix + b.name,
			Kind:        KindBinary,
			Definition:  def,
			DeviceClass: b.class,
			isOn:        b.isOn,
		})
	}

	for _, h := range historySensors {
		def := classifier.Classify(h.key)
		def.DisplayName = h.name
		c.add(Sensor{
			ID:         h.id,
			Name:       namePrefix + h.name,
			Kind:       KindHistory,
			Definition: def,
		})
	}

	for _, key := range keys {
		if dedicated[key] || classifier.Excluded(key) {
			continue
		}
		def := classifier.Classify(key)
		c.add(Sensor{
			ID:         DynamicID(key),
			Name:       namePrefix + def.DisplayName,
			Kind:       KindDynamic,
			Definition: def,
		})
	}
	return c
}

func (c *Catalog) add(s Sensor) {
	if _, dup := c.byID[s.ID]; dup {
		return
	}
	c.byID[s.ID] = len(c.sensors)
	c.sensors = append(c.sensors, s)
}

// Sensors returns every sensor in creation order
func (c *Catalog) Sensors() []Sensor {
	return c.sensors
}

// Len returns the number of sensors
func (c *Catalog) Len() int {
	return len(c.sensors)
}

// Lookup finds a sensor by unique id
func (c *Catalog) Lookup(id string) (Sensor, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Sensor{}, false
	}
	return c.sensors[i], true
}

// State is the current reading of a sensor
type State struct {
	SensorID  string                    `json:"sensor_id"`
	Key       string                    `json:"datapoint_path"`
	Available bool                      `json:"available"`
	Value     string                    `json:"value,omitempty"`
	Numeric   *float64                  `json:"numeric,omitempty"`
	On        *bool                     `json:"on,omitempty"`
	Series    *models.ConsumptionSeries `json:"series,omitempty"`
	Writable  bool                      `json:"writable"`
}

// State reads the sensor from snap. History sensors are reconstructed with
// anchor as the current time; a data-quality failure is returned as error
// with an unavailable state.
func (s Sensor) State(snap *store.Snapshot, anchor time.Time) (State, error) {
	st := State{
		SensorID: s.ID,
		Key:      s.Definition.Key,
		Writable: s.Definition.Writable,
	}
	raw, ok := snap.Get(s.Definition.Key)

	switch s.Kind {
	case KindBinary:
		on := ok && s.isOn(raw)
		st.Available = ok
		st.On = &on
		st.Value = strconv.FormatBool(on)
		return st, nil

	case KindHistory:
		if !ok || raw == "" {
			return st, nil
		}
		period, _ := classifier.PeriodFor(s.Definition.Key)
		ser, err := series.Reconstruct(raw, period, anchor)
		if err != nil {
			return st, err
		}
		if len(ser.Values) == 0 {
			return st, nil
		}
		current := ser.Values[0]
		st.Available = true
		st.Series = &ser
		st.Numeric = &current
		st.Value = strconv.FormatFloat(current, 'f', -1, 64)
		return st, nil

	default:
		if !ok {
			return st, nil
		}
		st.Available = true
		st.Value = raw
		// nan and inf parse but have no JSON form, they stay text only
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			v *= s.Definition.Scale
			st.Numeric = &v
			if s.Definition.Scale != 1 {
				st.Value = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		return st, nil
	}
}
