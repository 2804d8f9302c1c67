package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
)

// StateSource yields the current sensor states
type StateSource interface {
	SensorStates() []sensors.State
}

// SensorCollector exports numeric and binary sensor states at scrape time
type SensorCollector struct {
	source StateSource
	value  *prometheus.Desc
	binary *prometheus.Desc
}

func NewSensorCollector(source StateSource) *SensorCollector {
	return &SensorCollector{
		source: source,
		value: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "value"),
			"Current numeric sensor value",
			[]string{"sensor", "key"}, nil,
		),
		binary: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "sensor", "on"),
			"Current binary sensor state",
			[]string{"sensor", "key"}, nil,
		),
	}
}

func (c *SensorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.binary
}

func (c *SensorCollector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.source.SensorStates() {
		if !st.Available {
			continue
		}
		switch {
		case st.On != nil:
			v := 0.0
			if *st.On {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.binary, prometheus.GaugeValue, v, st.SensorID, st.Key)
		case st.Numeric != nil:
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, *st.Numeric, st.SensorID, st.Key)
		}
	}
}
