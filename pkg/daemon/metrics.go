package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

// statusMetrics exports the latest status as Prometheus gauges. A nil
// *statusMetrics ignores observations.
type statusMetrics struct {
	registry *prometheus.Registry

	present     prometheus.Gauge
	percent     prometheus.Gauge
	minutes     prometheus.Gauge
	charging    prometheus.Gauge
	onACPower   prometheus.Gauge
	lastUpdated prometheus.Gauge
	reads       prometheus.Counter
	info        *prometheus.GaugeVec
}

func newStatusMetrics() *statusMetrics {
	m := &statusMetrics{
		registry: prometheus.NewRegistry(),
		present: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battstat_battery_present",
			Help: "1 if at least one battery is present",
		}),
		percent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battstat_battery_percent",
			Help: "Combined charge of all batteries (0-100)",
		}),
		minutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battstat_battery_minutes_remaining",
			Help: "Estimated minutes to empty or full, -1 if unknown",
		}),
		charging: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battstat_battery_charging",
			Help: "1 if the batteries are charging",
		}),
		onACPower: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battstat_on_ac_power",
			Help: "1 if running on AC power",
		}),
		lastUpdated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "battstat_last_update_timestamp_seconds",
			Help: "Last status read timestamp (epoch seconds)",
		}),
		reads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "battstat_status_reads_total",
			Help: "Number of status reads",
		}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "battstat_backend_info",
			Help: "Selected backend (always 1)",
		}, []string{"backend", "composite", "event_driven"}),
	}

	m.registry.MustRegister(
		m.present,
		m.percent,
		m.minutes,
		m.charging,
		m.onACPower,
		m.lastUpdated,
		m.reads,
		m.info,
	)

	if mon != nil {
		m.info.WithLabelValues(
			mon.BackendName(),
			strconv.FormatBool(mon.IsCompositeCapable()),
			strconv.FormatBool(mon.EventDriven()),
		).Set(1)
	}

	return m
}

func (m *statusMetrics) observe(s powerinfo.CompositeStatus) {
	if m == nil {
		return
	}

	m.present.Set(boolToFloat(s.Present))
	m.percent.Set(float64(s.Percent))
	m.minutes.Set(float64(s.Minutes))
	m.charging.Set(boolToFloat(s.Charging))
	m.onACPower.Set(boolToFloat(s.OnACPower))
	m.lastUpdated.Set(float64(time.Now().Unix()))
	m.reads.Inc()
}

func (m *statusMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
