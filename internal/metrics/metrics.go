package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energy-meter/internal/meter"
)

const namespace = "meterd"

// Metrics holds the collectors exported on /metrics. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry *prometheus.Registry

	power          prometheus.Gauge
	voltage        prometheus.Gauge
	current        prometheus.Gauge
	energyToday    prometheus.Gauge
	projectedCost  prometheus.Gauge
	advisoryActive *prometheus.GaugeVec

	readingsAccepted prometheus.Counter
	readingsRejected *prometheus.CounterVec
	advisoryChanges  *prometheus.CounterVec
	daysClosed       prometheus.Counter

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		power: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "power_kw",
			Help:      "Instantaneous power of the latest reading in kW.",
		}),
		voltage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voltage_rms_volts",
			Help:      "RMS voltage of the latest reading.",
		}),
		current: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_rms_amperes",
			Help:      "RMS current of the latest reading.",
		}),
		energyToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "energy_today_kwh",
			Help:      "Energy accumulated since local midnight.",
		}),
		projectedCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projected_monthly_cost",
			Help:      "Month-end cost extrapolated from today's usage.",
		}),
		advisoryActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "advisory_active",
			Help:      "1 while an advisory of the given type is active.",
		}, []string{"type"}),
		readingsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_accepted_total",
			Help:      "Readings that passed validation.",
		}),
		readingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Readings rejected by validation, by offending field.",
		}, []string{"field"}),
		advisoryChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advisory_transitions_total",
			Help:      "Advisory activations and clears by type.",
		}, []string{"type", "kind"}),
		daysClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_closed_total",
			Help:      "Accounting days closed by rollover.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.power,
		m.voltage,
		m.current,
		m.energyToday,
		m.projectedCost,
		m.advisoryActive,
		m.readingsAccepted,
		m.readingsRejected,
		m.advisoryChanges,
		m.daysClosed,
		m.httpRequestsTotal,
		m.httpDuration,
	)

	for _, t := range []meter.AdvisoryType{meter.TypeOptimalLaundry, meter.TypePeakHourAlert, meter.TypeUnusualSpike} {
		m.advisoryActive.WithLabelValues(string(t)).Set(0)
	}

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveResult updates gauges and counters after an accepted reading.
func (m *Metrics) ObserveResult(res meter.Result) {
	if m == nil {
		return
	}
	m.readingsAccepted.Inc()
	m.ObserveState(res.State)
	m.ObserveChanges(res.Changes)
	if res.Closed != nil {
		m.daysClosed.Inc()
	}
}

// ObserveState mirrors the accounting state into gauges.
func (m *Metrics) ObserveState(s meter.State) {
	if m == nil {
		return
	}
	m.power.Set(s.CurrentPower)
	m.voltage.Set(s.CurrentVoltage)
	m.current.Set(s.CurrentCurrent)
	m.energyToday.Set(s.EnergyToday)
	m.projectedCost.Set(s.ProjectedMonthlyCost.InexactFloat64())
}

// ObserveChanges records advisory transitions.
func (m *Metrics) ObserveChanges(changes []meter.AdvisoryChange) {
	if m == nil {
		return
	}
	for _, ch := range changes {
		typ := string(ch.Advisory.Type)
		m.advisoryChanges.WithLabelValues(typ, string(ch.Kind)).Inc()
		if ch.Kind == meter.ChangeActivated {
			m.advisoryActive.WithLabelValues(typ).Set(1)
		} else {
			m.advisoryActive.WithLabelValues(typ).Set(0)
		}
	}
}

// DayClosed counts a rollover triggered outside of ingestion.
func (m *Metrics) DayClosed() {
	if m == nil {
		return
	}
	m.daysClosed.Inc()
}

// Rejected counts a reading that failed validation on field.
func (m *Metrics) Rejected(field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "unknown"
	}
	m.readingsRejected.WithLabelValues(field).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
