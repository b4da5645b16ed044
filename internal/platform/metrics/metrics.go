// Package metrics exposes the Prometheus instruments shared across the
// engine. Counters live on a private registry so tests can run in parallel
// without collisions against the default global registry.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	InstrumentSends   *prometheus.CounterVec
	InstrumentFetches *prometheus.CounterVec
	SweepRuns         *prometheus.CounterVec
	QCRuns            *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InstrumentSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_instrument_sends_total",
			Help: "Work item transmissions to instruments, by outcome.",
		}, []string{"outcome"}),
		InstrumentFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_instrument_fetches_total",
			Help: "Result fetch attempts from instruments, by outcome.",
		}, []string{"outcome"}),
		SweepRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_sweep_runs_total",
			Help: "Background sweep executions, by sweep name.",
		}, []string{"sweep"}),
		QCRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lims_qc_runs_total",
			Help: "Quality control runs recorded, by evaluated status.",
		}, []string{"status"}),
	}
}

// Handler returns the /metrics scrape endpoint for this registry.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}
