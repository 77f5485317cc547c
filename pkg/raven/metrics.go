// metrics.go exposes client delivery counters as prometheus metrics.

package raven

import (
	"errors"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/strongdm/raven-observe/pkg/raven/transport"
)

const metricsNamespace = "raven"

// Metrics counts event outcomes. It is a CaptureObserver: register it with
// WithObserver or Client.AddObserver, then with a prometheus registry.
//
//	m := raven.NewMetrics()
//	prometheus.MustRegister(m)
//	client, _ := raven.New(raven.WithObserver(m))
type Metrics struct {
	logged   atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
	filtered atomic.Uint64

	loggedDesc   *prometheus.Desc
	failedDesc   *prometheus.Desc
	droppedDesc  *prometheus.Desc
	filteredDesc *prometheus.Desc

	// Captured events by level
	eventsByLevel *prometheus.CounterVec
}

var _ CaptureObserver = (*Metrics)(nil)
var _ prometheus.Collector = (*Metrics)(nil)

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{
		loggedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_logged_total"),
			"Total number of events accepted by the server",
			nil, nil),
		failedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_failed_total"),
			"Total number of events that could not be sent",
			nil, nil),
		droppedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_dropped_total"),
			"Total number of events dropped because the request queue was full",
			nil, nil),
		filteredDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "events_filtered_total"),
			"Total number of events rejected by callbacks",
			nil, nil),
		eventsByLevel: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prometheus.BuildFQName(metricsNamespace, "", "events_captured_total"),
				Help: "Total number of captured events by level",
			},
			[]string{"level"}),
	}
}

func (m *Metrics) OnLogged(string) {
	m.logged.Add(1)
}

// OnError counts queue-full drops separately from other failures. Degraded
// events (ErrStackResolution) are not failures; their delivery outcome is
// reported on its own.
func (m *Metrics) OnError(_ string, err error) {
	switch {
	case errors.Is(err, ErrStackResolution):
	case errors.Is(err, transport.ErrQueueFull):
		m.dropped.Add(1)
	default:
		m.failed.Add(1)
	}
}

func (m *Metrics) OnCaptured(ev *Event) {
	m.eventsByLevel.WithLabelValues(string(ev.Level)).Inc()
}

func (m *Metrics) OnFiltered(string) {
	m.filtered.Add(1)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.loggedDesc
	ch <- m.failedDesc
	ch <- m.droppedDesc
	ch <- m.filteredDesc
	m.eventsByLevel.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.loggedDesc, prometheus.CounterValue, float64(m.logged.Load()))
	ch <- prometheus.MustNewConstMetric(m.failedDesc, prometheus.CounterValue, float64(m.failed.Load()))
	ch <- prometheus.MustNewConstMetric(m.droppedDesc, prometheus.CounterValue, float64(m.dropped.Load()))
	ch <- prometheus.MustNewConstMetric(m.filteredDesc, prometheus.CounterValue, float64(m.filtered.Load()))
	m.eventsByLevel.Collect(ch)
}
