// Package promsink adapts pkg/telemetry.Sink onto
// github.com/prometheus/client_golang, the same metrics library the
// teacher project wires up for its own cluster-monitoring data path.
package promsink

import (
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is a telemetry.Sink backed by a private Prometheus registry so
// embedding it in a library never collides with an application's own
// default registry.
type Sink struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec
}

// New creates a Sink with its own registry, exposed via Registry() for
// the caller to serve on a /metrics endpoint.
func New() *Sink {
	return &Sink{
		registry:   prometheus.NewRegistry(),
		histograms: make(map[string]*prometheus.HistogramVec),
		counters:   make(map[string]*prometheus.CounterVec),
	}
}

func (s *Sink) Registry() *prometheus.Registry { return s.registry }

func (s *Sink) Observe(name string, v float64, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histograms[name]
	if !ok {
		h = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: metricName(name),
			Help: "distributed-string-sorting: " + name,
		}, labelNames(len(labels)))
		s.registry.MustRegister(h)
		s.histograms[name] = h
	}
	h.WithLabelValues(labels...).Observe(v)
}

func (s *Sink) Count(name string, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[name]
	if !ok {
		c = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricName(name),
			Help: "distributed-string-sorting: " + name,
		}, labelNames(len(labels)))
		s.registry.MustRegister(c)
		s.counters[name] = c
	}
	c.WithLabelValues(labels...).Inc()
}

// metricName turns a dotted measurement name (e.g. "dms.level.exchanged",
// the style call sites use to namespace measurements) into a valid
// Prometheus metric name, which permits only [a-zA-Z0-9_:].
func metricName(name string) string {
	return "dsort_" + strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labelNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "l" + strconv.Itoa(i)
	}
	return names
}
