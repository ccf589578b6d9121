// Copyright 2022 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pipeline

import (
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stockparfait/errors"
)

const metricsNamespace = "wbindicators"

// Metrics of the pipeline runs. They are written as a Prometheus textfile for
// the node exporter, since a batch job has no endpoint to scrape.
type Metrics struct {
	Registry *prometheus.Registry

	runs        *prometheus.CounterVec   // domain, status, kind
	rows        *prometheus.GaugeVec     // domain
	duration    *prometheus.HistogramVec // domain
	lastSuccess *prometheus.GaugeVec     // domain
	requests    *prometheus.CounterVec   // result
}

// NewMetrics creates and registers the pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{Registry: prometheus.NewRegistry()}
	m.runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "domain_runs_total",
			Help:      "Domain runs by status and error kind",
		},
		[]string{"domain", "status", "kind"},
	)
	m.rows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "domain_rows",
			Help:      "Rows written by the last successful run of the domain",
		},
		[]string{"domain"},
	)
	m.duration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "domain_run_duration_seconds",
			Help:      "Duration of domain runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"domain"},
	)
	m.lastSuccess = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "domain_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of the domain",
		},
		[]string{"domain"},
	)
	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "api_requests_total",
			Help:      "World Bank API request attempts by result",
		},
		[]string{"result"}, // "ok", "error"
	)
	m.Registry.MustRegister(m.runs, m.rows, m.duration, m.lastSuccess, m.requests)
	return m
}

// OnAttempt counts an API request attempt. Safe for concurrent use.
func (m *Metrics) OnAttempt(err error) {
	if err != nil {
		m.requests.WithLabelValues("error").Inc()
		return
	}
	m.requests.WithLabelValues("ok").Inc()
}

// Observe the result of a domain run.
func (m *Metrics) Observe(r Result) {
	m.runs.WithLabelValues(r.Domain, string(r.Status), string(r.Kind)).Inc()
	if r.Status == StatusSkipped {
		return
	}
	m.duration.WithLabelValues(r.Domain).Observe(r.Duration.Seconds())
	if r.Status == StatusOK {
		m.rows.WithLabelValues(r.Domain).Set(float64(r.Rows))
		m.lastSuccess.WithLabelValues(r.Domain).Set(float64(r.StartedAt.Unix()))
	}
}

// WriteFile atomically writes the metrics in the text exposition format.
func (m *Metrics) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.Annotate(err, "failed to create directory for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return errors.Annotate(err, "failed to write metrics to %s", path)
	}
	return nil
}
