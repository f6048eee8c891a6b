/*
Copyright 2022-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics records deploy outcomes and durations. It is purely
// observational: nothing here ever influences a verdict, and a push
// failure is logged, never returned as an error.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Recorder owns the deploy metrics and, if configured, pushes them to a
// Pushgateway at the end of a run - the CLI process is short-lived, so
// scraping it directly isn't an option.
type Recorder struct {
	registry *prometheus.Registry
	pusher   *push.Pusher

	deploysTotal  *prometheus.CounterVec
	deploySeconds prometheus.Histogram
	resourceState *prometheus.CounterVec
}

// New builds a Recorder. If pushgatewayURL is empty, Push is a no-op.
func New(pushgatewayURL, job string) *Recorder {
	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry: registry,
		deploysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kubernetes_deploy_runs_total",
			Help: "Count of deploy runs by verdict.",
		}, []string{"verdict"}),
		deploySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kubernetes_deploy_duration_seconds",
			Help:    "Wall-clock duration of a deploy run.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		}),
		resourceState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kubernetes_deploy_resource_runs_total",
			Help: "Count of per-resource terminal states by kind.",
		}, []string{"kind", "state"}),
	}

	registry.MustRegister(r.deploysTotal, r.deploySeconds, r.resourceState)

	if pushgatewayURL != "" {
		r.pusher = push.New(pushgatewayURL, job).Gatherer(registry)
	}

	return r
}

// ObserveRun records a completed deploy's verdict and duration.
func (r *Recorder) ObserveRun(verdict string, duration time.Duration) {
	r.deploysTotal.WithLabelValues(verdict).Inc()
	r.deploySeconds.Observe(duration.Seconds())
}

// ObserveResource records a single resource's terminal state.
func (r *Recorder) ObserveResource(kind, state string) {
	r.resourceState.WithLabelValues(kind, state).Inc()
}

// Push ships the collected metrics to the configured Pushgateway. It
// returns an error for the caller to log; it must never gate a verdict.
func (r *Recorder) Push() error {
	if r.pusher == nil {
		return nil
	}

	return r.pusher.Push()
}
