/*

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

// Package metrics holds the operator's Prometheus collectors and a Sink that
// implements supervisor.StatsSink against them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var TappPollsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "operator",
		Subsystem: "kco",
		Name:      "tapp_polls_total",
		Help:      "Total number of TApp state poll cycles, by outcome.",
	},
	[]string{"namespace", "tapp_name", "status"},
)

var TappPollDurationSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "operator",
		Subsystem: "kco",
		Name:      "tapp_poll_duration_seconds",
		Help:      "Duration of a single TApp poll cycle in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"namespace", "tapp_name"},
)

var EventsGeneratedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "operator",
		Subsystem: "kco",
		Name:      "events_generated_total",
		Help:      "Total number of cluster Events generated, by type.",
	},
	[]string{"namespace", "tapp_name", "event_type"},
)

var ActionsExecutedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "operator",
		Subsystem: "kco",
		Name:      "actions_executed_total",
		Help:      "Total number of effector dispatches, by action and outcome.",
	},
	[]string{"namespace", "tapp_name", "action", "status"},
)

var ActiveMonitors = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "operator",
		Subsystem: "kco",
		Name:      "active_monitors",
		Help:      "Number of TargetApps currently being monitored.",
	},
)

// All returns every operator collector for registration with a Prometheus registry.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		TappPollsTotal,
		TappPollDurationSeconds,
		EventsGeneratedTotal,
		ActionsExecutedTotal,
		ActiveMonitors,
	}
}

// Sink implements supervisor.StatsSink by recording into the package's
// Prometheus collectors.
type Sink struct{}

func (Sink) RecordPoll(namespace, tappName, status string, duration time.Duration) {
	TappPollsTotal.WithLabelValues(namespace, tappName, status).Inc()
	TappPollDurationSeconds.WithLabelValues(namespace, tappName).Observe(duration.Seconds())
}

func (Sink) RecordEvent(namespace, tappName, eventType string) {
	EventsGeneratedTotal.WithLabelValues(namespace, tappName, eventType).Inc()
}

func (Sink) RecordAction(namespace, tappName, action, status string) {
	ActionsExecutedTotal.WithLabelValues(namespace, tappName, action, status).Inc()
}

// SetActiveMonitors reports the current number of monitored TargetApps.
func SetActiveMonitors(n int) {
	ActiveMonitors.Set(float64(n))
}
