// Copyright (c) 2019 The Netfence Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netfence/netfence/plugins/controller/api"
)

var (
	eventsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netfence_controller_events_total",
		Help: "Number of events processed by the event loop.",
	}, []string{"event", "result"})

	eventDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "netfence_controller_event_duration_seconds",
		Help:    "Time spent processing a single event.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	queueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netfence_controller_queue_length",
		Help: "Number of events waiting in the event queue.",
	})
)

func init() {
	prometheus.MustRegister(eventsProcessed)
	prometheus.MustRegister(eventDuration)
	prometheus.MustRegister(queueLength)
}

func reportEventProcessed(event api.Event, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsProcessed.WithLabelValues(event.GetName(), result).Inc()
	eventDuration.Observe(elapsed.Seconds())
}
