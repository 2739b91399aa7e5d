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

package renderer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	commitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "netfence_renderer_commits_total",
		Help: "Number of committed renderer transactions.",
	}, []string{"renderer", "result"})

	commitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "netfence_renderer_commit_duration_seconds",
		Help:    "Time spent committing a single renderer transaction.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"renderer"})

	rulesRendered = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "netfence_renderer_rules",
		Help: "Number of rules currently rendered by the backend.",
	}, []string{"renderer"})
)

func init() {
	prometheus.MustRegister(commitsTotal)
	prometheus.MustRegister(commitDuration)
	prometheus.MustRegister(rulesRendered)
}

// ReportCommit records the outcome of one committed transaction. The
// rule count is ignored on failure, the gauge keeps the last good value.
func ReportCommit(renderer string, elapsed time.Duration, rules int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	commitsTotal.WithLabelValues(renderer, result).Inc()
	commitDuration.WithLabelValues(renderer).Observe(elapsed.Seconds())
	if err == nil {
		rulesRendered.WithLabelValues(renderer).Set(float64(rules))
	}
}
