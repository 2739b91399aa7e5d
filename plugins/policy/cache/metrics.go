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

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	gaugePods = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netfence_cache_pods",
		Help: "Number of pods held by the policy cache.",
	})
	gaugeNamespaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netfence_cache_namespaces",
		Help: "Number of namespaces held by the policy cache.",
	})
	gaugePolicies = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "netfence_cache_policies",
		Help: "Number of policies held by the policy cache.",
	})
)

func init() {
	prometheus.MustRegister(gaugePods)
	prometheus.MustRegister(gaugeNamespaces)
	prometheus.MustRegister(gaugePolicies)
}

func (pc *PolicyCache) updateMetrics() {
	gaugePods.Set(float64(len(pc.configuredPods.ListAll())))
	gaugeNamespaces.Set(float64(len(pc.configuredNamespaces.ListAll())))
	gaugePolicies.Set(float64(len(pc.configuredPolicies.ListAll())))
}
