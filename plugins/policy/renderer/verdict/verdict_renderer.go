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

// Package verdict implements a renderer that installs the rules only
// into an in-memory cache and evaluates traffic verdicts against them.
// It backs the simulation and rule-dump APIs and stands in for the
// packet-filtering backends in tests.
package verdict

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/policy/renderer"
	"github.com/netfence/netfence/plugins/policy/renderer/cache"
)

// TrafficDirection distinguishes the direction of the evaluated traffic
// with respect to the pod.
type TrafficDirection int

const (
	// IngressTraffic arrives into the pod.
	IngressTraffic TrafficDirection = iota

	// EgressTraffic leaves the pod.
	EgressTraffic
)

// String converts TrafficDirection into a human-readable string.
func (td TrafficDirection) String() string {
	switch td {
	case IngressTraffic:
		return "ingress"
	case EgressTraffic:
		return "egress"
	}
	return "invalid"
}

// TrafficAction is the verdict for the evaluated traffic.
type TrafficAction int

const (
	// UnmatchedTraffic hits no rule. The pod is not isolated in the
	// direction and the traffic is implicitly allowed.
	UnmatchedTraffic TrafficAction = iota

	// AllowedTraffic hits a permit rule.
	AllowedTraffic

	// DeniedTraffic hits a deny rule.
	DeniedTraffic
)

// String converts TrafficAction into a human-readable string.
func (ta TrafficAction) String() string {
	switch ta {
	case UnmatchedTraffic:
		return "unmatched"
	case AllowedTraffic:
		return "allowed"
	case DeniedTraffic:
		return "denied"
	}
	return "invalid"
}

// Renderer implements renderer.PolicyRendererAPI on top of the renderer
// cache, without any dataplane underneath.
type Renderer struct {
	Deps

	cache *cache.RendererCache
}

// Deps lists dependencies of the verdict renderer.
type Deps struct {
	Log logrus.FieldLogger
}

// Init initializes the renderer.
func (r *Renderer) Init() error {
	r.cache = &cache.RendererCache{
		Deps: cache.Deps{Log: r.Log},
	}
	r.cache.Init()
	return nil
}

// NewTxn starts a new transaction.
func (r *Renderer) NewTxn(resync bool) renderer.Txn {
	return &RendererTxn{
		renderer: r,
		cacheTxn: r.cache.NewTxn(resync),
	}
}

// GetPodConfig returns the rules last rendered for the pod, or nil.
func (r *Renderer) GetPodConfig(pod podmodel.ID) *cache.PodConfig {
	return r.cache.GetPodConfig(pod)
}

// GetAllPods returns the set of all rendered pods.
func (r *Renderer) GetAllPods() cache.PodSet {
	return r.cache.GetAllPods()
}

// GetIsolatedPods returns the set of pods with at least one rule table.
func (r *Renderer) GetIsolatedPods() cache.PodSet {
	return r.cache.GetIsolatedPods()
}

// GetLocalTableByPod returns the rule table of the pod for the given
// direction, or nil.
func (r *Renderer) GetLocalTableByPod(direction cache.RuleDirection, pod podmodel.ID) *cache.RuleTable {
	return r.cache.GetLocalTableByPod(direction, pod)
}

// TestTraffic returns the verdict the rendered rules give to the
// described traffic. Rules are evaluated in order, the first match wins.
// For ingress traffic <destIP> belongs to the pod, for egress traffic
// <srcIP> does.
func (r *Renderer) TestTraffic(pod podmodel.ID, direction TrafficDirection,
	srcIP, destIP net.IP, protocol renderer.ProtocolType, srcPort, destPort uint16) TrafficAction {

	var table *cache.RuleTable
	if direction == IngressTraffic {
		table = r.cache.GetLocalTableByPod(cache.IngressRules, pod)
	} else {
		table = r.cache.GetLocalTableByPod(cache.EgressRules, pod)
	}
	if table == nil {
		return UnmatchedTraffic
	}
	for i := 0; i < table.NumOfRules; i++ {
		rule := table.Rules[i]
		if !rule.Matches(srcIP, destIP, protocol, srcPort, destPort) {
			continue
		}
		if rule.Action == renderer.ActionPermit {
			return AllowedTraffic
		}
		return DeniedTraffic
	}
	return UnmatchedTraffic
}

// RendererTxn implements the transaction of the verdict renderer.
type RendererTxn struct {
	renderer *Renderer
	cacheTxn cache.Txn
}

// Render includes the rules of the pod into the transaction.
func (rt *RendererTxn) Render(pod podmodel.ID, podIP *net.IPNet,
	ingress []*renderer.Rule, egress []*renderer.Rule, removed bool) renderer.Txn {

	rt.cacheTxn.Update(pod, &cache.PodConfig{
		PodIP:   podIP,
		Ingress: ingress,
		Egress:  egress,
		Removed: removed,
	})
	return rt
}

// Commit applies the transaction into the cache.
func (rt *RendererTxn) Commit() error {
	start := time.Now()
	changes := rt.cacheTxn.GetChanges()
	if len(changes) > 0 {
		rt.renderer.Log.WithField("changes", len(changes)).
			Debug("Committing rule changes into the verdict cache")
	}
	err := rt.cacheTxn.Commit()
	renderer.ReportCommit("verdict", time.Since(start), rt.renderer.cache.CountRules(), err)
	return err
}
