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

// Package iptables implements a renderer that installs the rules as
// iptables chains inside the network namespaces of local pods. Ingress
// rules attach to the INPUT hook of the filter table, egress rules to
// the OUTPUT hook.
package iptables

import (
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/pkg/ipnet"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy/renderer"
	"github.com/netfence/netfence/plugins/policy/renderer/cache"
)

const (
	filterTable = "filter"

	// IngressChain holds the rules for traffic entering the pod.
	IngressChain = "NETFENCE-INGRESS"

	// EgressChain holds the rules for traffic leaving the pod.
	EgressChain = "NETFENCE-EGRESS"
)

// reflexiveRule accepts replies of connections already allowed in the
// opposite direction.
var reflexiveRule = []string{"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"}

// Programmer installs prepared chains into the network namespace of a
// pod.
type Programmer interface {
	// ApplyPodChains replaces the chains of the pod with the given rule
	// specs. An empty list removes the chain of that direction.
	ApplyPodChains(pod *podmanager.LocalPod, ipv6 bool, ingress, egress [][]string) error

	// RemovePodChains removes the chains of both directions and both
	// address families. A missing network namespace is not an error.
	RemovePodChains(pod *podmanager.LocalPod) error
}

// Renderer renders rules into per-pod iptables chains.
type Renderer struct {
	Deps
	cache *cache.RendererCache
}

// Deps lists dependencies of the iptables renderer.
type Deps struct {
	Log        logrus.FieldLogger
	PodManager podmanager.API

	// Programmer may be injected by tests. The default executes the
	// iptables binary inside the pod network namespace.
	Programmer Programmer

	// DisableReflexiveAccept leaves the established/related accept out
	// of the programmed chains, so every packet is evaluated against
	// the rules.
	DisableReflexiveAccept bool
}

// Init prepares the renderer cache.
func (r *Renderer) Init() error {
	if r.Programmer == nil {
		r.Programmer = NewPodNSProgrammer()
	}
	r.cache = &cache.RendererCache{
		Deps: cache.Deps{Log: r.Log},
	}
	r.cache.Init()
	return nil
}

// NewTxn starts a new transaction. The rendering happens in Commit().
func (r *Renderer) NewTxn(resync bool) renderer.Txn {
	return &RendererTxn{
		renderer: r,
		cacheTxn: r.cache.NewTxn(resync),
	}
}

// RendererTxn is a single transaction of the iptables renderer.
type RendererTxn struct {
	renderer *Renderer
	cacheTxn cache.Txn
}

// Render schedules the rule replacement for one pod.
func (rt *RendererTxn) Render(pod podmodel.ID, podIP *net.IPNet,
	ingress []*renderer.Rule, egress []*renderer.Rule, removed bool) renderer.Txn {

	rt.renderer.Log.WithFields(logrus.Fields{
		"pod":     pod,
		"ingress": len(ingress),
		"egress":  len(egress),
		"removed": removed,
	}).Debug("iptables renderer: updating pod")
	rt.cacheTxn.Update(pod, &cache.PodConfig{
		PodIP:   podIP,
		Ingress: ingress,
		Egress:  egress,
		Removed: removed,
	})
	return rt
}

// Commit reprograms the chains of every pod whose rule table assignment
// changed and stores the new state into the cache. Pods with an unchanged
// assignment are not touched.
func (rt *RendererTxn) Commit() error {
	start := time.Now()
	err := rt.commit()
	renderer.ReportCommit("iptables", time.Since(start), rt.renderer.cache.CountRules(), err)
	return err
}

func (rt *RendererTxn) commit() error {
	affected := cache.NewPodSet()
	for _, change := range rt.cacheTxn.GetChanges() {
		affected.Join(change.PreviousPods.SymDiff(change.Table.Pods))
	}

	var firstErr error
	for podID := range affected {
		if err := rt.programPod(podID); err != nil {
			rt.renderer.Log.WithFields(logrus.Fields{
				"pod": podID,
				"err": err,
			}).Error("Failed to program pod chains")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return rt.cacheTxn.Commit()
}

// programPod rewrites the chains of a single pod to match the
// transaction view.
func (rt *RendererTxn) programPod(podID podmodel.ID) error {
	localPod, isLocal := rt.renderer.PodManager.GetLocalPods()[podID]
	if !isLocal {
		// Pods of other nodes are tracked in the cache only.
		return nil
	}

	config := rt.cacheTxn.GetPodConfig(podID)
	if config == nil || config.Removed || config.PodIP == nil {
		return rt.renderer.Programmer.RemovePodChains(localPod)
	}

	ingress := rt.renderSpecs(cache.IngressRules, podID)
	egress := rt.renderSpecs(cache.EgressRules, podID)
	return rt.renderer.Programmer.ApplyPodChains(
		localPod, ipnet.IsIPv6(config.PodIP), ingress, egress)
}

// renderSpecs returns the iptables arguments of the rules assigned to the
// pod in the given direction, led by the reflexive accept.
func (rt *RendererTxn) renderSpecs(direction cache.RuleDirection, podID podmodel.ID) [][]string {
	table := rt.cacheTxn.GetLocalTableByPod(direction, podID)
	if table == nil {
		return nil
	}
	specs := [][]string{}
	if !rt.renderer.DisableReflexiveAccept {
		specs = append(specs, reflexiveRule)
	}
	for _, rule := range table.Rules[:table.NumOfRules] {
		specs = append(specs, ruleSpec(rule))
	}
	return specs
}

// ruleSpec translates one rule into iptables arguments. The protocol
// match must precede the port matches.
func ruleSpec(rule *renderer.Rule) []string {
	spec := []string{"-p", protocolArg(rule.Protocol)}
	if rule.SrcNetwork != nil && len(rule.SrcNetwork.IP) > 0 {
		spec = append(spec, "-s", rule.SrcNetwork.String())
	}
	if rule.SrcPort != renderer.AnyPort {
		spec = append(spec, "--sport", strconv.Itoa(int(rule.SrcPort)))
	}
	if rule.DestNetwork != nil && len(rule.DestNetwork.IP) > 0 {
		spec = append(spec, "-d", rule.DestNetwork.String())
	}
	if rule.DestPort != renderer.AnyPort {
		spec = append(spec, "--dport", strconv.Itoa(int(rule.DestPort)))
	}
	return append(spec, "-j", actionArg(rule.Action))
}

func protocolArg(protocol renderer.ProtocolType) string {
	switch protocol {
	case renderer.TCP:
		return "tcp"
	case renderer.UDP:
		return "udp"
	default:
		return "all"
	}
}

func actionArg(action renderer.ActionType) string {
	if action == renderer.ActionPermit {
		return "ACCEPT"
	}
	return "DROP"
}
