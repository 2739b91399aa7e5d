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

package configurator

import (
	"net"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/pkg/ipnet"
	"github.com/netfence/netfence/plugins/policy/cache"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

// PolicyConfigurator implements PolicyConfiguratorAPI.
type PolicyConfigurator struct {
	Deps

	renderers []renderer.PolicyRendererAPI
}

// Deps lists dependencies of the configurator.
type Deps struct {
	Log   logrus.FieldLogger
	Cache cache.PolicyCacheAPI
}

// Init does nothing for the configurator, renderers are registered
// separately.
func (pc *PolicyConfigurator) Init() error {
	return nil
}

// RegisterRenderer adds a renderer.
func (pc *PolicyConfigurator) RegisterRenderer(renderer renderer.PolicyRendererAPI) error {
	pc.renderers = append(pc.renderers, renderer)
	return nil
}

// Close does nothing for the configurator.
func (pc *PolicyConfigurator) Close() error {
	return nil
}

// NewTxn starts a new transaction.
func (pc *PolicyConfigurator) NewTxn(resync bool) Txn {
	return &PolicyConfiguratorTxn{
		configurator: pc,
		resync:       resync,
		config:       make(map[podmodel.ID]*podTxnConfig),
	}
}

// PolicyConfiguratorTxn implements the transaction of the configurator.
type PolicyConfiguratorTxn struct {
	configurator *PolicyConfigurator
	resync       bool
	config       map[podmodel.ID]*podTxnConfig
}

type podTxnConfig struct {
	policies []*ResolvedPolicy
	removed  bool
}

// Configure replaces the set of policies applied to the pod.
func (pct *PolicyConfiguratorTxn) Configure(pod podmodel.ID, policies []*ResolvedPolicy) Txn {
	pct.config[pod] = &podTxnConfig{policies: policies}
	return pct
}

// Delete removes the configuration of the pod.
func (pct *PolicyConfiguratorTxn) Delete(pod podmodel.ID) Txn {
	pct.config[pod] = &podTxnConfig{removed: true}
	return pct
}

// Commit compiles the policies into rules and renders them into every
// registered renderer.
func (pct *PolicyConfiguratorTxn) Commit() error {
	var firstErr error
	log := pct.configurator.Log

	for _, policyRenderer := range pct.configurator.renderers {
		rendererTxn := policyRenderer.NewTxn(pct.resync)
		for pod, podConfig := range pct.config {
			if podConfig.removed {
				rendererTxn.Render(pod, nil, nil, nil, true)
				continue
			}
			podIP := pct.lookupPodIP(pod)
			if podIP == nil {
				// Without an address the pod receives no traffic, stale
				// state left behind an address change is removed.
				log.WithField("pod", pod).Debug("Pod has no IP address assigned, removing its rules")
				rendererTxn.Render(pod, nil, nil, nil, true)
				continue
			}
			ingress := pct.generateRules(MatchIngress, podConfig.policies)
			egress := pct.generateRules(MatchEgress, podConfig.policies)
			rendererTxn.Render(pod, podIP, ingress, egress, false)
		}
		if err := rendererTxn.Commit(); err != nil {
			log.WithField("err", err).Error("Renderer transaction failed")
			if firstErr == nil {
				firstErr = errors.Wrap(err, "renderer commit")
			}
		}
	}
	return firstErr
}

// generateRules compiles the policies into an ordered-insertable list of
// rules for one direction. An empty list is returned for a direction the
// pod is not isolated in.
func (pct *PolicyConfiguratorTxn) generateRules(direction MatchType, policies []*ResolvedPolicy) []*renderer.Rule {
	rules := []*renderer.Rule{}
	isolated := false

	for _, policy := range policies {
		if !policyAppliesTo(policy.Type, direction) {
			continue
		}
		isolated = true
		for _, match := range policy.Matches {
			if match.Type != direction {
				continue
			}
			rules = append(rules, pct.compileMatch(direction, match)...)
		}
	}

	if isolated {
		// Traffic not allowed by any match of any policy is dropped.
		rules = append(rules, &renderer.Rule{Action: renderer.ActionDeny})
	}
	return rules
}

// compileMatch translates a single match into rules. Peers are expanded
// into one permit per (peer, port), excluded ranges of IP blocks into
// denies that order before the permit of the block.
func (pct *PolicyConfiguratorTxn) compileMatch(direction MatchType, match Match) []*renderer.Rule {
	rules := []*renderer.Rule{}

	appendRules := func(action renderer.ActionType, peer *net.IPNet) {
		if len(match.Ports) == 0 {
			rules = append(rules, newRule(action, direction, peer, renderer.ANY, renderer.AnyPort))
			return
		}
		for _, port := range match.Ports {
			rules = append(rules, newRule(action, direction, peer, port.Protocol.rendererProtocol(), port.Number))
		}
	}

	if match.Pods == nil && match.IPBlocks == nil {
		// No layer-3 restriction, allow from/to all peers. Non-nil but
		// empty peers mean the opposite, selectors that matched nothing.
		appendRules(renderer.ActionPermit, nil)
	}
	for _, peer := range match.Pods {
		peerIP := pct.lookupPodIP(peer)
		if peerIP == nil {
			pct.configurator.Log.WithField("pod", peer).Debug("Peer pod has no IP address assigned, skipped")
			continue
		}
		appendRules(renderer.ActionPermit, peerIP)
	}
	for _, block := range match.IPBlocks {
		for i := range block.Except {
			except := block.Except[i]
			appendRules(renderer.ActionDeny, &except)
		}
		network := block.Network
		appendRules(renderer.ActionPermit, &network)
	}
	return rules
}

// lookupPodIP returns the host network of the pod, nil if the pod is
// unknown or has no address assigned.
func (pct *PolicyConfiguratorTxn) lookupPodIP(pod podmodel.ID) *net.IPNet {
	found, podData := pct.configurator.Cache.LookupPod(pod)
	if !found || podData.IPAddress == "" {
		return nil
	}
	podIP := net.ParseIP(podData.IPAddress)
	if podIP == nil {
		pct.configurator.Log.WithFields(logrus.Fields{
			"pod": pod,
			"ip":  podData.IPAddress,
		}).Warn("Pod has an unparsable IP address")
		return nil
	}
	return ipnet.HostNetwork(podIP)
}

func policyAppliesTo(policyType PolicyType, direction MatchType) bool {
	if policyType == PolicyAll {
		return true
	}
	if direction == MatchIngress {
		return policyType == PolicyIngress
	}
	return policyType == PolicyEgress
}

func newRule(action renderer.ActionType, direction MatchType, peer *net.IPNet, protocol renderer.ProtocolType, port uint16) *renderer.Rule {
	rule := &renderer.Rule{
		Action:   action,
		Protocol: protocol,
		DestPort: port,
	}
	if direction == MatchIngress {
		rule.SrcNetwork = peer
	} else {
		rule.DestNetwork = peer
	}
	return rule
}

func (pt ProtocolType) rendererProtocol() renderer.ProtocolType {
	if pt == UDP {
		return renderer.UDP
	}
	return renderer.TCP
}
