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

package processor

import (
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	"github.com/netfence/netfence/pkg/ipnet"
	config "github.com/netfence/netfence/plugins/policy/configurator"
	"github.com/netfence/netfence/plugins/policy/utils"
)

// resolvePolicy translates a policy into the resolved form consumed by
// the configurator: label selectors are expanded into pod IDs, named
// ports into numbers and IP blocks are parsed. The translation is
// relative to the target pod, named ingress ports resolve against its
// own containers.
func (pp *PolicyProcessor) resolvePolicy(policy *policymodel.Policy, targetPod *podmodel.Pod) *config.ResolvedPolicy {
	resolved := &config.ResolvedPolicy{
		ID:      policymodel.GetID(policy),
		Type:    resolvePolicyType(policy),
		Matches: []config.Match{},
	}
	for _, rule := range policy.IngressRules {
		resolved.Matches = append(resolved.Matches, pp.resolveIngressRule(policy, rule, targetPod)...)
	}
	for _, rule := range policy.EgressRules {
		resolved.Matches = append(resolved.Matches, pp.resolveEgressRule(policy, rule)...)
	}
	return resolved
}

func resolvePolicyType(policy *policymodel.Policy) config.PolicyType {
	ingress := policy.AppliesToIngress()
	egress := policy.AppliesToEgress()
	switch {
	case ingress && egress:
		return config.PolicyAll
	case egress:
		return config.PolicyEgress
	default:
		return config.PolicyIngress
	}
}

// resolveIngressRule expands a single ingress rule. Named ports resolve
// against the target pod, the destination of the matched traffic. A rule
// whose ports all fail to resolve allows nothing and produces no match.
func (pp *PolicyProcessor) resolveIngressRule(policy *policymodel.Policy, rule *policymodel.IngressRule, targetPod *podmodel.Pod) []config.Match {
	peers, blocks := pp.expandPeers(policy, rule.From)

	ports := []config.Port{}
	for _, port := range rule.Ports {
		if resolved, ok := resolvePort(port, targetPod); ok {
			ports = append(ports, resolved)
		}
	}
	if len(rule.Ports) > 0 && len(ports) == 0 {
		return nil
	}

	return []config.Match{{
		Type:     config.MatchIngress,
		Pods:     peers,
		IPBlocks: blocks,
		Ports:    ports,
	}}
}

// resolveEgressRule expands a single egress rule. Named ports resolve
// against each peer pod separately, the peers are the destinations of
// the matched traffic. IP blocks match numeric ports only.
func (pp *PolicyProcessor) resolveEgressRule(policy *policymodel.Policy, rule *policymodel.EgressRule) []config.Match {
	peers, blocks := pp.expandPeers(policy, rule.To)

	if len(rule.Ports) == 0 {
		return []config.Match{{
			Type:     config.MatchEgress,
			Pods:     peers,
			IPBlocks: blocks,
		}}
	}

	numeric := []config.Port{}
	named := []*policymodel.Port{}
	for _, port := range rule.Ports {
		if port.Port.Name != "" {
			named = append(named, port)
			continue
		}
		numeric = append(numeric, config.Port{
			Protocol: resolveProtocol(port.Protocol),
			Number:   uint16(port.Port.Number),
		})
	}

	matches := []config.Match{}
	if len(numeric) > 0 {
		matches = append(matches, config.Match{
			Type:     config.MatchEgress,
			Pods:     peers,
			IPBlocks: blocks,
			Ports:    numeric,
		})
	}

	if len(named) > 0 && len(rule.To) == 0 {
		// A named port without a peer selector cannot be resolved against
		// any particular destination.
		pp.Log.WithField("policy", policymodel.GetID(policy)).
			Warn("Named egress ports without peers are ignored")
	}
	for _, peer := range peers {
		found, peerData := pp.Cache.LookupPod(peer)
		if !found {
			continue
		}
		peerPorts := []config.Port{}
		for _, port := range named {
			if resolved, ok := resolvePort(port, peerData); ok {
				peerPorts = append(peerPorts, resolved)
			}
		}
		if len(peerPorts) > 0 {
			matches = append(matches, config.Match{
				Type:  config.MatchEgress,
				Pods:  []podmodel.ID{peer},
				Ports: peerPorts,
			})
		}
	}
	return matches
}

// expandPeers translates the peers of a rule into pod IDs and parsed IP
// blocks. An empty peer list yields nil pods and nil blocks, the
// configurator treats that as a match of all peers. Selectors that match
// nothing yield empty but non-nil slices instead.
func (pp *PolicyProcessor) expandPeers(policy *policymodel.Policy, peers []*policymodel.Peer) ([]podmodel.ID, []config.IPBlock) {
	if len(peers) == 0 {
		return nil, nil
	}
	pods := []podmodel.ID{}
	blocks := []config.IPBlock{}

	for _, peer := range peers {
		switch {
		case peer.IPBlock != nil:
			if block, ok := pp.parseIPBlock(peer.IPBlock); ok {
				blocks = append(blocks, block)
			}

		case peer.Namespaces != nil && peer.Pods == nil:
			pods = append(pods, pp.Cache.LookupPodsByLabelSelector(peer.Namespaces)...)

		case peer.Namespaces != nil:
			for _, namespace := range pp.Cache.LookupNamespacesByLabelSelector(peer.Namespaces) {
				pods = append(pods, pp.Cache.LookupPodsByNSLabelSelector(string(namespace), peer.Pods)...)
			}

		case peer.Pods != nil:
			pods = append(pods, pp.Cache.LookupPodsByNSLabelSelector(policy.Namespace, peer.Pods)...)
		}
	}

	strPods := utils.RemoveDuplicates(utils.StringPodID(pods))
	return utils.UnstringPodID(strPods), blocks
}

func (pp *PolicyProcessor) parseIPBlock(block *policymodel.IPBlock) (config.IPBlock, bool) {
	network, err := ipnet.ParseCIDR(block.CIDR)
	if err != nil {
		pp.Log.WithFields(map[string]interface{}{
			"cidr": block.CIDR,
			"err":  err,
		}).Warn("Skipping unparsable IP block")
		return config.IPBlock{}, false
	}
	parsed := config.IPBlock{Network: *network}
	for _, except := range block.Except {
		exceptNetwork, err := ipnet.ParseCIDR(except)
		if err != nil {
			pp.Log.WithFields(map[string]interface{}{
				"cidr": except,
				"err":  err,
			}).Warn("Skipping unparsable IP block exclusion")
			continue
		}
		parsed.Except = append(parsed.Except, *exceptNetwork)
	}
	return parsed, true
}

// resolvePort translates a policy port into a numeric one. Named ports
// are looked up among the container ports of the destination pod,
// matching both the name and the protocol.
func resolvePort(port *policymodel.Port, destination *podmodel.Pod) (config.Port, bool) {
	protocol := resolveProtocol(port.Protocol)
	if port.Port.Name == "" {
		return config.Port{Protocol: protocol, Number: uint16(port.Port.Number)}, true
	}
	for _, container := range destination.Containers {
		for _, containerPort := range container.Ports {
			if containerPort.Name != port.Port.Name {
				continue
			}
			if containerPortProtocol(containerPort) != protocol {
				continue
			}
			return config.Port{Protocol: protocol, Number: uint16(containerPort.Port)}, true
		}
	}
	return config.Port{}, false
}

func resolveProtocol(protocol policymodel.Protocol) config.ProtocolType {
	if protocol == policymodel.UDP {
		return config.UDP
	}
	return config.TCP
}

func containerPortProtocol(port *podmodel.ContainerPort) config.ProtocolType {
	if port.Protocol == "UDP" {
		return config.UDP
	}
	return config.TCP
}
