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
	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
)

// affectedByPeer returns the pods selected by policies that reference
// the given pod as a peer of any of their rules. These pods carry rules
// with the peer's IP address and are outdated whenever the peer changes.
func (pp *PolicyProcessor) affectedByPeer(changedPod *podmodel.Pod) []podmodel.ID {
	affected := []podmodel.ID{}
	for _, policyID := range pp.Cache.ListAllPolicies() {
		found, policyData := pp.Cache.LookupPolicy(policyID)
		if !found {
			continue
		}
		if !pp.policyReferencesPod(policyData, changedPod) {
			continue
		}
		affected = append(affected,
			pp.Cache.LookupPodsByNSLabelSelector(policyData.Namespace, policyData.Pods)...)
	}
	return affected
}

// policyReferencesPod tells whether any peer of any rule of the policy
// selects the given pod.
func (pp *PolicyProcessor) policyReferencesPod(policy *policymodel.Policy, pod *podmodel.Pod) bool {
	for _, rule := range policy.IngressRules {
		for _, peer := range rule.From {
			if pp.peerMatchesPod(policy, peer, pod) {
				return true
			}
		}
	}
	for _, rule := range policy.EgressRules {
		for _, peer := range rule.To {
			if pp.peerMatchesPod(policy, peer, pod) {
				return true
			}
		}
	}
	return false
}

// peerMatchesPod evaluates a single peer selector against the pod.
// A peer with a pod selector only is scoped to the namespace of the
// policy, a namespace selector widens the scope to all matching
// namespaces.
func (pp *PolicyProcessor) peerMatchesPod(policy *policymodel.Policy, peer *policymodel.Peer, pod *podmodel.Pod) bool {
	if peer.IPBlock != nil {
		// Address ranges do not reference pod objects.
		return false
	}

	if peer.Namespaces != nil {
		found, namespaceData := pp.Cache.LookupNamespace(namespacemodel.ID(pod.Namespace))
		if !found || !matchSelector(peer.Namespaces, namespaceLabelMap(namespaceData)) {
			return false
		}
		if peer.Pods == nil {
			return true
		}
		return matchSelector(peer.Pods, podLabelMap(pod))
	}

	if peer.Pods != nil {
		if pod.Namespace != policy.Namespace {
			return false
		}
		return matchSelector(peer.Pods, podLabelMap(pod))
	}
	return false
}

// matchSelector evaluates a label selector against a label map. All
// match labels and match expressions must hold, a nil or empty selector
// matches everything.
func matchSelector(selector *policymodel.LabelSelector, labels map[string]string) bool {
	if selector == nil {
		return true
	}
	for _, label := range selector.MatchLabels {
		if value, exists := labels[label.Key]; !exists || value != label.Value {
			return false
		}
	}
	for _, expression := range selector.MatchExpressions {
		if !matchExpression(expression, labels) {
			return false
		}
	}
	return true
}

func matchExpression(expression *policymodel.MatchExpression, labels map[string]string) bool {
	value, exists := labels[expression.Key]
	switch expression.Operator {
	case policymodel.OpIn:
		return exists && stringInSlice(expression.Values, value)
	case policymodel.OpNotIn:
		return !exists || !stringInSlice(expression.Values, value)
	case policymodel.OpExists:
		return exists
	case policymodel.OpDoesNotExist:
		return !exists
	}
	return false
}

func stringInSlice(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func podLabelMap(pod *podmodel.Pod) map[string]string {
	labels := make(map[string]string)
	for _, label := range pod.Labels {
		labels[label.Key] = label.Value
	}
	return labels
}

func namespaceLabelMap(namespace *namespacemodel.Namespace) map[string]string {
	labels := make(map[string]string)
	for _, label := range namespace.Labels {
		labels[label.Key] = label.Value
	}
	return labels
}

func labelMapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		if other, exists := b[key]; !exists || other != value {
			return false
		}
	}
	return true
}

// podChanged tells whether a policy-relevant attribute of the pod
// changed: its address, its labels or its container ports.
func podChanged(oldPod, newPod *podmodel.Pod) bool {
	if oldPod.IPAddress != newPod.IPAddress {
		return true
	}
	if !labelMapsEqual(podLabelMap(oldPod), podLabelMap(newPod)) {
		return true
	}
	return !containersEqual(oldPod.Containers, newPod.Containers)
}

func containersEqual(a, b []*podmodel.Container) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || len(a[i].Ports) != len(b[i].Ports) {
			return false
		}
		for j := range a[i].Ports {
			portA, portB := a[i].Ports[j], b[i].Ports[j]
			if portA.Name != portB.Name || portA.Protocol != portB.Protocol || portA.Port != portB.Port {
				return false
			}
		}
	}
	return true
}
