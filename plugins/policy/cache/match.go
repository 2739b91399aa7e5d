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
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	"github.com/netfence/netfence/plugins/policy/utils"
)

// getPodsByMatchLabels returns identifiers of pods in the namespace that
// carry all of the given labels. The result is computed by intersecting
// label-index buckets.
func (pc *PolicyCache) getPodsByMatchLabels(namespace string,
	matchLabels []*policymodel.Label) []string {

	if len(matchLabels) == 0 {
		return []string{}
	}
	pods := pc.configuredPods.LookupPodsByLabel(
		namespace + "/" + matchLabels[0].Key + "/" + matchLabels[0].Value)
	for _, label := range matchLabels[1:] {
		bucket := pc.configuredPods.LookupPodsByLabel(
			namespace + "/" + label.Key + "/" + label.Value)
		pods = utils.Intersect(pods, bucket)
		if len(pods) == 0 {
			break
		}
	}
	return pods
}

// getPodsByMatchExpressions returns identifiers of pods in the namespace
// that satisfy all of the given match expressions.
func (pc *PolicyCache) getPodsByMatchExpressions(namespace string,
	matchExpressions []*policymodel.MatchExpression) []string {

	if len(matchExpressions) == 0 {
		return []string{}
	}
	pods := pc.getPodsByMatchExpression(namespace, matchExpressions[0])
	for _, expression := range matchExpressions[1:] {
		pods = utils.Intersect(pods, pc.getPodsByMatchExpression(namespace, expression))
		if len(pods) == 0 {
			break
		}
	}
	return pods
}

func (pc *PolicyCache) getPodsByMatchExpression(namespace string,
	expression *policymodel.MatchExpression) []string {

	switch expression.Operator {
	case policymodel.OpIn:
		pods := []string{}
		for _, value := range expression.Values {
			pods = utils.Union(pods, pc.configuredPods.LookupPodsByLabel(
				namespace+"/"+expression.Key+"/"+value))
		}
		return pods

	case policymodel.OpNotIn:
		// pods without the label key satisfy NotIn as well
		inPods := []string{}
		for _, value := range expression.Values {
			inPods = utils.Union(inPods, pc.configuredPods.LookupPodsByLabel(
				namespace+"/"+expression.Key+"/"+value))
		}
		return utils.Difference(
			pc.configuredPods.LookupPodsByNamespace(namespace), inPods)

	case policymodel.OpExists:
		return pc.configuredPods.LookupPodsByLabelKey(namespace + "/" + expression.Key)

	case policymodel.OpDoesNotExist:
		return utils.Difference(
			pc.configuredPods.LookupPodsByNamespace(namespace),
			pc.configuredPods.LookupPodsByLabelKey(namespace+"/"+expression.Key))
	}

	pc.Log.Warnf("unhandled match expression operator: %q", expression.Operator)
	return []string{}
}

// getNamespacesByMatchLabels returns names of namespaces that carry all of
// the given labels.
func (pc *PolicyCache) getNamespacesByMatchLabels(matchLabels []*policymodel.Label) []string {
	if len(matchLabels) == 0 {
		return []string{}
	}
	namespaces := pc.configuredNamespaces.LookupNamespacesByLabel(
		matchLabels[0].Key + "/" + matchLabels[0].Value)
	for _, label := range matchLabels[1:] {
		bucket := pc.configuredNamespaces.LookupNamespacesByLabel(
			label.Key + "/" + label.Value)
		namespaces = utils.Intersect(namespaces, bucket)
		if len(namespaces) == 0 {
			break
		}
	}
	return namespaces
}

// getNamespacesByMatchExpressions returns names of namespaces that satisfy
// all of the given match expressions.
func (pc *PolicyCache) getNamespacesByMatchExpressions(
	matchExpressions []*policymodel.MatchExpression) []string {

	if len(matchExpressions) == 0 {
		return []string{}
	}
	namespaces := pc.getNamespacesByMatchExpression(matchExpressions[0])
	for _, expression := range matchExpressions[1:] {
		namespaces = utils.Intersect(namespaces,
			pc.getNamespacesByMatchExpression(expression))
		if len(namespaces) == 0 {
			break
		}
	}
	return namespaces
}

func (pc *PolicyCache) getNamespacesByMatchExpression(
	expression *policymodel.MatchExpression) []string {

	switch expression.Operator {
	case policymodel.OpIn:
		namespaces := []string{}
		for _, value := range expression.Values {
			namespaces = utils.Union(namespaces,
				pc.configuredNamespaces.LookupNamespacesByLabel(expression.Key+"/"+value))
		}
		return namespaces

	case policymodel.OpNotIn:
		inNamespaces := []string{}
		for _, value := range expression.Values {
			inNamespaces = utils.Union(inNamespaces,
				pc.configuredNamespaces.LookupNamespacesByLabel(expression.Key+"/"+value))
		}
		return utils.Difference(pc.configuredNamespaces.ListAll(), inNamespaces)

	case policymodel.OpExists:
		return pc.configuredNamespaces.LookupNamespacesByLabelKey(expression.Key)

	case policymodel.OpDoesNotExist:
		return utils.Difference(
			pc.configuredNamespaces.ListAll(),
			pc.configuredNamespaces.LookupNamespacesByLabelKey(expression.Key))
	}

	pc.Log.Warnf("unhandled match expression operator: %q", expression.Operator)
	return []string{}
}

// matchesSelector evaluates a label selector directly against a label map.
// A nil or empty selector matches everything.
func matchesSelector(selector *policymodel.LabelSelector, labels map[string]string) bool {
	if selector == nil {
		return true
	}
	for _, label := range selector.MatchLabels {
		if value, exists := labels[label.Key]; !exists || value != label.Value {
			return false
		}
	}
	for _, expression := range selector.MatchExpressions {
		if !matchesExpression(expression, labels) {
			return false
		}
	}
	return true
}

func matchesExpression(expression *policymodel.MatchExpression, labels map[string]string) bool {
	value, exists := labels[expression.Key]
	switch expression.Operator {
	case policymodel.OpIn:
		return exists && containsString(expression.Values, value)
	case policymodel.OpNotIn:
		return !exists || !containsString(expression.Values, value)
	case policymodel.OpExists:
		return exists
	case policymodel.OpDoesNotExist:
		return !exists
	}
	return false
}

func containsString(haystack []string, needle string) bool {
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
