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

// Package cache implements the policy cache. It keeps the mirrored state
// of pods, namespaces and policies together with label indexes and feeds
// the policy processor with change notifications.
package cache

import (
	"github.com/sirupsen/logrus"

	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	controller "github.com/netfence/netfence/plugins/controller/api"
	"github.com/netfence/netfence/plugins/policy/cache/namespaceidx"
	"github.com/netfence/netfence/plugins/policy/cache/podidx"
	"github.com/netfence/netfence/plugins/policy/cache/policyidx"
	"github.com/netfence/netfence/plugins/policy/utils"
)

// PolicyCache implements PolicyCacheAPI.
type PolicyCache struct {
	Deps

	configuredPods       *podidx.ConfigIndex
	configuredPolicies   *policyidx.ConfigIndex
	configuredNamespaces *namespaceidx.ConfigIndex

	watchers []PolicyCacheWatcher
}

// Deps lists the dependencies of the policy cache.
type Deps struct {
	Log logrus.FieldLogger
}

// Init allocates the internal indexes.
func (pc *PolicyCache) Init() error {
	pc.configuredPods = podidx.NewConfigIndex()
	pc.configuredPolicies = policyidx.NewConfigIndex()
	pc.configuredNamespaces = namespaceidx.NewConfigIndex()
	pc.watchers = []PolicyCacheWatcher{}
	return nil
}

// Update processes a state-change event. The change is applied into the
// cache and propagated to the watchers.
func (pc *PolicyCache) Update(stateChange *controller.StateChange) error {
	if err := pc.changePropagateEvent(stateChange); err != nil {
		return err
	}
	pc.updateMetrics()
	return nil
}

// Resync replaces the cached state with the given snapshot and notifies
// the watchers.
func (pc *PolicyCache) Resync(snapshot *controller.StateSnapshot) error {
	if err := pc.resyncPropagateEvent(snapshot); err != nil {
		return err
	}
	pc.updateMetrics()
	return nil
}

// Watch subscribes a watcher for change notifications.
func (pc *PolicyCache) Watch(watcher PolicyCacheWatcher) error {
	pc.watchers = append(pc.watchers, watcher)
	return nil
}

// LookupPod returns the state of a given pod.
func (pc *PolicyCache) LookupPod(pod podmodel.ID) (found bool, data *podmodel.Pod) {
	return pc.configuredPods.LookupPod(pod.String())
}

// LookupPodsByNSLabelSelector evaluates a label selector within a
// namespace and returns the matching pods.
func (pc *PolicyCache) LookupPodsByNSLabelSelector(namespace string,
	selector *policymodel.LabelSelector) []podmodel.ID {

	// an empty pod selector matches all pods in the namespace
	if isEmptySelector(selector) {
		return utils.UnstringPodID(pc.configuredPods.LookupPodsByNamespace(namespace))
	}

	mlPods := pc.getPodsByMatchLabels(namespace, selector.MatchLabels)
	mePods := pc.getPodsByMatchExpressions(namespace, selector.MatchExpressions)

	if len(selector.MatchLabels) > 0 && len(selector.MatchExpressions) > 0 {
		return utils.UnstringPodID(utils.Intersect(mlPods, mePods))
	}
	if len(selector.MatchLabels) > 0 {
		return utils.UnstringPodID(mlPods)
	}
	return utils.UnstringPodID(mePods)
}

// LookupPodsByLabelSelector evaluates a namespace label selector and
// returns pods from all matching namespaces.
func (pc *PolicyCache) LookupPodsByLabelSelector(
	nsSelector *policymodel.LabelSelector) []podmodel.ID {

	// an empty selector covers even pods of namespaces the cache has no
	// state for
	if isEmptySelector(nsSelector) {
		return pc.ListAllPods()
	}

	pods := []string{}
	for _, ns := range pc.LookupNamespacesByLabelSelector(nsSelector) {
		pods = append(pods, pc.configuredPods.LookupPodsByNamespace(ns.String())...)
	}
	return utils.UnstringPodID(pods)
}

// LookupPodsByNamespace returns all pods in the given namespace.
func (pc *PolicyCache) LookupPodsByNamespace(namespace string) []podmodel.ID {
	return utils.UnstringPodID(pc.configuredPods.LookupPodsByNamespace(namespace))
}

// ListAllPods returns all known pods.
func (pc *PolicyCache) ListAllPods() []podmodel.ID {
	return utils.UnstringPodID(pc.configuredPods.ListAll())
}

// LookupPolicy returns the state of a given policy.
func (pc *PolicyCache) LookupPolicy(policy policymodel.ID) (found bool, data *policymodel.Policy) {
	return pc.configuredPolicies.LookupPolicy(policy.String())
}

// LookupPoliciesByPod returns all policies that select the given pod.
// Candidates are gathered from the label index and from the wildcard
// index and verified against the full selector.
func (pc *PolicyCache) LookupPoliciesByPod(pod podmodel.ID) []policymodel.ID {
	found, podData := pc.configuredPods.LookupPod(pod.String())
	if !found {
		return nil
	}

	candidates := pc.configuredPolicies.LookupWildcardPolicies(podData.Namespace)
	for _, label := range podData.Labels {
		nsLabel := podData.Namespace + "/" + label.Key + "/" + label.Value
		candidates = utils.Union(candidates,
			pc.configuredPolicies.LookupPoliciesByPodLabel(nsLabel))
	}

	podLabels := podLabelMap(podData)
	policies := []policymodel.ID{}
	for _, policyID := range candidates {
		found, policyData := pc.configuredPolicies.LookupPolicy(policyID)
		if !found {
			continue
		}
		if matchesSelector(policyData.Pods, podLabels) {
			policies = append(policies, policymodel.GetID(policyData))
		}
	}
	return policies
}

// ListAllPolicies returns all known policies.
func (pc *PolicyCache) ListAllPolicies() []policymodel.ID {
	return utils.UnstringPolicyID(pc.configuredPolicies.ListAll())
}

// LookupNamespace returns the state of a given namespace.
func (pc *PolicyCache) LookupNamespace(namespace namespacemodel.ID) (found bool, data *namespacemodel.Namespace) {
	return pc.configuredNamespaces.LookupNamespace(namespace.String())
}

// LookupNamespacesByLabelSelector evaluates a label selector and returns
// the matching namespaces.
func (pc *PolicyCache) LookupNamespacesByLabelSelector(
	selector *policymodel.LabelSelector) []namespacemodel.ID {

	// an empty selector matches all namespaces
	if isEmptySelector(selector) {
		return utils.UnstringNamespaceID(pc.configuredNamespaces.ListAll())
	}

	mlNamespaces := pc.getNamespacesByMatchLabels(selector.MatchLabels)
	meNamespaces := pc.getNamespacesByMatchExpressions(selector.MatchExpressions)

	if len(selector.MatchLabels) > 0 && len(selector.MatchExpressions) > 0 {
		return utils.UnstringNamespaceID(utils.Intersect(mlNamespaces, meNamespaces))
	}
	if len(selector.MatchLabels) > 0 {
		return utils.UnstringNamespaceID(mlNamespaces)
	}
	return utils.UnstringNamespaceID(meNamespaces)
}

// ListAllNamespaces returns all known namespaces.
func (pc *PolicyCache) ListAllNamespaces() []namespacemodel.ID {
	return utils.UnstringNamespaceID(pc.configuredNamespaces.ListAll())
}

func isEmptySelector(selector *policymodel.LabelSelector) bool {
	return selector == nil ||
		(len(selector.MatchLabels) == 0 && len(selector.MatchExpressions) == 0)
}
