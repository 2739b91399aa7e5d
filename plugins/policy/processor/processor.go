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

// Package processor computes which pods have an outdated policy
// configuration after every state change and re-resolves their policies.
package processor

import (
	"github.com/sirupsen/logrus"

	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy/cache"
	config "github.com/netfence/netfence/plugins/policy/configurator"
	"github.com/netfence/netfence/plugins/policy/utils"
)

// PolicyProcessor processes the mirrored cluster state and re-generates
// the set of resolved policies for every local pod with an outdated
// configuration. It implements the PolicyCacheWatcher interface: for each
// change it determines the list of affected pods (either selected by a
// changed policy or referenced as peers of one) and pushes their
// re-resolved policies into the configurator.
type PolicyProcessor struct {
	Deps

	skipNamespaces map[string]struct{}
}

// Deps lists dependencies of the policy processor.
type Deps struct {
	Log          logrus.FieldLogger
	Cache        cache.PolicyCacheAPI
	PodManager   podmanager.API
	Configurator config.PolicyConfiguratorAPI

	// SkipNamespaces lists namespaces whose pods are never configured
	// (system namespaces).
	SkipNamespaces []string
}

// Init subscribes the processor for the cache change notifications.
func (pp *PolicyProcessor) Init() error {
	pp.skipNamespaces = make(map[string]struct{})
	for _, namespace := range pp.SkipNamespaces {
		pp.skipNamespaces[namespace] = struct{}{}
	}
	return pp.Cache.Watch(pp)
}

// Close deallocates all resources held by the processor.
func (pp *PolicyProcessor) Close() error {
	return nil
}

// Process re-resolves the policies of the given pods and commits them
// into the configurator. Pods that are not local, belong to a skipped
// namespace or no longer exist are removed from the configuration
// instead. The order of the pods is irrelevant.
func (pp *PolicyProcessor) Process(resync bool, pods []podmodel.ID) error {
	txn := pp.Configurator.NewTxn(resync)

	strPods := utils.RemoveDuplicates(utils.StringPodID(pods))
	for _, pod := range utils.UnstringPodID(strPods) {
		if pp.skipped(pod.Namespace) || !pp.PodManager.IsLocalPod(pod) {
			continue
		}
		found, podData := pp.Cache.LookupPod(pod)
		if !found {
			txn.Delete(pod)
			continue
		}

		policies := []*config.ResolvedPolicy{}
		for _, policyID := range pp.Cache.LookupPoliciesByPod(pod) {
			found, policyData := pp.Cache.LookupPolicy(policyID)
			if !found {
				continue
			}
			policies = append(policies, pp.resolvePolicy(policyData, podData))
		}

		pp.Log.WithFields(logrus.Fields{
			"pod":      pod,
			"policies": len(policies),
			"resync":   resync,
		}).Debug("Pod sent to the configurator")
		txn.Configure(pod, policies)
	}
	return txn.Commit()
}

// Resync re-resolves the policies of all local pods. Local pods missing
// from the snapshot are unconfigured by the resync transaction.
func (pp *PolicyProcessor) Resync(data *cache.DataResyncEvent) error {
	return pp.Process(true, pp.localPods())
}

// ProcessNewLocalPod configures a pod that has just started running on
// this node.
func (pp *PolicyProcessor) ProcessNewLocalPod(pod podmodel.ID) error {
	return pp.Process(false, []podmodel.ID{pod})
}

// ProcessRemovedLocalPod unconfigures a pod that no longer runs on this
// node.
func (pp *PolicyProcessor) ProcessRemovedLocalPod(pod podmodel.ID) error {
	txn := pp.Configurator.NewTxn(false)
	txn.Delete(pod)
	return txn.Commit()
}

// AddPod processes a newly added pod: pods whose policies reference the
// new pod as a peer are reconfigured, and so is the pod itself when it
// runs on this node.
func (pp *PolicyProcessor) AddPod(podID podmodel.ID, pod *podmodel.Pod) error {
	if pp.skipped(pod.Namespace) {
		return nil
	}
	if pod.IPAddress == "" {
		// Nothing can reference the pod yet.
		pp.Log.WithField("pod", podID).Debug("Pod does not have an IP address assigned yet")
		return nil
	}
	pods := pp.affectedByPeer(pod)
	pods = append(pods, podID)
	return pp.Process(false, pods)
}

// DelPod processes a removed pod: peers lose the rules referencing it
// and the configuration of the pod itself is removed when local.
func (pp *PolicyProcessor) DelPod(podID podmodel.ID, pod *podmodel.Pod) error {
	if pp.skipped(pod.Namespace) {
		return nil
	}
	pods := pp.affectedByPeer(pod)
	pods = append(pods, podID)
	return pp.Process(false, pods)
}

// UpdatePod processes a change of pod data. Reconfiguration runs only
// when a policy-relevant attribute changed (IP address, labels or
// container ports).
func (pp *PolicyProcessor) UpdatePod(podID podmodel.ID, oldPod, newPod *podmodel.Pod) error {
	if pp.skipped(newPod.Namespace) {
		return nil
	}
	if !podChanged(oldPod, newPod) {
		return nil
	}
	pods := pp.affectedByPeer(oldPod)
	pods = append(pods, pp.affectedByPeer(newPod)...)
	pods = append(pods, podID)
	return pp.Process(false, pods)
}

// AddPolicy reconfigures the pods selected by the new policy.
func (pp *PolicyProcessor) AddPolicy(policy *policymodel.Policy) error {
	if policy == nil || pp.skipped(policy.Namespace) {
		return nil
	}
	pods := pp.Cache.LookupPodsByNSLabelSelector(policy.Namespace, policy.Pods)
	return pp.Process(false, pods)
}

// DelPolicy reconfigures the pods that were selected by the removed
// policy.
func (pp *PolicyProcessor) DelPolicy(policy *policymodel.Policy) error {
	if policy == nil || pp.skipped(policy.Namespace) {
		return nil
	}
	pods := pp.Cache.LookupPodsByNSLabelSelector(policy.Namespace, policy.Pods)
	return pp.Process(false, pods)
}

// UpdatePolicy reconfigures the pods selected by either version of the
// policy.
func (pp *PolicyProcessor) UpdatePolicy(oldPolicy, newPolicy *policymodel.Policy) error {
	if newPolicy == nil || pp.skipped(newPolicy.Namespace) {
		return nil
	}
	pods := []podmodel.ID{}
	if oldPolicy != nil {
		pods = append(pods, pp.Cache.LookupPodsByNSLabelSelector(oldPolicy.Namespace, oldPolicy.Pods)...)
	}
	pods = append(pods, pp.Cache.LookupPodsByNSLabelSelector(newPolicy.Namespace, newPolicy.Pods)...)
	return pp.Process(false, pods)
}

// AddNamespace has no immediate effect on the configuration, pods of the
// namespace are processed as they appear.
func (pp *PolicyProcessor) AddNamespace(namespace *namespacemodel.Namespace) error {
	return nil
}

// DelNamespace has no immediate effect on the configuration, the pods of
// the namespace are processed by their own delete events.
func (pp *PolicyProcessor) DelNamespace(namespace *namespacemodel.Namespace) error {
	return nil
}

// UpdateNamespace re-resolves all local pods when the namespace labels
// changed, namespace selectors of any policy may now give different peer
// sets.
func (pp *PolicyProcessor) UpdateNamespace(oldNamespace, newNamespace *namespacemodel.Namespace) error {
	if newNamespace == nil || oldNamespace == nil {
		return nil
	}
	if labelMapsEqual(namespaceLabelMap(oldNamespace), namespaceLabelMap(newNamespace)) {
		return nil
	}
	return pp.Process(false, pp.localPods())
}

// localPods returns the IDs of all pods running on this node.
func (pp *PolicyProcessor) localPods() []podmodel.ID {
	pods := []podmodel.ID{}
	for podID := range pp.PodManager.GetLocalPods() {
		pods = append(pods, podID)
	}
	return pods
}

func (pp *PolicyProcessor) skipped(namespace string) bool {
	_, skip := pp.skipNamespaces[namespace]
	return skip
}
