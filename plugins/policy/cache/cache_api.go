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
	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	controller "github.com/netfence/netfence/plugins/controller/api"
)

// PolicyCacheAPI defines the API of the policy cache. The cache stores the
// mirrored state of pods, namespaces and policies and maintains label
// indexes for fast selector evaluation.
//
// The cache is updated from the event loop through Update and Resync and
// propagates every change to the registered watchers, synchronously and in
// the order of registration. The lookup methods may be used from any
// goroutine.
type PolicyCacheAPI interface {
	// Update processes a state-change event. The change is applied into
	// the cache and propagated to the watchers.
	Update(stateChange *controller.StateChange) error

	// Resync replaces the cached state with the given snapshot and
	// notifies the watchers.
	Resync(snapshot *controller.StateSnapshot) error

	// Watch subscribes a watcher for change notifications.
	Watch(watcher PolicyCacheWatcher) error

	// LookupPod returns the state of a given pod.
	LookupPod(pod podmodel.ID) (found bool, data *podmodel.Pod)

	// LookupPodsByNSLabelSelector evaluates a label selector within a
	// namespace and returns the matching pods. A nil or empty selector
	// matches all pods in the namespace.
	LookupPodsByNSLabelSelector(namespace string, selector *policymodel.LabelSelector) []podmodel.ID

	// LookupPodsByLabelSelector evaluates a namespace label selector and
	// returns pods from all matching namespaces. A nil or empty selector
	// matches all namespaces.
	LookupPodsByLabelSelector(nsSelector *policymodel.LabelSelector) []podmodel.ID

	// LookupPodsByNamespace returns all pods in the given namespace.
	LookupPodsByNamespace(namespace string) []podmodel.ID

	// ListAllPods returns all known pods.
	ListAllPods() []podmodel.ID

	// LookupPolicy returns the state of a given policy.
	LookupPolicy(policy policymodel.ID) (found bool, data *policymodel.Policy)

	// LookupPoliciesByPod returns all policies that select the given pod.
	LookupPoliciesByPod(pod podmodel.ID) []policymodel.ID

	// ListAllPolicies returns all known policies.
	ListAllPolicies() []policymodel.ID

	// LookupNamespace returns the state of a given namespace.
	LookupNamespace(namespace namespacemodel.ID) (found bool, data *namespacemodel.Namespace)

	// LookupNamespacesByLabelSelector evaluates a label selector and
	// returns the matching namespaces. A nil or empty selector matches
	// all namespaces.
	LookupNamespacesByLabelSelector(selector *policymodel.LabelSelector) []namespacemodel.ID

	// ListAllNamespaces returns all known namespaces.
	ListAllNamespaces() []namespacemodel.ID
}

// PolicyCacheWatcher is implemented by components interested in changes of
// the cached state. The callbacks run synchronously within the event loop,
// after the cache was already updated.
type PolicyCacheWatcher interface {
	// Resync is called with the full state after a resync event.
	Resync(data *DataResyncEvent) error

	// AddPod is called when a new pod appears.
	AddPod(podID podmodel.ID, pod *podmodel.Pod) error

	// DelPod is called when a pod is removed.
	DelPod(podID podmodel.ID, pod *podmodel.Pod) error

	// UpdatePod is called when the state of a pod changes.
	UpdatePod(podID podmodel.ID, oldPod, newPod *podmodel.Pod) error

	// AddPolicy is called when a new policy appears.
	AddPolicy(policy *policymodel.Policy) error

	// DelPolicy is called when a policy is removed.
	DelPolicy(policy *policymodel.Policy) error

	// UpdatePolicy is called when the state of a policy changes.
	UpdatePolicy(oldPolicy, newPolicy *policymodel.Policy) error

	// AddNamespace is called when a new namespace appears.
	AddNamespace(namespace *namespacemodel.Namespace) error

	// DelNamespace is called when a namespace is removed.
	DelNamespace(namespace *namespacemodel.Namespace) error

	// UpdateNamespace is called when the state of a namespace changes.
	UpdateNamespace(oldNamespace, newNamespace *namespacemodel.Namespace) error
}

// DataResyncEvent carries the full state as delivered to watchers on
// resync.
type DataResyncEvent struct {
	Namespaces []*namespacemodel.Namespace
	Pods       []*podmodel.Pod
	Policies   []*policymodel.Policy
}

// NewDataResyncEvent creates an empty resync event.
func NewDataResyncEvent() *DataResyncEvent {
	return &DataResyncEvent{
		Namespaces: []*namespacemodel.Namespace{},
		Pods:       []*podmodel.Pod{},
		Policies:   []*policymodel.Policy{},
	}
}
