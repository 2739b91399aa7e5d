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

// Package policycache provides a mock of the policy cache with just enough
// behaviour for the configurator and renderer tests.
package policycache

import (
	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	controller "github.com/netfence/netfence/plugins/controller/api"
	"github.com/netfence/netfence/plugins/policy/cache"
)

// MockPolicyCache implements cache.PolicyCacheAPI, with a fake
// implementation of the pod lookups only.
type MockPolicyCache struct {
	pods map[podmodel.ID]*podmodel.Pod
}

// NewMockPolicyCache is a constructor for MockPolicyCache.
func NewMockPolicyCache() *MockPolicyCache {
	return &MockPolicyCache{
		pods: make(map[podmodel.ID]*podmodel.Pod),
	}
}

// AddPodConfig fills the mock with fake pod data.
func (mpc *MockPolicyCache) AddPodConfig(id podmodel.ID, ipAddr string, labels ...*podmodel.Label) {
	pod := &podmodel.Pod{
		Name:      id.Name,
		Namespace: id.Namespace,
		IPAddress: ipAddr,
	}
	pod.Labels = append(pod.Labels, labels...)
	mpc.pods[id] = pod
}

// SetPodContainers attaches containers (with their named ports) to a pod
// previously added with AddPodConfig.
func (mpc *MockPolicyCache) SetPodContainers(id podmodel.ID, containers ...*podmodel.Container) {
	if pod, has := mpc.pods[id]; has {
		pod.Containers = containers
	}
}

// Update is not implemented by the mock.
func (mpc *MockPolicyCache) Update(stateChange *controller.StateChange) error {
	return nil
}

// Resync is not implemented by the mock.
func (mpc *MockPolicyCache) Resync(snapshot *controller.StateSnapshot) error {
	return nil
}

// Watch is not implemented by the mock.
func (mpc *MockPolicyCache) Watch(watcher cache.PolicyCacheWatcher) error {
	return nil
}

// LookupPod returns pod data previously added with AddPodConfig.
func (mpc *MockPolicyCache) LookupPod(pod podmodel.ID) (found bool, data *podmodel.Pod) {
	data, found = mpc.pods[pod]
	return found, data
}

// LookupPodsByNSLabelSelector is not implemented by the mock.
func (mpc *MockPolicyCache) LookupPodsByNSLabelSelector(namespace string, selector *policymodel.LabelSelector) []podmodel.ID {
	return nil
}

// LookupPodsByLabelSelector is not implemented by the mock.
func (mpc *MockPolicyCache) LookupPodsByLabelSelector(nsSelector *policymodel.LabelSelector) []podmodel.ID {
	return nil
}

// LookupPodsByNamespace is not implemented by the mock.
func (mpc *MockPolicyCache) LookupPodsByNamespace(namespace string) []podmodel.ID {
	return nil
}

// ListAllPods returns all pods added with AddPodConfig.
func (mpc *MockPolicyCache) ListAllPods() []podmodel.ID {
	pods := []podmodel.ID{}
	for pod := range mpc.pods {
		pods = append(pods, pod)
	}
	return pods
}

// LookupPolicy is not implemented by the mock.
func (mpc *MockPolicyCache) LookupPolicy(policy policymodel.ID) (found bool, data *policymodel.Policy) {
	return false, nil
}

// LookupPoliciesByPod is not implemented by the mock.
func (mpc *MockPolicyCache) LookupPoliciesByPod(pod podmodel.ID) []policymodel.ID {
	return nil
}

// ListAllPolicies is not implemented by the mock.
func (mpc *MockPolicyCache) ListAllPolicies() []policymodel.ID {
	return nil
}

// LookupNamespace is not implemented by the mock.
func (mpc *MockPolicyCache) LookupNamespace(namespace namespacemodel.ID) (found bool, data *namespacemodel.Namespace) {
	return false, nil
}

// LookupNamespacesByLabelSelector is not implemented by the mock.
func (mpc *MockPolicyCache) LookupNamespacesByLabelSelector(selector *policymodel.LabelSelector) []namespacemodel.ID {
	return nil
}

// ListAllNamespaces is not implemented by the mock.
func (mpc *MockPolicyCache) ListAllNamespaces() []namespacemodel.ID {
	return nil
}
