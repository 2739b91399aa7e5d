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

// Package podidx maps pod identifiers to pod state and maintains secondary
// indexes for label-based lookups.
package podidx

import (
	"sync"

	podmodel "github.com/netfence/netfence/model/pod"
)

// ConfigIndex is an in-memory map of pods with secondary indexes by
// namespace, by label key and by full label.
type ConfigIndex struct {
	mu sync.RWMutex

	pods map[string]*podmodel.Pod

	// secondary indexes, sets of pod identifiers
	byNamespace map[string]map[string]struct{} // <namespace>
	byLabelKey  map[string]map[string]struct{} // <namespace>/<key>
	byLabel     map[string]map[string]struct{} // <namespace>/<key>/<value>
}

// NewConfigIndex creates an empty pod index.
func NewConfigIndex() *ConfigIndex {
	return &ConfigIndex{
		pods:        make(map[string]*podmodel.Pod),
		byNamespace: make(map[string]map[string]struct{}),
		byLabelKey:  make(map[string]map[string]struct{}),
		byLabel:     make(map[string]map[string]struct{}),
	}
}

// RegisterPod adds pod state into the index. An already registered pod is
// re-indexed with the new state.
func (ci *ConfigIndex) RegisterPod(podID string, data *podmodel.Pod) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if _, registered := ci.pods[podID]; registered {
		ci.unindex(podID)
	}
	ci.pods[podID] = data
	ci.index(podID, data)
}

// UnregisterPod removes pod state from the index. It returns false if the
// pod was not registered.
func (ci *ConfigIndex) UnregisterPod(podID string) bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if _, registered := ci.pods[podID]; !registered {
		return false
	}
	ci.unindex(podID)
	delete(ci.pods, podID)
	return true
}

// LookupPod returns pod state by the identifier.
func (ci *ConfigIndex) LookupPod(podID string) (found bool, data *podmodel.Pod) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	data, found = ci.pods[podID]
	return found, data
}

// LookupPodsByNamespace returns identifiers of all pods in the namespace.
func (ci *ConfigIndex) LookupPodsByNamespace(namespace string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return setToSlice(ci.byNamespace[namespace])
}

// LookupPodsByLabelKey returns identifiers of pods that carry a label with
// the given key, whatever the value. The argument has the form
// <namespace>/<key>.
func (ci *ConfigIndex) LookupPodsByLabelKey(labelKey string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return setToSlice(ci.byLabelKey[labelKey])
}

// LookupPodsByLabel returns identifiers of pods that carry the given
// label. The argument has the form <namespace>/<key>/<value>.
func (ci *ConfigIndex) LookupPodsByLabel(label string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return setToSlice(ci.byLabel[label])
}

// ListAll returns identifiers of all registered pods.
func (ci *ConfigIndex) ListAll() []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	pods := []string{}
	for podID := range ci.pods {
		pods = append(pods, podID)
	}
	return pods
}

func (ci *ConfigIndex) index(podID string, data *podmodel.Pod) {
	addToSet(ci.byNamespace, data.Namespace, podID)
	for _, label := range data.Labels {
		addToSet(ci.byLabelKey, data.Namespace+"/"+label.Key, podID)
		addToSet(ci.byLabel, data.Namespace+"/"+label.Key+"/"+label.Value, podID)
	}
}

func (ci *ConfigIndex) unindex(podID string) {
	data := ci.pods[podID]
	removeFromSet(ci.byNamespace, data.Namespace, podID)
	for _, label := range data.Labels {
		removeFromSet(ci.byLabelKey, data.Namespace+"/"+label.Key, podID)
		removeFromSet(ci.byLabel, data.Namespace+"/"+label.Key+"/"+label.Value, podID)
	}
}

func addToSet(index map[string]map[string]struct{}, key, member string) {
	set, exists := index[key]
	if !exists {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[member] = struct{}{}
}

func removeFromSet(index map[string]map[string]struct{}, key, member string) {
	if set, exists := index[key]; exists {
		delete(set, member)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

func setToSlice(set map[string]struct{}) []string {
	members := []string{}
	for member := range set {
		members = append(members, member)
	}
	return members
}
