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

// Package policyidx maps policy identifiers to policy state and maintains
// secondary indexes to find policies by the labels of their pod selectors.
package policyidx

import (
	"sync"

	policymodel "github.com/netfence/netfence/model/policy"
)

// ConfigIndex is an in-memory map of policies with secondary indexes by
// namespace and by the match labels of the pod selector. Policies with an
// empty pod selector or with match expressions cannot be found through the
// label index; use the namespace index to enumerate the candidates.
type ConfigIndex struct {
	mu sync.RWMutex

	policies map[string]*policymodel.Policy

	// secondary indexes, sets of policy identifiers
	byNamespace map[string]map[string]struct{} // <namespace>
	byPodLabel  map[string]map[string]struct{} // <namespace>/<key>/<value>
	byWildcard  map[string]map[string]struct{} // <namespace>
}

// NewConfigIndex creates an empty policy index.
func NewConfigIndex() *ConfigIndex {
	return &ConfigIndex{
		policies:    make(map[string]*policymodel.Policy),
		byNamespace: make(map[string]map[string]struct{}),
		byPodLabel:  make(map[string]map[string]struct{}),
		byWildcard:  make(map[string]map[string]struct{}),
	}
}

// RegisterPolicy adds policy state into the index. An already registered
// policy is re-indexed with the new state.
func (ci *ConfigIndex) RegisterPolicy(policyID string, data *policymodel.Policy) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if _, registered := ci.policies[policyID]; registered {
		ci.unindex(policyID)
	}
	ci.policies[policyID] = data
	ci.index(policyID, data)
}

// UnregisterPolicy removes policy state from the index. It returns false
// if the policy was not registered.
func (ci *ConfigIndex) UnregisterPolicy(policyID string) bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if _, registered := ci.policies[policyID]; !registered {
		return false
	}
	ci.unindex(policyID)
	delete(ci.policies, policyID)
	return true
}

// LookupPolicy returns policy state by the identifier.
func (ci *ConfigIndex) LookupPolicy(policyID string) (found bool, data *policymodel.Policy) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	data, found = ci.policies[policyID]
	return found, data
}

// LookupPoliciesByNamespace returns identifiers of all policies in the
// namespace.
func (ci *ConfigIndex) LookupPoliciesByNamespace(namespace string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	policies := []string{}
	for policyID := range ci.byNamespace[namespace] {
		policies = append(policies, policyID)
	}
	return policies
}

// LookupPoliciesByPodLabel returns identifiers of policies whose pod
// selector carries the given match label. The argument has the form
// <namespace>/<key>/<value>.
func (ci *ConfigIndex) LookupPoliciesByPodLabel(label string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	policies := []string{}
	for policyID := range ci.byPodLabel[label] {
		policies = append(policies, policyID)
	}
	return policies
}

// LookupWildcardPolicies returns identifiers of policies in the namespace
// that cannot be found through the label index, i.e. policies with an
// empty pod selector or with a selector built from match expressions only.
func (ci *ConfigIndex) LookupWildcardPolicies(namespace string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	policies := []string{}
	for policyID := range ci.byWildcard[namespace] {
		policies = append(policies, policyID)
	}
	return policies
}

// ListAll returns identifiers of all registered policies.
func (ci *ConfigIndex) ListAll() []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	policies := []string{}
	for policyID := range ci.policies {
		policies = append(policies, policyID)
	}
	return policies
}

func (ci *ConfigIndex) index(policyID string, data *policymodel.Policy) {
	addToSet(ci.byNamespace, data.Namespace, policyID)
	if data.Pods == nil || len(data.Pods.MatchLabels) == 0 {
		addToSet(ci.byWildcard, data.Namespace, policyID)
		return
	}
	for _, label := range data.Pods.MatchLabels {
		addToSet(ci.byPodLabel, data.Namespace+"/"+label.Key+"/"+label.Value, policyID)
	}
}

func (ci *ConfigIndex) unindex(policyID string) {
	data := ci.policies[policyID]
	removeFromSet(ci.byNamespace, data.Namespace, policyID)
	if data.Pods == nil || len(data.Pods.MatchLabels) == 0 {
		removeFromSet(ci.byWildcard, data.Namespace, policyID)
		return
	}
	for _, label := range data.Pods.MatchLabels {
		removeFromSet(ci.byPodLabel, data.Namespace+"/"+label.Key+"/"+label.Value, policyID)
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
