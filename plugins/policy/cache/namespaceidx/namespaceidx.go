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

// Package namespaceidx maps namespace names to namespace state and
// maintains secondary indexes for label-based lookups.
package namespaceidx

import (
	"sync"

	namespacemodel "github.com/netfence/netfence/model/namespace"
)

// ConfigIndex is an in-memory map of namespaces with secondary indexes by
// label key and by full label.
type ConfigIndex struct {
	mu sync.RWMutex

	namespaces map[string]*namespacemodel.Namespace

	// secondary indexes, sets of namespace names
	byLabelKey map[string]map[string]struct{} // <key>
	byLabel    map[string]map[string]struct{} // <key>/<value>
}

// NewConfigIndex creates an empty namespace index.
func NewConfigIndex() *ConfigIndex {
	return &ConfigIndex{
		namespaces: make(map[string]*namespacemodel.Namespace),
		byLabelKey: make(map[string]map[string]struct{}),
		byLabel:    make(map[string]map[string]struct{}),
	}
}

// RegisterNamespace adds namespace state into the index. An already
// registered namespace is re-indexed with the new state.
func (ci *ConfigIndex) RegisterNamespace(name string, data *namespacemodel.Namespace) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if _, registered := ci.namespaces[name]; registered {
		ci.unindex(name)
	}
	ci.namespaces[name] = data
	ci.index(name, data)
}

// UnregisterNamespace removes namespace state from the index. It returns
// false if the namespace was not registered.
func (ci *ConfigIndex) UnregisterNamespace(name string) bool {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if _, registered := ci.namespaces[name]; !registered {
		return false
	}
	ci.unindex(name)
	delete(ci.namespaces, name)
	return true
}

// LookupNamespace returns namespace state by the name.
func (ci *ConfigIndex) LookupNamespace(name string) (found bool, data *namespacemodel.Namespace) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	data, found = ci.namespaces[name]
	return found, data
}

// LookupNamespacesByLabelKey returns names of namespaces that carry a
// label with the given key, whatever the value.
func (ci *ConfigIndex) LookupNamespacesByLabelKey(key string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return setToSlice(ci.byLabelKey[key])
}

// LookupNamespacesByLabel returns names of namespaces that carry the given
// label. The argument has the form <key>/<value>.
func (ci *ConfigIndex) LookupNamespacesByLabel(label string) []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return setToSlice(ci.byLabel[label])
}

// ListAll returns names of all registered namespaces.
func (ci *ConfigIndex) ListAll() []string {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	namespaces := []string{}
	for name := range ci.namespaces {
		namespaces = append(namespaces, name)
	}
	return namespaces
}

func (ci *ConfigIndex) index(name string, data *namespacemodel.Namespace) {
	for _, label := range data.Labels {
		addToSet(ci.byLabelKey, label.Key, name)
		addToSet(ci.byLabel, label.Key+"/"+label.Value, name)
	}
}

func (ci *ConfigIndex) unindex(name string) {
	data := ci.namespaces[name]
	for _, label := range data.Labels {
		removeFromSet(ci.byLabelKey, label.Key, name)
		removeFromSet(ci.byLabel, label.Key+"/"+label.Value, name)
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
