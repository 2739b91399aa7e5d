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

// Package cache implements the renderer cache. The cache tracks the rules
// assigned to pods, groups pods with equal rule lists under shared rule
// tables and computes the minimal set of table changes between
// transactions. Backends use it to avoid re-programming state that has
// not changed.
package cache

import (
	"fmt"
	"net"
	"sort"
	"strings"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

// RendererCacheAPI defines the API of the renderer cache.
type RendererCacheAPI interface {
	View

	// Init (re)initializes the cache.
	Init()

	// Flush drops the cached content.
	Flush()

	// NewTxn starts a new transaction. Changes are applied into the cache
	// by Commit. With <resync> enabled, the transaction content fully
	// replaces the cached state and pods not mentioned in the transaction
	// are unregistered on Commit.
	NewTxn(resync bool) Txn
}

// View provides read access to the cached state. Txn extends the view
// with the pending changes of the transaction.
type View interface {
	// GetPodConfig returns the configuration last assigned to the pod,
	// or nil if the pod is not tracked.
	GetPodConfig(pod podmodel.ID) *PodConfig

	// GetAllPods returns the set of all tracked pods.
	GetAllPods() PodSet

	// GetIsolatedPods returns the set of pods with at least one rule
	// table assigned.
	GetIsolatedPods() PodSet

	// GetLocalTableByPod returns the rule table assigned to the pod in
	// the given direction, or nil if the pod is not isolated in that
	// direction.
	GetLocalTableByPod(direction RuleDirection, pod podmodel.ID) *RuleTable
}

// Txn is a transaction over the renderer cache.
type Txn interface {
	// View within the transaction returns the state as it will look
	// after Commit.
	View

	// Update changes the configuration of the pod. A config with
	// Removed=true unregisters the pod.
	Update(pod podmodel.ID, config *PodConfig)

	// GetUpdatedPods returns the set of pods updated by the transaction.
	GetUpdatedPods() PodSet

	// GetRemovedPods returns the set of pods removed by the transaction,
	// including pods implicitly removed by a resync.
	GetRemovedPods() PodSet

	// GetChanges calculates the minimal set of table changes that Commit
	// will apply. Every returned change carries the table and the set of
	// pods assigned to it before the transaction.
	GetChanges() []*TxnChange

	// Commit applies the changes into the cache.
	Commit() error
}

// RuleDirection distinguishes ingress and egress rule tables, from the
// pod's point of view.
type RuleDirection int

const (
	// IngressRules govern the traffic arriving into the pod.
	IngressRules RuleDirection = iota

	// EgressRules govern the traffic leaving the pod.
	EgressRules
)

// String converts RuleDirection into a human-readable string.
func (rd RuleDirection) String() string {
	switch rd {
	case IngressRules:
		return "ingress"
	case EgressRules:
		return "egress"
	}
	return "invalid"
}

// PodConfig carries the rules assigned to a pod.
type PodConfig struct {
	// PodIP is the host network of the pod.
	PodIP *net.IPNet

	// Ingress and Egress rules, ordered by renderer.Rule.Compare. An
	// empty list means the pod is not isolated in that direction.
	Ingress []*renderer.Rule
	Egress  []*renderer.Rule

	// Removed unregisters the pod from the cache.
	Removed bool
}

// TxnChange describes a change of a single rule table.
type TxnChange struct {
	// Table with the new set of assigned pods. A table with no pods left
	// is being retired.
	Table *RuleTable

	// PreviousPods assigned to the table before the transaction. Empty
	// for a newly added table.
	PreviousPods PodSet
}

// String converts TxnChange into a human-readable string.
func (tc *TxnChange) String() string {
	return fmt.Sprintf("table %s: pods %s -> %s",
		tc.Table.ID, tc.PreviousPods, tc.Table.Pods)
}

/********************************* Rule Table *********************************/

// RuleTable is an ordered list of rules shared by all pods with an equal
// rule list in the given direction.
type RuleTable struct {
	// ID of the table, assigned by the cache on insertion.
	ID string

	// Direction the table applies to.
	Direction RuleDirection

	// Pods currently assigned to the table.
	Pods PodSet

	// Rules, ordered by renderer.Rule.Compare. The slice may have a
	// larger capacity than NumOfRules.
	Rules []*renderer.Rule

	// NumOfRules is the number of rules in the table.
	NumOfRules int

	// Private can be used by the backend to attach its own state to the
	// table (e.g. the name of the installed chain).
	Private interface{}
}

// NewRuleTable creates an empty rule table.
func NewRuleTable(direction RuleDirection) *RuleTable {
	return &RuleTable{
		Direction: direction,
		Pods:      NewPodSet(),
		Rules:     []*renderer.Rule{},
	}
}

// String converts the table into a human-readable string.
func (rt *RuleTable) String() string {
	rules := make([]string, 0, rt.NumOfRules)
	for i := 0; i < rt.NumOfRules; i++ {
		rules = append(rules, rt.Rules[i].String())
	}
	return fmt.Sprintf("table %s (%s, pods: %s): [%s]",
		rt.ID, rt.Direction, rt.Pods, strings.Join(rules, "; "))
}

// InsertRule adds a rule into the table at the position given by the rule
// order. It returns false if an equal rule is already present.
func (rt *RuleTable) InsertRule(rule *renderer.Rule) bool {
	idx := rt.ruleIndex(rule)
	if idx < rt.NumOfRules && rt.Rules[idx].Compare(rule) == 0 {
		return false
	}
	if rt.NumOfRules == len(rt.Rules) {
		rt.Rules = append(rt.Rules, nil)
	}
	copy(rt.Rules[idx+1:rt.NumOfRules+1], rt.Rules[idx:rt.NumOfRules])
	rt.Rules[idx] = rule
	rt.NumOfRules++
	return true
}

// HasRule tells whether the table contains an equal rule.
func (rt *RuleTable) HasRule(rule *renderer.Rule) bool {
	idx := rt.ruleIndex(rule)
	return idx < rt.NumOfRules && rt.Rules[idx].Compare(rule) == 0
}

// CompareRules defines a lexicographic order on tables by their rule
// lists.
func (rt *RuleTable) CompareRules(other *RuleTable) int {
	common := rt.NumOfRules
	if other.NumOfRules < common {
		common = other.NumOfRules
	}
	for i := 0; i < common; i++ {
		if order := rt.Rules[i].Compare(other.Rules[i]); order != 0 {
			return order
		}
	}
	if rt.NumOfRules < other.NumOfRules {
		return -1
	}
	if rt.NumOfRules > other.NumOfRules {
		return 1
	}
	return 0
}

// ruleIndex returns the position of the rule inside the ordered list,
// whether it is present or not.
func (rt *RuleTable) ruleIndex(rule *renderer.Rule) int {
	return sort.Search(rt.NumOfRules, func(i int) bool {
		return rule.Compare(rt.Rules[i]) <= 0
	})
}

/*********************************** Pod Set **********************************/

// PodSet is a set of pod identifiers.
type PodSet map[podmodel.ID]struct{}

// NewPodSet creates a set initialized with the given pods.
func NewPodSet(pods ...podmodel.ID) PodSet {
	set := make(PodSet)
	for _, pod := range pods {
		set.Add(pod)
	}
	return set
}

// Has tells whether the pod is in the set.
func (ps PodSet) Has(pod podmodel.ID) bool {
	_, has := ps[pod]
	return has
}

// Add adds the pod into the set.
func (ps PodSet) Add(pod podmodel.ID) {
	ps[pod] = struct{}{}
}

// Remove removes the pod from the set. It returns false if the pod was
// not present.
func (ps PodSet) Remove(pod podmodel.ID) bool {
	if _, has := ps[pod]; !has {
		return false
	}
	delete(ps, pod)
	return true
}

// Copy returns a copy of the set.
func (ps PodSet) Copy() PodSet {
	set := NewPodSet()
	set.Join(ps)
	return set
}

// Join adds all pods of the other set into this set.
func (ps PodSet) Join(other PodSet) PodSet {
	for pod := range other {
		ps.Add(pod)
	}
	return ps
}

// Equals compares two sets for equality.
func (ps PodSet) Equals(other PodSet) bool {
	if len(ps) != len(other) {
		return false
	}
	for pod := range ps {
		if !other.Has(pod) {
			return false
		}
	}
	return true
}

// SymDiff returns the set of pods present in exactly one of the sets.
func (ps PodSet) SymDiff(other PodSet) PodSet {
	diff := NewPodSet()
	for pod := range ps {
		if !other.Has(pod) {
			diff.Add(pod)
		}
	}
	for pod := range other {
		if !ps.Has(pod) {
			diff.Add(pod)
		}
	}
	return diff
}

// String converts the set into a human-readable string.
func (ps PodSet) String() string {
	pods := make([]string, 0, len(ps))
	for pod := range ps {
		pods = append(pods, pod.String())
	}
	sort.Strings(pods)
	return "{" + strings.Join(pods, ", ") + "}"
}
