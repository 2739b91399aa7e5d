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
	"fmt"
	"sort"
	"strings"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

// LocalTables is an ordered list of rule tables of one direction, with
// lookups by table ID, by assigned pod and by rule list content. The
// order is defined by RuleTable.CompareRules.
type LocalTables struct {
	direction RuleDirection
	tables    []*RuleTable
	numTables int
	byID      map[string]*RuleTable
	byPod     map[podmodel.ID]*RuleTable
}

// NewLocalTables creates an empty list of rule tables.
func NewLocalTables(direction RuleDirection) *LocalTables {
	return &LocalTables{
		direction: direction,
		tables:    []*RuleTable{},
		byID:      make(map[string]*RuleTable),
		byPod:     make(map[podmodel.ID]*RuleTable),
	}
}

// Insert adds the table into the list. It returns false if a table with
// the same ID is already present.
func (lt *LocalTables) Insert(table *RuleTable) bool {
	if _, has := lt.byID[table.ID]; has {
		return false
	}
	idx := lt.tableIndex(table)
	if lt.numTables == len(lt.tables) {
		lt.tables = append(lt.tables, nil)
	}
	copy(lt.tables[idx+1:lt.numTables+1], lt.tables[idx:lt.numTables])
	lt.tables[idx] = table
	lt.numTables++
	lt.byID[table.ID] = table
	for pod := range table.Pods {
		lt.byPod[pod] = table
	}
	return true
}

// Remove removes the table from the list. It returns false if the table
// is not present.
func (lt *LocalTables) Remove(table *RuleTable) bool {
	if _, has := lt.byID[table.ID]; !has {
		return false
	}
	idx := lt.lookupIndex(table)
	copy(lt.tables[idx:lt.numTables-1], lt.tables[idx+1:lt.numTables])
	lt.numTables--
	lt.tables[lt.numTables] = nil
	delete(lt.byID, table.ID)
	for pod := range table.Pods {
		delete(lt.byPod, pod)
	}
	return true
}

// AssignPod adds the pod into the set of pods of the table.
func (lt *LocalTables) AssignPod(table *RuleTable, pod podmodel.ID) {
	table.Pods.Add(pod)
	lt.byPod[pod] = table
}

// UnassignPod removes the pod from the set of pods of the table.
func (lt *LocalTables) UnassignPod(table *RuleTable, pod podmodel.ID) {
	table.Pods.Remove(pod)
	delete(lt.byPod, pod)
}

// LookupByID returns the table with the given ID, or nil.
func (lt *LocalTables) LookupByID(id string) *RuleTable {
	return lt.byID[id]
}

// LookupByPod returns the table assigned to the pod, or nil.
func (lt *LocalTables) LookupByPod(pod podmodel.ID) *RuleTable {
	return lt.byPod[pod]
}

// LookupByRules returns the table with an equal list of rules, or nil.
func (lt *LocalTables) LookupByRules(rules *RuleTable) *RuleTable {
	idx := lt.tableIndex(rules)
	if idx < lt.numTables && lt.tables[idx].CompareRules(rules) == 0 {
		return lt.tables[idx]
	}
	return nil
}

// GetAssignedPods returns the set of pods with a table assigned.
func (lt *LocalTables) GetAssignedPods() PodSet {
	pods := NewPodSet()
	for pod := range lt.byPod {
		pods.Add(pod)
	}
	return pods
}

// ListAll returns all tables in the rule-list order.
func (lt *LocalTables) ListAll() []*RuleTable {
	return lt.tables[:lt.numTables]
}

// String converts LocalTables into a human-readable string.
func (lt *LocalTables) String() string {
	tables := make([]string, 0, lt.numTables)
	for _, table := range lt.ListAll() {
		tables = append(tables, table.String())
	}
	return fmt.Sprintf("%s tables: [%s]", lt.direction, strings.Join(tables, ", "))
}

// tableIndex returns the position of the table in the rule-list order,
// whether it is present or not.
func (lt *LocalTables) tableIndex(table *RuleTable) int {
	return sort.Search(lt.numTables, func(i int) bool {
		return table.CompareRules(lt.tables[i]) <= 0
	})
}

// lookupIndex returns the position of this table instance. Tables with
// equal rule lists are further resolved by ID.
func (lt *LocalTables) lookupIndex(table *RuleTable) int {
	idx := lt.tableIndex(table)
	for idx < lt.numTables && lt.tables[idx].ID != table.ID {
		idx++
	}
	return idx
}

// buildRuleTable creates an ordered table from a list of rules, skipping
// duplicates.
func buildRuleTable(direction RuleDirection, rules []*renderer.Rule) *RuleTable {
	table := NewRuleTable(direction)
	for _, rule := range rules {
		table.InsertRule(rule)
	}
	return table
}
