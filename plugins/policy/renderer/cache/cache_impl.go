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

	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

// RendererCache implements RendererCacheAPI.
type RendererCache struct {
	Deps

	podConfigs map[podmodel.ID]*PodConfig
	tables     map[RuleDirection]*LocalTables

	// tableSeq numbers the tables ever created. Table IDs are not
	// reused, not even after Flush.
	tableSeq int
}

// Deps lists dependencies of the renderer cache.
type Deps struct {
	Log logrus.FieldLogger
}

// Init initializes the cache.
func (rc *RendererCache) Init() {
	rc.podConfigs = make(map[podmodel.ID]*PodConfig)
	rc.tables = map[RuleDirection]*LocalTables{
		IngressRules: NewLocalTables(IngressRules),
		EgressRules:  NewLocalTables(EgressRules),
	}
}

// Flush drops the cached content.
func (rc *RendererCache) Flush() {
	rc.Init()
}

// NewTxn starts a new transaction.
func (rc *RendererCache) NewTxn(resync bool) Txn {
	return &RendererCacheTxn{
		cache:   rc,
		resync:  resync,
		updated: make(map[podmodel.ID]*PodConfig),
	}
}

// GetPodConfig returns the configuration last committed for the pod.
func (rc *RendererCache) GetPodConfig(pod podmodel.ID) *PodConfig {
	return rc.podConfigs[pod]
}

// GetAllPods returns the set of all tracked pods.
func (rc *RendererCache) GetAllPods() PodSet {
	pods := NewPodSet()
	for pod := range rc.podConfigs {
		pods.Add(pod)
	}
	return pods
}

// GetIsolatedPods returns the set of pods with at least one rule table
// assigned.
func (rc *RendererCache) GetIsolatedPods() PodSet {
	pods := rc.tables[IngressRules].GetAssignedPods()
	pods.Join(rc.tables[EgressRules].GetAssignedPods())
	return pods
}

// GetLocalTableByPod returns the rule table assigned to the pod in the
// given direction.
func (rc *RendererCache) GetLocalTableByPod(direction RuleDirection, pod podmodel.ID) *RuleTable {
	return rc.tables[direction].LookupByPod(pod)
}

// CountRules returns the total number of rules across the tables
// assigned to at least one pod. Shared tables count once.
func (rc *RendererCache) CountRules() int {
	count := 0
	for _, direction := range []RuleDirection{IngressRules, EgressRules} {
		for _, table := range rc.tables[direction].ListAll() {
			if len(table.Pods) > 0 {
				count += table.NumOfRules
			}
		}
	}
	return count
}

/********************************* Transaction ********************************/

// RendererCacheTxn implements Txn.
type RendererCacheTxn struct {
	cache   *RendererCache
	resync  bool
	updated map[podmodel.ID]*PodConfig

	// plan is invalidated by Update and recomputed on demand.
	plan *txnPlan
}

// txnPlan is the set of table changes the transaction will commit.
type txnPlan struct {
	nextSeq int
	scope   PodSet
	// assigned maps every pod in the scope to its target table, nil if
	// the pod ends up without a table in the direction.
	assigned map[RuleDirection]map[podmodel.ID]*RuleTable
	changes  []*TxnChange
}

// Update changes the configuration of the pod within the transaction.
func (pct *RendererCacheTxn) Update(pod podmodel.ID, config *PodConfig) {
	pct.updated[pod] = config
	pct.plan = nil
}

// GetUpdatedPods returns the set of pods updated by the transaction.
func (pct *RendererCacheTxn) GetUpdatedPods() PodSet {
	pods := NewPodSet()
	for pod, config := range pct.updated {
		if !config.Removed {
			pods.Add(pod)
		}
	}
	return pods
}

// GetRemovedPods returns the set of pods removed by the transaction.
func (pct *RendererCacheTxn) GetRemovedPods() PodSet {
	pods := NewPodSet()
	for pod, config := range pct.updated {
		if config.Removed {
			pods.Add(pod)
		}
	}
	if pct.resync {
		for pod := range pct.cache.podConfigs {
			if _, updated := pct.updated[pod]; !updated {
				pods.Add(pod)
			}
		}
	}
	return pods
}

// GetChanges calculates the minimal set of table changes the transaction
// will commit.
func (pct *RendererCacheTxn) GetChanges() []*TxnChange {
	return pct.planChanges().changes
}

// Commit applies the changes into the cache.
func (pct *RendererCacheTxn) Commit() error {
	plan := pct.planChanges()

	for _, direction := range []RuleDirection{IngressRules, EgressRules} {
		tables := pct.cache.tables[direction]
		for pod := range plan.scope {
			target := plan.assigned[direction][pod]
			prev := tables.LookupByPod(pod)

			var table *RuleTable
			if target != nil {
				table = tables.LookupByID(target.ID)
				if table == nil {
					table = &RuleTable{
						ID:         target.ID,
						Direction:  direction,
						Pods:       NewPodSet(),
						Rules:      target.Rules,
						NumOfRules: target.NumOfRules,
					}
					tables.Insert(table)
				}
				// Backends may have attached their state during apply.
				table.Private = target.Private
			}

			if prev != nil && prev != table {
				tables.UnassignPod(prev, pod)
				if len(prev.Pods) == 0 {
					tables.Remove(prev)
				}
			}
			if table != nil && prev != table {
				tables.AssignPod(table, pod)
			}
		}
	}

	if plan.nextSeq > pct.cache.tableSeq {
		pct.cache.tableSeq = plan.nextSeq
	}
	for pod := range plan.scope {
		config := pct.updated[pod]
		if config == nil || config.Removed {
			delete(pct.cache.podConfigs, pod)
		} else {
			pct.cache.podConfigs[pod] = config
		}
	}

	pct.updated = make(map[podmodel.ID]*PodConfig)
	pct.plan = nil
	return nil
}

// GetPodConfig returns the pod configuration as it will look after
// Commit.
func (pct *RendererCacheTxn) GetPodConfig(pod podmodel.ID) *PodConfig {
	if config, updated := pct.updated[pod]; updated {
		if config.Removed {
			return nil
		}
		return config
	}
	if pct.resync {
		return nil
	}
	return pct.cache.GetPodConfig(pod)
}

// GetAllPods returns the set of pods tracked after Commit.
func (pct *RendererCacheTxn) GetAllPods() PodSet {
	pods := NewPodSet()
	if !pct.resync {
		pods = pct.cache.GetAllPods()
	}
	for pod, config := range pct.updated {
		if config.Removed {
			pods.Remove(pod)
		} else {
			pods.Add(pod)
		}
	}
	return pods
}

// GetIsolatedPods returns the set of pods with a rule table assigned
// after Commit.
func (pct *RendererCacheTxn) GetIsolatedPods() PodSet {
	plan := pct.planChanges()
	pods := NewPodSet()
	for _, direction := range []RuleDirection{IngressRules, EgressRules} {
		for pod, table := range plan.assigned[direction] {
			if table != nil {
				pods.Add(pod)
			}
		}
		if !pct.resync {
			for pod := range pct.cache.tables[direction].GetAssignedPods() {
				if !plan.scope.Has(pod) {
					pods.Add(pod)
				}
			}
		}
	}
	return pods
}

// GetLocalTableByPod returns the rule table the pod will have assigned
// after Commit.
func (pct *RendererCacheTxn) GetLocalTableByPod(direction RuleDirection, pod podmodel.ID) *RuleTable {
	plan := pct.planChanges()
	if plan.scope.Has(pod) {
		return plan.assigned[direction][pod]
	}
	if pct.resync {
		return nil
	}
	return pct.cache.GetLocalTableByPod(direction, pod)
}

// planChanges computes the transaction plan, memoized until the next
// Update.
func (pct *RendererCacheTxn) planChanges() *txnPlan {
	if pct.plan != nil {
		return pct.plan
	}
	plan := &txnPlan{
		nextSeq:  pct.cache.tableSeq,
		scope:    pct.scopePods(),
		assigned: make(map[RuleDirection]map[podmodel.ID]*RuleTable),
	}
	for _, direction := range []RuleDirection{IngressRules, EgressRules} {
		plan.assigned[direction] = make(map[podmodel.ID]*RuleTable)
		pct.planDirection(direction, plan)
	}
	pct.plan = plan
	return plan
}

// scopePods returns the set of pods whose assignment the transaction may
// change.
func (pct *RendererCacheTxn) scopePods() PodSet {
	scope := NewPodSet()
	for pod := range pct.updated {
		scope.Add(pod)
	}
	if pct.resync {
		for pod := range pct.cache.podConfigs {
			scope.Add(pod)
		}
		for pod := range pct.cache.GetIsolatedPods() {
			scope.Add(pod)
		}
	}
	return scope
}

// planDirection computes the target tables and the table changes for one
// direction. Existing tables are never modified at the planning stage,
// modified ones are represented by shadow copies.
func (pct *RendererCacheTxn) planDirection(direction RuleDirection, plan *txnPlan) {
	cached := pct.cache.tables[direction]
	pending := NewLocalTables(direction)
	shadows := make(map[string]*RuleTable)
	touched := []*TxnChange{}

	shadowOf := func(table *RuleTable) *RuleTable {
		if shadow, has := shadows[table.ID]; has {
			return shadow
		}
		shadow := &RuleTable{
			ID:         table.ID,
			Direction:  direction,
			Pods:       table.Pods.Copy(),
			Rules:      table.Rules,
			NumOfRules: table.NumOfRules,
			Private:    table.Private,
		}
		shadows[table.ID] = shadow
		touched = append(touched, &TxnChange{Table: shadow, PreviousPods: table.Pods.Copy()})
		return shadow
	}

	for pod := range plan.scope {
		config := pct.updated[pod]
		var rules []*renderer.Rule
		if config != nil && !config.Removed {
			if direction == IngressRules {
				rules = config.Ingress
			} else {
				rules = config.Egress
			}
		}

		prev := cached.LookupByPod(pod)
		var target *RuleTable
		if len(rules) > 0 {
			candidate := buildRuleTable(direction, rules)
			if existing := cached.LookupByRules(candidate); existing != nil {
				if existing == prev {
					// Unchanged assignment.
					plan.assigned[direction][pod] = existing
					continue
				}
				target = shadowOf(existing)
			} else if reused := pending.LookupByRules(candidate); reused != nil {
				target = reused
			} else {
				candidate.ID = fmt.Sprintf("%s-T%d", direction, plan.nextSeq)
				plan.nextSeq++
				pending.Insert(candidate)
				touched = append(touched, &TxnChange{Table: candidate, PreviousPods: NewPodSet()})
				target = candidate
			}
		}

		if prev != nil {
			shadowOf(prev).Pods.Remove(pod)
		}
		if target != nil {
			target.Pods.Add(pod)
		}
		plan.assigned[direction][pod] = target
	}

	// Pods with an unchanged assignment still point to tables other pods
	// may have left. Re-point them to the shadows.
	for pod, table := range plan.assigned[direction] {
		if table == nil {
			continue
		}
		if shadow, has := shadows[table.ID]; has && table != shadow {
			plan.assigned[direction][pod] = shadow
		}
	}

	sort.Slice(touched, func(i, j int) bool {
		return touched[i].Table.ID < touched[j].Table.ID
	})
	plan.changes = append(plan.changes, touched...)
}
