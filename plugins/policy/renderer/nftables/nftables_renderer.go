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

// Package nftables implements a renderer that programs the rules into
// one nftables table of the host network namespace. Pod traffic is
// steered from two base chains on the forward hook into per-table
// chains, one chain per shared rule table, with one jump per pod.
package nftables

import (
	"bytes"
	"context"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/knftables"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/pkg/ipnet"
	"github.com/netfence/netfence/plugins/policy/renderer"
	"github.com/netfence/netfence/plugins/policy/renderer/cache"
)

const (
	// TableName is the nftables table managed by this renderer. The
	// renderer owns the whole table, nothing else may write into it.
	TableName = "netfence"

	ingressBaseChain = "ingress"
	egressBaseChain  = "egress"

	tableComment  = "pod traffic filtering, managed by netfence"
	reflexiveRule = "ct state established,related accept"
)

// Renderer renders rules into the host nftables ruleset.
type Renderer struct {
	Deps
	cache *cache.RendererCache
}

// Deps lists dependencies of the nftables renderer.
type Deps struct {
	Log logrus.FieldLogger

	// NFT may be injected by tests. The default manages the inet
	// "netfence" table of the host network namespace.
	NFT knftables.Interface

	// DisableReflexiveAccept leaves the established/related accept out
	// of the base chains, so every packet is evaluated against the
	// rules.
	DisableReflexiveAccept bool
}

// Init connects to nftables and prepares the renderer cache.
func (r *Renderer) Init() error {
	if r.NFT == nil {
		nft, err := knftables.New(knftables.InetFamily, TableName)
		if err != nil {
			return errors.Wrap(err, "nftables init")
		}
		r.NFT = nft
	}
	r.cache = &cache.RendererCache{
		Deps: cache.Deps{Log: r.Log},
	}
	r.cache.Init()
	return nil
}

// NewTxn starts a new transaction. The rendering happens in Commit().
func (r *Renderer) NewTxn(resync bool) renderer.Txn {
	return &RendererTxn{
		renderer: r,
		cacheTxn: r.cache.NewTxn(resync),
		resync:   resync,
		rewired:  cache.NewPodSet(),
	}
}

// RendererTxn is a single transaction of the nftables renderer.
type RendererTxn struct {
	renderer *Renderer
	cacheTxn cache.Txn
	resync   bool

	// rewired collects pods whose address changed. An address change
	// alone does not alter any rule table, but the steering rules still
	// have to be rebuilt.
	rewired cache.PodSet
}

// Render schedules the rule replacement for one pod.
func (rt *RendererTxn) Render(pod podmodel.ID, podIP *net.IPNet,
	ingress []*renderer.Rule, egress []*renderer.Rule, removed bool) renderer.Txn {

	rt.renderer.Log.WithFields(logrus.Fields{
		"pod":     pod,
		"ingress": len(ingress),
		"egress":  len(egress),
		"removed": removed,
	}).Debug("nftables renderer: updating pod")
	if prev := rt.renderer.cache.GetPodConfig(pod); prev != nil && !removed && !sameNetwork(prev.PodIP, podIP) {
		rt.rewired.Add(pod)
	}
	rt.cacheTxn.Update(pod, &cache.PodConfig{
		PodIP:   podIP,
		Ingress: ingress,
		Egress:  egress,
		Removed: removed,
	})
	return rt
}

// Commit translates the planned table changes into one nftables
// transaction, runs it and stores the new state into the cache.
func (rt *RendererTxn) Commit() error {
	start := time.Now()
	err := rt.commit()
	renderer.ReportCommit("nftables", time.Since(start), rt.renderer.cache.CountRules(), err)
	return err
}

func (rt *RendererTxn) commit() error {
	changes := rt.cacheTxn.GetChanges()
	if len(changes) == 0 && len(rt.rewired) == 0 && !rt.resync {
		return rt.cacheTxn.Commit()
	}

	tx := rt.renderer.NFT.NewTransaction()
	rt.renderBase(tx)
	if rt.resync {
		rt.renderAllChains(tx)
	} else {
		rt.renderChangedChains(tx, changes)
	}
	rt.renderJumps(tx)
	rt.deleteRetiredChains(tx, changes)

	if err := rt.renderer.NFT.Run(context.Background(), tx); err != nil {
		return errors.Wrap(err, "nftables transaction")
	}
	return rt.cacheTxn.Commit()
}

// renderBase ensures the table and the two base chains. On resync the
// table is deleted and recreated first, wiping everything the previous
// instance left behind. The add before the delete makes the delete
// succeed also on a fresh system.
func (rt *RendererTxn) renderBase(tx *knftables.Transaction) {
	tx.Add(&knftables.Table{
		Comment: knftables.PtrTo(tableComment),
	})
	if rt.resync {
		tx.Delete(&knftables.Table{})
		tx.Add(&knftables.Table{
			Comment: knftables.PtrTo(tableComment),
		})
	}

	for _, chain := range []string{ingressBaseChain, egressBaseChain} {
		tx.Add(&knftables.Chain{
			Name:     chain,
			Type:     knftables.PtrTo(knftables.FilterType),
			Hook:     knftables.PtrTo(knftables.ForwardHook),
			Priority: knftables.PtrTo(knftables.FilterPriority),
		})
		tx.Flush(&knftables.Chain{Name: chain})
		if !rt.renderer.DisableReflexiveAccept {
			tx.Add(&knftables.Rule{Chain: chain, Rule: reflexiveRule})
		}
	}
}

// renderAllChains writes the chains of every rule table assigned to at
// least one pod. Used on resync, after the table wipe.
func (rt *RendererTxn) renderAllChains(tx *knftables.Transaction) {
	rendered := make(map[string]struct{})
	for _, pod := range sortedPods(rt.cacheTxn.GetIsolatedPods()) {
		for _, direction := range []cache.RuleDirection{cache.IngressRules, cache.EgressRules} {
			table := rt.cacheTxn.GetLocalTableByPod(direction, pod)
			if table == nil {
				continue
			}
			if _, done := rendered[table.ID]; done {
				continue
			}
			rt.renderTableChain(tx, table)
			rendered[table.ID] = struct{}{}
		}
	}
}

// renderChangedChains writes the chains of newly created rule tables.
// Table contents never change, an existing chain stays as it is.
func (rt *RendererTxn) renderChangedChains(tx *knftables.Transaction, changes []*cache.TxnChange) {
	for _, change := range changes {
		if len(change.PreviousPods) > 0 || len(change.Table.Pods) == 0 {
			continue
		}
		rt.renderTableChain(tx, change.Table)
	}
}

// renderTableChain writes one rule-table chain.
func (rt *RendererTxn) renderTableChain(tx *knftables.Transaction, table *cache.RuleTable) {
	tx.Add(&knftables.Chain{Name: table.ID})
	for _, rule := range table.Rules[:table.NumOfRules] {
		tx.Add(&knftables.Rule{
			Chain: table.ID,
			Rule:  ruleString(rule),
		})
	}
}

// renderJumps rebuilds the per-pod steering rules of both base chains
// from the post-commit view. Ingress traffic is keyed by the destination
// address of the pod, egress traffic by the source address.
func (rt *RendererTxn) renderJumps(tx *knftables.Transaction) {
	for _, pod := range sortedPods(rt.cacheTxn.GetIsolatedPods()) {
		config := rt.cacheTxn.GetPodConfig(pod)
		if config == nil || config.PodIP == nil {
			continue
		}
		podIP := config.PodIP.IP.String()
		family := "ip"
		if ipnet.IsIPv6(config.PodIP) {
			family = "ip6"
		}
		if table := rt.cacheTxn.GetLocalTableByPod(cache.IngressRules, pod); table != nil {
			tx.Add(&knftables.Rule{
				Chain: ingressBaseChain,
				Rule:  knftables.Concat(family, "daddr", podIP, "jump", table.ID),
			})
		}
		if table := rt.cacheTxn.GetLocalTableByPod(cache.EgressRules, pod); table != nil {
			tx.Add(&knftables.Rule{
				Chain: egressBaseChain,
				Rule:  knftables.Concat(family, "saddr", podIP, "jump", table.ID),
			})
		}
	}
}

// deleteRetiredChains removes the chains of tables that lost their last
// pod. The base chains were already flushed in this transaction, no jump
// references them anymore.
func (rt *RendererTxn) deleteRetiredChains(tx *knftables.Transaction, changes []*cache.TxnChange) {
	if rt.resync {
		// The table wipe removed them already.
		return
	}
	for _, change := range changes {
		if len(change.Table.Pods) > 0 || len(change.PreviousPods) == 0 {
			continue
		}
		tx.Flush(&knftables.Chain{Name: change.Table.ID})
		tx.Delete(&knftables.Chain{Name: change.Table.ID})
	}
}

// ruleString translates one rule into the nft syntax. The match on the
// pod address itself is left to the steering rules of the base chains.
func ruleString(rule *renderer.Rule) string {
	parts := []string{}
	if rule.SrcNetwork != nil && len(rule.SrcNetwork.IP) > 0 {
		parts = append(parts, addressFamily(rule.SrcNetwork), "saddr", rule.SrcNetwork.String())
	}
	if rule.DestNetwork != nil && len(rule.DestNetwork.IP) > 0 {
		parts = append(parts, addressFamily(rule.DestNetwork), "daddr", rule.DestNetwork.String())
	}
	if protocol := protocolName(rule.Protocol); protocol != "" {
		withPort := false
		if rule.SrcPort != renderer.AnyPort {
			parts = append(parts, protocol, "sport", strconv.Itoa(int(rule.SrcPort)))
			withPort = true
		}
		if rule.DestPort != renderer.AnyPort {
			parts = append(parts, protocol, "dport", strconv.Itoa(int(rule.DestPort)))
			withPort = true
		}
		if !withPort {
			parts = append(parts, "meta", "l4proto", protocol)
		}
	}
	if rule.Action == renderer.ActionPermit {
		parts = append(parts, "accept")
	} else {
		parts = append(parts, "drop")
	}
	return knftables.Concat(parts)
}

func addressFamily(network *net.IPNet) string {
	if ipnet.IsIPv6(network) {
		return "ip6"
	}
	return "ip"
}

func protocolName(protocol renderer.ProtocolType) string {
	switch protocol {
	case renderer.TCP:
		return "tcp"
	case renderer.UDP:
		return "udp"
	default:
		return ""
	}
}

func sortedPods(pods cache.PodSet) []podmodel.ID {
	list := make([]podmodel.ID, 0, len(pods))
	for pod := range pods {
		list = append(list, pod)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].String() < list[j].String()
	})
	return list
}

func sameNetwork(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && bytes.Equal(a.Mask, b.Mask)
}
