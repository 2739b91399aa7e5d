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

package configurator

import (
	"net"

	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

// PolicyConfiguratorAPI defines the API of the policy configurator.
// For a given pod, the configurator translates a set of resolved policies
// into rules (n-tuples with the most basic rule definition) and installs
// them into the registered renderers. The shortest possible sequence of
// rules is not guaranteed, instead the rules are kept close to the
// policies they come from and the renderer cache deduplicates and orders
// them.
type PolicyConfiguratorAPI interface {
	// RegisterRenderer adds a renderer. Every registered renderer
	// receives the full configuration of every pod.
	RegisterRenderer(renderer renderer.PolicyRendererAPI) error

	// NewTxn starts a new transaction. The configuration executes only
	// after Commit. With <resync> enabled the supplied configuration
	// completely replaces the existing one, otherwise pods not mentioned
	// in the transaction are left unchanged.
	NewTxn(resync bool) Txn
}

// Txn is a transaction of the configurator.
type Txn interface {
	// Configure replaces the set of policies applied to the pod.
	Configure(pod podmodel.ID, policies []*ResolvedPolicy) Txn

	// Delete removes the configuration of a pod that no longer runs on
	// this node.
	Delete(pod podmodel.ID) Txn

	// Commit renders the changes into the registered renderers.
	Commit() error
}

// ResolvedPolicy is a representation of a policy free of indirect
// references. Label selectors are expanded to pod IDs, namespaces and
// named ports are resolved. It is produced in this form by the policy
// processor.
type ResolvedPolicy struct {
	ID      policymodel.ID
	Type    PolicyType
	Matches []Match
}

// Match is a single traffic match of a resolved policy.
type Match struct {
	Type MatchType

	// Layer 3: peers are ORed. Nil Pods together with nil IPBlocks match
	// all peers. Non-nil but empty slices match no peer, the outcome of
	// selectors that selected nothing.
	Pods     []podmodel.ID
	IPBlocks []IPBlock

	// Layer 4: allowed destination ports, ORed. An empty list matches
	// all ports of all protocols.
	Ports []Port
}

// PolicyType tells which directions a policy isolates.
type PolicyType int

const (
	// PolicyIngress isolates the inbound direction only.
	PolicyIngress PolicyType = iota

	// PolicyEgress isolates the outbound direction only.
	PolicyEgress

	// PolicyAll isolates both directions.
	PolicyAll
)

// String converts PolicyType into a human-readable string.
func (pt PolicyType) String() string {
	switch pt {
	case PolicyIngress:
		return "ingress"
	case PolicyEgress:
		return "egress"
	case PolicyAll:
		return "all"
	}
	return "invalid"
}

// MatchType is the direction of a match.
type MatchType int

const (
	// MatchIngress matches inbound traffic.
	MatchIngress MatchType = iota

	// MatchEgress matches outbound traffic.
	MatchEgress
)

// String converts MatchType into a human-readable string.
func (mt MatchType) String() string {
	switch mt {
	case MatchIngress:
		return "ingress"
	case MatchEgress:
		return "egress"
	}
	return "invalid"
}

// ProtocolType is the transport protocol of a match port.
type ProtocolType int

const (
	// TCP protocol.
	TCP ProtocolType = iota

	// UDP protocol.
	UDP
)

// String converts ProtocolType into a human-readable string.
func (pt ProtocolType) String() string {
	switch pt {
	case TCP:
		return "TCP"
	case UDP:
		return "UDP"
	}
	return "invalid"
}

// Port is a numeric destination port. Number zero matches all ports of
// the protocol.
type Port struct {
	Protocol ProtocolType
	Number   uint16
}

// IPBlock is a peer given as an address range with optional exclusions.
type IPBlock struct {
	Network net.IPNet
	Except  []net.IPNet
}
