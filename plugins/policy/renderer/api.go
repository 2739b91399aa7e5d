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

// Package renderer defines the API between the policy configurator and
// the packet-filter backends. The configurator compiles policies into
// Rule lists; a renderer installs them into its backend.
package renderer

import (
	"bytes"
	"fmt"
	"net"

	podmodel "github.com/netfence/netfence/model/pod"
)

// PolicyRendererAPI is implemented by every packet-filter backend.
type PolicyRendererAPI interface {
	// NewTxn starts a new transaction. The rendering happens in Commit().
	// If <resync> is enabled, the transaction content completely replaces
	// the existing configuration, otherwise pods not mentioned in the
	// transaction remain unaffected.
	NewTxn(resync bool) Txn
}

// Txn collects rule assignments for a single transaction.
type Txn interface {
	// Render replaces the rules of the given pod. The rules are handed
	// over in the order in which they are evaluated: the first matching
	// rule decides the fate of a packet, unmatched traffic is allowed.
	// With <removed> the pod is unregistered from the renderer.
	Render(pod podmodel.ID, podIP *net.IPNet, ingress []*Rule, egress []*Rule, removed bool) Txn

	// Commit installs the collected state into the backend.
	Commit() error
}

// ActionType is the verdict of a rule.
type ActionType int

const (
	// ActionDeny blocks the matching traffic.
	ActionDeny ActionType = iota

	// ActionPermit allows the matching traffic.
	ActionPermit
)

// String converts ActionType into a human-readable string.
func (at ActionType) String() string {
	switch at {
	case ActionDeny:
		return "deny"
	case ActionPermit:
		return "permit"
	}
	return "invalid"
}

// ProtocolType is the transport protocol matched by a rule.
type ProtocolType int

const (
	// ANY matches any protocol. Keeping ANY as the zero value makes the
	// zero rule match all traffic, consistently with nil networks and
	// zero ports.
	ANY ProtocolType = iota

	// TCP protocol.
	TCP

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
	case ANY:
		return "ANY"
	}
	return "invalid"
}

// AnyPort matches any port number.
const AnyPort uint16 = 0

// Rule is a single n-tuple rule as installed into a backend. A nil network
// matches any address, port 0 matches any port.
type Rule struct {
	Action      ActionType
	SrcNetwork  *net.IPNet
	DestNetwork *net.IPNet
	Protocol    ProtocolType
	SrcPort     uint16
	DestPort    uint16
}

// String converts the rule into a human-readable string.
func (r *Rule) String() string {
	return fmt.Sprintf("%s %s %s:%s -> %s:%s",
		r.Action, r.Protocol,
		networkString(r.SrcNetwork), portString(r.SrcPort),
		networkString(r.DestNetwork), portString(r.DestPort))
}

// Copy returns a shallow copy of the rule.
func (r *Rule) Copy() *Rule {
	ruleCopy := *r
	return &ruleCopy
}

// Matches tells whether the rule matches the given traffic.
func (r *Rule) Matches(srcIP, destIP net.IP, protocol ProtocolType, srcPort, destPort uint16) bool {
	if r.SrcNetwork != nil && !r.SrcNetwork.Contains(srcIP) {
		return false
	}
	if r.DestNetwork != nil && !r.DestNetwork.Contains(destIP) {
		return false
	}
	if r.Protocol != ANY && r.Protocol != protocol {
		return false
	}
	if r.SrcPort != AnyPort && r.SrcPort != srcPort {
		return false
	}
	if r.DestPort != AnyPort && r.DestPort != destPort {
		return false
	}
	return true
}

// Compare defines a total order on rules: -1, 0, 1 if the rule is ordered
// before, equal to or after the other rule. A rule that matches a subset
// of the traffic of another rule is ordered before it, so an ordered rule
// list evaluated first-match-wins gives precedence to the more specific
// rules.
func (r *Rule) Compare(other *Rule) int {
	if order := compareNetworks(r.SrcNetwork, other.SrcNetwork); order != 0 {
		return order
	}
	if order := compareNetworks(r.DestNetwork, other.DestNetwork); order != 0 {
		return order
	}
	if order := comparePorts(r.SrcPort, other.SrcPort); order != 0 {
		return order
	}
	if order := comparePorts(r.DestPort, other.DestPort); order != 0 {
		return order
	}
	if order := compareProtocols(r.Protocol, other.Protocol); order != 0 {
		return order
	}
	// on an otherwise equal match, permit is ordered first: policies are
	// additive and an allow from one policy wins over an exclusion of
	// another
	return compareInts(int(other.Action), int(r.Action))
}

// compareNetworks orders more specific networks first; nil (match-any)
// goes last. IPv4 networks are ordered before IPv6 networks.
func compareNetworks(a, b *net.IPNet) int {
	if a == nil || b == nil {
		if a == b {
			return 0
		}
		if a == nil {
			return 1
		}
		return -1
	}
	aIP, bIP := normalizeIP(a.IP), normalizeIP(b.IP)
	if order := compareInts(len(aIP), len(bIP)); order != 0 {
		return order
	}
	aOnes, _ := a.Mask.Size()
	bOnes, _ := b.Mask.Size()
	if order := compareInts(bOnes, aOnes); order != 0 {
		return order
	}
	return bytes.Compare(aIP, bIP)
}

// comparePorts orders specific ports first; 0 (match-any) goes last.
func comparePorts(a, b uint16) int {
	if a == b {
		return 0
	}
	if a == AnyPort {
		return 1
	}
	if b == AnyPort {
		return -1
	}
	return compareInts(int(a), int(b))
}

// compareProtocols orders specific protocols first; ANY goes last.
func compareProtocols(a, b ProtocolType) int {
	if a == b {
		return 0
	}
	if a == ANY {
		return 1
	}
	if b == ANY {
		return -1
	}
	return compareInts(int(a), int(b))
}

func compareInts(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func normalizeIP(ip net.IP) net.IP {
	if ip4 := ip.To4(); ip4 != nil {
		return ip4
	}
	return ip
}

func networkString(network *net.IPNet) string {
	if network == nil {
		return "any"
	}
	return network.String()
}

func portString(port uint16) string {
	if port == AnyPort {
		return "any"
	}
	return fmt.Sprintf("%d", port)
}
