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

// Package policy defines the network policy model consumed by the engine.
// The model mirrors the Kubernetes NetworkPolicy semantics: a policy
// selects a set of pods in its namespace and whitelists traffic for them,
// in the direction(s) given by the policy type.
package policy

import (
	"strings"
)

// Keyword is the resource name of policies in state-change events and
// REST paths.
const Keyword = "policy"

// KeyPrefix is the common prefix of keys of all mirrored policies.
const KeyPrefix = "netfence/state/policy/"

// Type selects the traffic direction(s) a policy applies to.
type Type string

const (
	// TypeDefault lets the direction be derived from the rules: ingress
	// is always covered, egress only if the policy has egress rules.
	TypeDefault Type = ""
	// TypeIngress applies the policy to inbound traffic only.
	TypeIngress Type = "Ingress"
	// TypeEgress applies the policy to outbound traffic only.
	TypeEgress Type = "Egress"
	// TypeBoth applies the policy to both directions.
	TypeBoth Type = "Both"
)

// Protocol is a transport protocol a port rule applies to.
type Protocol string

const (
	// TCP transport protocol.
	TCP Protocol = "TCP"
	// UDP transport protocol.
	UDP Protocol = "UDP"
)

// Operator of a selector match expression.
type Operator string

const (
	// OpIn matches when the label value is in the given set.
	OpIn Operator = "In"
	// OpNotIn matches when the label is absent or its value is outside
	// the given set.
	OpNotIn Operator = "NotIn"
	// OpExists matches when the label key is present, whatever the value.
	OpExists Operator = "Exists"
	// OpDoesNotExist matches when the label key is absent.
	OpDoesNotExist Operator = "DoesNotExist"
)

// Policy whitelists traffic for the pods it selects. A pod selected by at
// least one policy in a direction becomes isolated in that direction and
// only the whitelisted traffic is allowed.
type Policy struct {
	// Name of the policy, unique within the namespace.
	Name string `json:"name"`
	// Namespace the policy belongs to. Pod selectors of the policy are
	// evaluated against pods of this namespace only.
	Namespace string `json:"namespace"`
	// Pods selects the pods the policy applies to. nil or empty selector
	// selects all pods in the namespace.
	Pods *LabelSelector `json:"pods,omitempty"`
	// Type gives the direction(s) the policy applies to.
	Type Type `json:"type,omitempty"`
	// IngressRules whitelist inbound traffic. An empty list combined with
	// an ingress policy type denies all inbound traffic.
	IngressRules []*IngressRule `json:"ingressRules,omitempty"`
	// EgressRules whitelist outbound traffic. An empty list combined with
	// an egress policy type denies all outbound traffic.
	EgressRules []*EgressRule `json:"egressRules,omitempty"`
}

// LabelSelector selects pods or namespaces by their labels. Match labels
// and match expressions are ANDed together. An empty selector matches
// everything in scope.
type LabelSelector struct {
	MatchLabels []*Label `json:"matchLabels,omitempty"`
	// MatchExpressions is a list of label selector requirements, all of
	// which must be satisfied.
	MatchExpressions []*MatchExpression `json:"matchExpressions,omitempty"`
}

// Label is an exact key/value requirement of a selector.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MatchExpression is a single selector requirement evaluated against
// label keys and values.
type MatchExpression struct {
	Key      string   `json:"key"`
	Operator Operator `json:"operator"`
	// Values must be non-empty for In and NotIn and empty for Exists
	// and DoesNotExist.
	Values []string `json:"values,omitempty"`
}

// IngressRule whitelists inbound traffic matching any of the sources in
// From, on any of the ports in Ports. Empty From means any source, empty
// Ports means any port.
type IngressRule struct {
	Ports []*Port `json:"ports,omitempty"`
	From  []*Peer `json:"from,omitempty"`
}

// EgressRule whitelists outbound traffic towards any of the destinations
// in To, on any of the ports in Ports. Empty To means any destination,
// empty Ports means any port.
type EgressRule struct {
	Ports []*Port `json:"ports,omitempty"`
	To    []*Peer `json:"to,omitempty"`
}

// Peer is a traffic source (ingress) or destination (egress). Exactly one
// of the selector pair and IPBlock may be used. If both Pods and
// Namespaces selectors are given, the peer matches pods selected by Pods
// within namespaces selected by Namespaces. A Pods selector alone is
// evaluated in the policy's own namespace.
type Peer struct {
	Pods       *LabelSelector `json:"pods,omitempty"`
	Namespaces *LabelSelector `json:"namespaces,omitempty"`
	IPBlock    *IPBlock       `json:"ipBlock,omitempty"`
}

// IPBlock matches traffic by CIDR, minus the excepted sub-ranges.
type IPBlock struct {
	CIDR string `json:"cidr"`
	// Except lists CIDRs excluded from the block. Each must be a proper
	// subset of CIDR.
	Except []string `json:"except,omitempty"`
}

// Port whitelists a single destination port. A port is given either by
// number or by name; named ports are resolved against the container ports
// of the destination pod.
type Port struct {
	// Protocol the rule applies to. TCP if empty.
	Protocol Protocol `json:"protocol,omitempty"`
	Port     PortNameOrNumber `json:"port"`
}

// PortNameOrNumber holds a port referenced by name or by number. The name
// takes precedence when non-empty.
type PortNameOrNumber struct {
	Number int32  `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

// ID uniquely identifies a policy across namespaces.
type ID struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// GetID returns the identifier of a policy.
func GetID(policy *Policy) ID {
	if policy != nil {
		return ID{Name: policy.Name, Namespace: policy.Namespace}
	}
	return ID{}
}

// String returns the identifier in the form <namespace>/<name>.
func (id ID) String() string {
	return id.Namespace + "/" + id.Name
}

// ParseID is the inverse of ID.String. The second return value is false
// if the string is not a valid policy identifier.
func ParseID(s string) (ID, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ID{}, false
	}
	return ID{Namespace: parts[0], Name: parts[1]}, true
}

// Key returns the key under which the policy state is stored.
func Key(name string, namespace string) string {
	return KeyPrefix + namespace + "/" + name
}

// AppliesToIngress returns true if the policy covers inbound traffic of
// the selected pods.
func (p *Policy) AppliesToIngress() bool {
	switch p.Type {
	case TypeIngress, TypeBoth:
		return true
	case TypeDefault:
		// the default type always isolates ingress
		return true
	}
	return false
}

// AppliesToEgress returns true if the policy covers outbound traffic of
// the selected pods.
func (p *Policy) AppliesToEgress() bool {
	switch p.Type {
	case TypeEgress, TypeBoth:
		return true
	case TypeDefault:
		return len(p.EgressRules) > 0
	}
	return false
}
