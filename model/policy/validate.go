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

package policy

import (
	"net"
	"strings"

	"github.com/pkg/errors"

	"github.com/netfence/netfence/pkg/ipnet"
)

// Validate checks the policy for structural errors. Policies are rejected
// before they reach the cache, so the rest of the engine can assume the
// invariants verified here.
func Validate(policy *Policy) error {
	if policy == nil {
		return errors.New("policy is nil")
	}
	if err := validateName(policy.Name); err != nil {
		return errors.Wrap(err, "invalid policy name")
	}
	if err := validateName(policy.Namespace); err != nil {
		return errors.Wrap(err, "invalid policy namespace")
	}
	switch policy.Type {
	case TypeDefault, TypeIngress, TypeEgress, TypeBoth:
	default:
		return errors.Errorf("unknown policy type: %q", policy.Type)
	}
	if err := validateSelector(policy.Pods); err != nil {
		return errors.Wrap(err, "invalid pod selector")
	}
	for idx, rule := range policy.IngressRules {
		if rule == nil {
			return errors.Errorf("ingress rule #%d is nil", idx)
		}
		if err := validatePorts(rule.Ports); err != nil {
			return errors.Wrapf(err, "invalid ingress rule #%d", idx)
		}
		if err := validatePeers(rule.From); err != nil {
			return errors.Wrapf(err, "invalid ingress rule #%d", idx)
		}
	}
	for idx, rule := range policy.EgressRules {
		if rule == nil {
			return errors.Errorf("egress rule #%d is nil", idx)
		}
		if err := validatePorts(rule.Ports); err != nil {
			return errors.Wrapf(err, "invalid egress rule #%d", idx)
		}
		if err := validatePeers(rule.To); err != nil {
			return errors.Wrapf(err, "invalid egress rule #%d", idx)
		}
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("must not be empty")
	}
	if strings.Contains(name, "/") {
		return errors.Errorf("%q must not contain '/'", name)
	}
	return nil
}

func validateSelector(selector *LabelSelector) error {
	if selector == nil {
		return nil
	}
	for _, label := range selector.MatchLabels {
		if label == nil || label.Key == "" {
			return errors.New("match label with an empty key")
		}
	}
	for _, expr := range selector.MatchExpressions {
		if expr == nil || expr.Key == "" {
			return errors.New("match expression with an empty key")
		}
		switch expr.Operator {
		case OpIn, OpNotIn:
			if len(expr.Values) == 0 {
				return errors.Errorf("operator %s requires values", expr.Operator)
			}
		case OpExists, OpDoesNotExist:
			if len(expr.Values) > 0 {
				return errors.Errorf("operator %s does not take values", expr.Operator)
			}
		default:
			return errors.Errorf("unknown operator: %q", expr.Operator)
		}
	}
	return nil
}

func validatePeers(peers []*Peer) error {
	for idx, peer := range peers {
		if peer == nil {
			return errors.Errorf("peer #%d is nil", idx)
		}
		hasSelector := peer.Pods != nil || peer.Namespaces != nil
		if peer.IPBlock != nil && hasSelector {
			return errors.Errorf("peer #%d combines an IP block with selectors", idx)
		}
		if peer.IPBlock == nil && !hasSelector {
			return errors.Errorf("peer #%d is empty", idx)
		}
		if err := validateSelector(peer.Pods); err != nil {
			return errors.Wrapf(err, "invalid pod selector of peer #%d", idx)
		}
		if err := validateSelector(peer.Namespaces); err != nil {
			return errors.Wrapf(err, "invalid namespace selector of peer #%d", idx)
		}
		if peer.IPBlock != nil {
			if err := validateIPBlock(peer.IPBlock); err != nil {
				return errors.Wrapf(err, "invalid IP block of peer #%d", idx)
			}
		}
	}
	return nil
}

func validateIPBlock(block *IPBlock) error {
	cidrNet, err := ipnet.ParseCIDR(block.CIDR)
	if err != nil {
		return err
	}
	excepted := []*net.IPNet{}
	for _, except := range block.Except {
		exceptNet, err := ipnet.ParseCIDR(except)
		if err != nil {
			return errors.Wrapf(err, "except %q", except)
		}
		if ipnet.PrefixLen(exceptNet) <= ipnet.PrefixLen(cidrNet) ||
			!ipnet.ContainsSubnet(cidrNet, exceptNet) {
			return errors.Errorf("except %q is not a proper subset of %q",
				except, block.CIDR)
		}
		excepted = append(excepted, exceptNet)
	}
	if err := ipnet.VerifyNoOverlap(excepted, cidrNet); err != nil {
		return errors.Wrap(err, "overlapping excepts")
	}
	return nil
}

func validatePorts(ports []*Port) error {
	for idx, port := range ports {
		if port == nil {
			return errors.Errorf("port #%d is nil", idx)
		}
		switch port.Protocol {
		case "", TCP, UDP:
		default:
			return errors.Errorf("unknown protocol: %q", port.Protocol)
		}
		if port.Port.Name == "" {
			if port.Port.Number < 1 || port.Port.Number > 65535 {
				return errors.Errorf("port number %d out of range", port.Port.Number)
			}
		} else if port.Port.Number != 0 {
			return errors.Errorf("port #%d has both a name and a number", idx)
		}
	}
	return nil
}
