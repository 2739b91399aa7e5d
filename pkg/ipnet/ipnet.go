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

// Package ipnet collects small helpers for handling IP addresses and
// networks shared across the policy engine.
package ipnet

import (
	"net"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/pkg/errors"
)

// ParseCIDR parses a CIDR or a plain IP address. A plain address is
// returned as a host network (/32 for IPv4, /128 for IPv6). Unlike
// net.ParseCIDR, the returned network keeps no host bits.
func ParseCIDR(s string) (*net.IPNet, error) {
	if !strings.Contains(s, "/") {
		ip := net.ParseIP(s)
		if ip == nil {
			return nil, errors.Errorf("invalid IP address: %q", s)
		}
		return HostNetwork(ip), nil
	}
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid CIDR: %q", s)
	}
	return network, nil
}

// HostNetwork returns the network containing just the given address.
func HostNetwork(ip net.IP) *net.IPNet {
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
}

// IsIPv6 tells whether the network is an IPv6 network.
func IsIPv6(network *net.IPNet) bool {
	return network != nil && network.IP.To4() == nil
}

// ContainsSubnet returns true if the inner network lies fully within the
// outer one.
func ContainsSubnet(outer, inner *net.IPNet) bool {
	if outer == nil || inner == nil {
		return false
	}
	if IsIPv6(outer) != IsIPv6(inner) {
		return false
	}
	first, last := cidr.AddressRange(inner)
	return outer.Contains(first) && outer.Contains(last)
}

// VerifyNoOverlap checks that the given networks all fit into the
// superset and do not overlap each other.
func VerifyNoOverlap(subnets []*net.IPNet, superset *net.IPNet) error {
	return cidr.VerifyNoOverlap(subnets, superset)
}

// PrefixLen returns the prefix length of the network mask.
func PrefixLen(network *net.IPNet) int {
	ones, _ := network.Mask.Size()
	return ones
}

// Equal tells whether two networks describe the same range. Two nil
// networks are considered equal.
func Equal(a, b *net.IPNet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && PrefixLen(a) == PrefixLen(b)
}
