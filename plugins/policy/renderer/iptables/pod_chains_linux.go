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

package iptables

import (
	"net"

	"github.com/containernetworking/plugins/pkg/ns"
	goiptables "github.com/coreos/go-iptables/iptables"
	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"

	"github.com/netfence/netfence/plugins/podmanager"
)

// iptablesWaitSeconds bounds the wait for the xtables lock.
const iptablesWaitSeconds = 5

// podNSProgrammer programs the chains with the iptables binary executed
// inside the network namespace of the pod.
type podNSProgrammer struct{}

// NewPodNSProgrammer returns a Programmer backed by the iptables binary.
func NewPodNSProgrammer() Programmer {
	return &podNSProgrammer{}
}

// ApplyPodChains replaces the chains of the pod inside its network
// namespace.
func (p *podNSProgrammer) ApplyPodChains(pod *podmanager.LocalPod, ipv6 bool,
	ingress, egress [][]string) error {

	return ns.WithNetNSPath(pod.NetworkNamespace, func(ns.NetNS) error {
		if err := checkPodInterface(pod.InterfaceName); err != nil {
			return err
		}
		ipt, err := newIPTables(ipv6)
		if err != nil {
			return err
		}
		if err := writeChain(ipt, IngressChain, "INPUT", ingress); err != nil {
			return err
		}
		return writeChain(ipt, EgressChain, "OUTPUT", egress)
	})
}

// RemovePodChains removes the chains of both directions and families. A
// network namespace that no longer exists counts as already cleaned.
func (p *podNSProgrammer) RemovePodChains(pod *podmanager.LocalPod) error {
	err := ns.WithNetNSPath(pod.NetworkNamespace, func(ns.NetNS) error {
		for _, ipv6 := range []bool{false, true} {
			ipt, err := newIPTables(ipv6)
			if err != nil {
				return err
			}
			if err := removeChain(ipt, IngressChain, "INPUT"); err != nil {
				return err
			}
			if err := removeChain(ipt, EgressChain, "OUTPUT"); err != nil {
				return err
			}
		}
		return nil
	})
	if _, notExist := err.(ns.NSPathNotExistErr); notExist {
		return nil
	}
	return err
}

// checkPodInterface verifies the pod interface is present and up before
// any rules are installed into the namespace.
func checkPodInterface(name string) error {
	if name == "" {
		return nil
	}
	link, err := netlink.LinkByName(name)
	if err != nil {
		return errors.Wrapf(err, "pod interface %s not found", name)
	}
	if link.Attrs().Flags&net.FlagUp == 0 {
		return errors.Errorf("pod interface %s is down", name)
	}
	return nil
}

func newIPTables(ipv6 bool) (*goiptables.IPTables, error) {
	protocol := goiptables.ProtocolIPv4
	if ipv6 {
		protocol = goiptables.ProtocolIPv6
	}
	ipt, err := goiptables.New(
		goiptables.IPFamily(protocol), goiptables.Timeout(iptablesWaitSeconds))
	return ipt, errors.Wrap(err, "iptables init")
}

// writeChain flushes the chain, hooks it and fills it with the rules. An
// empty rule list removes the chain instead.
func writeChain(ipt *goiptables.IPTables, chain, hook string, rules [][]string) error {
	if len(rules) == 0 {
		return removeChain(ipt, chain, hook)
	}
	if err := ipt.ClearChain(filterTable, chain); err != nil {
		return errors.Wrapf(err, "clear chain %s", chain)
	}
	if err := ipt.AppendUnique(filterTable, hook, "-j", chain); err != nil {
		return errors.Wrapf(err, "hook chain %s", chain)
	}
	for _, rule := range rules {
		if err := ipt.Append(filterTable, chain, rule...); err != nil {
			return errors.Wrapf(err, "append to chain %s", chain)
		}
	}
	return nil
}

func removeChain(ipt *goiptables.IPTables, chain, hook string) error {
	if err := ipt.DeleteIfExists(filterTable, hook, "-j", chain); err != nil {
		return errors.Wrapf(err, "unhook chain %s", chain)
	}
	exists, err := ipt.ChainExists(filterTable, chain)
	if err != nil {
		return errors.Wrapf(err, "check chain %s", chain)
	}
	if !exists {
		return nil
	}
	return errors.Wrapf(ipt.ClearAndDeleteChain(filterTable, chain), "delete chain %s", chain)
}
