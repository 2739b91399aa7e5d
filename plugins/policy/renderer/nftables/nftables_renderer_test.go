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

package nftables

import (
	"context"
	"net"
	"testing"

	"github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/knftables"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

var (
	pod1 = podmodel.ID{Name: "pod1", Namespace: "ns1"}
	pod2 = podmodel.ID{Name: "pod2", Namespace: "ns1"}
)

// countingNFT counts the executed transactions on top of the fake.
type countingNFT struct {
	knftables.Interface
	runs int
}

func (c *countingNFT) Run(ctx context.Context, tx *knftables.Transaction) error {
	c.runs++
	return c.Interface.Run(ctx, tx)
}

func newRendererFixture() (*Renderer, *knftables.Fake, *countingNFT) {
	fake := knftables.NewFake(knftables.InetFamily, TableName)
	nft := &countingNFT{Interface: fake}
	nftablesRenderer := &Renderer{
		Deps: Deps{
			Log: logrus.StandardLogger(),
			NFT: nft,
		},
	}
	gomega.Expect(nftablesRenderer.Init()).To(gomega.Succeed())
	return nftablesRenderer, fake, nft
}

func ipNetwork(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	gomega.Expect(err).To(gomega.BeNil())
	return network
}

// podAddress builds the host network of the pod.
func podAddress(address string) *net.IPNet {
	ip := net.ParseIP(address)
	gomega.Expect(ip).ToNot(gomega.BeNil())
	if ip4 := ip.To4(); ip4 != nil {
		return &net.IPNet{IP: ip4, Mask: net.CIDRMask(32, 32)}
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(128, 128)}
}

func permitTCP(src string, port uint16) *renderer.Rule {
	return &renderer.Rule{
		Action:     renderer.ActionPermit,
		SrcNetwork: ipNetwork(src),
		Protocol:   renderer.TCP,
		DestPort:   port,
	}
}

func chainNames(fake *knftables.Fake) []string {
	gomega.Expect(fake.Table).ToNot(gomega.BeNil())
	names := []string{}
	for name := range fake.Table.Chains {
		names = append(names, name)
	}
	return names
}

func chainRules(fake *knftables.Fake, chain string) []string {
	gomega.Expect(fake.Table).ToNot(gomega.BeNil())
	fakeChain := fake.Table.Chains[chain]
	gomega.Expect(fakeChain).ToNot(gomega.BeNil(), "missing chain %s", chain)
	rules := []string{}
	for _, rule := range fakeChain.Rules {
		rules = append(rules, rule.Rule)
	}
	return rules
}

func TestChainsAndJumps(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, fake, _ := newRendererFixture()

	ingress := []*renderer.Rule{
		permitTCP("10.1.1.2/32", 6379),
		{Action: renderer.ActionDeny},
	}
	egress := []*renderer.Rule{
		{Action: renderer.ActionPermit, DestNetwork: ipNetwork("10.96.0.0/12")},
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingress, egress, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(chainNames(fake)).To(gomega.ConsistOf(
		ingressBaseChain, egressBaseChain, "ingress-T0", "egress-T1"))
	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip daddr 10.1.1.1 jump ingress-T0",
	}))
	gomega.Expect(chainRules(fake, egressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip saddr 10.1.1.1 jump egress-T1",
	}))
	gomega.Expect(chainRules(fake, "ingress-T0")).To(gomega.Equal([]string{
		"ip saddr 10.1.1.2/32 tcp dport 6379 accept",
		"drop",
	}))
	gomega.Expect(chainRules(fake, "egress-T1")).To(gomega.Equal([]string{
		"ip daddr 10.96.0.0/12 accept",
		"drop",
	}))
}

func TestSharedTable(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, fake, _ := newRendererFixture()

	ingress := []*renderer.Rule{
		permitTCP("10.0.0.0/8", 8080),
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingress, nil, false)
	txn.Render(pod2, podAddress("10.1.1.2"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// one shared chain, one steering rule per pod
	gomega.Expect(chainNames(fake)).To(gomega.ConsistOf(
		ingressBaseChain, egressBaseChain, "ingress-T0"))
	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip daddr 10.1.1.1 jump ingress-T0",
		"ip daddr 10.1.1.2 jump ingress-T0",
	}))
	gomega.Expect(chainRules(fake, egressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
	}))
}

func TestIncrementalUpdate(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, fake, _ := newRendererFixture()

	ingressA := []*renderer.Rule{
		permitTCP("10.0.0.0/8", 8080),
		{Action: renderer.ActionDeny},
	}
	ingressB := []*renderer.Rule{
		permitTCP("10.2.0.0/16", 9090),
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingressA, nil, false)
	txn.Render(pod2, podAddress("10.1.1.2"), ingressA, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// pod2 moves to its own rule list
	txn = nftablesRenderer.NewTxn(false)
	txn.Render(pod2, podAddress("10.1.1.2"), ingressB, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(chainNames(fake)).To(gomega.ConsistOf(
		ingressBaseChain, egressBaseChain, "ingress-T0", "ingress-T1"))
	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip daddr 10.1.1.1 jump ingress-T0",
		"ip daddr 10.1.1.2 jump ingress-T1",
	}))
	gomega.Expect(chainRules(fake, "ingress-T1")).To(gomega.Equal([]string{
		"ip saddr 10.2.0.0/16 tcp dport 9090 accept",
		"drop",
	}))

	// the last pod leaves the first table, its chain is retired
	txn = nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), nil, nil, true)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(chainNames(fake)).To(gomega.ConsistOf(
		ingressBaseChain, egressBaseChain, "ingress-T1"))
	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip daddr 10.1.1.2 jump ingress-T1",
	}))
}

func TestResyncReplacesConfiguration(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, fake, _ := newRendererFixture()

	ingressA := []*renderer.Rule{
		permitTCP("10.0.0.0/8", 8080),
		{Action: renderer.ActionDeny},
	}
	ingressB := []*renderer.Rule{
		permitTCP("10.2.0.0/16", 9090),
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingressA, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	txn = nftablesRenderer.NewTxn(false)
	txn.Render(pod2, podAddress("10.1.1.2"), ingressB, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// resync drops everything not re-rendered
	txn = nftablesRenderer.NewTxn(true)
	txn.Render(pod1, podAddress("10.1.1.1"), ingressA, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(chainNames(fake)).To(gomega.ConsistOf(
		ingressBaseChain, egressBaseChain, "ingress-T0"))
	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip daddr 10.1.1.1 jump ingress-T0",
	}))
	gomega.Expect(chainRules(fake, "ingress-T0")).To(gomega.Equal([]string{
		"ip saddr 10.0.0.0/8 tcp dport 8080 accept",
		"drop",
	}))
}

func TestUnchangedCommitSkipsProgramming(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, _, nft := newRendererFixture()

	ingress := []*renderer.Rule{
		permitTCP("10.0.0.0/8", 8080),
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(nft.runs).To(gomega.Equal(1))

	// same rules, same address
	txn = nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(nft.runs).To(gomega.Equal(1))
}

func TestPodAddressChange(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, fake, nft := newRendererFixture()

	ingress := []*renderer.Rule{
		permitTCP("10.0.0.0/8", 8080),
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.1.1"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// same rules, new address: no table changes, still re-steered
	txn = nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("10.1.5.5"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(nft.runs).To(gomega.Equal(2))

	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip daddr 10.1.5.5 jump ingress-T0",
	}))
}

func TestIPv6Pod(t *testing.T) {
	gomega.RegisterTestingT(t)
	nftablesRenderer, fake, _ := newRendererFixture()

	ingress := []*renderer.Rule{
		{
			Action:     renderer.ActionPermit,
			SrcNetwork: ipNetwork("2001:db8:1::/64"),
			Protocol:   renderer.TCP,
			DestPort:   80,
		},
		{Action: renderer.ActionDeny},
	}

	txn := nftablesRenderer.NewTxn(false)
	txn.Render(pod1, podAddress("2001:db8::10"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(chainRules(fake, ingressBaseChain)).To(gomega.Equal([]string{
		reflexiveRule,
		"ip6 daddr 2001:db8::10 jump ingress-T0",
	}))
	gomega.Expect(chainRules(fake, "ingress-T0")).To(gomega.Equal([]string{
		"ip6 saddr 2001:db8:1::/64 tcp dport 80 accept",
		"drop",
	}))
}

func TestRuleTranslation(t *testing.T) {
	gomega.RegisterTestingT(t)

	testCases := []struct {
		rule     *renderer.Rule
		expected string
	}{
		{
			rule:     &renderer.Rule{Action: renderer.ActionDeny},
			expected: "drop",
		},
		{
			rule:     &renderer.Rule{Action: renderer.ActionPermit},
			expected: "accept",
		},
		{
			rule: &renderer.Rule{
				Action:   renderer.ActionPermit,
				Protocol: renderer.UDP,
				DestPort: 53,
			},
			expected: "udp dport 53 accept",
		},
		{
			rule: &renderer.Rule{
				Action:   renderer.ActionDeny,
				Protocol: renderer.TCP,
			},
			expected: "meta l4proto tcp drop",
		},
		{
			rule: &renderer.Rule{
				Action:      renderer.ActionPermit,
				SrcNetwork:  ipNetwork("10.0.0.0/8"),
				DestNetwork: ipNetwork("10.1.0.0/16"),
				Protocol:    renderer.TCP,
				SrcPort:     1234,
			},
			expected: "ip saddr 10.0.0.0/8 ip daddr 10.1.0.0/16 tcp sport 1234 accept",
		},
		{
			rule: &renderer.Rule{
				Action:     renderer.ActionDeny,
				SrcNetwork: ipNetwork("2001:db8::/32"),
				Protocol:   renderer.UDP,
				DestPort:   161,
			},
			expected: "ip6 saddr 2001:db8::/32 udp dport 161 drop",
		},
	}

	for _, testCase := range testCases {
		gomega.Expect(ruleString(testCase.rule)).To(gomega.Equal(testCase.expected),
			"rule %s", testCase.rule)
	}
}
