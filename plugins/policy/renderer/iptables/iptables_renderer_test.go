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
	"testing"

	"github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	mockpodmanager "github.com/netfence/netfence/mock/podmanager"
	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

var (
	pod1 = podmodel.ID{Name: "pod1", Namespace: "ns1"}
	pod2 = podmodel.ID{Name: "pod2", Namespace: "ns1"}
)

type appliedChains struct {
	pod     podmodel.ID
	ipv6    bool
	ingress [][]string
	egress  [][]string
}

// fakeProgrammer records the chain operations instead of touching any
// network namespace.
type fakeProgrammer struct {
	applied []appliedChains
	removed []podmodel.ID
}

func (fp *fakeProgrammer) ApplyPodChains(pod *podmanager.LocalPod, ipv6 bool,
	ingress, egress [][]string) error {

	fp.applied = append(fp.applied, appliedChains{
		pod:     pod.ID,
		ipv6:    ipv6,
		ingress: ingress,
		egress:  egress,
	})
	return nil
}

func (fp *fakeProgrammer) RemovePodChains(pod *podmanager.LocalPod) error {
	fp.removed = append(fp.removed, pod.ID)
	return nil
}

func (fp *fakeProgrammer) reset() {
	fp.applied = nil
	fp.removed = nil
}

func ipNetwork(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	gomega.Expect(err).To(gomega.BeNil())
	return network
}

func permitTCP(src string, port uint16) *renderer.Rule {
	return &renderer.Rule{
		Action:     renderer.ActionPermit,
		SrcNetwork: ipNetwork(src),
		Protocol:   renderer.TCP,
		DestPort:   port,
	}
}

func newRendererFixture(localPods ...podmodel.ID) (*Renderer, *fakeProgrammer) {
	podManager := mockpodmanager.NewMockPodManager()
	for _, pod := range localPods {
		podManager.AddPod(&podmanager.LocalPod{
			ID:               pod,
			NetworkNamespace: "/var/run/netns/" + pod.Name,
			InterfaceName:    "eth0",
		})
	}
	programmer := &fakeProgrammer{}
	iptablesRenderer := &Renderer{
		Deps: Deps{
			Log:        logrus.StandardLogger(),
			PodManager: podManager,
			Programmer: programmer,
		},
	}
	gomega.Expect(iptablesRenderer.Init()).To(gomega.Succeed())
	return iptablesRenderer, programmer
}

func TestPodChainsProgrammed(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1)

	ingress := []*renderer.Rule{
		permitTCP("10.1.1.2/32", 6379),
		{Action: renderer.ActionDeny},
	}
	egress := []*renderer.Rule{
		{Action: renderer.ActionPermit, DestNetwork: ipNetwork("10.96.0.0/12")},
		{Action: renderer.ActionDeny},
	}

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), ingress, egress, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(programmer.applied).To(gomega.HaveLen(1))
	chains := programmer.applied[0]
	gomega.Expect(chains.pod).To(gomega.Equal(pod1))
	gomega.Expect(chains.ipv6).To(gomega.BeFalse())

	gomega.Expect(chains.ingress).To(gomega.Equal([][]string{
		{"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
		{"-p", "tcp", "-s", "10.1.1.2/32", "--dport", "6379", "-j", "ACCEPT"},
		{"-p", "all", "-j", "DROP"},
	}))
	gomega.Expect(chains.egress).To(gomega.Equal([][]string{
		{"-m", "state", "--state", "RELATED,ESTABLISHED", "-j", "ACCEPT"},
		{"-p", "all", "-d", "10.96.0.0/12", "-j", "ACCEPT"},
		{"-p", "all", "-j", "DROP"},
	}))
}

func TestUnchangedPodNotReprogrammed(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1)

	ingress := []*renderer.Rule{permitTCP("10.1.1.2/32", 80), {Action: renderer.ActionDeny}}

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(programmer.applied).To(gomega.HaveLen(1))
	programmer.reset()

	// The same rules again change no table assignment.
	txn = iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(programmer.applied).To(gomega.BeEmpty())
	gomega.Expect(programmer.removed).To(gomega.BeEmpty())

	// Changed rules reprogram the pod.
	txn = iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"),
		[]*renderer.Rule{permitTCP("10.1.1.3/32", 80), {Action: renderer.ActionDeny}}, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(programmer.applied).To(gomega.HaveLen(1))
	gomega.Expect(programmer.applied[0].ingress[1]).To(gomega.Equal(
		[]string{"-p", "tcp", "-s", "10.1.1.3/32", "--dport", "80", "-j", "ACCEPT"}))
}

func TestPodRemoval(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1)

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"),
		[]*renderer.Rule{{Action: renderer.ActionDeny}}, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	programmer.reset()

	txn = iptablesRenderer.NewTxn(false)
	txn.Render(pod1, nil, nil, nil, true)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(programmer.applied).To(gomega.BeEmpty())
	gomega.Expect(programmer.removed).To(gomega.Equal([]podmodel.ID{pod1}))
}

func TestSharedTableProgramsEveryPod(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1, pod2)

	// Both pods share the same rule table, each gets its own chains.
	ingress := []*renderer.Rule{permitTCP("10.2.0.0/16", 443), {Action: renderer.ActionDeny}}

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), ingress, nil, false)
	txn.Render(pod2, ipNetwork("10.1.1.2/32"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(programmer.applied).To(gomega.HaveLen(2))
	pods := []podmodel.ID{programmer.applied[0].pod, programmer.applied[1].pod}
	gomega.Expect(pods).To(gomega.ConsistOf(pod1, pod2))
}

func TestNonLocalPodSkipped(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1)

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod2, ipNetwork("10.1.1.2/32"),
		[]*renderer.Rule{{Action: renderer.ActionDeny}}, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(programmer.applied).To(gomega.BeEmpty())
	gomega.Expect(programmer.removed).To(gomega.BeEmpty())
}

func TestIPv6Pod(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1)

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("2001:db8::1/128"),
		[]*renderer.Rule{
			{Action: renderer.ActionPermit, SrcNetwork: ipNetwork("2001:db8::/64"), Protocol: renderer.TCP, DestPort: 80},
			{Action: renderer.ActionDeny},
		}, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	gomega.Expect(programmer.applied).To(gomega.HaveLen(1))
	gomega.Expect(programmer.applied[0].ipv6).To(gomega.BeTrue())
	gomega.Expect(programmer.applied[0].ingress[1]).To(gomega.Equal(
		[]string{"-p", "tcp", "-s", "2001:db8::/64", "--dport", "80", "-j", "ACCEPT"}))
}

func TestResyncReplacesConfiguration(t *testing.T) {
	gomega.RegisterTestingT(t)
	iptablesRenderer, programmer := newRendererFixture(pod1, pod2)

	txn := iptablesRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"),
		[]*renderer.Rule{{Action: renderer.ActionDeny}}, nil, false)
	txn.Render(pod2, ipNetwork("10.1.1.2/32"),
		[]*renderer.Rule{{Action: renderer.ActionDeny}}, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	programmer.reset()

	// Resync mentioning only pod1 cleans up pod2.
	txn = iptablesRenderer.NewTxn(true)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"),
		[]*renderer.Rule{{Action: renderer.ActionDeny}}, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// Unchanged pod1 is untouched, pod2 is cleaned up.
	gomega.Expect(programmer.applied).To(gomega.BeEmpty())
	gomega.Expect(programmer.removed).To(gomega.Equal([]podmodel.ID{pod2}))
}
