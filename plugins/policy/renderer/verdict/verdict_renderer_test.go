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

package verdict

import (
	"net"
	"testing"

	"github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/policy/renderer"
)

var (
	pod1 = podmodel.ID{Name: "pod1", Namespace: "ns1"}
	pod2 = podmodel.ID{Name: "pod2", Namespace: "ns1"}
)

func newVerdictRenderer() *Renderer {
	verdictRenderer := &Renderer{
		Deps: Deps{
			Log: logrus.StandardLogger(),
		},
	}
	err := verdictRenderer.Init()
	gomega.Expect(err).To(gomega.BeNil())
	return verdictRenderer
}

func ipNetwork(addr string) *net.IPNet {
	_, network, err := net.ParseCIDR(addr)
	if err != nil {
		panic(err)
	}
	return network
}

func TestTrafficVerdicts(t *testing.T) {
	gomega.RegisterTestingT(t)
	verdictRenderer := newVerdictRenderer()

	// pod1 allows TCP 6379 from 10.1.1.2, everything else inbound is
	// denied. Outbound is not restricted.
	ingress := []*renderer.Rule{
		{
			Action:     renderer.ActionPermit,
			SrcNetwork: ipNetwork("10.1.1.2/32"),
			Protocol:   renderer.TCP,
			DestPort:   6379,
		},
		{
			Action: renderer.ActionDeny,
		},
	}
	txn := verdictRenderer.NewTxn(true)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	client := net.ParseIP("10.1.1.2")
	stranger := net.ParseIP("10.1.1.3")
	podIP := net.ParseIP("10.1.1.1")

	verdict := verdictRenderer.TestTraffic(pod1, IngressTraffic, client, podIP, renderer.TCP, 33000, 6379)
	gomega.Expect(verdict).To(gomega.Equal(AllowedTraffic))

	// Wrong source, wrong port, wrong protocol.
	verdict = verdictRenderer.TestTraffic(pod1, IngressTraffic, stranger, podIP, renderer.TCP, 33000, 6379)
	gomega.Expect(verdict).To(gomega.Equal(DeniedTraffic))
	verdict = verdictRenderer.TestTraffic(pod1, IngressTraffic, client, podIP, renderer.TCP, 33000, 80)
	gomega.Expect(verdict).To(gomega.Equal(DeniedTraffic))
	verdict = verdictRenderer.TestTraffic(pod1, IngressTraffic, client, podIP, renderer.UDP, 33000, 6379)
	gomega.Expect(verdict).To(gomega.Equal(DeniedTraffic))

	// Egress has no table installed.
	verdict = verdictRenderer.TestTraffic(pod1, EgressTraffic, podIP, client, renderer.TCP, 40000, 443)
	gomega.Expect(verdict).To(gomega.Equal(UnmatchedTraffic))

	// Unknown pod.
	verdict = verdictRenderer.TestTraffic(pod2, IngressTraffic, client, podIP, renderer.TCP, 33000, 6379)
	gomega.Expect(verdict).To(gomega.Equal(UnmatchedTraffic))
}

func TestWildcardRules(t *testing.T) {
	gomega.RegisterTestingT(t)
	verdictRenderer := newVerdictRenderer()

	// Any protocol, any source, destination port left open on purpose.
	egress := []*renderer.Rule{
		{
			Action:      renderer.ActionPermit,
			DestNetwork: ipNetwork("10.2.0.0/16"),
			Protocol:    renderer.ANY,
		},
		{
			Action: renderer.ActionDeny,
		},
	}
	txn := verdictRenderer.NewTxn(true)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), nil, egress, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	podIP := net.ParseIP("10.1.1.1")
	inRange := net.ParseIP("10.2.3.4")
	outOfRange := net.ParseIP("10.3.0.1")

	verdict := verdictRenderer.TestTraffic(pod1, EgressTraffic, podIP, inRange, renderer.TCP, 40000, 80)
	gomega.Expect(verdict).To(gomega.Equal(AllowedTraffic))
	verdict = verdictRenderer.TestTraffic(pod1, EgressTraffic, podIP, inRange, renderer.UDP, 40000, 53)
	gomega.Expect(verdict).To(gomega.Equal(AllowedTraffic))
	verdict = verdictRenderer.TestTraffic(pod1, EgressTraffic, podIP, outOfRange, renderer.TCP, 40000, 80)
	gomega.Expect(verdict).To(gomega.Equal(DeniedTraffic))

	// Ingress stays open.
	verdict = verdictRenderer.TestTraffic(pod1, IngressTraffic, inRange, podIP, renderer.TCP, 40000, 80)
	gomega.Expect(verdict).To(gomega.Equal(UnmatchedTraffic))
}

func TestRemovedPod(t *testing.T) {
	gomega.RegisterTestingT(t)
	verdictRenderer := newVerdictRenderer()

	ingress := []*renderer.Rule{{Action: renderer.ActionDeny}}
	txn := verdictRenderer.NewTxn(true)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), ingress, nil, false)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	podIP := net.ParseIP("10.1.1.1")
	verdict := verdictRenderer.TestTraffic(pod1, IngressTraffic, net.ParseIP("10.1.1.2"), podIP, renderer.TCP, 33000, 80)
	gomega.Expect(verdict).To(gomega.Equal(DeniedTraffic))

	txn = verdictRenderer.NewTxn(false)
	txn.Render(pod1, ipNetwork("10.1.1.1/32"), nil, nil, true)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	verdict = verdictRenderer.TestTraffic(pod1, IngressTraffic, net.ParseIP("10.1.1.2"), podIP, renderer.TCP, 33000, 80)
	gomega.Expect(verdict).To(gomega.Equal(UnmatchedTraffic))
	gomega.Expect(verdictRenderer.GetAllPods()).To(gomega.BeEmpty())
}
