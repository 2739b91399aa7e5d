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
	"testing"

	"github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	. "github.com/netfence/netfence/mock/policycache"

	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	rendererAPI "github.com/netfence/netfence/plugins/policy/renderer"
	"github.com/netfence/netfence/plugins/policy/renderer/verdict"
)

const (
	namespace = "default"
	pod1IP    = "192.168.1.1"
	pod2IP    = "192.168.2.1"
)

var (
	pod1 = podmodel.ID{Name: "pod1", Namespace: namespace}
	pod2 = podmodel.ID{Name: "pod2", Namespace: namespace}
)

func parseIP(ip string) net.IP {
	return net.ParseIP(ip)
}

func parseIPNet(addr string) net.IPNet {
	_, network, err := net.ParseCIDR(addr)
	gomega.Expect(err).To(gomega.BeNil())
	return *network
}

func newVerdictRenderer() *verdict.Renderer {
	verdictRenderer := &verdict.Renderer{
		Deps: verdict.Deps{
			Log: logrus.StandardLogger(),
		},
	}
	err := verdictRenderer.Init()
	gomega.Expect(err).To(gomega.BeNil())
	return verdictRenderer
}

func newConfigurator(cache *MockPolicyCache, renderers ...rendererAPI.PolicyRendererAPI) *PolicyConfigurator {
	configurator := &PolicyConfigurator{
		Deps: Deps{
			Log:   logrus.StandardLogger(),
			Cache: cache,
		},
	}
	err := configurator.Init()
	gomega.Expect(err).To(gomega.BeNil())
	for _, policyRenderer := range renderers {
		err = configurator.RegisterRenderer(policyRenderer)
		gomega.Expect(err).To(gomega.BeNil())
	}
	return configurator
}

func TestSinglePolicySinglePod(t *testing.T) {
	gomega.RegisterTestingT(t)

	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{
				Type: MatchIngress,
				Pods: []podmodel.ID{
					pod2,
				},
				Ports: []Port{
					{Protocol: TCP, Number: 80},
					{Protocol: TCP, Number: 443},
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	mockCache.AddPodConfig(pod2, pod2IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// The IP address handed to the renderer.
	podConfig := renderer.GetPodConfig(pod1)
	gomega.Expect(podConfig).ToNot(gomega.BeNil())
	gomega.Expect(podConfig.PodIP.String()).To(gomega.Equal(pod1IP + "/32"))

	// Allowed by policy1.
	action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	// Allowed by policy1.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 456, 443)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	// Egress is not isolated.
	action = renderer.TestTraffic(pod1, verdict.EgressTraffic,
		parseIP(pod1IP), parseIP(pod2IP), rendererAPI.TCP, 123, 456)
	gomega.Expect(action).To(gomega.Equal(verdict.UnmatchedTraffic))

	// TCP:100 is not allowed.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 789, 100)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// UDP is not allowed.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.UDP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))
}

func TestSinglePolicyWithIPBlock(t *testing.T) {
	gomega.RegisterTestingT(t)

	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{
				Type: MatchIngress,
				IPBlocks: []IPBlock{
					{
						Network: parseIPNet("192.168.2.0/24"),
						Except: []net.IPNet{
							parseIPNet("192.168.2.4/30"),
						},
					},
				},
				Ports: []Port{
					{Protocol: TCP, Number: 80},
					{Protocol: TCP, Number: 443},
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	mockCache.AddPodConfig(pod2, pod2IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// Allowed by policy1, pod2 is inside the block.
	action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	// Allowed by policy1.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("192.168.2.20"), parseIP(pod1IP), rendererAPI.TCP, 123, 443)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	// Denied, the source is excluded from the block.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("192.168.2.5"), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// Denied, port not allowed.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 789, 100)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// Denied, source outside of the block.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("192.168.3.1"), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// Egress is not isolated.
	action = renderer.TestTraffic(pod1, verdict.EgressTraffic,
		parseIP(pod1IP), parseIP(pod2IP), rendererAPI.TCP, 123, 456)
	gomega.Expect(action).To(gomega.Equal(verdict.UnmatchedTraffic))
}

func TestSingleEgressPolicy(t *testing.T) {
	gomega.RegisterTestingT(t)

	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyEgress,
		Matches: []Match{
			{
				Type: MatchEgress,
				Pods: []podmodel.ID{
					pod2,
				},
				Ports: []Port{
					{Protocol: TCP, Number: 80},
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	mockCache.AddPodConfig(pod2, pod2IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// Allowed by policy1.
	action := renderer.TestTraffic(pod1, verdict.EgressTraffic,
		parseIP(pod1IP), parseIP(pod2IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	// Denied, another destination port.
	action = renderer.TestTraffic(pod1, verdict.EgressTraffic,
		parseIP(pod1IP), parseIP(pod2IP), rendererAPI.TCP, 123, 443)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// Denied, another destination.
	action = renderer.TestTraffic(pod1, verdict.EgressTraffic,
		parseIP(pod1IP), parseIP("192.168.3.1"), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// Ingress is not isolated.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 123, 456)
	gomega.Expect(action).To(gomega.Equal(verdict.UnmatchedTraffic))
}

func TestPolicyBothDirections(t *testing.T) {
	gomega.RegisterTestingT(t)

	// Ingress allowed from pod2 only, all egress blocked.
	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyAll,
		Matches: []Match{
			{
				Type: MatchIngress,
				Pods: []podmodel.ID{
					pod2,
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	mockCache.AddPodConfig(pod2, pod2IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// Any protocol and port from pod2 is allowed.
	action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.UDP, 123, 53)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	// Other sources are denied.
	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("192.168.3.1"), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

	// Egress is isolated without any match, everything is denied.
	action = renderer.TestTraffic(pod1, verdict.EgressTraffic,
		parseIP(pod1IP), parseIP(pod2IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))
}

func TestMatchAllPeers(t *testing.T) {
	gomega.RegisterTestingT(t)

	// No layer-3 restriction, only ports.
	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{
				Type: MatchIngress,
				Ports: []Port{
					{Protocol: UDP, Number: 53},
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("10.20.30.40"), parseIP(pod1IP), rendererAPI.UDP, 123, 53)
	gomega.Expect(action).To(gomega.Equal(verdict.AllowedTraffic))

	action = renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("10.20.30.40"), parseIP(pod1IP), rendererAPI.TCP, 123, 53)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))
}

func TestMultipleRenderersAndPods(t *testing.T) {
	gomega.RegisterTestingT(t)

	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{
				Type: MatchIngress,
				Pods: []podmodel.ID{
					pod2,
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	mockCache.AddPodConfig(pod2, pod2IP)
	renderer1 := newVerdictRenderer()
	renderer2 := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer1, renderer2)

	txn := configurator.NewTxn(true)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	txn.Configure(pod2, nil)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// Both renderers received both pods.
	for _, renderer := range []*verdict.Renderer{renderer1, renderer2} {
		gomega.Expect(renderer.GetPodConfig(pod1)).ToNot(gomega.BeNil())
		gomega.Expect(renderer.GetPodConfig(pod2)).ToNot(gomega.BeNil())

		action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
			parseIP("192.168.3.1"), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
		gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))

		// pod2 has no policies assigned.
		action = renderer.TestTraffic(pod2, verdict.IngressTraffic,
			parseIP("192.168.3.1"), parseIP(pod2IP), rendererAPI.TCP, 123, 80)
		gomega.Expect(action).To(gomega.Equal(verdict.UnmatchedTraffic))
	}
}

func TestDeleteAndResync(t *testing.T) {
	gomega.RegisterTestingT(t)

	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{Type: MatchIngress},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	mockCache.AddPodConfig(pod2, pod2IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1}).Configure(pod2, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(renderer.GetAllPods()).To(gomega.HaveLen(2))

	// Delete pod1 only.
	txn = configurator.NewTxn(false)
	txn.Delete(pod1)
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(renderer.GetPodConfig(pod1)).To(gomega.BeNil())
	gomega.Expect(renderer.GetPodConfig(pod2)).ToNot(gomega.BeNil())

	// Resync with pod2 only keeps pod2.
	txn = configurator.NewTxn(true)
	txn.Configure(pod2, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())
	gomega.Expect(renderer.GetAllPods()).To(gomega.HaveLen(1))
	gomega.Expect(renderer.GetPodConfig(pod2)).ToNot(gomega.BeNil())
}

func TestPodWithoutIPAddress(t *testing.T) {
	gomega.RegisterTestingT(t)

	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{Type: MatchIngress},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, "")
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// Nothing was rendered for the pod.
	gomega.Expect(renderer.GetPodConfig(pod1)).To(gomega.BeNil())
	action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP("192.168.3.1"), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.UnmatchedTraffic))
}

func TestMatchWithoutPeers(t *testing.T) {
	gomega.RegisterTestingT(t)

	// Peer selectors that selected nothing, distinct from a wildcard.
	policy1 := &ResolvedPolicy{
		ID:   policymodel.ID{Name: "policy1", Namespace: namespace},
		Type: PolicyIngress,
		Matches: []Match{
			{
				Type:     MatchIngress,
				Pods:     []podmodel.ID{},
				IPBlocks: []IPBlock{},
				Ports: []Port{
					{Protocol: TCP, Number: 80},
				},
			},
		},
	}

	mockCache := NewMockPolicyCache()
	mockCache.AddPodConfig(pod1, pod1IP)
	renderer := newVerdictRenderer()
	configurator := newConfigurator(mockCache, renderer)

	txn := configurator.NewTxn(false)
	txn.Configure(pod1, []*ResolvedPolicy{policy1})
	gomega.Expect(txn.Commit()).To(gomega.Succeed())

	// The pod is isolated and nothing is whitelisted.
	action := renderer.TestTraffic(pod1, verdict.IngressTraffic,
		parseIP(pod2IP), parseIP(pod1IP), rendererAPI.TCP, 123, 80)
	gomega.Expect(action).To(gomega.Equal(verdict.DeniedTraffic))
}
