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

// Package testdata provides state fixtures shared by the policy engine
// tests.
package testdata

import (
	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
)

const (
	namespace1 = "ns1"
	namespace2 = "ns2"
)

var (
	PodIDs = []string{
		namespace1 + "/pod1",
		namespace1 + "/pod2",
		namespace2 + "/pod3",
		namespace2 + "/pod4",
		namespace1 + "/pod5",
	}

	// aliases
	Pod1 = PodIDs[0]
	Pod2 = PodIDs[1]
	Pod3 = PodIDs[2]
	Pod4 = PodIDs[3]
	Pod5 = PodIDs[4]

	NamespaceIDs = []string{
		namespace1,
		namespace2,
	}

	Namespace1 = NamespaceIDs[0]
	Namespace2 = NamespaceIDs[1]
)

// PodOne is a database pod in ns1.
var PodOne = &podmodel.Pod{
	Name:      "pod1",
	Namespace: namespace1,
	Labels: []*podmodel.Label{
		{Key: "role", Value: "db"},
		{Key: "app", Value: "datastore"},
	},
	IPAddress:     "10.1.1.1",
	HostIPAddress: "192.168.16.10",
	Containers: []*podmodel.Container{
		{
			Name: "redis",
			Ports: []*podmodel.ContainerPort{
				{Name: "redis", Protocol: "TCP", Port: 6379},
			},
		},
	},
}

// PodTwo is a frontend pod in ns1.
var PodTwo = &podmodel.Pod{
	Name:      "pod2",
	Namespace: namespace1,
	Labels: []*podmodel.Label{
		{Key: "role", Value: "frontend"},
		{Key: "app", Value: "datastore"},
	},
	IPAddress:     "10.1.1.2",
	HostIPAddress: "192.168.16.10",
	Containers: []*podmodel.Container{
		{
			Name: "nginx",
			Ports: []*podmodel.ContainerPort{
				{Name: "http", Protocol: "TCP", Port: 80},
			},
		},
	},
}

// PodThree is a database pod in ns2.
var PodThree = &podmodel.Pod{
	Name:      "pod3",
	Namespace: namespace2,
	Labels: []*podmodel.Label{
		{Key: "role", Value: "db"},
	},
	IPAddress:     "10.1.2.1",
	HostIPAddress: "192.168.16.11",
}

// PodFour is an unlabelled pod in ns2.
var PodFour = &podmodel.Pod{
	Name:          "pod4",
	Namespace:     namespace2,
	IPAddress:     "10.1.2.2",
	HostIPAddress: "192.168.16.11",
}

// PodFive is a pod in ns1 that was not assigned an IP address yet.
var PodFive = &podmodel.Pod{
	Name:      "pod5",
	Namespace: namespace1,
	Labels: []*podmodel.Label{
		{Key: "role", Value: "client"},
	},
}

// NamespaceOne is ns1, labelled as a development namespace.
var NamespaceOne = &namespacemodel.Namespace{
	Name: namespace1,
	Labels: []*namespacemodel.Label{
		{Key: "team", Value: "dev"},
	},
}

// NamespaceTwo is ns2, labelled as an operations namespace.
var NamespaceTwo = &namespacemodel.Namespace{
	Name: namespace2,
	Labels: []*namespacemodel.Label{
		{Key: "team", Value: "ops"},
		{Key: "storage", Value: "ssd"},
	},
}

var (
	PolicyIDs = []string{
		namespace1 + "/deny-all-traffic",
		namespace1 + "/api-allow",
		namespace1 + "/stores-allow",
	}

	Policy1 = PolicyIDs[0]
	Policy2 = PolicyIDs[1]
	Policy3 = PolicyIDs[2]
)

// PolicyDenyAll isolates every pod in ns1 for ingress without
// whitelisting anything.
var PolicyDenyAll = &policymodel.Policy{
	Name:      "deny-all-traffic",
	Namespace: namespace1,
	Type:      policymodel.TypeIngress,
}

// PolicyAPIAllow lets frontend pods talk to database pods in ns1 on the
// redis port.
var PolicyAPIAllow = &policymodel.Policy{
	Name:      "api-allow",
	Namespace: namespace1,
	Type:      policymodel.TypeIngress,
	Pods: &policymodel.LabelSelector{
		MatchLabels: []*policymodel.Label{
			{Key: "role", Value: "db"},
		},
	},
	IngressRules: []*policymodel.IngressRule{
		{
			Ports: []*policymodel.Port{
				{Protocol: policymodel.TCP, Port: policymodel.PortNameOrNumber{Number: 6379}},
			},
			From: []*policymodel.Peer{
				{
					Pods: &policymodel.LabelSelector{
						MatchLabels: []*policymodel.Label{
							{Key: "role", Value: "frontend"},
						},
					},
				},
			},
		},
	},
}

// PolicyStoresAllow selects datastore pods by a match expression and
// whitelists ingress from all pods of namespaces of the ops team.
var PolicyStoresAllow = &policymodel.Policy{
	Name:      "stores-allow",
	Namespace: namespace1,
	Type:      policymodel.TypeIngress,
	Pods: &policymodel.LabelSelector{
		MatchExpressions: []*policymodel.MatchExpression{
			{Key: "app", Operator: policymodel.OpIn, Values: []string{"datastore", "cache"}},
		},
	},
	IngressRules: []*policymodel.IngressRule{
		{
			From: []*policymodel.Peer{
				{
					Namespaces: &policymodel.LabelSelector{
						MatchLabels: []*policymodel.Label{
							{Key: "team", Value: "ops"},
						},
					},
				},
			},
		},
	},
}
