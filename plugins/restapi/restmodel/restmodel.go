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

// Package restmodel defines the JSON payloads of the agent REST API,
// shared between the server and the netctl client.
package restmodel

import (
	"time"

	"github.com/netfence/netfence/plugins/fenceconf"

	ctrl "github.com/netfence/netfence/plugins/controller"
)

// ResyncResult summarizes an accepted state snapshot.
type ResyncResult struct {
	Namespaces int `json:"namespaces"`
	Pods       int `json:"pods"`
	Policies   int `json:"policies"`
	LocalPods  int `json:"localPods"`
}

// PodRules carries the compiled rule tables of one pod.
type PodRules struct {
	Pod     string     `json:"pod"`
	Ingress *RuleTable `json:"ingress,omitempty"`
	Egress  *RuleTable `json:"egress,omitempty"`
}

// RuleTable is one compiled table together with the pods assigned to it.
type RuleTable struct {
	ID        string   `json:"id"`
	Direction string   `json:"direction"`
	Pods      []string `json:"pods"`
	Rules     []Rule   `json:"rules"`
}

// Rule is one compiled rule. Empty fields match any value.
type Rule struct {
	Action      string `json:"action"`
	SrcNetwork  string `json:"srcNetwork,omitempty"`
	DestNetwork string `json:"destNetwork,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	SrcPort     uint16 `json:"srcPort,omitempty"`
	DestPort    uint16 `json:"destPort,omitempty"`
}

// SimulateRequest describes the traffic to evaluate against the rendered
// rules of a pod. For ingress traffic the destination address belongs to
// the pod, for egress the source one.
type SimulateRequest struct {
	Pod       string `json:"pod"`
	Direction string `json:"direction"`
	SrcIP     string `json:"srcIP"`
	DestIP    string `json:"destIP"`
	Protocol  string `json:"protocol,omitempty"`
	SrcPort   uint16 `json:"srcPort,omitempty"`
	DestPort  uint16 `json:"destPort,omitempty"`
}

// SimulateVerdict is the evaluation result.
type SimulateVerdict struct {
	Pod       string `json:"pod"`
	Direction string `json:"direction"`
	Verdict   string `json:"verdict"`
}

// Status reports uptime, mirrored-state counts and event-loop counters.
type Status struct {
	StartTime  time.Time         `json:"startTime"`
	Uptime     string            `json:"uptime"`
	Namespaces int               `json:"namespaces"`
	Pods       int               `json:"pods"`
	Policies   int               `json:"policies"`
	LocalPods  int               `json:"localPods"`
	Controller ctrl.Stats        `json:"controller"`
	Config     *fenceconf.Config `json:"config,omitempty"`
}
