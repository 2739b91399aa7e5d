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

package restapi

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/unrolled/render"

	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy/renderer"
	"github.com/netfence/netfence/plugins/policy/renderer/cache"
	"github.com/netfence/netfence/plugins/policy/renderer/verdict"
	"github.com/netfence/netfence/plugins/restapi/restmodel"

	controller "github.com/netfence/netfence/plugins/controller/api"
)

// errorString wraps string representation of an error that, unlike the
// original error, can be marshalled.
type errorString struct {
	Error string
}

/*********************************** Pods *************************************/

// podsGetHandler is the GET handler for the pod collection.
func (p *Plugin) podsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		podIDs := p.PolicyCache.ListAllPods()
		sort.Slice(podIDs, func(i, j int) bool {
			return podIDs[i].String() < podIDs[j].String()
		})
		pods := make([]*podmodel.Pod, 0, len(podIDs))
		for _, podID := range podIDs {
			if found, podData := p.PolicyCache.LookupPod(podID); found {
				pods = append(pods, podData)
			}
		}
		formatter.JSON(w, http.StatusOK, pods)
	}
}

// podPutHandler is the PUT handler for a single pod.
func (p *Plugin) podPutHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		podData := &podmodel.Pod{}
		if err := json.NewDecoder(req.Body).Decode(podData); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		if podData.Name == "" && podData.Namespace == "" {
			podData.Name = vars["name"]
			podData.Namespace = vars["namespace"]
		}
		if podData.Name != vars["name"] || podData.Namespace != vars["namespace"] {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{"pod identity in the body does not match the URL"})
			return
		}
		if err := podmodel.Validate(podData); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}

		var prevValue interface{}
		found, prevPod := p.PolicyCache.LookupPod(podmodel.GetID(podData))
		if found {
			prevValue = prevPod
		}
		ev := controller.NewStateChange(podmodel.Keyword,
			podmodel.Key(podData.Name, podData.Namespace), prevValue, podData)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		if found {
			formatter.JSON(w, http.StatusOK, podData)
			return
		}
		formatter.JSON(w, http.StatusCreated, podData)
	}
}

// podDeleteHandler is the DELETE handler for a single pod.
func (p *Plugin) podDeleteHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		podID := podmodel.ID{Name: vars["name"], Namespace: vars["namespace"]}
		found, prevPod := p.PolicyCache.LookupPod(podID)
		if !found {
			formatter.JSON(w, http.StatusNotFound,
				errorString{fmt.Sprintf("pod %v is not configured", podID)})
			return
		}
		ev := controller.NewStateChange(podmodel.Keyword,
			podmodel.Key(podID.Name, podID.Namespace), prevPod, nil)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK, fmt.Sprintf("pod %v was deleted", podID))
	}
}

/******************************** Namespaces **********************************/

// namespacesGetHandler is the GET handler for the namespace collection.
func (p *Plugin) namespacesGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		nsIDs := p.PolicyCache.ListAllNamespaces()
		sort.Slice(nsIDs, func(i, j int) bool {
			return nsIDs[i] < nsIDs[j]
		})
		namespaces := make([]*namespacemodel.Namespace, 0, len(nsIDs))
		for _, nsID := range nsIDs {
			if found, nsData := p.PolicyCache.LookupNamespace(nsID); found {
				namespaces = append(namespaces, nsData)
			}
		}
		formatter.JSON(w, http.StatusOK, namespaces)
	}
}

// namespacePutHandler is the PUT handler for a single namespace.
func (p *Plugin) namespacePutHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		nsData := &namespacemodel.Namespace{}
		if err := json.NewDecoder(req.Body).Decode(nsData); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		if nsData.Name == "" {
			nsData.Name = vars["name"]
		}
		if nsData.Name != vars["name"] {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{"namespace name in the body does not match the URL"})
			return
		}
		if err := namespacemodel.Validate(nsData); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}

		var prevValue interface{}
		found, prevNs := p.PolicyCache.LookupNamespace(namespacemodel.GetID(nsData))
		if found {
			prevValue = prevNs
		}
		ev := controller.NewStateChange(namespacemodel.Keyword,
			namespacemodel.Key(nsData.Name), prevValue, nsData)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		if found {
			formatter.JSON(w, http.StatusOK, nsData)
			return
		}
		formatter.JSON(w, http.StatusCreated, nsData)
	}
}

// namespaceDeleteHandler is the DELETE handler for a single namespace.
func (p *Plugin) namespaceDeleteHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		nsID := namespacemodel.ID(vars["name"])
		found, prevNs := p.PolicyCache.LookupNamespace(nsID)
		if !found {
			formatter.JSON(w, http.StatusNotFound,
				errorString{fmt.Sprintf("namespace %v is not configured", nsID)})
			return
		}
		ev := controller.NewStateChange(namespacemodel.Keyword,
			namespacemodel.Key(string(nsID)), prevNs, nil)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK,
			fmt.Sprintf("namespace %v was deleted", nsID))
	}
}

/********************************** Policies **********************************/

// policiesGetHandler is the GET handler for the policy collection.
func (p *Plugin) policiesGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		policyIDs := p.PolicyCache.ListAllPolicies()
		sort.Slice(policyIDs, func(i, j int) bool {
			return policyIDs[i].String() < policyIDs[j].String()
		})
		policies := make([]*policymodel.Policy, 0, len(policyIDs))
		for _, policyID := range policyIDs {
			if found, policyData := p.PolicyCache.LookupPolicy(policyID); found {
				policies = append(policies, policyData)
			}
		}
		formatter.JSON(w, http.StatusOK, policies)
	}
}

// policyPutHandler is the PUT handler for a single policy. The policy is
// validated before it is accepted.
func (p *Plugin) policyPutHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		policyData := &policymodel.Policy{}
		if err := json.NewDecoder(req.Body).Decode(policyData); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		if policyData.Name == "" && policyData.Namespace == "" {
			policyData.Name = vars["name"]
			policyData.Namespace = vars["namespace"]
		}
		if policyData.Name != vars["name"] || policyData.Namespace != vars["namespace"] {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{"policy identity in the body does not match the URL"})
			return
		}
		if err := policymodel.Validate(policyData); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}

		var prevValue interface{}
		found, prevPolicy := p.PolicyCache.LookupPolicy(policymodel.GetID(policyData))
		if found {
			prevValue = prevPolicy
		}
		ev := controller.NewStateChange(policymodel.Keyword,
			policymodel.Key(policyData.Name, policyData.Namespace), prevValue, policyData)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		if found {
			formatter.JSON(w, http.StatusOK, policyData)
			return
		}
		formatter.JSON(w, http.StatusCreated, policyData)
	}
}

// policyDeleteHandler is the DELETE handler for a single policy.
func (p *Plugin) policyDeleteHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		policyID := policymodel.ID{Name: vars["name"], Namespace: vars["namespace"]}
		found, prevPolicy := p.PolicyCache.LookupPolicy(policyID)
		if !found {
			formatter.JSON(w, http.StatusNotFound,
				errorString{fmt.Sprintf("policy %v is not configured", policyID)})
			return
		}
		ev := controller.NewStateChange(policymodel.Keyword,
			policymodel.Key(policyID.Name, policyID.Namespace), prevPolicy, nil)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK,
			fmt.Sprintf("policy %v was deleted", policyID))
	}
}

/********************************* Local pods *********************************/

// localPodsGetHandler is the GET handler for the local pod collection.
func (p *Plugin) localPodsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		localPods := p.PodManager.GetLocalPods()
		list := make([]*controller.LocalPodState, 0, len(localPods))
		for _, localPod := range localPods {
			list = append(list, localPodState(localPod))
		}
		sort.Slice(list, func(i, j int) bool {
			if list[i].Namespace != list[j].Namespace {
				return list[i].Namespace < list[j].Namespace
			}
			return list[i].Name < list[j].Name
		})
		formatter.JSON(w, http.StatusOK, list)
	}
}

// localPodPostHandler is the POST handler registering a pod as local.
func (p *Plugin) localPodPostHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		podState := &controller.LocalPodState{}
		if err := json.NewDecoder(req.Body).Decode(podState); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		if podState.Name == "" || podState.Namespace == "" {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{"pod name and namespace are required"})
			return
		}
		podID := podmodel.ID{Name: podState.Name, Namespace: podState.Namespace}
		known := p.PodManager.IsLocalPod(podID)

		ev := podmanager.NewAddPodEvent(podID, podState.ContainerID,
			podState.NetworkNamespace, podState.InterfaceName)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		if known {
			formatter.JSON(w, http.StatusOK, podState)
			return
		}
		formatter.JSON(w, http.StatusCreated, podState)
	}
}

// localPodDeleteHandler is the DELETE handler unregistering a local pod.
func (p *Plugin) localPodDeleteHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		podID := podmodel.ID{Name: vars["name"], Namespace: vars["namespace"]}
		if !p.PodManager.IsLocalPod(podID) {
			formatter.JSON(w, http.StatusNotFound,
				errorString{fmt.Sprintf("pod %v is not known to be local", podID)})
			return
		}
		ev := podmanager.NewDeletePodEvent(podID)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK,
			fmt.Sprintf("local pod %v was removed", podID))
	}
}

/*********************************** Resync ***********************************/

// resyncPostHandler is the POST handler replacing the mirrored state with
// the submitted snapshot.
func (p *Plugin) resyncPostHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		snapshot := &controller.StateSnapshot{}
		if err := json.NewDecoder(req.Body).Decode(snapshot); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		if err := snapshot.Validate(); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}

		ev := controller.NewStateResync(snapshot)
		if status, err := p.submit(ev); err != nil {
			formatter.JSON(w, status, errorString{err.Error()})
			return
		}
		formatter.JSON(w, http.StatusOK, restmodel.ResyncResult{
			Namespaces: len(snapshot.Namespaces),
			Pods:       len(snapshot.Pods),
			Policies:   len(snapshot.Policies),
			LocalPods:  len(snapshot.LocalPods),
		})
	}
}

/******************************* Rules + verdict ******************************/

// rulesGetHandler is the GET handler dumping the compiled rule tables of
// the pod selected by the "pod" argument.
func (p *Plugin) rulesGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		podRef := req.URL.Query().Get(podArg)
		if podRef == "" {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{"missing pod argument"})
			return
		}
		podID, ok := podmodel.ParseID(podRef)
		if !ok {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{fmt.Sprintf("invalid pod reference %q", podRef)})
			return
		}
		if p.Verdict.GetPodConfig(podID) == nil {
			formatter.JSON(w, http.StatusNotFound,
				errorString{fmt.Sprintf("no rules rendered for pod %v", podID)})
			return
		}

		dump := &restmodel.PodRules{Pod: podID.String()}
		if table := p.Verdict.GetLocalTableByPod(cache.IngressRules, podID); table != nil {
			dump.Ingress = dumpTable(table)
		}
		if table := p.Verdict.GetLocalTableByPod(cache.EgressRules, podID); table != nil {
			dump.Egress = dumpTable(table)
		}
		formatter.JSON(w, http.StatusOK, dump)
	}
}

// simulatePostHandler is the POST handler evaluating the described
// traffic against the rendered rules of a pod.
func (p *Plugin) simulatePostHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		simReq := &restmodel.SimulateRequest{}
		if err := json.NewDecoder(req.Body).Decode(simReq); err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}
		podID, ok := podmodel.ParseID(simReq.Pod)
		if !ok {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{fmt.Sprintf("invalid pod reference %q", simReq.Pod)})
			return
		}
		var direction verdict.TrafficDirection
		switch strings.ToLower(simReq.Direction) {
		case "ingress":
			direction = verdict.IngressTraffic
		case "egress":
			direction = verdict.EgressTraffic
		default:
			formatter.JSON(w, http.StatusBadRequest,
				errorString{fmt.Sprintf("invalid traffic direction %q", simReq.Direction)})
			return
		}
		srcIP := net.ParseIP(simReq.SrcIP)
		if srcIP == nil {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{fmt.Sprintf("invalid source address %q", simReq.SrcIP)})
			return
		}
		destIP := net.ParseIP(simReq.DestIP)
		if destIP == nil {
			formatter.JSON(w, http.StatusBadRequest,
				errorString{fmt.Sprintf("invalid destination address %q", simReq.DestIP)})
			return
		}
		protocol, err := parseProtocol(simReq.Protocol)
		if err != nil {
			formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()})
			return
		}

		action := p.Verdict.TestTraffic(podID, direction,
			srcIP, destIP, protocol, simReq.SrcPort, simReq.DestPort)
		formatter.JSON(w, http.StatusOK, restmodel.SimulateVerdict{
			Pod:       podID.String(),
			Direction: direction.String(),
			Verdict:   action.String(),
		})
	}
}

/*********************************** Status ***********************************/

// statusGetHandler is the GET handler for the agent status.
func (p *Plugin) statusGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		formatter.JSON(w, http.StatusOK, restmodel.Status{
			StartTime:  p.startTime,
			Uptime:     time.Since(p.startTime).Round(time.Second).String(),
			Namespaces: len(p.PolicyCache.ListAllNamespaces()),
			Pods:       len(p.PolicyCache.ListAllPods()),
			Policies:   len(p.PolicyCache.ListAllPolicies()),
			LocalPods:  len(p.PodManager.GetLocalPods()),
			Controller: p.Stats.GetStats(),
			Config:     p.Config,
		})
	}
}

/*********************************** Helpers **********************************/

// localPodState converts the pod-manager record into its JSON form.
func localPodState(localPod *podmanager.LocalPod) *controller.LocalPodState {
	return &controller.LocalPodState{
		Name:             localPod.ID.Name,
		Namespace:        localPod.ID.Namespace,
		ContainerID:      localPod.ContainerID,
		NetworkNamespace: localPod.NetworkNamespace,
		InterfaceName:    localPod.InterfaceName,
	}
}

// dumpTable converts a rule table into its JSON form.
func dumpTable(table *cache.RuleTable) *restmodel.RuleTable {
	dump := &restmodel.RuleTable{
		ID:        table.ID,
		Direction: table.Direction.String(),
		Pods:      []string{},
		Rules:     []restmodel.Rule{},
	}
	for podID := range table.Pods {
		dump.Pods = append(dump.Pods, podID.String())
	}
	sort.Strings(dump.Pods)
	for i := 0; i < table.NumOfRules; i++ {
		dump.Rules = append(dump.Rules, dumpRule(table.Rules[i]))
	}
	return dump
}

// dumpRule converts a compiled rule into its JSON form.
func dumpRule(rule *renderer.Rule) restmodel.Rule {
	dump := restmodel.Rule{
		Action:   rule.Action.String(),
		SrcPort:  rule.SrcPort,
		DestPort: rule.DestPort,
	}
	if rule.SrcNetwork != nil && len(rule.SrcNetwork.IP) > 0 {
		dump.SrcNetwork = rule.SrcNetwork.String()
	}
	if rule.DestNetwork != nil && len(rule.DestNetwork.IP) > 0 {
		dump.DestNetwork = rule.DestNetwork.String()
	}
	if rule.Protocol != renderer.ANY {
		dump.Protocol = rule.Protocol.String()
	}
	return dump
}

// parseProtocol converts the protocol of a simulation request. An empty
// string matches any protocol.
func parseProtocol(protocol string) (renderer.ProtocolType, error) {
	switch strings.ToLower(protocol) {
	case "", "any":
		return renderer.ANY, nil
	case "tcp":
		return renderer.TCP, nil
	case "udp":
		return renderer.UDP, nil
	}
	return renderer.ANY, fmt.Errorf("unknown protocol %q", protocol)
}
