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

package cmdimpl

import (
	"fmt"
	"strings"

	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	"github.com/netfence/netfence/plugins/netctl/remote"

	controller "github.com/netfence/netfence/plugins/controller/api"
)

// PrintPods prints the pods mirrored by the agent in a table format.
func PrintPods(client *remote.Client) error {
	pods := []*podmodel.Pod{}
	if err := client.Get(podsPath, &pods); err != nil {
		return err
	}
	w := newWriter()
	fmt.Fprintln(w, "NAMESPACE\tNAME\tIP\tLABELS")
	for _, pod := range pods {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			pod.Namespace, pod.Name, pod.IPAddress, podLabels(pod.Labels))
	}
	return w.Flush()
}

// PrintNamespaces prints the namespaces mirrored by the agent.
func PrintNamespaces(client *remote.Client) error {
	namespaces := []*namespacemodel.Namespace{}
	if err := client.Get(namespacesPath, &namespaces); err != nil {
		return err
	}
	w := newWriter()
	fmt.Fprintln(w, "NAME\tLABELS")
	for _, ns := range namespaces {
		fmt.Fprintf(w, "%s\t%s\n", ns.Name, namespaceLabels(ns.Labels))
	}
	return w.Flush()
}

// PrintPolicies prints the policies mirrored by the agent.
func PrintPolicies(client *remote.Client) error {
	policies := []*policymodel.Policy{}
	if err := client.Get(policiesPath, &policies); err != nil {
		return err
	}
	w := newWriter()
	fmt.Fprintln(w, "NAMESPACE\tNAME\tTYPE\tINGRESS\tEGRESS")
	for _, policy := range policies {
		policyType := string(policy.Type)
		if policyType == "" {
			policyType = "default"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\n",
			policy.Namespace, policy.Name, policyType,
			len(policy.IngressRules), len(policy.EgressRules))
	}
	return w.Flush()
}

// PrintLocalPods prints the pods registered as running on this node.
func PrintLocalPods(client *remote.Client) error {
	localPods := []*controller.LocalPodState{}
	if err := client.Get(localPodsPath, &localPods); err != nil {
		return err
	}
	w := newWriter()
	fmt.Fprintln(w, "NAMESPACE\tNAME\tCONTAINER\tNETNS\tINTERFACE")
	for _, localPod := range localPods {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			localPod.Namespace, localPod.Name, localPod.ContainerID,
			localPod.NetworkNamespace, localPod.InterfaceName)
	}
	return w.Flush()
}

func podLabels(labels []*podmodel.Label) string {
	pairs := make([]string, 0, len(labels))
	for _, label := range labels {
		pairs = append(pairs, label.Key+"="+label.Value)
	}
	return strings.Join(pairs, ",")
}

func namespaceLabels(labels []*namespacemodel.Label) string {
	pairs := make([]string, 0, len(labels))
	for _, label := range labels {
		pairs = append(pairs, label.Key+"="+label.Value)
	}
	return strings.Join(pairs, ",")
}
