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
	"net/url"
	"strconv"
	"strings"

	"github.com/netfence/netfence/plugins/netctl/remote"
	"github.com/netfence/netfence/plugins/restapi/restmodel"
)

// PrintPodRules prints the compiled rule tables of the given pod.
func PrintPodRules(client *remote.Client, pod string) error {
	dump := &restmodel.PodRules{}
	if err := client.Get(rulesPath+"?pod="+url.QueryEscape(pod), dump); err != nil {
		return err
	}
	if dump.Ingress == nil && dump.Egress == nil {
		fmt.Printf("pod %s is not isolated by any policy\n", dump.Pod)
		return nil
	}
	if dump.Ingress != nil {
		printRuleTable(dump.Ingress)
	}
	if dump.Egress != nil {
		printRuleTable(dump.Egress)
	}
	return nil
}

func printRuleTable(table *restmodel.RuleTable) {
	fmt.Printf("%s table %s, assigned to: %s\n",
		table.Direction, table.ID, strings.Join(table.Pods, ", "))
	w := newWriter()
	fmt.Fprintln(w, "  #\tACTION\tSRC-NETWORK\tDEST-NETWORK\tPROTOCOL\tSRC-PORT\tDEST-PORT")
	for i, rule := range table.Rules {
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, rule.Action,
			orAny(rule.SrcNetwork), orAny(rule.DestNetwork), orAny(rule.Protocol),
			portString(rule.SrcPort), portString(rule.DestPort))
	}
	w.Flush()
	fmt.Println()
}

// Simulate asks the agent for the verdict on the described traffic.
func Simulate(client *remote.Client, request *restmodel.SimulateRequest) error {
	verdict := &restmodel.SimulateVerdict{}
	if err := client.Send("POST", simulatePath, request, verdict); err != nil {
		return err
	}
	fmt.Printf("%s traffic %s -> %s for pod %s: %s\n",
		verdict.Direction, request.SrcIP, request.DestIP, verdict.Pod,
		verdict.Verdict)
	return nil
}

func orAny(value string) string {
	if value == "" {
		return "any"
	}
	return value
}

func portString(port uint16) string {
	if port == 0 {
		return "any"
	}
	return strconv.Itoa(int(port))
}
