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

// Package cmd wires the netctl command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/netfence/netfence/plugins/netctl/cmdimpl"
	"github.com/netfence/netfence/plugins/netctl/remote"
	"github.com/netfence/netfence/plugins/restapi/restmodel"
)

var (
	agentAddr   string
	stateFile   string
	simulateReq restmodel.SimulateRequest
)

func client() *remote.Client {
	return remote.NewClient(agentAddr)
}

var cmdPods = &cobra.Command{
	Use:   "pods",
	Short: "List pods mirrored by the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintPods(client())
	},
}

var cmdNamespaces = &cobra.Command{
	Use:   "namespaces",
	Short: "List namespaces mirrored by the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintNamespaces(client())
	},
}

var cmdPolicies = &cobra.Command{
	Use:   "policies",
	Short: "List policies mirrored by the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintPolicies(client())
	},
}

var cmdLocalPods = &cobra.Command{
	Use:   "local-pods",
	Short: "List pods registered as running on this node",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintLocalPods(client())
	},
}

var cmdRules = &cobra.Command{
	Use:   "rules namespace/pod",
	Short: "Dump the compiled rule tables of a pod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintPodRules(client(), args[0])
	},
}

var cmdSimulate = &cobra.Command{
	Use:   "simulate namespace/pod",
	Short: "Evaluate described traffic against the rendered rules of a pod",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		simulateReq.Pod = args[0]
		return cmdimpl.Simulate(client(), &simulateReq)
	},
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Show agent status and event-loop counters",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.PrintStatus(client())
	},
}

var cmdApply = &cobra.Command{
	Use:   "apply",
	Short: "Upload every object of a state file to the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.ApplyState(client(), stateFile)
	},
}

var cmdDelete = &cobra.Command{
	Use:   "delete",
	Short: "Remove every object named by a state file from the agent",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.DeleteState(client(), stateFile)
	},
}

var cmdResync = &cobra.Command{
	Use:   "resync",
	Short: "Replace the whole mirrored state of the agent with a state file",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdimpl.Resync(client(), stateFile)
	},
}

func init() {
	cmdSimulate.Flags().StringVar(&simulateReq.Direction, "direction", "ingress",
		"traffic direction (ingress|egress)")
	cmdSimulate.Flags().StringVar(&simulateReq.SrcIP, "src-ip", "",
		"source IP address of the traffic")
	cmdSimulate.Flags().StringVar(&simulateReq.DestIP, "dest-ip", "",
		"destination IP address of the traffic")
	cmdSimulate.Flags().StringVar(&simulateReq.Protocol, "protocol", "",
		"transport protocol (tcp|udp), empty matches any")
	cmdSimulate.Flags().Uint16Var(&simulateReq.SrcPort, "src-port", 0,
		"source port, 0 matches any")
	cmdSimulate.Flags().Uint16Var(&simulateReq.DestPort, "dest-port", 0,
		"destination port, 0 matches any")

	for _, fileCmd := range []*cobra.Command{cmdApply, cmdDelete, cmdResync} {
		fileCmd.Flags().StringVarP(&stateFile, "file", "f", "", "state file (YAML or JSON)")
		fileCmd.MarkFlagRequired("file")
	}
}

// Execute runs the netctl command tree.
func Execute() {
	rootCmd := &cobra.Command{
		Use:           "netfence-ctl",
		Short:         "Inspect and feed a netfence agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&agentAddr, "agent", "127.0.0.1:9191",
		"host:port of the agent REST API")
	rootCmd.AddCommand(cmdPods, cmdNamespaces, cmdPolicies, cmdLocalPods,
		cmdRules, cmdSimulate, cmdStatus, cmdApply, cmdDelete, cmdResync)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
