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

	"github.com/netfence/netfence/plugins/netctl/remote"
	"github.com/netfence/netfence/plugins/restapi/restmodel"
)

// PrintStatus prints the agent status and event-loop counters.
func PrintStatus(client *remote.Client) error {
	status := &restmodel.Status{}
	if err := client.Get(statusPath, status); err != nil {
		return err
	}
	w := newWriter()
	fmt.Fprintf(w, "started:\t%s\n", status.StartTime.Format(timeLayout))
	fmt.Fprintf(w, "uptime:\t%s\n", status.Uptime)
	fmt.Fprintf(w, "namespaces:\t%d\n", status.Namespaces)
	fmt.Fprintf(w, "pods:\t%d\n", status.Pods)
	fmt.Fprintf(w, "policies:\t%d\n", status.Policies)
	fmt.Fprintf(w, "local pods:\t%d\n", status.LocalPods)
	fmt.Fprintf(w, "events handled:\t%d\n", status.Controller.EventCount)
	fmt.Fprintf(w, "resyncs:\t%d\n", status.Controller.ResyncCount)
	fmt.Fprintf(w, "failed events:\t%d\n", status.Controller.ErrorCount)
	fmt.Fprintf(w, "queued events:\t%d\n", status.Controller.QueueLength)
	return w.Flush()
}
