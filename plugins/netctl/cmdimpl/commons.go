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

// Package cmdimpl implements the netctl commands on top of the remote
// agent client.
package cmdimpl

import (
	"os"
	"text/tabwriter"
)

const (
	podsPath       = "/netfence/v1/pods"
	namespacesPath = "/netfence/v1/namespaces"
	policiesPath   = "/netfence/v1/policies"
	localPodsPath  = "/netfence/v1/local-pods"
	resyncPath     = "/netfence/v1/resync"
	rulesPath      = "/netfence/v1/rules"
	simulatePath   = "/netfence/v1/simulate"
	statusPath     = "/netfence/v1/status"

	timeLayout = "Mon Jan _2 15:04:05 2006"
)

func newWriter() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 8, 4, ' ', 0)
}
