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

package cache

import (
	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	controller "github.com/netfence/netfence/plugins/controller/api"
	"github.com/netfence/netfence/plugins/policy/cache/namespaceidx"
	"github.com/netfence/netfence/plugins/policy/cache/podidx"
	"github.com/netfence/netfence/plugins/policy/cache/policyidx"
)

// resyncPropagateEvent drops the cached state, registers everything from
// the snapshot and notifies the watchers.
func (pc *PolicyCache) resyncPropagateEvent(snapshot *controller.StateSnapshot) error {
	pc.configuredPods = podidx.NewConfigIndex()
	pc.configuredPolicies = policyidx.NewConfigIndex()
	pc.configuredNamespaces = namespaceidx.NewConfigIndex()

	event := NewDataResyncEvent()
	if snapshot != nil {
		event.Namespaces = snapshot.Namespaces
		event.Pods = snapshot.Pods
		event.Policies = snapshot.Policies
	}

	for _, namespace := range event.Namespaces {
		pc.configuredNamespaces.RegisterNamespace(namespacemodel.GetID(namespace).String(), namespace)
	}
	for _, pod := range event.Pods {
		pc.configuredPods.RegisterPod(podmodel.GetID(pod).String(), pod)
	}
	for _, policy := range event.Policies {
		pc.configuredPolicies.RegisterPolicy(policymodel.GetID(policy).String(), policy)
	}

	pc.Log.Debugf("policy cache resynced: %d namespaces, %d pods, %d policies",
		len(event.Namespaces), len(event.Pods), len(event.Policies))

	for _, watcher := range pc.watchers {
		if err := watcher.Resync(event); err != nil {
			return err
		}
	}
	return nil
}
