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
)

// changePropagateEvent applies a state change into the cache and notifies
// the watchers.
func (pc *PolicyCache) changePropagateEvent(stateChange *controller.StateChange) error {
	switch stateChange.Resource {
	case namespacemodel.Keyword:
		if stateChange.PrevValue == nil {
			// add namespace
			namespace := stateChange.NewValue.(*namespacemodel.Namespace)
			pc.configuredNamespaces.RegisterNamespace(namespace.Name, namespace)

			for _, watcher := range pc.watchers {
				if err := watcher.AddNamespace(namespace); err != nil {
					return err
				}
			}
		} else if stateChange.NewValue == nil {
			// delete namespace
			oldNamespace := stateChange.PrevValue.(*namespacemodel.Namespace)
			pc.configuredNamespaces.UnregisterNamespace(oldNamespace.Name)

			for _, watcher := range pc.watchers {
				if err := watcher.DelNamespace(oldNamespace); err != nil {
					return err
				}
			}
		} else {
			// update namespace
			oldNamespace := stateChange.PrevValue.(*namespacemodel.Namespace)
			newNamespace := stateChange.NewValue.(*namespacemodel.Namespace)
			pc.configuredNamespaces.UnregisterNamespace(oldNamespace.Name)
			pc.configuredNamespaces.RegisterNamespace(newNamespace.Name, newNamespace)

			for _, watcher := range pc.watchers {
				if err := watcher.UpdateNamespace(oldNamespace, newNamespace); err != nil {
					return err
				}
			}
		}

	case podmodel.Keyword:
		if stateChange.PrevValue == nil {
			// add pod
			pod := stateChange.NewValue.(*podmodel.Pod)
			podID := podmodel.GetID(pod)
			pc.configuredPods.RegisterPod(podID.String(), pod)

			for _, watcher := range pc.watchers {
				if err := watcher.AddPod(podID, pod); err != nil {
					return err
				}
			}
		} else if stateChange.NewValue == nil {
			// delete pod
			oldPod := stateChange.PrevValue.(*podmodel.Pod)
			oldPodID := podmodel.GetID(oldPod)
			pc.configuredPods.UnregisterPod(oldPodID.String())

			for _, watcher := range pc.watchers {
				if err := watcher.DelPod(oldPodID, oldPod); err != nil {
					return err
				}
			}
		} else {
			// update pod
			oldPod := stateChange.PrevValue.(*podmodel.Pod)
			newPod := stateChange.NewValue.(*podmodel.Pod)
			podID := podmodel.GetID(newPod)
			oldPodID := podmodel.GetID(oldPod)
			pc.configuredPods.UnregisterPod(oldPodID.String())
			pc.configuredPods.RegisterPod(podID.String(), newPod)

			for _, watcher := range pc.watchers {
				if err := watcher.UpdatePod(podID, oldPod, newPod); err != nil {
					return err
				}
			}
		}

	case policymodel.Keyword:
		if stateChange.PrevValue == nil {
			// add policy
			policy := stateChange.NewValue.(*policymodel.Policy)
			policyID := policymodel.GetID(policy)
			pc.configuredPolicies.RegisterPolicy(policyID.String(), policy)

			for _, watcher := range pc.watchers {
				if err := watcher.AddPolicy(policy); err != nil {
					return err
				}
			}
		} else if stateChange.NewValue == nil {
			// delete policy
			oldPolicy := stateChange.PrevValue.(*policymodel.Policy)
			oldPolicyID := policymodel.GetID(oldPolicy)
			pc.configuredPolicies.UnregisterPolicy(oldPolicyID.String())

			for _, watcher := range pc.watchers {
				if err := watcher.DelPolicy(oldPolicy); err != nil {
					return err
				}
			}
		} else {
			// update policy
			oldPolicy := stateChange.PrevValue.(*policymodel.Policy)
			newPolicy := stateChange.NewValue.(*policymodel.Policy)
			policyID := policymodel.GetID(newPolicy)
			oldPolicyID := policymodel.GetID(oldPolicy)
			pc.configuredPolicies.UnregisterPolicy(oldPolicyID.String())
			pc.configuredPolicies.RegisterPolicy(policyID.String(), newPolicy)

			for _, watcher := range pc.watchers {
				if err := watcher.UpdatePolicy(oldPolicy, newPolicy); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
