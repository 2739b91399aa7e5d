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

package podmanager

import (
	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/podmanager"
)

// MockPodManager is a mock implementation of the podmanager plugin.
type MockPodManager struct {
	localPods podmanager.LocalPods
}

// NewMockPodManager is a constructor for MockPodManager.
func NewMockPodManager() *MockPodManager {
	return &MockPodManager{
		localPods: make(podmanager.LocalPods),
	}
}

// GetLocalPods returns all pods added via AddPod().
func (m *MockPodManager) GetLocalPods() podmanager.LocalPods {
	return m.localPods
}

// IsLocalPod tells whether the pod was added via AddPod().
func (m *MockPodManager) IsLocalPod(pod podmodel.ID) bool {
	_, found := m.localPods[pod]
	return found
}

// AddPod simulates the deployment of a pod on this node.
func (m *MockPodManager) AddPod(pod *podmanager.LocalPod) *podmanager.AddPod {
	m.localPods[pod.ID] = pod
	return podmanager.NewAddPodEvent(pod.ID, pod.ContainerID, pod.NetworkNamespace, pod.InterfaceName)
}

// DeletePod simulates the removal of a pod from this node.
func (m *MockPodManager) DeletePod(podID podmodel.ID) *podmanager.DeletePod {
	delete(m.localPods, podID)
	return podmanager.NewDeletePodEvent(podID)
}
