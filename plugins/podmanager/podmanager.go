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
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	controller "github.com/netfence/netfence/plugins/controller/api"
)

// PodManager implements API and keeps the set of pods deployed on this
// node. The state is updated from the event loop; reads are allowed from
// any goroutine.
type PodManager struct {
	Deps

	mu        sync.RWMutex
	localPods LocalPods
}

// Deps lists the dependencies of PodManager.
type Deps struct {
	Log logrus.FieldLogger
}

// Init allocates the local pod map.
func (pm *PodManager) Init() error {
	pm.localPods = make(LocalPods)
	return nil
}

// GetLocalPods returns a snapshot of all pods deployed on this node.
func (pm *PodManager) GetLocalPods() LocalPods {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	pods := make(LocalPods, len(pm.localPods))
	for id, pod := range pm.localPods {
		pods[id] = pod
	}
	return pods
}

// IsLocalPod tells whether the given pod is deployed on this node.
func (pm *PodManager) IsLocalPod(pod podmodel.ID) bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	_, isLocal := pm.localPods[pod]
	return isLocal
}

/***************************** Event Handler API ******************************/

// String identifies the handler in logs.
func (pm *PodManager) String() string {
	return "podmanager"
}

// HandlesEvent selects events relevant for the pod manager.
func (pm *PodManager) HandlesEvent(event controller.Event) bool {
	switch event.(type) {
	case *controller.StateResync:
		return true
	case *AddPod:
		return true
	case *DeletePod:
		return true
	}
	return false
}

// Resync replaces the set of local pods with the snapshot content.
func (pm *PodManager) Resync(event controller.Event) error {
	resync, isResync := event.(*controller.StateResync)
	if !isResync {
		return errors.Errorf("unexpected resync event: %s", event.GetName())
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.localPods = make(LocalPods)
	if resync.Snapshot == nil {
		return nil
	}
	for _, pod := range resync.Snapshot.LocalPods {
		id := podmodel.ID{Name: pod.Name, Namespace: pod.Namespace}
		pm.localPods[id] = &LocalPod{
			ID:               id,
			ContainerID:      pod.ContainerID,
			NetworkNamespace: pod.NetworkNamespace,
			InterfaceName:    pod.InterfaceName,
		}
	}
	pm.Log.Debugf("pod manager resynced: %d local pods", len(pm.localPods))
	return nil
}

// Update applies an AddPod or DeletePod event.
func (pm *PodManager) Update(event controller.Event) (string, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	switch ev := event.(type) {
	case *AddPod:
		pm.localPods[ev.Pod] = &LocalPod{
			ID:               ev.Pod,
			ContainerID:      ev.ContainerID,
			NetworkNamespace: ev.NetworkNamespace,
			InterfaceName:    ev.InterfaceName,
		}
		return fmt.Sprintf("added local pod %v", ev.Pod), nil

	case *DeletePod:
		if _, known := pm.localPods[ev.Pod]; !known {
			return "", errors.Errorf("pod %v is not known to be local", ev.Pod)
		}
		delete(pm.localPods, ev.Pod)
		return fmt.Sprintf("deleted local pod %v", ev.Pod), nil
	}
	return "", nil
}
