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

// Package podmanager tracks the pods deployed on this node. Renderers use
// it to decide which pods they program rules for and where the network
// namespaces of those pods live.
package podmanager

import (
	"fmt"

	podmodel "github.com/netfence/netfence/model/pod"
	controller "github.com/netfence/netfence/plugins/controller/api"
)

/********************************* Plugin API *********************************/

// API defines methods provided by PodManager for use by other plugins.
type API interface {
	// GetLocalPods returns all pods currently deployed on this node.
	GetLocalPods() LocalPods

	// IsLocalPod tells whether the given pod is deployed on this node.
	IsLocalPod(pod podmodel.ID) bool
}

// LocalPod represents a pod deployed on this node.
type LocalPod struct {
	ID               podmodel.ID
	ContainerID      string
	NetworkNamespace string
	InterfaceName    string
}

// LocalPods is a map of pod-ID -> pod info.
type LocalPods map[podmodel.ID]*LocalPod

// String returns a human-readable representation of the pod info.
func (p *LocalPod) String() string {
	return fmt.Sprintf("Pod <ID:%v, Container:%s, Netns:%s, If:%s>",
		p.ID, p.ContainerID, p.NetworkNamespace, p.InterfaceName)
}

// String returns a string representation of the pods.
func (ps LocalPods) String() string {
	str := "{"
	first := true
	for podID, pod := range ps {
		if !first {
			str += ", "
		}
		first = false
		str += fmt.Sprintf("%v: %s", podID, pod.String())
	}
	str += "}"
	return str
}

/******************************* Add Pod Event ********************************/

// AddPod event is triggered when a new pod is deployed on this node.
type AddPod struct {
	Pod              podmodel.ID
	ContainerID      string
	NetworkNamespace string
	InterfaceName    string

	result chan error
}

// NewAddPodEvent creates a blocking AddPod event.
func NewAddPodEvent(pod podmodel.ID, containerID, networkNamespace, interfaceName string) *AddPod {
	return &AddPod{
		Pod:              pod,
		ContainerID:      containerID,
		NetworkNamespace: networkNamespace,
		InterfaceName:    interfaceName,
		result:           make(chan error, 1),
	}
}

// GetName returns the event name.
func (ev *AddPod) GetName() string {
	return "Add Local Pod"
}

// String describes the added pod.
func (ev *AddPod) String() string {
	return fmt.Sprintf("%s (%v, container: %s, netns: %s)",
		ev.GetName(), ev.Pod, ev.ContainerID, ev.NetworkNamespace)
}

// Method returns Update.
func (ev *AddPod) Method() controller.EventMethodType {
	return controller.Update
}

// IsBlocking returns true, the producer waits for the result.
func (ev *AddPod) IsBlocking() bool {
	return true
}

// Done delivers the processing result to the waiting producer.
func (ev *AddPod) Done(err error) {
	ev.result <- err
}

// Wait blocks until the event is processed.
func (ev *AddPod) Wait() error {
	return <-ev.result
}

/****************************** Delete Pod Event ******************************/

// DeletePod event is triggered when a pod is being removed from this node.
type DeletePod struct {
	Pod podmodel.ID

	result chan error
}

// NewDeletePodEvent creates a blocking DeletePod event.
func NewDeletePodEvent(pod podmodel.ID) *DeletePod {
	return &DeletePod{
		Pod:    pod,
		result: make(chan error, 1),
	}
}

// GetName returns the event name.
func (ev *DeletePod) GetName() string {
	return "Delete Local Pod"
}

// String describes the deleted pod.
func (ev *DeletePod) String() string {
	return fmt.Sprintf("%s (%v)", ev.GetName(), ev.Pod)
}

// Method returns Update.
func (ev *DeletePod) Method() controller.EventMethodType {
	return controller.Update
}

// Direction returns Reverse: downstream handlers unconfigure the pod
// while the pod manager still knows its network namespace.
func (ev *DeletePod) Direction() controller.UpdateDirectionType {
	return controller.Reverse
}

// IsBlocking returns true, the producer waits for the result.
func (ev *DeletePod) IsBlocking() bool {
	return true
}

// Done delivers the processing result to the waiting producer.
func (ev *DeletePod) Done(err error) {
	ev.result <- err
}

// Wait blocks until the event is processed.
func (ev *DeletePod) Wait() error {
	return <-ev.result
}
