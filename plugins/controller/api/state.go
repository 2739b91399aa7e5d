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

package api

import (
	"fmt"

	"github.com/netfence/netfence/model/namespace"
	"github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/model/policy"
)

// StateSnapshot is the full mirrored state delivered by a resync event.
type StateSnapshot struct {
	Namespaces []*namespace.Namespace `json:"namespaces,omitempty"`
	Pods       []*pod.Pod             `json:"pods,omitempty"`
	Policies   []*policy.Policy       `json:"policies,omitempty"`
	LocalPods  []*LocalPodState       `json:"localPods,omitempty"`
}

// Validate checks all carried resources for structural errors.
func (s *StateSnapshot) Validate() error {
	for _, nsData := range s.Namespaces {
		if err := namespace.Validate(nsData); err != nil {
			return err
		}
	}
	for _, podData := range s.Pods {
		if err := pod.Validate(podData); err != nil {
			return err
		}
	}
	for _, policyData := range s.Policies {
		if err := policy.Validate(policyData); err != nil {
			return err
		}
	}
	for _, localPod := range s.LocalPods {
		if localPod.Name == "" || localPod.Namespace == "" {
			return fmt.Errorf("local pod without name or namespace")
		}
	}
	return nil
}

// LocalPodState describes a pod deployed on this node, as carried by
// snapshots and local-pod events.
type LocalPodState struct {
	Name             string `json:"name"`
	Namespace        string `json:"namespace"`
	ContainerID      string `json:"containerId,omitempty"`
	NetworkNamespace string `json:"networkNamespace,omitempty"`
	InterfaceName    string `json:"interfaceName,omitempty"`
}

/********************************* State Change *******************************/

// StateChange is an incremental change of the mirrored state. For additions
// PrevValue is nil, for deletions NewValue is nil, for updates both are set.
// The values are pointers to the model structs of the resource.
type StateChange struct {
	// Resource is the model keyword of the changed resource.
	Resource string

	// Key under which the changed state is stored.
	Key string

	PrevValue interface{}
	NewValue  interface{}

	done chan error
}

// NewStateChange creates a blocking state-change event. The producer can
// wait for the processing result with Wait.
func NewStateChange(resource string, key string, prevValue, newValue interface{}) *StateChange {
	return &StateChange{
		Resource:  resource,
		Key:       key,
		PrevValue: prevValue,
		NewValue:  newValue,
		done:      make(chan error, 1),
	}
}

// GetName returns the event name.
func (ev *StateChange) GetName() string {
	return "State Change"
}

// String describes the changed key and the kind of the change.
func (ev *StateChange) String() string {
	op := "update"
	if ev.PrevValue == nil {
		op = "add"
	} else if ev.NewValue == nil {
		op = "delete"
	}
	return fmt.Sprintf("%s (%s %s)", ev.GetName(), op, ev.Key)
}

// Method returns Update.
func (ev *StateChange) Method() EventMethodType {
	return Update
}

// IsBlocking returns true when a producer waits on the event.
func (ev *StateChange) IsBlocking() bool {
	return ev.done != nil
}

// Done delivers the processing result to the waiting producer.
func (ev *StateChange) Done(err error) {
	if ev.done != nil {
		ev.done <- err
	}
}

// Wait blocks until the event is processed and returns the result.
func (ev *StateChange) Wait() error {
	return <-ev.done
}

/********************************* State Resync *******************************/

// StateResync replaces the full mirrored state with the carried snapshot.
type StateResync struct {
	Snapshot *StateSnapshot

	done chan error
}

// NewStateResync creates a blocking resync event.
func NewStateResync(snapshot *StateSnapshot) *StateResync {
	return &StateResync{
		Snapshot: snapshot,
		done:     make(chan error, 1),
	}
}

// GetName returns the event name.
func (ev *StateResync) GetName() string {
	return "State Resync"
}

// String describes the snapshot size.
func (ev *StateResync) String() string {
	if ev.Snapshot == nil {
		return ev.GetName() + " (empty)"
	}
	return fmt.Sprintf("%s (namespaces: %d, pods: %d, policies: %d, local pods: %d)",
		ev.GetName(), len(ev.Snapshot.Namespaces), len(ev.Snapshot.Pods),
		len(ev.Snapshot.Policies), len(ev.Snapshot.LocalPods))
}

// Method returns Resync.
func (ev *StateResync) Method() EventMethodType {
	return Resync
}

// IsBlocking returns true when a producer waits on the event.
func (ev *StateResync) IsBlocking() bool {
	return ev.done != nil
}

// Done delivers the processing result to the waiting producer.
func (ev *StateResync) Done(err error) {
	if ev.done != nil {
		ev.done <- err
	}
}

// Wait blocks until the event is processed and returns the result.
func (ev *StateResync) Wait() error {
	return <-ev.done
}
