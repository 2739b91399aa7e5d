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

// Package pod defines the state data of a pod as mirrored into the agent,
// together with the keys under which pods are exposed in the state snapshot.
package pod

import (
	"strings"
)

// Keyword is the resource name of pods in state-change events and REST paths.
const Keyword = "pod"

// KeyPrefix is the common prefix of keys of all mirrored pods.
const KeyPrefix = "netfence/state/pod/"

// Pod is the subset of the pod state the policy engine operates on.
type Pod struct {
	// Name of the pod, unique within the namespace.
	Name string `json:"name"`
	// Namespace the pod belongs to.
	Namespace string `json:"namespace"`
	// Labels assigned to the pod, matched by label selectors.
	Labels []*Label `json:"labels,omitempty"`
	// IPAddress assigned to the pod, empty until the pod is networked.
	IPAddress string `json:"ipAddress,omitempty"`
	// HostIPAddress of the node the pod was scheduled onto.
	HostIPAddress string `json:"hostIpAddress,omitempty"`
	// Containers of the pod, needed to resolve named ports.
	Containers []*Container `json:"containers,omitempty"`
}

// Label is a single key/value pair attached to a pod.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Container describes one container of a pod.
type Container struct {
	Name  string           `json:"name"`
	Ports []*ContainerPort `json:"ports,omitempty"`
}

// ContainerPort is a port exposed by a container. Named ports referenced
// from policies are resolved against these entries.
type ContainerPort struct {
	Name     string `json:"name,omitempty"`
	Protocol string `json:"protocol,omitempty"` // TCP or UDP, TCP if empty
	Port     int32  `json:"port"`
}

// ID uniquely identifies a pod across namespaces.
type ID struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// GetID returns the identifier of a pod.
func GetID(pod *Pod) ID {
	if pod != nil {
		return ID{Name: pod.Name, Namespace: pod.Namespace}
	}
	return ID{}
}

// String returns the identifier in the form <namespace>/<name>.
func (id ID) String() string {
	return id.Namespace + "/" + id.Name
}

// ParseID is the inverse of ID.String. The second return value is false
// if the string is not a valid pod identifier.
func ParseID(s string) (ID, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return ID{}, false
	}
	return ID{Namespace: parts[0], Name: parts[1]}, true
}

// Key returns the key under which the pod state is stored.
func Key(name string, namespace string) string {
	return KeyPrefix + namespace + "/" + name
}
