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

// Package namespace defines the state data of a namespace as mirrored into
// the agent.
package namespace

import (
	"strings"

	"github.com/pkg/errors"
)

// Keyword is the resource name of namespaces in state-change events and
// REST paths.
const Keyword = "namespace"

// KeyPrefix is the common prefix of keys of all mirrored namespaces.
const KeyPrefix = "netfence/state/namespace/"

// Namespace is the subset of the namespace state the policy engine
// operates on.
type Namespace struct {
	// Name of the namespace, cluster-wide unique.
	Name string `json:"name"`
	// Labels assigned to the namespace, matched by namespace selectors.
	Labels []*Label `json:"labels,omitempty"`
}

// Label is a single key/value pair attached to a namespace.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ID uniquely identifies a namespace.
type ID string

// GetID returns the identifier of a namespace.
func GetID(namespace *Namespace) ID {
	if namespace != nil {
		return ID(namespace.Name)
	}
	return ID("")
}

// String returns the namespace name.
func (id ID) String() string {
	return string(id)
}

// Key returns the key under which the namespace state is stored.
func Key(name string) string {
	return KeyPrefix + name
}

// Validate checks the namespace state for structural errors.
func Validate(namespace *Namespace) error {
	if namespace == nil {
		return errors.New("namespace is nil")
	}
	if namespace.Name == "" || strings.Contains(namespace.Name, "/") {
		return errors.Errorf("invalid namespace name: %q", namespace.Name)
	}
	for _, label := range namespace.Labels {
		if label == nil || label.Key == "" {
			return errors.New("namespace label with an empty key")
		}
	}
	return nil
}
