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

package pod

import (
	"net"
	"strings"

	"github.com/pkg/errors"
)

// Validate checks the pod state for structural errors.
func Validate(pod *Pod) error {
	if pod == nil {
		return errors.New("pod is nil")
	}
	if pod.Name == "" || strings.Contains(pod.Name, "/") {
		return errors.Errorf("invalid pod name: %q", pod.Name)
	}
	if pod.Namespace == "" || strings.Contains(pod.Namespace, "/") {
		return errors.Errorf("invalid pod namespace: %q", pod.Namespace)
	}
	for _, label := range pod.Labels {
		if label == nil || label.Key == "" {
			return errors.New("pod label with an empty key")
		}
	}
	if pod.IPAddress != "" && net.ParseIP(pod.IPAddress) == nil {
		return errors.Errorf("invalid pod IP address: %q", pod.IPAddress)
	}
	if pod.HostIPAddress != "" && net.ParseIP(pod.HostIPAddress) == nil {
		return errors.Errorf("invalid host IP address: %q", pod.HostIPAddress)
	}
	for _, container := range pod.Containers {
		if container == nil {
			return errors.New("pod container is nil")
		}
		for _, port := range container.Ports {
			if port == nil {
				return errors.Errorf("container %q has a nil port", container.Name)
			}
			if port.Port < 1 || port.Port > 65535 {
				return errors.Errorf("container %q port %d out of range",
					container.Name, port.Port)
			}
			switch port.Protocol {
			case "", "TCP", "UDP":
			default:
				return errors.Errorf("container %q port %d has unknown protocol %q",
					container.Name, port.Port, port.Protocol)
			}
		}
	}
	return nil
}
