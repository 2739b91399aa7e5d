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

package cmdimpl

import (
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/netfence/netfence/plugins/netctl/remote"
	"github.com/netfence/netfence/plugins/restapi/restmodel"

	controller "github.com/netfence/netfence/plugins/controller/api"
)

// loadState reads a state file, YAML or JSON. Consistency is checked by
// the agent when the objects are submitted.
func loadState(file string) (*controller.StateSnapshot, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	snapshot := &controller.StateSnapshot{}
	if err := yaml.Unmarshal(data, snapshot); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", file)
	}
	return snapshot, nil
}

// ApplyState uploads every object of the state file to the agent,
// namespaces first so that pods and policies land in known namespaces.
func ApplyState(client *remote.Client, file string) error {
	snapshot, err := loadState(file)
	if err != nil {
		return err
	}
	for _, ns := range snapshot.Namespaces {
		if err := client.Send("PUT", namespacesPath+"/"+ns.Name, ns, nil); err != nil {
			return errors.Wrapf(err, "namespace %s", ns.Name)
		}
		fmt.Printf("namespace %s applied\n", ns.Name)
	}
	for _, pod := range snapshot.Pods {
		url := podsPath + "/" + pod.Namespace + "/" + pod.Name
		if err := client.Send("PUT", url, pod, nil); err != nil {
			return errors.Wrapf(err, "pod %s/%s", pod.Namespace, pod.Name)
		}
		fmt.Printf("pod %s/%s applied\n", pod.Namespace, pod.Name)
	}
	for _, policy := range snapshot.Policies {
		url := policiesPath + "/" + policy.Namespace + "/" + policy.Name
		if err := client.Send("PUT", url, policy, nil); err != nil {
			return errors.Wrapf(err, "policy %s/%s", policy.Namespace, policy.Name)
		}
		fmt.Printf("policy %s/%s applied\n", policy.Namespace, policy.Name)
	}
	for _, localPod := range snapshot.LocalPods {
		if err := client.Send("POST", localPodsPath, localPod, nil); err != nil {
			return errors.Wrapf(err, "local pod %s/%s", localPod.Namespace, localPod.Name)
		}
		fmt.Printf("local pod %s/%s registered\n", localPod.Namespace, localPod.Name)
	}
	return nil
}

// DeleteState removes every object named by the state file, in the
// reverse of the ApplyState order.
func DeleteState(client *remote.Client, file string) error {
	snapshot, err := loadState(file)
	if err != nil {
		return err
	}
	for _, localPod := range snapshot.LocalPods {
		url := localPodsPath + "/" + localPod.Namespace + "/" + localPod.Name
		if err := client.Send("DELETE", url, nil, nil); err != nil {
			return errors.Wrapf(err, "local pod %s/%s", localPod.Namespace, localPod.Name)
		}
		fmt.Printf("local pod %s/%s removed\n", localPod.Namespace, localPod.Name)
	}
	for _, policy := range snapshot.Policies {
		url := policiesPath + "/" + policy.Namespace + "/" + policy.Name
		if err := client.Send("DELETE", url, nil, nil); err != nil {
			return errors.Wrapf(err, "policy %s/%s", policy.Namespace, policy.Name)
		}
		fmt.Printf("policy %s/%s deleted\n", policy.Namespace, policy.Name)
	}
	for _, pod := range snapshot.Pods {
		url := podsPath + "/" + pod.Namespace + "/" + pod.Name
		if err := client.Send("DELETE", url, nil, nil); err != nil {
			return errors.Wrapf(err, "pod %s/%s", pod.Namespace, pod.Name)
		}
		fmt.Printf("pod %s/%s deleted\n", pod.Namespace, pod.Name)
	}
	for _, ns := range snapshot.Namespaces {
		if err := client.Send("DELETE", namespacesPath+"/"+ns.Name, nil, nil); err != nil {
			return errors.Wrapf(err, "namespace %s", ns.Name)
		}
		fmt.Printf("namespace %s deleted\n", ns.Name)
	}
	return nil
}

// Resync replaces the whole mirrored state of the agent with the content
// of the state file.
func Resync(client *remote.Client, file string) error {
	snapshot, err := loadState(file)
	if err != nil {
		return err
	}
	result := &restmodel.ResyncResult{}
	if err := client.Send("POST", resyncPath, snapshot, result); err != nil {
		return err
	}
	fmt.Printf("state replaced: %d namespaces, %d pods, %d policies, %d local pods\n",
		result.Namespaces, result.Pods, result.Policies, result.LocalPods)
	return nil
}
