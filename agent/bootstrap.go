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

package agent

import (
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	controller "github.com/netfence/netfence/plugins/controller/api"
)

// LoadBootstrap reads a state snapshot from a YAML or JSON file.
func LoadBootstrap(path string) (*controller.StateSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading bootstrap file")
	}
	snapshot := &controller.StateSnapshot{}
	if err := yaml.Unmarshal(data, snapshot); err != nil {
		return nil, errors.Wrapf(err, "parsing bootstrap file %s", path)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid bootstrap state in %s", path)
	}
	return snapshot, nil
}
