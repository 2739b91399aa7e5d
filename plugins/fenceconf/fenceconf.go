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

// Package fenceconf defines the configuration of the netfence agent and
// loads it from an optional YAML file. Values missing from the file keep
// their defaults.
package fenceconf

import (
	"net"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// Names of the packet-filter backends that can be listed in Renderers.
// The in-memory verdict renderer is always active regardless.
const (
	IptablesRenderer = "iptables"
	NftablesRenderer = "nftables"
)

// Defaults for values not present in the configuration file.
const (
	// DefaultEndpoint is the address the REST API binds to.
	DefaultEndpoint = "0.0.0.0:9191"

	// DefaultSkipNamespace is excluded from policy enforcement.
	DefaultSkipNamespace = "kube-system"
)

// Config represents the configuration of the netfence agent.
// The path to the configuration file is passed via the `-config-file`
// argument or the `NETFENCE_CONFIG_FILE` environment variable.
type Config struct {
	APIConfig
	PolicyConfig
}

// APIConfig groups the options of the REST API server.
type APIConfig struct {
	// Endpoint is the host:port the REST API listens on.
	Endpoint string `json:"endpoint,omitempty"`

	// BootstrapFile optionally points to a YAML or JSON state snapshot
	// applied as the initial resync on startup. Without it the agent
	// starts empty and waits for a snapshot via the API.
	BootstrapFile string `json:"bootstrapFile,omitempty"`
}

// PolicyConfig groups the options of the policy engine.
type PolicyConfig struct {
	// SkipNamespaces lists namespaces whose pods are never isolated.
	SkipNamespaces []string `json:"skipNamespaces,omitempty"`

	// Renderers lists the enabled packet-filter backends
	// ("iptables", "nftables"). Empty means evaluation-only mode.
	Renderers []string `json:"renderers,omitempty"`

	// ReflexiveAccept prepends an established/related accept to every
	// programmed chain, so return traffic of allowed connections is
	// never re-evaluated.
	ReflexiveAccept bool `json:"reflexiveAccept,omitempty"`

	// EventQueueSize overrides the capacity of the controller event
	// queue when positive.
	EventQueueSize int `json:"eventQueueSize,omitempty"`
}

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() *Config {
	return &Config{
		APIConfig: APIConfig{
			Endpoint: DefaultEndpoint,
		},
		PolicyConfig: PolicyConfig{
			SkipNamespaces:  []string{DefaultSkipNamespace},
			ReflexiveAccept: true,
		},
	}
}

// LoadFrom reads the YAML configuration file and applies it over the
// defaults. An empty path returns the validated defaults.
func LoadFrom(path string) (*Config, error) {
	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "reading config file")
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrapf(err, "parsing config file %s", path)
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration consistency.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Endpoint); err != nil {
		return errors.Wrapf(err, "invalid endpoint %q", c.Endpoint)
	}
	seen := map[string]struct{}{}
	for _, renderer := range c.Renderers {
		switch renderer {
		case IptablesRenderer, NftablesRenderer:
		default:
			return errors.Errorf("unknown renderer %q", renderer)
		}
		if _, duplicate := seen[renderer]; duplicate {
			return errors.Errorf("renderer %q enabled twice", renderer)
		}
		seen[renderer] = struct{}{}
	}
	for _, namespace := range c.SkipNamespaces {
		if namespace == "" {
			return errors.New("skipNamespaces must not contain empty names")
		}
	}
	if c.EventQueueSize < 0 {
		return errors.New("eventQueueSize must not be negative")
	}
	return nil
}

// RendererEnabled tells whether the given backend is listed in Renderers.
func (c *Config) RendererEnabled(name string) bool {
	for _, renderer := range c.Renderers {
		if renderer == name {
			return true
		}
	}
	return false
}
