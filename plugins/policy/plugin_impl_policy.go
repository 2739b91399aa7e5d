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

package policy

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
	controller "github.com/netfence/netfence/plugins/controller/api"
	"github.com/netfence/netfence/plugins/fenceconf"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy/cache"
	"github.com/netfence/netfence/plugins/policy/configurator"
	"github.com/netfence/netfence/plugins/policy/processor"
	"github.com/netfence/netfence/plugins/policy/renderer/iptables"
	"github.com/netfence/netfence/plugins/policy/renderer/nftables"
	"github.com/netfence/netfence/plugins/policy/renderer/verdict"
)

// Plugin assembles the policy engine pipeline: the policy cache mirrors
// the cluster state, the processor re-resolves policies of affected pods,
// the configurator compiles them into rules and the renderers install
// the rules into their backends.
type Plugin struct {
	Deps

	policyCache  *cache.PolicyCache
	processor    *processor.PolicyProcessor
	configurator *configurator.PolicyConfigurator

	// verdictRenderer is always registered. It backs the rule-dump and
	// traffic-simulation APIs.
	verdictRenderer  *verdict.Renderer
	iptablesRenderer *iptables.Renderer
	nftablesRenderer *nftables.Renderer
}

// Deps defines dependencies of the policy plugin.
type Deps struct {
	Log        logrus.FieldLogger
	Config     *fenceconf.Config
	PodManager podmanager.API
}

// Init constructs and wires the layers of the pipeline.
func (p *Plugin) Init() error {
	p.policyCache = &cache.PolicyCache{
		Deps: cache.Deps{
			Log: p.Log.WithField("component", "policy-cache"),
		},
	}
	if err := p.policyCache.Init(); err != nil {
		return err
	}

	p.configurator = &configurator.PolicyConfigurator{
		Deps: configurator.Deps{
			Log:   p.Log.WithField("component", "policy-configurator"),
			Cache: p.policyCache,
		},
	}
	if err := p.configurator.Init(); err != nil {
		return err
	}

	p.verdictRenderer = &verdict.Renderer{
		Deps: verdict.Deps{
			Log: p.Log.WithField("component", "verdict-renderer"),
		},
	}
	if err := p.verdictRenderer.Init(); err != nil {
		return err
	}
	if err := p.configurator.RegisterRenderer(p.verdictRenderer); err != nil {
		return err
	}

	if p.Config.RendererEnabled(fenceconf.IptablesRenderer) {
		p.iptablesRenderer = &iptables.Renderer{
			Deps: iptables.Deps{
				Log:                    p.Log.WithField("component", "iptables-renderer"),
				PodManager:             p.PodManager,
				DisableReflexiveAccept: !p.Config.ReflexiveAccept,
			},
		}
		if err := p.iptablesRenderer.Init(); err != nil {
			return errors.Wrap(err, "iptables renderer")
		}
		if err := p.configurator.RegisterRenderer(p.iptablesRenderer); err != nil {
			return err
		}
	}

	if p.Config.RendererEnabled(fenceconf.NftablesRenderer) {
		p.nftablesRenderer = &nftables.Renderer{
			Deps: nftables.Deps{
				Log:                    p.Log.WithField("component", "nftables-renderer"),
				DisableReflexiveAccept: !p.Config.ReflexiveAccept,
			},
		}
		if err := p.nftablesRenderer.Init(); err != nil {
			return errors.Wrap(err, "nftables renderer")
		}
		if err := p.configurator.RegisterRenderer(p.nftablesRenderer); err != nil {
			return err
		}
	}

	p.processor = &processor.PolicyProcessor{
		Deps: processor.Deps{
			Log:            p.Log.WithField("component", "policy-processor"),
			Cache:          p.policyCache,
			PodManager:     p.PodManager,
			Configurator:   p.configurator,
			SkipNamespaces: p.Config.SkipNamespaces,
		},
	}
	return p.processor.Init()
}

// Close releases the pipeline resources.
func (p *Plugin) Close() error {
	if p.processor != nil {
		return p.processor.Close()
	}
	return nil
}

// Cache exposes the mirrored cluster state for the REST API.
func (p *Plugin) Cache() cache.PolicyCacheAPI {
	return p.policyCache
}

// Verdict exposes the in-memory renderer for the rule-dump and
// simulation APIs.
func (p *Plugin) Verdict() *verdict.Renderer {
	return p.verdictRenderer
}

/***************************** Event Handler API ******************************/

// String identifies the handler in logs.
func (p *Plugin) String() string {
	return "policy"
}

// HandlesEvent selects any resync, changes of pods, namespaces and
// policies, and the local pod lifecycle events.
func (p *Plugin) HandlesEvent(event controller.Event) bool {
	if event.Method() != controller.Update {
		return true
	}
	if change, isChange := event.(*controller.StateChange); isChange {
		switch change.Resource {
		case podmodel.Keyword, namespacemodel.Keyword, policymodel.Keyword:
			return true
		default:
			return false
		}
	}
	if _, isAddPod := event.(*podmanager.AddPod); isAddPod {
		return true
	}
	if _, isDeletePod := event.(*podmanager.DeletePod); isDeletePod {
		return true
	}
	return false
}

// Resync replaces the mirrored state with the snapshot and reconfigures
// all local pods.
func (p *Plugin) Resync(event controller.Event) error {
	resync, isResync := event.(*controller.StateResync)
	if !isResync {
		return errors.Errorf("unexpected resync event: %s", event.GetName())
	}
	return p.policyCache.Resync(resync.Snapshot)
}

// Update applies a state change into the cache, which fans it out to the
// processor, or reconfigures a single pod on local lifecycle events.
func (p *Plugin) Update(event controller.Event) (string, error) {
	switch ev := event.(type) {
	case *controller.StateChange:
		return ev.Key, p.policyCache.Update(ev)

	case *podmanager.AddPod:
		return "configured " + ev.Pod.String(), p.processor.ProcessNewLocalPod(ev.Pod)

	case *podmanager.DeletePod:
		return "unconfigured " + ev.Pod.String(), p.processor.ProcessRemovedLocalPod(ev.Pod)
	}
	return "", nil
}
