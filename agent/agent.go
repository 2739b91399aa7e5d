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

// Package agent glues the netfence plugins together into a runnable
// agent: pod manager and policy engine behind the event loop, REST API
// on top.
package agent

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/netfence/netfence/plugins/fenceconf"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy"
	"github.com/netfence/netfence/plugins/restapi"

	ctrl "github.com/netfence/netfence/plugins/controller"
	controller "github.com/netfence/netfence/plugins/controller/api"
)

// Agent wires the plugins of the netfence agent.
type Agent struct {
	Log    logrus.FieldLogger
	Config *fenceconf.Config

	PodManager *podmanager.PodManager
	Policy     *policy.Plugin
	Controller *ctrl.Controller
	RESTAPI    *restapi.Plugin
}

// New creates the agent and sets inter-plugin references.
func New(config *fenceconf.Config, log logrus.FieldLogger) *Agent {
	agent := &Agent{
		Log:    log,
		Config: config,
	}

	agent.PodManager = &podmanager.PodManager{
		Deps: podmanager.Deps{
			Log: log.WithField("component", "podmanager"),
		},
	}
	agent.Policy = &policy.Plugin{
		Deps: policy.Deps{
			Log:        log.WithField("component", "policy"),
			Config:     config,
			PodManager: agent.PodManager,
		},
	}
	// The pod manager runs before the policy engine: rules are rendered
	// for pods whose networking details are already registered, and
	// teardown events dispatch in the reverse order.
	agent.Controller = &ctrl.Controller{
		Deps: ctrl.Deps{
			Log:           log.WithField("component", "controller"),
			EventHandlers: []controller.EventHandler{agent.PodManager, agent.Policy},
			QueueSize:     config.EventQueueSize,
		},
	}
	return agent
}

// Init initializes the plugins in dependency order and starts the event
// loop. The REST API plugin is created here, it needs the components
// built by the policy plugin.
func (a *Agent) Init() error {
	if err := a.PodManager.Init(); err != nil {
		return errors.Wrap(err, "pod manager")
	}
	if err := a.Policy.Init(); err != nil {
		return errors.Wrap(err, "policy plugin")
	}
	if err := a.Controller.Init(); err != nil {
		return errors.Wrap(err, "controller")
	}

	a.RESTAPI = &restapi.Plugin{
		Deps: restapi.Deps{
			Log:         a.Log.WithField("component", "restapi"),
			Config:      a.Config,
			EventLoop:   a.Controller,
			Stats:       a.Controller,
			PolicyCache: a.Policy.Cache(),
			Verdict:     a.Policy.Verdict(),
			PodManager:  a.PodManager,
		},
	}
	if err := a.RESTAPI.Init(); err != nil {
		return errors.Wrap(err, "REST API")
	}
	return nil
}

// Run pushes the initial state into the event loop, starts serving the
// REST API and blocks until the context is canceled.
func (a *Agent) Run(ctx context.Context) error {
	snapshot := &controller.StateSnapshot{}
	if a.Config.BootstrapFile != "" {
		var err error
		snapshot, err = LoadBootstrap(a.Config.BootstrapFile)
		if err != nil {
			return err
		}
		a.Log.Infof("bootstrap state loaded from %s", a.Config.BootstrapFile)
	}
	resync := controller.NewStateResync(snapshot)
	if err := a.Controller.PushEvent(resync); err != nil {
		return err
	}
	if err := resync.Wait(); err != nil {
		return errors.Wrap(err, "initial resync")
	}

	if err := a.RESTAPI.StartServing(); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Close shuts the plugins down in the reverse of the Init order.
func (a *Agent) Close() error {
	var firstErr error
	if a.RESTAPI != nil {
		if err := a.RESTAPI.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Controller != nil {
		if err := a.Controller.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Policy != nil {
		if err := a.Policy.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
