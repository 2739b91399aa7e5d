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

// Package restapi exposes the agent over HTTP: state ingest (pods,
// namespaces, policies, local pods, full resyncs), read access to the
// mirrored state and the compiled rules, traffic simulation, agent status
// and prometheus metrics.
package restapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/unrolled/render"

	"github.com/netfence/netfence/plugins/fenceconf"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy/cache"
	"github.com/netfence/netfence/plugins/policy/renderer/verdict"

	ctrl "github.com/netfence/netfence/plugins/controller"
	controller "github.com/netfence/netfence/plugins/controller/api"
)

const (
	// Prefix is the versioned prefix of all REST URLs of the agent.
	Prefix = "/netfence/v1/"

	// Collections of the mirrored state.
	podsURL       = Prefix + "pods"
	namespacesURL = Prefix + "namespaces"
	policiesURL   = Prefix + "policies"
	localPodsURL  = Prefix + "local-pods"

	// Single resources, addressed by identity.
	podInstanceURL       = podsURL + "/{namespace}/{name}"
	namespaceInstanceURL = namespacesURL + "/{name}"
	policyInstanceURL    = policiesURL + "/{namespace}/{name}"
	localPodInstanceURL  = localPodsURL + "/{namespace}/{name}"

	// resyncURL accepts a full state snapshot.
	resyncURL = Prefix + "resync"

	// rulesURL dumps the compiled rule tables of a pod.
	rulesURL = Prefix + "rules"

	// podArg selects the pod for the rules dump.
	podArg = "pod"

	// simulateURL evaluates a described traffic against the rendered rules.
	simulateURL = Prefix + "simulate"

	// statusURL reports uptime, state counts and event-loop counters.
	statusURL = Prefix + "status"

	// metricsURL serves prometheus metrics, outside the versioned prefix.
	metricsURL = "/metrics"
)

const (
	serverReadTimeout = 30 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Plugin implements the REST API of the agent.
type Plugin struct {
	Deps

	formatter *render.Render
	router    *mux.Router
	server    *http.Server
	startTime time.Time

	// mu guards listener, set by StartServing and read by BoundAddress.
	mu       sync.Mutex
	listener net.Listener
}

// Deps lists dependencies of the REST API plugin.
type Deps struct {
	Log    logrus.FieldLogger
	Config *fenceconf.Config

	// EventLoop receives the state-change/resync events built from
	// the ingest requests.
	EventLoop controller.EventLoop

	// Stats backs the status endpoint.
	Stats StatsAPI

	// PolicyCache serves the read endpoints and resolves previous values
	// for the ingest ones.
	PolicyCache cache.PolicyCacheAPI

	// Verdict serves the rules dump and the traffic simulation.
	Verdict *verdict.Renderer

	PodManager podmanager.API
}

// StatsAPI provides the event-loop counters shown by the status endpoint.
type StatsAPI interface {
	GetStats() ctrl.Stats
}

// Init builds the router and registers all handlers. The endpoint is not
// bound until StartServing.
func (p *Plugin) Init() error {
	p.startTime = time.Now()
	p.formatter = render.New(render.Options{
		IndentJSON: true,
	})
	p.router = mux.NewRouter()
	p.registerHandlers()

	p.server = &http.Server{
		Addr:        p.Config.Endpoint,
		Handler:     p.router,
		ReadTimeout: serverReadTimeout,
	}
	return nil
}

// StartServing binds the configured endpoint and serves requests from a
// background goroutine until Close.
func (p *Plugin) StartServing() error {
	listener, err := net.Listen("tcp", p.Config.Endpoint)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", p.Config.Endpoint)
	}
	p.mu.Lock()
	p.listener = listener
	p.mu.Unlock()
	p.Log.Infof("REST API listening on %s", listener.Addr())

	go func() {
		if err := p.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.Log.Errorf("http server failed: %v", err)
		}
	}()
	return nil
}

// Close stops the server, waiting for in-flight requests to finish.
func (p *Plugin) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.server.Shutdown(ctx)
}

// Handler returns the HTTP handler with all routes registered. It allows
// serving the API without binding a socket, e.g. from httptest.
func (p *Plugin) Handler() http.Handler {
	return p.router
}

// BoundAddress returns the address the server actually listens on. It is
// nil before StartServing. With port 0 in the endpoint it reports the
// ephemeral port picked by the kernel.
func (p *Plugin) BoundAddress() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// registerHandlers hooks all supported REST APIs into the router.
func (p *Plugin) registerHandlers() {
	p.registerHandler(podsURL, "GET", p.podsGetHandler)
	p.registerHandler(podInstanceURL, "PUT", p.podPutHandler)
	p.registerHandler(podInstanceURL, "DELETE", p.podDeleteHandler)

	p.registerHandler(namespacesURL, "GET", p.namespacesGetHandler)
	p.registerHandler(namespaceInstanceURL, "PUT", p.namespacePutHandler)
	p.registerHandler(namespaceInstanceURL, "DELETE", p.namespaceDeleteHandler)

	p.registerHandler(policiesURL, "GET", p.policiesGetHandler)
	p.registerHandler(policyInstanceURL, "PUT", p.policyPutHandler)
	p.registerHandler(policyInstanceURL, "DELETE", p.policyDeleteHandler)

	p.registerHandler(localPodsURL, "GET", p.localPodsGetHandler)
	p.registerHandler(localPodsURL, "POST", p.localPodPostHandler)
	p.registerHandler(localPodInstanceURL, "DELETE", p.localPodDeleteHandler)

	p.registerHandler(resyncURL, "POST", p.resyncPostHandler)
	p.registerHandler(rulesURL, "GET", p.rulesGetHandler)
	p.registerHandler(simulateURL, "POST", p.simulatePostHandler)
	p.registerHandler(statusURL, "GET", p.statusGetHandler)

	p.router.Handle(metricsURL, promhttp.Handler()).Methods("GET")
}

// registerHandler hooks the handler built by <provider> at the given URL.
func (p *Plugin) registerHandler(url string, method string,
	provider func(formatter *render.Render) http.HandlerFunc) {

	p.router.HandleFunc(url, provider(p.formatter)).Methods(method)
	p.Log.Debugf("REST handler registered: %s %s", method, url)
}

// blockingEvent is an event whose processing result can be waited for.
type blockingEvent interface {
	controller.Event
	Wait() error
}

// submit pushes the event into the event loop and waits until it is
// processed. On failure the returned status tells the handler what to
// report: the queue refused the event, the agent has not seen the initial
// state yet, or a handler failed to apply it.
func (p *Plugin) submit(ev blockingEvent) (int, error) {
	if err := p.EventLoop.PushEvent(ev); err != nil {
		return http.StatusServiceUnavailable, err
	}
	if err := ev.Wait(); err != nil {
		if err == ctrl.ErrResyncNotCompleted {
			return http.StatusConflict, err
		}
		return http.StatusInternalServerError, err
	}
	return http.StatusOK, nil
}
