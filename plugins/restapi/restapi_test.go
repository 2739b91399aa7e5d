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

package restapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	podmodel "github.com/netfence/netfence/model/pod"
	"github.com/netfence/netfence/plugins/fenceconf"
	"github.com/netfence/netfence/plugins/podmanager"
	"github.com/netfence/netfence/plugins/policy"
	"github.com/netfence/netfence/plugins/restapi/restmodel"

	ctrl "github.com/netfence/netfence/plugins/controller"
	controller "github.com/netfence/netfence/plugins/controller/api"
)

// testAPI serves the REST API backed by a fully wired engine: pod
// manager, policy pipeline with the verdict renderer and the event loop.
type testAPI struct {
	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := logrus.StandardLogger()
	config := fenceconf.DefaultConfig()

	podManager := &podmanager.PodManager{
		Deps: podmanager.Deps{Log: logger.WithField("component", "podmanager")},
	}
	gomega.Expect(podManager.Init()).To(gomega.Succeed())

	policyPlugin := &policy.Plugin{
		Deps: policy.Deps{
			Log:        logger.WithField("component", "policy"),
			Config:     config,
			PodManager: podManager,
		},
	}
	gomega.Expect(policyPlugin.Init()).To(gomega.Succeed())

	eventLoop := &ctrl.Controller{
		Deps: ctrl.Deps{
			Log:           logger.WithField("component", "controller"),
			EventHandlers: []controller.EventHandler{podManager, policyPlugin},
		},
	}
	gomega.Expect(eventLoop.Init()).To(gomega.Succeed())

	plugin := &Plugin{
		Deps: Deps{
			Log:         logger.WithField("component", "restapi"),
			Config:      config,
			EventLoop:   eventLoop,
			Stats:       eventLoop,
			PolicyCache: policyPlugin.Cache(),
			Verdict:     policyPlugin.Verdict(),
			PodManager:  podManager,
		},
	}
	gomega.Expect(plugin.Init()).To(gomega.Succeed())

	server := httptest.NewServer(plugin.Handler())
	t.Cleanup(func() {
		server.Close()
		eventLoop.Close()
	})
	return &testAPI{server: server}
}

// do sends a request and returns the response status and body.
func (api *testAPI) do(method, path, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, api.server.URL+path, reader)
	gomega.Expect(err).To(gomega.BeNil())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	gomega.Expect(err).To(gomega.BeNil())
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	gomega.Expect(err).To(gomega.BeNil())
	return resp.StatusCode, data
}

const bootstrapSnapshot = `
{
  "namespaces": [{"name": "default"}],
  "pods": [
    {
      "name": "nginx", "namespace": "default", "ipAddress": "10.1.1.1",
      "labels": [{"key": "app", "value": "nginx"}]
    },
    {
      "name": "client", "namespace": "default", "ipAddress": "10.1.1.2",
      "labels": [{"key": "app", "value": "client"}]
    }
  ],
  "localPods": [
    {
      "name": "nginx", "namespace": "default",
      "networkNamespace": "/var/run/netns/nginx", "interfaceName": "eth0"
    }
  ]
}`

const allowClientPolicy = `
{
  "name": "allow-client", "namespace": "default",
  "pods": {"matchLabels": [{"key": "app", "value": "nginx"}]},
  "ingressRules": [
    {
      "from": [{"pods": {"matchLabels": [{"key": "app", "value": "client"}]}}],
      "ports": [{"protocol": "TCP", "port": {"number": 80}}]
    }
  ]
}`

func TestPodLifecycle(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	// updates are refused until the initial state is known
	status, _ := api.do("PUT", "/netfence/v1/pods/default/nginx",
		`{"name": "nginx", "namespace": "default"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusConflict))

	status, _ = api.do("POST", "/netfence/v1/resync", `{}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	status, _ = api.do("PUT", "/netfence/v1/namespaces/default", `{"name": "default"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusCreated))

	status, _ = api.do("PUT", "/netfence/v1/pods/default/nginx",
		`{"name": "nginx", "namespace": "default", "ipAddress": "10.1.1.1"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusCreated))

	// replacing an existing pod
	status, _ = api.do("PUT", "/netfence/v1/pods/default/nginx",
		`{"name": "nginx", "namespace": "default", "ipAddress": "10.1.1.5"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	// identity in the body must match the URL
	status, _ = api.do("PUT", "/netfence/v1/pods/default/nginx",
		`{"name": "other", "namespace": "default"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))

	status, body := api.do("GET", "/netfence/v1/pods", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	pods := []*podmodel.Pod{}
	gomega.Expect(json.Unmarshal(body, &pods)).To(gomega.Succeed())
	gomega.Expect(pods).To(gomega.HaveLen(1))
	gomega.Expect(pods[0].IPAddress).To(gomega.Equal("10.1.1.5"))

	status, _ = api.do("DELETE", "/netfence/v1/pods/default/nginx", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	status, _ = api.do("DELETE", "/netfence/v1/pods/default/nginx", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusNotFound))
}

func TestCompiledRulesDump(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	status, _ := api.do("POST", "/netfence/v1/resync", bootstrapSnapshot)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	status, _ = api.do("PUT", "/netfence/v1/policies/default/allow-client", allowClientPolicy)
	gomega.Expect(status).To(gomega.Equal(http.StatusCreated))

	status, body := api.do("GET", "/netfence/v1/rules?pod=default/nginx", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	dump := &restmodel.PodRules{}
	gomega.Expect(json.Unmarshal(body, dump)).To(gomega.Succeed())
	gomega.Expect(dump.Pod).To(gomega.Equal("default/nginx"))

	// the policy isolates the pod in ingress only
	gomega.Expect(dump.Egress).To(gomega.BeNil())
	gomega.Expect(dump.Ingress).ToNot(gomega.BeNil())
	gomega.Expect(dump.Ingress.Direction).To(gomega.Equal("ingress"))
	gomega.Expect(dump.Ingress.Pods).To(gomega.Equal([]string{"default/nginx"}))
	gomega.Expect(dump.Ingress.Rules).To(gomega.Equal([]restmodel.Rule{
		{Action: "permit", SrcNetwork: "10.1.1.2/32", Protocol: "TCP", DestPort: 80},
		{Action: "deny"},
	}))

	status, _ = api.do("GET", "/netfence/v1/rules?pod=default/unknown", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusNotFound))
	status, _ = api.do("GET", "/netfence/v1/rules", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))
}

func TestTrafficSimulation(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	status, _ := api.do("POST", "/netfence/v1/resync", bootstrapSnapshot)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	status, _ = api.do("PUT", "/netfence/v1/policies/default/allow-client", allowClientPolicy)
	gomega.Expect(status).To(gomega.Equal(http.StatusCreated))

	simulate := func(request string) string {
		status, body := api.do("POST", "/netfence/v1/simulate", request)
		gomega.Expect(status).To(gomega.Equal(http.StatusOK))
		verdict := &restmodel.SimulateVerdict{}
		gomega.Expect(json.Unmarshal(body, verdict)).To(gomega.Succeed())
		return verdict.Verdict
	}

	gomega.Expect(simulate(`{
		"pod": "default/nginx", "direction": "ingress",
		"srcIP": "10.1.1.2", "destIP": "10.1.1.1",
		"protocol": "TCP", "destPort": 80}`)).To(gomega.Equal("allowed"))

	gomega.Expect(simulate(`{
		"pod": "default/nginx", "direction": "ingress",
		"srcIP": "10.9.9.9", "destIP": "10.1.1.1",
		"protocol": "TCP", "destPort": 80}`)).To(gomega.Equal("denied"))

	// not isolated in egress
	gomega.Expect(simulate(`{
		"pod": "default/nginx", "direction": "egress",
		"srcIP": "10.1.1.1", "destIP": "10.9.9.9",
		"protocol": "UDP", "destPort": 53}`)).To(gomega.Equal("unmatched"))

	status, _ = api.do("POST", "/netfence/v1/simulate",
		`{"pod": "default/nginx", "direction": "sideways", "srcIP": "10.1.1.2", "destIP": "10.1.1.1"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))

	status, _ = api.do("POST", "/netfence/v1/simulate",
		`{"pod": "default/nginx", "direction": "ingress", "srcIP": "not-an-ip", "destIP": "10.1.1.1"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))
}

func TestLocalPodRegistration(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	status, _ := api.do("POST", "/netfence/v1/resync", `{}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	localPod := `{
		"name": "nginx", "namespace": "default",
		"containerId": "d1e9", "networkNamespace": "/var/run/netns/nginx",
		"interfaceName": "eth0"}`
	status, _ = api.do("POST", "/netfence/v1/local-pods", localPod)
	gomega.Expect(status).To(gomega.Equal(http.StatusCreated))
	status, _ = api.do("POST", "/netfence/v1/local-pods", localPod)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	status, body := api.do("GET", "/netfence/v1/local-pods", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	list := []*controller.LocalPodState{}
	gomega.Expect(json.Unmarshal(body, &list)).To(gomega.Succeed())
	gomega.Expect(list).To(gomega.HaveLen(1))
	gomega.Expect(list[0].NetworkNamespace).To(gomega.Equal("/var/run/netns/nginx"))
	gomega.Expect(list[0].InterfaceName).To(gomega.Equal("eth0"))

	status, _ = api.do("POST", "/netfence/v1/local-pods", `{"name": "incomplete"}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))

	status, _ = api.do("DELETE", "/netfence/v1/local-pods/default/nginx", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	status, _ = api.do("DELETE", "/netfence/v1/local-pods/default/nginx", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusNotFound))
}

func TestInvalidPolicyRejected(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	status, _ := api.do("POST", "/netfence/v1/resync", `{}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	// match expression with operator In requires values
	status, _ = api.do("PUT", "/netfence/v1/policies/default/broken", `{
		"name": "broken", "namespace": "default",
		"pods": {"matchExpressions": [{"key": "app", "operator": "In"}]}}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))

	status, _ = api.do("PUT", "/netfence/v1/policies/default/broken", `{not json`)
	gomega.Expect(status).To(gomega.Equal(http.StatusBadRequest))

	status, body := api.do("GET", "/netfence/v1/policies", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	gomega.Expect(strings.TrimSpace(string(body))).To(gomega.Equal("[]"))
}

func TestStatusEndpoint(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	status, _ := api.do("POST", "/netfence/v1/resync", bootstrapSnapshot)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	status, body := api.do("GET", "/netfence/v1/status", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	data := &restmodel.Status{}
	gomega.Expect(json.Unmarshal(body, data)).To(gomega.Succeed())
	gomega.Expect(data.Namespaces).To(gomega.Equal(1))
	gomega.Expect(data.Pods).To(gomega.Equal(2))
	gomega.Expect(data.LocalPods).To(gomega.Equal(1))
	gomega.Expect(data.Controller.ResyncCount).To(gomega.BeNumerically(">=", 1))
	gomega.Expect(data.Config).ToNot(gomega.BeNil())
	gomega.Expect(data.Config.SkipNamespaces).To(gomega.ContainElement("kube-system"))
}

func TestMetricsEndpoint(t *testing.T) {
	gomega.RegisterTestingT(t)
	api := newTestAPI(t)

	status, _ := api.do("POST", "/netfence/v1/resync", `{}`)
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))

	status, body := api.do("GET", "/metrics", "")
	gomega.Expect(status).To(gomega.Equal(http.StatusOK))
	gomega.Expect(string(body)).To(gomega.ContainSubstring("netfence_controller_events_total"))
	gomega.Expect(string(body)).To(gomega.ContainSubstring("netfence_cache_pods"))
}
