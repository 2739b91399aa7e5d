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

// Package remote implements the HTTP client netctl uses to talk to the
// REST API of a netfence agent.
package remote

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const requestTimeout = 10 * time.Second

// Client talks to the REST API of one agent.
type Client struct {
	agent string
	http  *http.Client
}

// NewClient creates a client for the agent listening at host:port.
func NewClient(agent string) *Client {
	return &Client{
		agent: agent,
		http: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

func (c *Client) url(path string) string {
	return "http://" + c.agent + path
}

// Get retrieves the given path and decodes the JSON response into out.
func (c *Client) Get(path string, out interface{}) error {
	resp, err := c.http.Get(c.url(path))
	if err != nil {
		return err
	}
	return c.handle(resp, out)
}

// Send issues a request with an optional JSON body and decodes the
// response into out unless out is nil. Both 200 and 201 are success.
func (c *Client) Send(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.url(path), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	return c.handle(resp, out)
}

func (c *Client) handle(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return responseError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// responseError turns an error payload into an error. The agent wraps
// error texts as {"Error": "..."}.
func responseError(status int, data []byte) error {
	reply := struct{ Error string }{}
	if err := json.Unmarshal(data, &reply); err == nil && reply.Error != "" {
		return errors.Errorf("%s (HTTP %d)", reply.Error, status)
	}
	return errors.Errorf("HTTP %d: %s", status, strings.TrimSpace(string(data)))
}
