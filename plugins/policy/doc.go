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

// Package policy implements network policies [1] for netfence.
//
// The plugin is a facade over a pipeline of four stages:
//
//	cache -> processor -> configurator -> renderers
//
// The cache stores policies, pods and namespaces and indexes them by label
// selectors. The processor determines the set of pods with a possibly
// outdated policy configuration after each change. The configurator
// translates policies into protocol/address/port rules and fans them out to
// the registered renderers. Each renderer maps the rules onto a specific
// enforcement backend (iptables, nftables, or an in-memory verdict engine
// used for simulation and by the REST API).
//
// [1]: https://kubernetes.io/docs/concepts/services-networking/network-policies/
package policy
