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

// Package utils provides set helpers for the string-keyed identifiers
// exchanged between the policy cache and its indexes.
package utils

import (
	namespacemodel "github.com/netfence/netfence/model/namespace"
	podmodel "github.com/netfence/netfence/model/pod"
	policymodel "github.com/netfence/netfence/model/policy"
)

// RemoveDuplicates removes duplicate entries from a slice of strings.
func RemoveDuplicates(el []string) []string {
	found := map[string]bool{}
	result := []string{}
	for _, v := range el {
		if !found[v] {
			found[v] = true
			result = append(result, v)
		}
	}
	return result
}

// Intersect returns the common elements of two or more slices.
func Intersect(a []string, b []string, s ...[]string) []string {
	if len(a) == 0 || len(b) == 0 {
		return []string{}
	}
	set := []string{}
	hash := make(map[string]bool)
	for _, el := range a {
		hash[el] = true
	}
	for _, el := range b {
		if hash[el] {
			set = append(set, el)
		}
	}
	if len(s) == 0 {
		return set
	}
	return Intersect(set, s[0], s[1:]...)
}

// Union returns the union of two slices, without duplicates.
func Union(a []string, b []string) []string {
	return RemoveDuplicates(append(append([]string{}, a...), b...))
}

// Difference returns the elements of a that are not in b.
func Difference(a []string, b []string) []string {
	hash := make(map[string]bool)
	for _, el := range b {
		hash[el] = true
	}
	diff := []string{}
	for _, el := range a {
		if !hash[el] {
			diff = append(diff, el)
		}
	}
	return diff
}

// UnstringPodID converts string identifiers to pod IDs.
func UnstringPodID(pods []string) []podmodel.ID {
	podIDs := []podmodel.ID{}
	for _, p := range pods {
		if id, ok := podmodel.ParseID(p); ok {
			podIDs = append(podIDs, id)
		}
	}
	return podIDs
}

// StringPodID converts pod IDs to string identifiers.
func StringPodID(pods []podmodel.ID) []string {
	podIDs := []string{}
	for _, p := range pods {
		podIDs = append(podIDs, p.String())
	}
	return podIDs
}

// UnstringPolicyID converts string identifiers to policy IDs.
func UnstringPolicyID(policies []string) []policymodel.ID {
	policyIDs := []policymodel.ID{}
	for _, p := range policies {
		if id, ok := policymodel.ParseID(p); ok {
			policyIDs = append(policyIDs, id)
		}
	}
	return policyIDs
}

// StringPolicyID converts policy IDs to string identifiers.
func StringPolicyID(policies []policymodel.ID) []string {
	policyIDs := []string{}
	for _, p := range policies {
		policyIDs = append(policyIDs, p.String())
	}
	return policyIDs
}

// UnstringNamespaceID converts string identifiers to namespace IDs.
func UnstringNamespaceID(namespaces []string) []namespacemodel.ID {
	namespaceIDs := []namespacemodel.ID{}
	for _, ns := range namespaces {
		namespaceIDs = append(namespaceIDs, namespacemodel.ID(ns))
	}
	return namespaceIDs
}
