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

package namespaceidx

import (
	"testing"

	"github.com/onsi/gomega"

	namespacemodel "github.com/netfence/netfence/model/namespace"
)

func newTestIndex() *ConfigIndex {
	idx := NewConfigIndex()
	idx.RegisterNamespace("default", &namespacemodel.Namespace{
		Name: "default",
		Labels: []*namespacemodel.Label{
			{Key: "name", Value: "default"},
		},
	})
	idx.RegisterNamespace("monitoring", &namespacemodel.Namespace{
		Name: "monitoring",
		Labels: []*namespacemodel.Label{
			{Key: "name", Value: "monitoring"},
			{Key: "team", Value: "ops"},
		},
	})
	idx.RegisterNamespace("bare", &namespacemodel.Namespace{Name: "bare"})
	return idx
}

func TestRegisterUnregister(t *testing.T) {
	gomega.RegisterTestingT(t)

	idx := NewConfigIndex()
	gomega.Expect(idx.ListAll()).To(gomega.BeEmpty())

	data := &namespacemodel.Namespace{
		Name: "default",
		Labels: []*namespacemodel.Label{
			{Key: "name", Value: "default"},
		},
	}
	idx.RegisterNamespace("default", data)

	found, stored := idx.LookupNamespace("default")
	gomega.Expect(found).To(gomega.BeTrue())
	gomega.Expect(stored).To(gomega.BeIdenticalTo(data))
	gomega.Expect(idx.ListAll()).To(gomega.ConsistOf("default"))

	gomega.Expect(idx.UnregisterNamespace("default")).To(gomega.BeTrue())
	found, _ = idx.LookupNamespace("default")
	gomega.Expect(found).To(gomega.BeFalse())
	gomega.Expect(idx.LookupNamespacesByLabel("name/default")).To(gomega.BeEmpty())

	gomega.Expect(idx.UnregisterNamespace("default")).To(gomega.BeFalse())
}

func TestSecondaryIndexLookup(t *testing.T) {
	gomega.RegisterTestingT(t)
	idx := newTestIndex()

	byKey := idx.LookupNamespacesByLabelKey("name")
	gomega.Expect(byKey).To(gomega.ConsistOf("default", "monitoring"))
	gomega.Expect(idx.LookupNamespacesByLabelKey("team")).To(gomega.ConsistOf("monitoring"))
	gomega.Expect(idx.LookupNamespacesByLabelKey("missing")).To(gomega.BeEmpty())

	gomega.Expect(idx.LookupNamespacesByLabel("name/default")).To(gomega.ConsistOf("default"))
	gomega.Expect(idx.LookupNamespacesByLabel("team/ops")).To(gomega.ConsistOf("monitoring"))
	gomega.Expect(idx.LookupNamespacesByLabel("team/dev")).To(gomega.BeEmpty())
}

func TestReRegistration(t *testing.T) {
	gomega.RegisterTestingT(t)
	idx := newTestIndex()

	idx.RegisterNamespace("monitoring", &namespacemodel.Namespace{
		Name: "monitoring",
		Labels: []*namespacemodel.Label{
			{Key: "team", Value: "dev"},
		},
	})

	gomega.Expect(idx.LookupNamespacesByLabel("team/ops")).To(gomega.BeEmpty())
	gomega.Expect(idx.LookupNamespacesByLabel("team/dev")).To(gomega.ConsistOf("monitoring"))
	gomega.Expect(idx.LookupNamespacesByLabelKey("name")).To(gomega.ConsistOf("default"))
}
