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

// docscheck lints the Markdown documentation: relative links must
// resolve, fenced yaml/json blocks must parse and heading anchors must
// stay unique. Findings go to stdout, a non-zero exit reports failure.
//
// Usage:
//
//	docscheck [path ...]
//
// Every path is a documentation tree or a single Markdown file. Without
// arguments the docs directory is checked.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/netfence/netfence/pkg/docscheck"
)

func main() {
	flag.Parse()
	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{"docs"}
	}

	failed := false
	for _, path := range paths {
		findings, err := docscheck.CheckPath(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "docscheck: %v\n", err)
			os.Exit(2)
		}
		for _, finding := range findings {
			fmt.Println(finding)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
