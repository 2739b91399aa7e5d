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

// Package docscheck validates a Markdown documentation tree: relative
// links must resolve, fenced yaml/json blocks must parse and heading
// anchors must stay unique within a document.
package docscheck

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/ghodss/yaml"
)

// Finding is one problem found in the documentation.
type Finding struct {
	File    string
	Line    int
	Message string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s:%d: %s", f.File, f.Line, f.Message)
}

// document is one parsed Markdown file.
type document struct {
	path     string              // slash-separated, relative to the root
	anchors  map[string]struct{} // GitHub-style heading anchors
	links    []link
	findings []Finding
}

type link struct {
	line   int
	target string
}

// CheckPath checks a documentation tree rooted at a directory, or a
// single Markdown file.
func CheckPath(checkPath string) ([]Finding, error) {
	info, err := os.Stat(checkPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return CheckTree(checkPath)
	}
	doc, err := parseFile(checkPath, filepath.Base(checkPath))
	if err != nil {
		return nil, err
	}
	docs := map[string]*document{doc.path: doc}
	findings := append([]Finding{}, doc.findings...)
	return append(findings, resolveLinks(filepath.Dir(checkPath), doc, docs)...), nil
}

// CheckTree walks the tree and checks every Markdown file in it.
// Directories with a leading dot or underscore are skipped.
func CheckTree(root string) ([]Finding, error) {
	docs := map[string]*document{}
	var order []string
	err := filepath.WalkDir(root, func(walkPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			name := entry.Name()
			if walkPath != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".md") {
			return nil
		}
		rel, err := filepath.Rel(root, walkPath)
		if err != nil {
			return err
		}
		doc, err := parseFile(walkPath, filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		docs[doc.path] = doc
		order = append(order, doc.path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	findings := []Finding{}
	for _, docPath := range order {
		doc := docs[docPath]
		findings = append(findings, doc.findings...)
		findings = append(findings, resolveLinks(root, doc, docs)...)
	}
	return findings, nil
}

var (
	codeSpans   = regexp.MustCompile("`[^`]*`")
	inlineLinks = regexp.MustCompile(`!?\[[^\]]*\]\(\s*([^)\s]+?)(?:\s[^)]*)?\)`)
)

func parseFile(filePath, relPath string) (*document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	doc := &document{
		path:    relPath,
		anchors: map[string]struct{}{},
	}
	var (
		inFence   bool
		fenceLang string
		fenceLine int
		fenceBody strings.Builder
		lineNo    int
	)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "```") && !strings.HasPrefix(line, "    ") {
			if !inFence {
				inFence = true
				fenceLang = fenceInfo(trimmed)
				fenceLine = lineNo
				fenceBody.Reset()
			} else if strings.TrimSpace(trimmed) == "```" {
				doc.checkFence(fenceLang, fenceLine, fenceBody.String())
				inFence = false
			} else {
				// an info string after the backticks is content,
				// only a bare marker closes the fence
				fenceBody.WriteString(line)
				fenceBody.WriteByte('\n')
			}
			continue
		}
		if inFence {
			fenceBody.WriteString(line)
			fenceBody.WriteByte('\n')
			continue
		}
		if strings.HasPrefix(line, "    ") {
			// indented code block
			continue
		}
		if anchor, isHeading := headingAnchor(line); isHeading {
			doc.addAnchor(anchor, lineNo)
		}
		doc.scanLinks(line, lineNo)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inFence {
		doc.findings = append(doc.findings, Finding{
			File: doc.path, Line: fenceLine, Message: "unterminated code fence"})
	}
	return doc, nil
}

// fenceInfo extracts the language tag of an opening fence marker.
func fenceInfo(marker string) string {
	fields := strings.Fields(strings.TrimLeft(marker, "`"))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// checkFence validates fences that claim a structured format. Fences
// tagged with other languages are not checked.
func (d *document) checkFence(lang string, line int, body string) {
	switch lang {
	case "yaml", "yml":
		for _, part := range splitYAMLStream(body) {
			var parsed interface{}
			if err := yaml.Unmarshal([]byte(part), &parsed); err != nil {
				d.findings = append(d.findings, Finding{
					File: d.path, Line: line,
					Message: fmt.Sprintf("invalid yaml block: %s", firstLine(err.Error())),
				})
				return
			}
		}
	case "json":
		if !json.Valid([]byte(body)) {
			d.findings = append(d.findings, Finding{
				File: d.path, Line: line, Message: "invalid json block"})
		}
	}
}

// splitYAMLStream splits a fenced block on document separators, the way
// manifests concatenate multiple objects.
func splitYAMLStream(body string) []string {
	var parts []string
	var current strings.Builder
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimRight(line, " ") == "---" {
			parts = append(parts, current.String())
			current.Reset()
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	return append(parts, current.String())
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

// headingAnchor derives the GitHub anchor of an ATX heading line.
func headingAnchor(line string) (string, bool) {
	rest := strings.TrimLeft(line, " ")
	level := 0
	for level < len(rest) && rest[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return "", false
	}
	text := rest[level:]
	if text != "" && !strings.HasPrefix(text, " ") && !strings.HasPrefix(text, "\t") {
		return "", false
	}
	text = strings.TrimSpace(text)
	if closed := strings.TrimRight(text, "#"); closed != text &&
		(closed == "" || strings.HasSuffix(closed, " ")) {
		text = strings.TrimRight(closed, " ")
	}
	return slugify(text), true
}

// slugify follows the GitHub anchor algorithm: lowercase, punctuation
// dropped, spaces turned into hyphens.
func slugify(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		case r == '-' || r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// addAnchor registers a heading anchor. A duplicate is a finding; the
// suffixed variant a renderer would assign is registered instead, so
// links to it still resolve.
func (d *document) addAnchor(anchor string, line int) {
	if _, duplicate := d.anchors[anchor]; !duplicate {
		d.anchors[anchor] = struct{}{}
		return
	}
	d.findings = append(d.findings, Finding{
		File: d.path, Line: line,
		Message: fmt.Sprintf("duplicate heading anchor %q", anchor),
	})
	for n := 1; ; n++ {
		suffixed := fmt.Sprintf("%s-%d", anchor, n)
		if _, taken := d.anchors[suffixed]; !taken {
			d.anchors[suffixed] = struct{}{}
			return
		}
	}
}

// scanLinks collects the inline link targets of one line. Code spans are
// blanked first so that link syntax inside them is not picked up.
func (d *document) scanLinks(line string, lineNo int) {
	clean := codeSpans.ReplaceAllString(line, "")
	for _, match := range inlineLinks.FindAllStringSubmatch(clean, -1) {
		d.links = append(d.links, link{line: lineNo, target: match[1]})
	}
}

// resolveLinks verifies the link targets of one document against the
// parsed tree, falling back to the filesystem for non-Markdown targets.
func resolveLinks(root string, doc *document, docs map[string]*document) []Finding {
	var findings []Finding
	for _, l := range doc.links {
		target := l.target
		if isExternal(target) {
			continue
		}
		var fragment string
		if i := strings.IndexByte(target, '#'); i >= 0 {
			target, fragment = target[:i], target[i+1:]
		}
		if target == "" {
			if _, known := doc.anchors[fragment]; !known {
				findings = append(findings, Finding{
					File: doc.path, Line: l.line,
					Message: fmt.Sprintf("anchor #%s not found", fragment)})
			}
			continue
		}

		refPath, ok := resolvePath(doc.path, target)
		if !ok {
			findings = append(findings, Finding{
				File: doc.path, Line: l.line,
				Message: fmt.Sprintf("link %s escapes the documentation tree", l.target)})
			continue
		}
		refDoc, isDoc := docs[refPath]
		if !isDoc {
			if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(refPath))); err != nil {
				findings = append(findings, Finding{
					File: doc.path, Line: l.line,
					Message: fmt.Sprintf("broken link %s", l.target)})
			}
			continue
		}
		if fragment != "" {
			if _, known := refDoc.anchors[fragment]; !known {
				findings = append(findings, Finding{
					File: doc.path, Line: l.line,
					Message: fmt.Sprintf("anchor #%s not found in %s", fragment, refPath)})
			}
		}
	}
	return findings
}

func isExternal(target string) bool {
	return strings.Contains(target, "://") || strings.HasPrefix(target, "mailto:")
}

// resolvePath turns a link target into a slash path relative to the
// root. Targets climbing out of the tree are rejected.
func resolvePath(docPath, target string) (string, bool) {
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	var joined string
	if strings.HasPrefix(target, "/") {
		joined = path.Clean(target[1:])
	} else {
		joined = path.Join(path.Dir(docPath), target)
	}
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}
	return joined, true
}
