// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bugmodel

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// sentinel is the exact line that separates human preamble from the
// machine-readable SWM properties block (§4.2).
const sentinel = "-- swm properties --"

// nbsp is U+00A0, which the web UI sometimes substitutes for an ordinary
// space when an operator edits a description by hand.
const nbsp = ' '

// parsedDescription is the result of splitting and decoding a tracker
// description.
type parsedDescription struct {
	Preamble   string
	Properties *Properties
}

// normalizeNBSP converts every U+00A0 to an ordinary space, tolerating
// manual web-UI edits before the YAML block is parsed (§4.2). This walks
// the string as first-class Unicode rather than raw bytes so it is safe
// to apply to UTF-8 text that also contains unrelated multi-byte runes.
func normalizeNBSP(s string) string {
	if !strings.ContainsRune(s, nbsp) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == nbsp {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	// norm.NFC collapses any decomposed forms the same manual edits can
	// introduce (e.g. combining characters pasted from a rendered page)
	// before the YAML parser ever sees the text.
	return norm.NFC.String(b.String())
}

// parseDescription splits raw into its human preamble and SWM properties,
// per §4.2. A description with no sentinel line has empty Properties.
func parseDescription(raw string) (*parsedDescription, error) {
	normalized := normalizeNBSP(raw)

	idx := -1
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		if strings.TrimRight(line, " \t") == sentinel {
			idx = i
			break
		}
	}

	if idx == -1 {
		return &parsedDescription{Preamble: raw, Properties: &Properties{}}, nil
	}

	preamble := strings.Join(lines[:idx], "\n")
	yamlBlock := strings.Join(lines[idx+1:], "\n")

	var props Properties
	if strings.TrimSpace(yamlBlock) != "" {
		if err := yaml.Unmarshal([]byte(yamlBlock), &props); err != nil {
			return nil, err
		}
	}

	return &parsedDescription{Preamble: preamble, Properties: &props}, nil
}

// serializeDescription rebuilds the full description text: preamble,
// sentinel line, then a canonical block-style YAML dump of props.
func serializeDescription(preamble string, props *Properties) (string, error) {
	preamble = strings.TrimRight(preamble, "\n")

	block, err := yaml.Marshal(props)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n")
	b.WriteString(sentinel)
	b.WriteString("\n")
	b.Write(block)
	return b.String(), nil
}
