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

// Package version parses tracker titles and compares Debian-style package
// versions — the two pieces of "kernel version arithmetic" the rest of the
// engine treats as black boxes.
package version

import (
	"fmt"
	"regexp"
)

// titleRE matches "<source>: <kernel>-<abi>.<upload>[~suffix] -proposed tracker".
// Source names always start with "linux". The version grammar is
// N.N.N(-or-.)ABI.UPLOAD(~suffix)?, per spec.md §4.2.
var titleRE = regexp.MustCompile(`^(linux[-\w]*):\s+(\d+\.\d+\.\d+)([-.])(\d+)\.(\d+)(~\S+)?\s+-proposed tracker\s*$`)

// Title is a parsed tracker title.
type Title struct {
	Source  string // e.g. "linux-aws"
	Kernel  string // "N.N.N"
	ABI     string // the middle group
	Upload  string // the upload number
	Suffix  string // "~20.04.1" style respin suffix, including the leading ~
	Version string // the full version string as it appears after "<source>: "
}

// Parse parses a tracker title. It returns an error wrapping nothing
// external (callers wrap it in errkind.TitleUnparseableError) when the
// title does not match the expected grammar.
func Parse(title string) (*Title, error) {
	m := titleRE.FindStringSubmatch(title)
	if m == nil {
		return nil, fmt.Errorf("title does not match expected grammar: %q", title)
	}
	sep := m[3]
	version := fmt.Sprintf("%s%s%s.%s%s", m[2], sep, m[4], m[5], m[6])
	return &Title{
		Source:  m[1],
		Kernel:  m[2],
		ABI:     m[4],
		Upload:  m[5],
		Suffix:  m[6],
		Version: version,
	}, nil
}

// Compose reconstructs the canonical title text for t, used when the
// engine rewrites a tracker's title after the version becomes known.
func Compose(t *Title) string {
	return fmt.Sprintf("%s: %s -proposed tracker", t.Source, t.Version)
}
