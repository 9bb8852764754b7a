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
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// LiveTag is the tag present while a tracker's root task is not yet
// Fix Released (§3, §4.5).
const LiveTag = "kernel-release-tracking-bug-live"

var (
	cycleRE      = regexp.MustCompile(`^kernel-sru-cycle-([0-9]{4}\.[0-9]{2}\.[0-9]{2})(?:-([0-9]+))?$`)
	derivativeRE = regexp.MustCompile(`^kernel-sru-derivative-of-([0-9]+)$`)
	backportRE   = regexp.MustCompile(`^kernel-sru-backport-of-([0-9]+)$`)
	fold         = cases.Fold()
)

// TagSet is an unordered set of tracker tags.
type TagSet map[string]struct{}

// NewTagSet builds a TagSet from a slice, e.g. as loaded from the tracker.
func NewTagSet(tags []string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether tag is present (case-insensitively, since the
// engine's predecessor observed operators sometimes pasting tags in
// mixed case through the web UI).
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	if ok {
		return true
	}
	folded := fold.String(tag)
	for t := range s {
		if fold.String(t) == folded {
			return true
		}
	}
	return false
}

// HasAny reports whether any of tags is present.
func (s TagSet) HasAny(tags ...string) bool {
	for _, t := range tags {
		if s.Has(t) {
			return true
		}
	}
	return false
}

// Add inserts tag, returning true if it was not already present.
func (s TagSet) Add(tag string) bool {
	if s.Has(tag) {
		return false
	}
	s[tag] = struct{}{}
	return true
}

// Remove deletes tag, returning true if it was present.
func (s TagSet) Remove(tag string) bool {
	if _, ok := s[tag]; ok {
		delete(s, tag)
		return true
	}
	return false
}

// Slice returns a sorted slice of tags, for deterministic mutation diffs.
func (s TagSet) Slice() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// FindSeries returns the first tag matching a known series codename from
// candidates, and true if found (§4.2: "locate the first tag matching a
// known series codename").
func (s TagSet) FindSeries(candidates []string) (string, bool) {
	for _, c := range candidates {
		if s.Has(c) {
			return c, true
		}
	}
	return "", false
}

// Cycle is a parsed kernel-sru-cycle-<cycle>[-<spin>] tag.
type Cycle struct {
	Cycle string
	Spin  int
}

// String renders the cycle in <cycle>-<spin> form, spin defaulting to 1.
func (c Cycle) String() string {
	spin := c.Spin
	if spin == 0 {
		spin = 1
	}
	return c.Cycle + "-" + itoa(spin)
}

// FindCycle locates and parses the kernel-sru-cycle tag.
func (s TagSet) FindCycle() (Cycle, bool) {
	for t := range s {
		if m := cycleRE.FindStringSubmatch(t); m != nil {
			spin := 1
			if m[2] != "" {
				spin = atoi(m[2])
			}
			return Cycle{Cycle: m[1], Spin: spin}, true
		}
	}
	return Cycle{}, false
}

// FindMaster locates a kernel-sru-derivative-of-<id> or
// kernel-sru-backport-of-<id> tag, returning the parent id and whether
// the relation is a backport (crosses series) rather than a derivative
// (stays in series).
func (s TagSet) FindMaster() (id string, backport bool, found bool) {
	for t := range s {
		if m := derivativeRE.FindStringSubmatch(t); m != nil {
			return m[1], false, true
		}
		if m := backportRE.FindStringSubmatch(t); m != nil {
			return m[1], true, true
		}
	}
	return "", false, false
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// trimmedLower lower-cases s after trimming surrounding white space.
func trimmedLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
