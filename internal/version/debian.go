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

package version

import "strings"

// Compare implements the Debian version comparison algorithm
// (dpkg --compare-versions): split into epoch, upstream-version and
// debian-revision, compare each component with the "digits vs
// everything-else, alternating" rule described in deb-version(7).
//
// Required for pocket_clear (spec.md §4.3/§9): pocket occupancy is only
// ever compared by version, never by string equality.
func Compare(a, b string) int {
	aEpoch, aRest := splitEpoch(a)
	bEpoch, bRest := splitEpoch(b)
	if c := compareEpoch(aEpoch, bEpoch); c != 0 {
		return c
	}

	aUpstream, aRevision := splitRevision(aRest)
	bUpstream, bRevision := splitRevision(bRest)

	if c := compareComponent(aUpstream, bUpstream); c != 0 {
		return c
	}
	return compareComponent(aRevision, bRevision)
}

// LessEqual reports whether Compare(a, b) <= 0.
func LessEqual(a, b string) bool { return Compare(a, b) <= 0 }

func splitEpoch(v string) (epoch string, rest string) {
	if i := strings.IndexByte(v, ':'); i >= 0 {
		return v[:i], v[i+1:]
	}
	return "0", v
}

func compareEpoch(a, b string) int {
	return compareNumeric(a, b)
}

func splitRevision(rest string) (upstream, revision string) {
	if i := strings.LastIndexByte(rest, '-'); i >= 0 {
		return rest[:i], rest[i+1:]
	}
	return rest, "0"
}

func compareNumeric(a, b string) int {
	ai, bi := trimLeadingZeros(a), trimLeadingZeros(b)
	if len(ai) != len(bi) {
		if len(ai) < len(bi) {
			return -1
		}
		return 1
	}
	if ai < bi {
		return -1
	}
	if ai > bi {
		return 1
	}
	return 0
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

// order returns the sort weight of a single rune under Debian's version
// ordering, matching dpkg's own `order()`: '~' sorts before everything
// (even the empty string), end-of-string and a digit both weigh 0 and so
// sort before any letter, a letter sorts by its own code point, and any
// other punctuation sorts highest, by code point. This is the "tilde
// sorts lowest" rule that makes "1.0~beta1" < "1.0", while "1.0a" > "1.0".
func order(r rune) int {
	switch {
	case r == '~':
		return -1
	case r == 0: // end of string
		return 0
	case isDigit(r):
		return 0
	case isAlpha(r):
		return int(r)
	default:
		return int(r) + 256
	}
}

func isAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// compareComponent compares an upstream-version or debian-revision
// string using the alternating digit/non-digit rule.
func compareComponent(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ra) || j < len(rb) {
		// Compare the non-digit run first.
		for i < len(ra) || j < len(rb) {
			var ca, cb rune
			if i < len(ra) {
				ca = ra[i]
			}
			if j < len(rb) {
				cb = rb[j]
			}
			if (i >= len(ra) || isDigit(ca)) && (j >= len(rb) || isDigit(cb)) {
				break
			}
			if order(ca) != order(cb) {
				if order(ca) < order(cb) {
					return -1
				}
				return 1
			}
			if i < len(ra) {
				i++
			}
			if j < len(rb) {
				j++
			}
		}

		// Compare the following digit run numerically.
		di := i
		for di < len(ra) && isDigit(ra[di]) {
			di++
		}
		dj := j
		for dj < len(rb) && isDigit(rb[dj]) {
			dj++
		}
		if c := compareNumeric(emptyToZero(string(ra[i:di])), emptyToZero(string(rb[j:dj]))); c != 0 {
			return c
		}
		i, j = di, dj
	}
	return 0
}

func emptyToZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
