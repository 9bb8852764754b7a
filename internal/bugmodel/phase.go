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

// Phase gets the coarse phase label (§4.2). The property pair used is
// kernel-stable-phase/-phase-changed for stable series, or
// kernel-phase/-phase-changed for development series; both are folded
// onto the same Props.Phase/PhaseChanged fields since only one pair is
// ever populated for a given tracker (the series determines which).
func (b *Bug) Phase() string {
	return b.Props.Phase
}

// SetPhase sets the phase, updating the changed-timestamp only if the
// value actually changes (§4.2: "setting the phase to the same value
// MUST NOT update the timestamp"), and best-effort mirrors it into a
// visibility tag (supplemented from the original's milestone-tag sync;
// the description property remains authoritative — the tag is never
// read back).
func (b *Bug) SetPhase(phase string, now string) {
	if b.Props.Phase == phase {
		return
	}
	if b.Props.Phase != "" {
		b.Tags.Remove("kernel-phase-" + slugify(b.Props.Phase))
	}
	b.Props.Phase = phase
	b.Props.PhaseChanged = now
	if b.Tags.Add("kernel-phase-" + slugify(phase)) {
		b.tagsDirty = true
	}
}

func slugify(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			out = append(out, c)
		case c == ' ' || c == '_' || c == '-':
			out = append(out, '-')
		}
	}
	return string(out)
}
