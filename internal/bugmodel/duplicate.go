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

// SetDuplicates records the ids of other trackers (targeting the same
// series+source) that the tracker system marks as duplicates of this
// one. The engine populates this after enumeration, since knowing "who
// duplicates me" requires scanning the whole live set, not just this
// bug's own data (§4.2: "this tracker inherits occupancy of the
// destination pocket from the duplicate for gating purposes").
func (b *Bug) SetDuplicates(ids []int) {
	b.duplicates = ids
}

// Duplicates returns the ids of trackers duplicating this one.
func (b *Bug) Duplicates() []int {
	return b.duplicates
}

// DupReplaces records that this tracker has taken over pocket occupancy
// from its duplicates. It only sets a flag on this Bug: no duplicate
// tracker's tasks are changed, and the engine does not read the flag.
func (b *Bug) DupReplaces() {
	b.dupReplacesCalled = true
}

// DupReplacesCalled reports whether DupReplaces has been invoked on this
// Bug.
func (b *Bug) DupReplacesCalled() bool { return b.dupReplacesCalled }
