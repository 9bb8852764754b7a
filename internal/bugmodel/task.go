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

import "github.com/canonical/swm/pkg/swmtypes"

// Task is one Launchpad-shaped bug task: a pipeline stage's mutable state.
type Task struct {
	Name       string
	Status     swmtypes.TaskStatus
	Importance string
	Assignee   string

	// dirty tracks whether Status/Assignee/Importance changed since load,
	// so the crank loop's "modified" flag can be derived without a
	// snapshot diff.
	dirty bool

	// reason is set by handlers each crank; reasonSet distinguishes "no
	// reason produced this crank" from "explicitly cleared".
	reason    string
	reasonSet bool
}

// SetStatus mutates the task's status, marking it dirty if changed.
func (t *Task) SetStatus(s swmtypes.TaskStatus) {
	if t.Status == s {
		return
	}
	t.Status = s
	t.dirty = true
}

// SetAssignee mutates the task's assignee, marking it dirty if changed.
// Mirrors the original's tolerance for assignee lookups failing: callers
// ignore a KeyError-shaped error from the tracker client and proceed.
func (t *Task) SetAssignee(assignee string) {
	if t.Assignee == assignee {
		return
	}
	t.Assignee = assignee
	t.dirty = true
}

// SetReason records this crank's reason string for the task. Reasons are
// overwritten every crank (§4.2); ResetReason clears it at crank start.
func (t *Task) SetReason(reason string) {
	t.reason = reason
	t.reasonSet = true
}

// Reason returns the reason recorded for this crank, applying the default
// fill-in rule (§4.2) when a handler left none and the task is live.
func (t *Task) Reason() string {
	if t.reasonSet {
		return t.reason
	}
	if !t.Status.Live() {
		return ""
	}
	switch t.Status {
	case swmtypes.StatusConfirmed:
		return "Pending -- Ready"
	case swmtypes.StatusInProgress, swmtypes.StatusFixCommitted:
		return "Ongoing -- status " + string(t.Status)
	case swmtypes.StatusIncomplete:
		return "Stalled -- FAILED"
	default:
		return ""
	}
}

// ResetReason clears the reason, called once per crank before any
// handler runs (reason_reset_all, §4.2).
func (t *Task) ResetReason() {
	t.reason = ""
	t.reasonSet = false
}

// Dirty reports whether this task changed since the bug was loaded.
func (t *Task) Dirty() bool { return t.dirty }

// ClearDirty resets the dirty flag after a successful save.
func (t *Task) ClearDirty() { t.dirty = false }
