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
	"testing"

	"github.com/canonical/swm/pkg/swmtypes"
	"github.com/stretchr/testify/assert"
)

func TestTaskSetStatusOnlyDirtiesOnChange(t *testing.T) {
	task := &Task{Name: "prepare-package", Status: swmtypes.StatusNew}

	task.SetStatus(swmtypes.StatusNew)
	assert.False(t, task.Dirty())

	task.SetStatus(swmtypes.StatusConfirmed)
	assert.True(t, task.Dirty())
	assert.Equal(t, swmtypes.StatusConfirmed, task.Status)
}

func TestTaskSetAssigneeOnlyDirtiesOnChange(t *testing.T) {
	task := &Task{Name: "prepare-package", Assignee: "kernel-team"}

	task.SetAssignee("kernel-team")
	assert.False(t, task.Dirty())

	task.SetAssignee("someone-else")
	assert.True(t, task.Dirty())
}

func TestTaskClearDirtyResetsFlag(t *testing.T) {
	task := &Task{Name: "prepare-package", Status: swmtypes.StatusNew}
	task.SetStatus(swmtypes.StatusConfirmed)
	require := assert.New(t)
	require.True(task.Dirty())

	task.ClearDirty()
	require.False(task.Dirty())
}

func TestTaskReasonPrefersExplicitlySetValue(t *testing.T) {
	task := &Task{Status: swmtypes.StatusConfirmed}
	task.SetReason("Pending -- waiting on something specific")
	assert.Equal(t, "Pending -- waiting on something specific", task.Reason())
}

func TestTaskReasonDefaultsForLiveStatusWithNoneSet(t *testing.T) {
	cases := []struct {
		status swmtypes.TaskStatus
		want   string
	}{
		{swmtypes.StatusConfirmed, "Pending -- Ready"},
		{swmtypes.StatusInProgress, "Ongoing -- status In Progress"},
		{swmtypes.StatusFixCommitted, "Ongoing -- status Fix Committed"},
		{swmtypes.StatusIncomplete, "Stalled -- FAILED"},
	}
	for _, tc := range cases {
		task := &Task{Status: tc.status}
		assert.Equal(t, tc.want, task.Reason(), "status %s", tc.status)
	}
}

func TestTaskReasonEmptyForNonLiveStatusWithNoneSet(t *testing.T) {
	task := &Task{Status: swmtypes.StatusFixReleased}
	assert.Equal(t, "", task.Reason())
}

func TestTaskResetReasonClearsExplicitValue(t *testing.T) {
	task := &Task{Status: swmtypes.StatusConfirmed}
	task.SetReason("Pending -- Ready")
	task.ResetReason()
	// Confirmed is live and no reason was set this crank, so the default fills back in.
	assert.Equal(t, "Pending -- Ready", task.Reason())
}
