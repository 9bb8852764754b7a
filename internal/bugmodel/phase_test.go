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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBugForPhase(t *testing.T) *Bug {
	t.Helper()
	bug, err := Load(rawBug(), nil, nil, "kernel-sru-workflow", false)
	require.NoError(t, err)
	return bug
}

func TestSetPhaseRecordsValueAndTimestamp(t *testing.T) {
	bug := newTestBugForPhase(t)
	bug.SetPhase("Pre-build", "2026-03-02T00:00:00Z")

	assert.Equal(t, "Pre-build", bug.Phase())
	assert.Equal(t, "2026-03-02T00:00:00Z", bug.Props.PhaseChanged)
	assert.True(t, bug.Tags.Has("kernel-phase-pre-build"))
}

func TestSetPhaseSameValueDoesNotUpdateTimestamp(t *testing.T) {
	bug := newTestBugForPhase(t)
	bug.SetPhase("Pre-build", "2026-03-02T00:00:00Z")
	bug.SetPhase("Pre-build", "2026-03-03T00:00:00Z")

	assert.Equal(t, "2026-03-02T00:00:00Z", bug.Props.PhaseChanged, "setting the same phase must not touch the timestamp")
}

func TestSetPhaseChangeRemovesOldTagAndAddsNew(t *testing.T) {
	bug := newTestBugForPhase(t)
	bug.SetPhase("Pre-build", "2026-03-02T00:00:00Z")
	bug.SetPhase("Testing", "2026-03-04T00:00:00Z")

	assert.False(t, bug.Tags.Has("kernel-phase-pre-build"))
	assert.True(t, bug.Tags.Has("kernel-phase-testing"))
	assert.Equal(t, "2026-03-04T00:00:00Z", bug.Props.PhaseChanged)
}
