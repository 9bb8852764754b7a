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

package handlers

import (
	"testing"

	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/pkg/swmtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleVerificationTestingPassedTagForcesFixReleased(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"verification-testing": swmtypes.StatusInProgress}, false)
	c.Bug.Tags.Add("qa-testing-passed")

	changed, err := handleVerificationTesting(c, c.task("verification-testing"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusFixReleased, c.task("verification-testing").Status)
}

func TestHandleVerificationTestingFailedTagGoesIncomplete(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"verification-testing": swmtypes.StatusInProgress}, false)
	c.Bug.Tags.Add("qa-testing-failed")

	changed, err := handleVerificationTesting(c, c.task("verification-testing"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusIncomplete, c.task("verification-testing").Status)
}

func TestHandleVerificationTestingNewHoldsWhenNotReadyForTesting(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"verification-testing": swmtypes.StatusNew}, false)

	changed, err := handleVerificationTesting(c, c.task("verification-testing"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Pending -- not yet ready for testing", c.task("verification-testing").Reason())
}

func TestHandleVerificationTestingConfirmedAwaitsResultWithNoMaster(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"verification-testing": swmtypes.StatusConfirmed}, false)

	changed, err := handleVerificationTesting(c, c.task("verification-testing"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Ongoing -- awaiting verification result", c.task("verification-testing").Reason())
}

func TestHandleRegressionTestingConfirmedSendsRequestAndAdvances(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"regression-testing": swmtypes.StatusConfirmed}, false)

	changed, err := handleRegressionTesting(c, c.task("regression-testing"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusInProgress, c.task("regression-testing").Status)
}

func TestHandleRegressionTestingInProgressAwaitsResult(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"regression-testing": swmtypes.StatusInProgress}, false)

	changed, err := handleRegressionTesting(c, c.task("regression-testing"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Ongoing -- awaiting regression testing result", c.task("regression-testing").Reason())
}

func TestHandleCertificationTestingPassedTagForcesFixReleased(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"certification-testing": swmtypes.StatusInProgress}, false)
	c.Bug.Tags.Add("certification-testing-passed")

	changed, err := handleCertificationTesting(c, c.task("certification-testing"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusFixReleased, c.task("certification-testing").Status)
}

func TestHandleSecuritySignoffInvalidWhenNoSecurityRoute(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{"security-signoff": swmtypes.StatusNew}, false)

	changed, err := handleSecuritySignoff(c, c.task("security-signoff"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusInvalid, c.task("security-signoff").Status)
}

func TestHandleSecuritySignoffNewPendingUntilTestingComplete(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{
		"security-signoff":     swmtypes.StatusNew,
		"verification-testing": swmtypes.StatusInProgress,
	}, false)
	c.Source.Routing = map[swmtypes.Pocket][]catalog.Route{swmtypes.PocketSecurity: {{Archive: "ubuntu"}}}

	changed, err := handleSecuritySignoff(c, c.task("security-signoff"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Pending -- waiting for testing to complete", c.task("security-signoff").Reason())
}

func TestHandleSecuritySignoffConfirmedHoldsForExternalAction(t *testing.T) {
	c := newPromoteContext(t, map[string]swmtypes.TaskStatus{
		"security-signoff":      swmtypes.StatusConfirmed,
		"verification-testing":  swmtypes.StatusFixReleased,
		"regression-testing":    swmtypes.StatusFixReleased,
		"certification-testing": swmtypes.StatusInvalid,
	}, false)
	c.Source.Routing = map[swmtypes.Pocket][]catalog.Route{swmtypes.PocketSecurity: {{Archive: "ubuntu"}}}

	changed, err := handleSecuritySignoff(c, c.task("security-signoff"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "Holding -- awaiting security team signoff", c.task("security-signoff").Reason())
}
