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
	"errors"
	"strings"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/errkind"
)

// HandlerFunc is one task's state machine: a pure-ish function of the
// Context (tracker, package set, clock) and the task it governs, returning
// whether it mutated anything this invocation.
type HandlerFunc func(c *Context, t *bugmodel.Task) (bool, error)

// fixedHandlers maps exact task names to their handler, for tasks that do
// not follow one of the patterned families below.
var fixedHandlers = map[string]HandlerFunc{
	"prepare-package":       handlePreparePackage,
	"promote-to-proposed":   handlePromoteToProposed,
	"promote-to-updates":    handlePromoteToUpdates,
	"promote-to-security":   handlePromoteToSecurity,
	"promote-to-release":    handlePromoteToRelease,
	"verification-testing":  handleVerificationTesting,
	"regression-testing":    handleRegressionTesting,
	"certification-testing": handleCertificationTesting,
	"security-signoff":      handleSecuritySignoff,
}

// HandlerFor resolves the handler for a task name, matching the
// patterned families (prepare-package-<type>, snap-release-to-<risk>)
// when no fixed entry applies. The second return value is false for an
// unrecognized task name, mirroring handler_for(name) -> None in §4.5's
// pseudocode.
func HandlerFor(name string) (HandlerFunc, bool) {
	if h, ok := fixedHandlers[name]; ok {
		return h, true
	}
	if strings.HasPrefix(name, "prepare-package-") {
		return handlePreparePackage, true
	}
	if strings.HasPrefix(name, "snap-release-to-") {
		return handleSnapRelease, true
	}
	return nil, false
}

// Crank runs one task's handler for one crank iteration, matching §4.5's
// pseudocode: an unrecognized task name gets a fixed reason and no change;
// a CrankError is caught, stamped as the task's reason, and treated as "no
// change" so the fixed-point loop does not spin forever on a stalled task.
func Crank(c *Context, name string) bool {
	t := c.task(name)
	if t == nil {
		return false
	}
	handler, ok := HandlerFor(name)
	if !ok {
		t.SetReason("unknown workflow task")
		return false
	}

	changed, err := handler(c, t)
	if err == nil {
		return changed
	}

	var crankErr *errkind.CrankError
	if errors.As(err, &crankErr) {
		t.SetReason("Stalled -- " + crankErr.Message)
		return false
	}
	var wfErr *errkind.WorkflowCrankError
	if errors.As(err, &wfErr) {
		t.SetReason("Stalled -- " + wfErr.Message)
		return false
	}
	t.SetReason("Stalled -- " + err.Error())
	return false
}
