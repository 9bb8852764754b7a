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
	"context"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/pkg/swmtypes"
)

// testingReady reports ready_for_testing, per §4.3, used as the New ->
// Confirmed gate shared by every testing-family task.
func testingReady(c *Context) bool {
	ready, _ := c.Pkgs.ReadyForTesting(context.Background())
	return ready
}

// spamTestRequests publishes one test-request message per testable
// flavour for the given operation, once per crank.
func spamTestRequests(c *Context, op, routingKey string) {
	key := op + ":" + c.Bug.RawTitle
	if c.announced[key] {
		return
	}
	c.announced[key] = true

	cycle, _ := c.Bug.Tags.FindCycle()
	for _, flavour := range c.Source.TestableFlavours {
		req := messagingTestRequest(c, flavour, cycle.String())
		req.Key = routingKey
		req.Op = op
		_ = c.Publish.Publish(context.Background(), routingKey, req, 5)
	}
}

// handleVerificationTesting implements verification-testing: New gates on
// ready_for_testing, a derivative tracker's Confirmed state inherits its
// master's verification status, and the *-testing-passed tag terminates
// it Fix Released.
func handleVerificationTesting(c *Context, t *bugmodel.Task) (bool, error) {
	if c.Bug.Tags.Has("qa-testing-passed") {
		return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
	}
	if c.Bug.Tags.Has("qa-testing-failed") {
		return c.setStatus(t, swmtypes.StatusIncomplete, "Stalled -- verification testing failed"), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		if !testingReady(c) {
			t.SetReason("Pending -- not yet ready for testing")
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		if c.Bug.IsDerivativePackage() && c.Lookup != nil {
			idStr, _, _ := c.Bug.MasterBugID()
			masterID := 0
			for _, r := range idStr {
				if r < '0' || r > '9' {
					masterID = 0
					break
				}
				masterID = masterID*10 + int(r-'0')
			}
			if master, err := c.Lookup.LookupContext(masterID); err == nil && master != nil {
				if mt := master.task("verification-testing"); mt != nil && mt.Status.Terminal() {
					return c.setStatus(t, mt.Status, "Ongoing -- inherited from master bug"), nil
				}
			}
		}
		spamTestRequests(c, "verification", "kernel.testing.verification")
		t.SetReason("Ongoing -- awaiting verification result")
		return false, nil

	default:
		return false, nil
	}
}

// handleRegressionTesting implements regression-testing.
func handleRegressionTesting(c *Context, t *bugmodel.Task) (bool, error) {
	if c.Bug.Tags.Has("regression-testing-passed") {
		return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
	}
	if c.Bug.Tags.Has("regression-testing-failed") {
		return c.setStatus(t, swmtypes.StatusIncomplete, "Stalled -- regression testing failed"), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		if !testingReady(c) {
			t.SetReason("Pending -- not yet ready for testing")
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		spamTestRequests(c, "regression", "kernel.testing.regression")
		return c.setStatus(t, swmtypes.StatusInProgress, "Ongoing -- test request sent"), nil

	case swmtypes.StatusInProgress:
		t.SetReason("Ongoing -- awaiting regression testing result")
		return false, nil

	default:
		return false, nil
	}
}

// handleCertificationTesting implements certification-testing, mirroring
// regression-testing's shape against its own tag family.
func handleCertificationTesting(c *Context, t *bugmodel.Task) (bool, error) {
	if c.Bug.Tags.Has("certification-testing-passed") {
		return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
	}
	if c.Bug.Tags.Has("certification-testing-failed") {
		return c.setStatus(t, swmtypes.StatusIncomplete, "Stalled -- certification testing failed"), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		if !testingReady(c) {
			t.SetReason("Pending -- not yet ready for testing")
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		spamTestRequests(c, "certification", "kernel.testing.certification")
		return c.setStatus(t, swmtypes.StatusInProgress, "Ongoing -- test request sent"), nil

	case swmtypes.StatusInProgress:
		t.SetReason("Ongoing -- awaiting certification testing result")
		return false, nil

	default:
		return false, nil
	}
}

// handleSecuritySignoff implements security-signoff: gated on every
// testing task reaching a terminal state; the signoff itself is always an
// external (security team) action reflected back as a tracker status
// change, so the handler only manages the New -> Confirmed gate and the
// Invalid short-circuit for kernels that do not require a signoff.
func handleSecuritySignoff(c *Context, t *bugmodel.Task) (bool, error) {
	if c.Source == nil || len(c.Source.RoutingFor(swmtypes.PocketSecurity)) == 0 {
		return c.setStatus(t, swmtypes.StatusInvalid, ""), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		for _, name := range []string{"verification-testing", "regression-testing", "certification-testing"} {
			task := c.task(name)
			if task != nil && task.Status != swmtypes.StatusFixReleased && task.Status != swmtypes.StatusInvalid {
				t.SetReason("Pending -- waiting for testing to complete")
				return false, nil
			}
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready for security signoff"), nil

	case swmtypes.StatusConfirmed:
		t.SetReason("Holding -- awaiting security team signoff")
		return false, nil

	default:
		return false, nil
	}
}
