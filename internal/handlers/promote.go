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
	"fmt"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/messaging"
	"github.com/canonical/swm/pkg/swmtypes"
)

// allPreparePackagesDone reports whether every declared dependent
// package's prepare-package[-*] task has reached a terminal, non-blocking
// state (Fix Released or Invalid), the gate every promote-to-* task
// shares before it may leave New.
func allPreparePackagesDone(c *Context) bool {
	for _, pt := range c.Pkgs.DependentPackages() {
		name := "prepare-package"
		if pt != swmtypes.PackageMain {
			name = "prepare-package-" + string(pt)
		}
		task := c.task(name)
		if task == nil {
			continue
		}
		if task.Status != swmtypes.StatusFixReleased && task.Status != swmtypes.StatusInvalid {
			return false
		}
	}
	return true
}

// announceProposed fires the once-per-crank "uploaded to Proposed"
// announcement and per-flavour test-request messages (§4.4's "mail /
// message side effects").
func announceProposed(c *Context, ctx context.Context) {
	key := "proposed:" + c.Bug.RawTitle
	if c.announced[key] {
		return
	}
	c.announced[key] = true

	if c.NoAnnouncements {
		return
	}
	version := c.Pkgs.Bug.MainVersion()
	subject := fmt.Sprintf("[%s] %s %s uploaded", c.Series.Codename, c.Source.Name, version)
	_ = c.Bug.Comment(subject, subject+" to -proposed.")

	cycle, _ := c.Bug.Tags.FindCycle()
	for _, flavour := range c.Source.TestableFlavours {
		_ = c.Publish.Publish(ctx, "kernel.published.proposed", messagingTestRequest(c, flavour, cycle.String()), 5)
	}
}

func messagingTestRequest(c *Context, flavour, cycle string) messaging.TestRequest {
	return messaging.TestRequest{
		Key:        "kernel.published.proposed",
		Op:         "proposed",
		Pocket:     "Proposed",
		SeriesName: c.Series.Codename,
		KernelVer:  c.Pkgs.Bug.MainVersion(),
		Package:    c.Source.Name,
		Flavour:    flavour,
		SRUCycle:   cycle,
	}
}

// checkComponentOrIncomplete runs CheckComponentInPocket for pocket and,
// on a confirmed mismatch, posts a comment and marks t Incomplete,
// returning true if it did so (the caller should stop evaluating further
// transitions for this crank).
func checkComponentOrIncomplete(ctx context.Context, c *Context, pocket swmtypes.Pocket, t *bugmodel.Task) bool {
	result, err := c.Pkgs.CheckComponentInPocket(ctx, pocket)
	if err != nil || !result.Decided || result.OK {
		return false
	}
	var detail string
	for _, m := range result.Mismatches {
		detail += fmt.Sprintf("%s published to component %q, expected %q\n", m.Package, m.Got, m.Want)
	}
	_ = c.Bug.Comment("Component mismatch detected", detail)
	c.setStatus(t, swmtypes.StatusIncomplete, "Stalled -- component mismatch in "+string(pocket))
	return true
}

// handlePromoteToProposed implements promote-to-proposed.
func handlePromoteToProposed(c *Context, t *bugmodel.Task) (bool, error) {
	ctx := context.Background()

	switch t.Status {
	case swmtypes.StatusNew:
		if !allPreparePackagesDone(c) {
			t.SetReason("Pending -- packages not yet prepared")
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		if checkComponentOrIncomplete(ctx, c, swmtypes.PocketProposed, t) {
			return true, nil
		}
		if c.Pkgs.AllBuiltAndInPocket(ctx, swmtypes.PocketProposed) {
			announceProposed(c, ctx)
			return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
		}
		t.SetReason("Pending -- awaiting publication to -proposed")
		return false, nil

	default:
		return false, nil
	}
}

// handlePromoteToUpdates implements promote-to-updates: gated on every
// testing task and the security signoff reaching Fix Released, and the
// SWM "packages-released" flag not already set (the original's guard
// against re-announcing a release already recorded).
func handlePromoteToUpdates(c *Context, t *bugmodel.Task) (bool, error) {
	ctx := context.Background()

	switch t.Status {
	case swmtypes.StatusNew:
		if c.Bug.Props.PackagesReleased {
			t.SetReason("Stalled -- packages already released")
			return false, nil
		}
		for _, name := range []string{"verification-testing", "regression-testing", "certification-testing", "security-signoff"} {
			task := c.task(name)
			if task != nil && task.Status != swmtypes.StatusFixReleased && task.Status != swmtypes.StatusInvalid {
				t.SetReason("Pending -- waiting for testing to complete")
				return false, nil
			}
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		if checkComponentOrIncomplete(ctx, c, swmtypes.PocketUpdates, t) {
			return true, nil
		}
		if c.Pkgs.AllBuiltAndInPocket(ctx, swmtypes.PocketUpdates) {
			c.Bug.Props.PackagesReleased = true
			return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
		}
		t.SetReason("Pending -- awaiting publication to -updates")
		return false, nil

	default:
		return false, nil
	}
}

// handlePromoteToSecurity implements promote-to-security: gated on
// ready_for_security, the security-signoff task, and the publishing
// window exclusion.
func handlePromoteToSecurity(c *Context, t *bugmodel.Task) (bool, error) {
	ctx := context.Background()

	sec := c.task("security-signoff")
	if sec == nil || sec.Status == swmtypes.StatusInvalid {
		return c.setStatus(t, swmtypes.StatusInvalid, ""), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		ready, _ := c.Pkgs.ReadyForSecurity(ctx)
		if !ready {
			t.SetReason("Pending -- not yet ready for security")
			return false, nil
		}
		if sec.Status != swmtypes.StatusFixReleased {
			t.SetReason("Holding -- waiting for security signoff")
			return false, nil
		}
		if !withinPublishingWindow(c.now()) {
			t.SetReason("Holding -- publishing window closed")
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		if checkComponentOrIncomplete(ctx, c, swmtypes.PocketSecurity, t) {
			return true, nil
		}
		if c.Pkgs.AllBuiltAndInPocket(ctx, swmtypes.PocketSecurity) {
			return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
		}
		t.SetReason("Pending -- awaiting publication to -security")
		return false, nil

	default:
		return false, nil
	}
}

// handlePromoteToRelease implements promote-to-release: development
// series only.
func handlePromoteToRelease(c *Context, t *bugmodel.Task) (bool, error) {
	ctx := context.Background()
	if c.Series == nil || !c.Series.Development {
		return c.setStatus(t, swmtypes.StatusInvalid, ""), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		if !allPreparePackagesDone(c) {
			t.SetReason("Pending -- packages not yet prepared")
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		if c.Pkgs.AllBuiltAndInPocket(ctx, swmtypes.PocketRelease) {
			return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
		}
		t.SetReason("Pending -- awaiting publication to -release")
		return false, nil

	default:
		return false, nil
	}
}
