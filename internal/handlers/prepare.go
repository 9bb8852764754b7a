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
	"strings"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/pkg/swmtypes"
)

// packageTypeForTask recovers the dependent package type a
// prepare-package[-*] task name governs.
func packageTypeForTask(name string) swmtypes.PackageType {
	if name == "prepare-package" {
		return swmtypes.PackageMain
	}
	return swmtypes.PackageType(strings.TrimPrefix(name, "prepare-package-"))
}

// blockingTag reports whether tags carry an operator-applied block,
// pulling any in-progress prepare-package task back to New (§4.4).
func blockingTag(tags bugmodel.TagSet) (string, bool) {
	if tags.Has("kernel-block") {
		return "kernel-block", true
	}
	if tags.Has("kernel-block-source") {
		return "kernel-block-source", true
	}
	for t := range tags {
		if strings.HasPrefix(t, "kernel-trello-blocked-") {
			return t, true
		}
	}
	return "", false
}

// masterMilestoneReached reports whether the master tracker (if this
// tracker is a derivative/backport) has reached the milestone
// prepare-package requires before this tracker may proceed: Fix Released
// when the master is itself a leader (no further master above it),
// Fix Committed or Fix Released otherwise, or promote-to-proposed ==
// Fix Released when the source declares need-master-in-proposed.
func masterMilestoneReached(c *Context) (bool, string) {
	if !c.Bug.IsDerivativePackage() {
		return true, ""
	}
	idStr, _, _ := c.Bug.MasterBugID()
	masterID := 0
	fmt.Sscanf(idStr, "%d", &masterID)
	if c.Lookup == nil {
		return false, "Holding -- waiting for master bug"
	}
	master, err := c.Lookup.LookupContext(masterID)
	if err != nil || master == nil {
		return false, "Holding -- waiting for master bug"
	}

	if c.Source != nil && c.Source.NeedMasterInProposed {
		if pt := master.task("promote-to-proposed"); pt != nil && pt.Status == swmtypes.StatusFixReleased {
			return true, ""
		}
		return false, "Holding -- waiting for master bug in proposed"
	}

	root := master.Bug.RootTask()
	if root == nil {
		return false, "Holding -- waiting for master bug"
	}
	if master.Bug.IsDerivativePackage() {
		if root.Status == swmtypes.StatusFixCommitted || root.Status == swmtypes.StatusFixReleased {
			return true, ""
		}
		return false, "Holding -- waiting for master bug"
	}
	if root.Status == swmtypes.StatusFixReleased {
		return true, ""
	}
	return false, "Holding -- waiting for master bug"
}

// handlePreparePackage implements prepare-package[-*], the most intricate
// handler (§4.4).
func handlePreparePackage(c *Context, t *bugmodel.Task) (bool, error) {
	ctx := context.Background()
	pkgType := packageTypeForTask(t.Name)

	pkgName, declared := c.Source.Package(pkgType)
	if !declared {
		if t.Status == swmtypes.StatusInvalid {
			return false, nil
		}
		return c.setStatus(t, swmtypes.StatusInvalid, "Invalid -- package type not declared for this source"), nil
	}

	if tag, blocked := blockingTag(c.Bug.Tags); blocked && t.Status != swmtypes.StatusNew &&
		t.Status != swmtypes.StatusFixReleased && t.Status != swmtypes.StatusInvalid {
		return c.setStatus(t, swmtypes.StatusNew, "Stalled -- manual "+tag+" present"), nil
	}

	switch t.Status {
	case swmtypes.StatusNew:
		if reached, reason := masterMilestoneReached(c); !reached {
			t.SetReason(reason)
			return false, nil
		}
		if pkgType != swmtypes.PackageMain {
			if _, ok := c.Pkgs.Bug.Version(string(swmtypes.PackageMain)); !ok && c.Bug.Parsed == nil {
				t.SetReason("Holding -- version not yet known")
				return false, nil
			}
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		if _, ok := c.Pkgs.Bug.Version(string(pkgType)); ok {
			return c.setStatus(t, swmtypes.StatusInProgress, "Ongoing -- status In Progress"), nil
		}
		if pkgType == swmtypes.PackageMain && c.Bug.Parsed != nil {
			return c.setStatus(t, swmtypes.StatusInProgress, "Ongoing -- status In Progress"), nil
		}
		t.SetReason("Pending -- version not specified")
		return false, nil

	case swmtypes.StatusInProgress:
		ver, _ := c.Pkgs.Get(ctx, pkgType, swmtypes.Pocket("ppa"))
		tagExists := false
		if c.Source.Repo != nil && c.Tag != nil {
			version, _ := c.Pkgs.Bug.Version(string(pkgType))
			ok, _ := c.Tag.Exists(ctx, c.Source.Repo.URL, version)
			tagExists = ok
		} else {
			tagExists = true
		}
		hasPPA := len(c.Source.RoutingFor(swmtypes.PocketBuild)) > 0 || len(c.Source.RoutingFor(swmtypes.PocketBuildPrivate)) > 0
		uploaded := !hasPPA
		if ver != nil {
			switch ver.Status {
			case swmtypes.StateBuilding, swmtypes.StateFullyBuilt, swmtypes.StateFullyBuiltPending, swmtypes.StateFailedToBuild:
				uploaded = true
			}
		}
		if tagExists && uploaded {
			c.Bug.Props.EnsureVersions()
			return c.setStatus(t, swmtypes.StatusFixCommitted, "Ongoing -- status Fix Committed"), nil
		}
		t.SetReason(fmt.Sprintf("Stalled -- tag not published and package not uploaded for %s", pkgName))
		return false, nil

	case swmtypes.StatusFixCommitted:
		built := c.Pkgs.BuiltAndInPocketOrAfter(ctx, pkgType, swmtypes.Pocket("ppa"))
		if built {
			return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
		}
		t.SetReason(fmt.Sprintf("Ongoing -- %s package not yet fully built", pkgType))
		return false, nil

	default:
		return false, nil
	}
}
