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
	"strings"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/snapset"
	"github.com/canonical/swm/pkg/swmtypes"
)

// riskForTask recovers the requested risk level from a
// snap-release-to-<risk> task name.
func riskForTask(name string) snapset.Risk {
	return snapset.Risk(strings.TrimPrefix(name, "snap-release-to-"))
}

// riskPrerequisite names the risk level that must already carry this
// tracker's version before promotion to risk may proceed, mirroring the
// snap store's edge -> beta -> candidate -> stable promotion order.
func riskPrerequisite(risk snapset.Risk) (snapset.Risk, bool) {
	switch risk {
	case snapset.RiskBeta:
		return snapset.RiskEdge, true
	case snapset.RiskCandidate:
		return snapset.RiskBeta, true
	case snapset.RiskStable:
		return snapset.RiskCandidate, true
	default:
		return "", false
	}
}

// handleSnapRelease implements snap-release-to-{edge,beta,candidate,stable}
// (§4.4, §4.6): gated on the prerequisite risk already carrying this
// tracker's version across every declared snap, and on every
// prepare-package task having completed.
func handleSnapRelease(c *Context, t *bugmodel.Task) (bool, error) {
	if c.Snaps == nil || c.Source == nil || len(c.Source.Snaps) == 0 {
		return c.setStatus(t, swmtypes.StatusInvalid, ""), nil
	}
	ctx := context.Background()
	risk := riskForTask(t.Name)
	version := c.Pkgs.Bug.MainVersion()

	switch t.Status {
	case swmtypes.StatusNew:
		if !allPreparePackagesDone(c) {
			t.SetReason("Pending -- packages not yet prepared")
			return false, nil
		}
		if prereq, ok := riskPrerequisite(risk); ok {
			for snapName := range c.Source.Snaps {
				inTracks, err := c.Snaps.IsInTracks(ctx, snapName, version, prereq)
				if err != nil {
					t.SetReason("Stalled -- snap store query failed")
					return false, nil
				}
				if !inTracks {
					t.SetReason("Pending -- not yet published to " + string(prereq))
					return false, nil
				}
			}
		}
		return c.setStatus(t, swmtypes.StatusConfirmed, "Pending -- Ready"), nil

	case swmtypes.StatusConfirmed:
		allPublished := true
		for snapName := range c.Source.Snaps {
			inTracks, err := c.Snaps.IsInTracks(ctx, snapName, version, risk)
			if err != nil {
				t.SetReason("Stalled -- snap store query failed")
				return false, nil
			}
			if !inTracks {
				allPublished = false
				continue
			}
			divergent, err := c.Snaps.ChannelRevisionsConsistent(ctx, snapName, risk)
			if err == nil && len(divergent) > 0 {
				return c.setStatus(t, swmtypes.StatusIncomplete, "Stalled -- channel revisions inconsistent for "+snapName), nil
			}
		}
		if allPublished {
			return c.setStatus(t, swmtypes.StatusFixReleased, ""), nil
		}
		t.SetReason("Pending -- awaiting publication to " + string(risk))
		return false, nil

	default:
		return false, nil
	}
}
