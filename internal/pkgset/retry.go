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

package pkgset

import (
	"context"
	"sort"
	"time"

	"github.com/canonical/swm/pkg/swmtypes"
)

// AttemptRetryLogless retries every failed build of t in pocket that has
// no log URL at all -- a clear sign the build never actually ran, per
// §4.3's retry policy. It returns true if at least one retry succeeded.
func (ps *PackageSet) AttemptRetryLogless(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) bool {
	pb, ok := ps.Get(ctx, t, pocket)
	if !ok {
		return false
	}
	retried := false
	for _, b := range pb.FailedBuilds {
		if b.BuildState == "Failed to build" && b.BuildLogURL == "" {
			if ps.retryOne(ctx, pb, b) {
				retried = true
			}
		}
	}
	return retried
}

// AttemptRetry retries every failed build of t in pocket regardless of
// log presence. Builds that cannot be retried are not annotated or
// recorded anywhere; they only count as retried when already queued or
// building again.
func (ps *PackageSet) AttemptRetry(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) bool {
	pb, ok := ps.Get(ctx, t, pocket)
	if !ok {
		return false
	}
	retried := false
	for i := range pb.FailedBuilds {
		if ps.retryOne(ctx, pb, pb.FailedBuilds[i]) {
			retried = true
		}
	}
	return retried
}

func (ps *PackageSet) retryOne(ctx context.Context, pb *PackageBuild, b Build) bool {
	if !b.CanBeRetried {
		switch b.BuildState {
		case "Needs building", "Currently building", "Uploading build":
			return true
		}
		return false
	}
	return ps.Client.Retry(ctx, b) == nil
}

// FailureSummary maps a failure classification to the package types that
// fall into it, per §4.3's failure roll-up.
type FailureSummary map[swmtypes.FailureState][]swmtypes.PackageType

// feederCompleted returns the latest of a feeder package's publish/build
// timestamp in pocket, used to judge whether a retry just landed.
func (ps *PackageSet) feederCompleted(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) (time.Time, bool) {
	pb, ok := ps.Get(ctx, t, pocket)
	if !ok {
		return time.Time{}, false
	}
	if pb.Published.IsZero() {
		if pb.MostRecent.IsZero() {
			return time.Time{}, false
		}
		return pb.MostRecent, true
	}
	if pb.MostRecent.After(pb.Published) {
		return pb.MostRecent, true
	}
	return pb.Published, true
}

// DeltaFailuresInPocket is §4.3's failure roll-up with feeder
// propagation: classify every package in delta by its build state in
// pocket, walking the feeder chain for anything depwait/failed so a
// transient upstream rebuild doesn't get reported as a hard failure.
func (ps *PackageSet) DeltaFailuresInPocket(ctx context.Context, delta []swmtypes.PackageType, pocket swmtypes.Pocket, ignoreAllMissing bool) FailureSummary {
	failures := FailureSummary{}
	missing, total := 0, 0

	for _, t := range delta {
		total++
		pb, ok := ps.Get(ctx, t, pocket)
		status := swmtypes.StateUnknown
		found := false
		if ok {
			status = pb.Status
			found = pb.Found
		}

		switch {
		case !found:
			failures[swmtypes.FailureMissing] = append(failures[swmtypes.FailureMissing], t)
			missing++
		case status == swmtypes.StateBuilding:
			failures[swmtypes.FailureBuilding] = append(failures[swmtypes.FailureBuilding], t)
		case status == swmtypes.StatePending:
			failures[swmtypes.FailurePending] = append(failures[swmtypes.FailurePending], t)
		case status == swmtypes.StateFullyBuiltPending:
			failures[swmtypes.FailureQueued] = append(failures[swmtypes.FailureQueued], t)
		case status == swmtypes.StateDepWait || status == swmtypes.StateFailedToBuild:
			ps.classifyFailure(ctx, t, pocket, status, failures)
		}
	}

	if ignoreAllMissing && total > 0 && total == missing {
		return nil
	}
	return failures
}

func (ps *PackageSet) classifyFailure(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket, status swmtypes.State, failures FailureSummary) {
	real, wait := swmtypes.FailureFailed, swmtypes.FailureFailWait
	if status == swmtypes.StateDepWait {
		real, wait = swmtypes.FailureDepWait, swmtypes.FailureDepWait
	}

	if status == swmtypes.StateFailedToBuild && ps.AttemptRetryLogless(ctx, t, pocket) {
		failures[swmtypes.FailureBuilding] = append(failures[swmtypes.FailureBuilding], t)
		return
	}

	previousFeeder := t
	activeFeeder := t.Feeder()
	var activeState swmtypes.State
	for activeFeeder != "" {
		pb, ok := ps.Get(ctx, activeFeeder, pocket)
		if !ok {
			activeState = swmtypes.StateUnknown
		} else {
			activeState = pb.Status
		}
		if activeState != swmtypes.StateDepWait && activeState != swmtypes.StateFailedToBuild {
			break
		}
		previousFeeder = activeFeeder
		activeFeeder = activeFeeder.Feeder()
	}

	if activeFeeder == "" {
		failures[real] = append(failures[real], t)
		return
	}
	if activeState != swmtypes.StateFullyBuilt {
		failures[wait] = append(failures[wait], t)
		return
	}

	previousCompleted, okPrev := ps.feederCompleted(ctx, previousFeeder, pocket)
	activeCompleted, okActive := ps.feederCompleted(ctx, activeFeeder, pocket)
	threshold := previousCompleted.Add(-2 * time.Hour)
	retryable := okPrev && okActive && (threshold.Before(activeCompleted) || threshold.Equal(activeCompleted))

	if retryable && previousFeeder == t {
		if ps.AttemptRetry(ctx, t, pocket) {
			failures[swmtypes.FailureBuilding] = append(failures[swmtypes.FailureBuilding], t)
		} else {
			failures[swmtypes.FailureRetryNeeded] = append(failures[swmtypes.FailureRetryNeeded], t)
		}
		return
	}
	if retryable {
		failures[wait] = append(failures[wait], t)
		return
	}
	failures[real] = append(failures[real], t)
}

// FailuresToText renders a FailureSummary as a compact operator-facing
// string, e.g. "main:F meta:D signed:R", ordered by each package's
// feederKey string (its feeder path, compared lexically), matching the
// original's failures_to_text.
func (f FailureSummary) FailuresToText() string {
	code := map[swmtypes.FailureState]string{
		swmtypes.FailureMissing:     "M",
		swmtypes.FailureQueued:      "Q",
		swmtypes.FailurePending:     "P",
		swmtypes.FailureBuilding:    "B",
		swmtypes.FailureDepWait:     "D",
		swmtypes.FailureRetryNeeded: "R",
		swmtypes.FailureFailWait:    "D*",
		swmtypes.FailureFailed:      "F",
	}

	typeState := map[swmtypes.PackageType]string{}
	for state, members := range f {
		for _, m := range members {
			typeState[m] = code[state]
		}
	}

	var members []swmtypes.PackageType
	for m := range typeState {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		return feederKey(members[i]) < feederKey(members[j])
	})

	out := ""
	for i, m := range members {
		if i > 0 {
			out += " "
		}
		out += string(m) + ":" + typeState[m]
	}
	return out
}

// feederKey renders a package's feeder chain as a sortable path string,
// e.g. "main" < "main/lrm/lrg" < "main/signed".
func feederKey(t swmtypes.PackageType) string {
	key := string(t)
	for f := t.Feeder(); f != ""; f = f.Feeder() {
		key = string(f) + "/" + key
	}
	return key
}
