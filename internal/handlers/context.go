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

// Package handlers implements C4: one data-oriented function per pipeline
// stage. Per spec.md §9's explicit redesign note, there is no class
// hierarchy here -- each handler reads (task status, tracker state,
// package-set state, master state, wall clock) and returns a new status
// plus side effects (reason, phase, tags, a comment, a test-request
// message). Nothing raises to signal "no change"; only genuine
// precondition violations raise errkind.CrankError, caught by the engine.
package handlers

import (
	"context"
	"time"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/internal/gittag"
	"github.com/canonical/swm/internal/messaging"
	"github.com/canonical/swm/internal/pkgset"
	"github.com/canonical/swm/internal/snapset"
	"github.com/canonical/swm/pkg/swmtypes"
)

// Clock abstracts wall-clock access so handlers (notably the publishing
// window gate and mirror-delay checks) are deterministically testable.
type Clock interface {
	Now() time.Time
}

// systemClock is the production Clock.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the default Clock used outside tests.
var SystemClock Clock = systemClock{}

// Lookup resolves another tracker's evaluation Context by id, used for
// master-bug gating. The engine supplies an implementation backed by its
// tracker cache; handlers never construct a Context for another tracker
// themselves (§9: avoid recursive construction across trackers).
type Lookup interface {
	LookupContext(id int) (*Context, error)
}

// Context bundles everything one handler invocation needs: the tracker
// model, its package set (and optional snap set), the source catalog
// entry, messaging, and flags. One Context is built per tracker per crank
// and reused across every task handler invocation in that crank.
type Context struct {
	Bug     *bugmodel.Bug
	Series  *catalog.Series
	Source  *catalog.Source
	Pkgs    *pkgset.PackageSet
	Snaps   *snapset.SnapSet
	Tag     gittag.Checker
	Publish messaging.Publisher
	Lookup  Lookup
	Clock   Clock

	DryRun           bool
	NoAnnouncements  bool
	NoAssignments    bool
	NoTimestamps     bool
	NoStatusChanges  bool
	NoPhaseChanges   bool

	// announced tracks which first-time announcements have already fired
	// this crank, so a fixed-point re-evaluation of the same task within
	// one pass never double-sends (§4.4: "first time" is a once-per-crank
	// edge, not a once-per-status-value edge).
	announced map[string]bool
}

// NewContext builds a Context for one tracker's crank.
func NewContext(bug *bugmodel.Bug, series *catalog.Series, source *catalog.Source, pkgs *pkgset.PackageSet, snaps *snapset.SnapSet, tag gittag.Checker, publish messaging.Publisher, lookup Lookup) *Context {
	return &Context{
		Bug:       bug,
		Series:    series,
		Source:    source,
		Pkgs:      pkgs,
		Snaps:     snaps,
		Tag:       tag,
		Publish:   publish,
		Lookup:    lookup,
		Clock:     SystemClock,
		announced: map[string]bool{},
	}
}

func (c *Context) now() time.Time { return c.Clock.Now() }

// task looks up a task by name, returning nil if absent (an unknown
// workflow task is handled by the registry dispatch, not here).
func (c *Context) task(name string) *bugmodel.Task {
	return c.Bug.Tasks[name]
}

// setStatus applies a status transition honoring --no-status-changes, and
// records the reason regardless (reasons are informational even in
// dry-preview mode).
func (c *Context) setStatus(t *bugmodel.Task, status swmtypes.TaskStatus, reason string) bool {
	t.SetReason(reason)
	if c.NoStatusChanges {
		return false
	}
	before := t.Status
	t.SetStatus(status)
	return before != status
}

// setPhase applies a phase change honoring --no-phase-changes.
func (c *Context) setPhase(phase string) {
	if c.NoPhaseChanges {
		return
	}
	c.Bug.SetPhase(phase, c.timestamp())
}

func (c *Context) timestamp() string {
	if c.NoTimestamps {
		return ""
	}
	return c.now().UTC().Format(time.RFC3339)
}

// bugVersions adapts *bugmodel.Bug (plus the series and a duplicate-lookup
// callback) to pkgset.VersionsOf. It lives here, not in bugmodel, because
// bugmodel.Bug.Duplicates() already returns []int for its own callers and
// cannot also satisfy pkgset.VersionsOf's []DuplicatePackageSet shape --
// exactly the kind of two-API collision spec.md §9 flags for
// kernel_versions.py, resolved the same way: one adapter type, not a
// shared method redefinition.
type bugVersions struct {
	bug        *bugmodel.Bug
	series     *catalog.Series
	duplicates func(id int) (*pkgset.PackageSet, bool)
}

// NewVersionsOf builds the pkgset.VersionsOf adapter for bug.
func NewVersionsOf(bug *bugmodel.Bug, series *catalog.Series, duplicates func(id int) (*pkgset.PackageSet, bool)) pkgset.VersionsOf {
	return &bugVersions{bug: bug, series: series, duplicates: duplicates}
}

func (v *bugVersions) Version(pkgType string) (string, bool) {
	if v.bug.Props.Versions == nil {
		return "", false
	}
	s, ok := v.bug.Props.Versions[pkgType]
	return s, ok
}

func (v *bugVersions) MainVersion() string {
	if v.bug.Props.Versions == nil {
		return ""
	}
	return v.bug.Props.Versions["main"]
}

func (v *bugVersions) MainKernel() string {
	if v.bug.Parsed == nil {
		return ""
	}
	return v.bug.Parsed.Kernel
}

func (v *bugVersions) MainABI() string {
	if v.bug.Parsed == nil {
		return ""
	}
	return v.bug.Parsed.ABI
}

func (v *bugVersions) TaskStatus(taskName string) (swmtypes.TaskStatus, bool) {
	t, ok := v.bug.Tasks[taskName]
	if !ok {
		return "", false
	}
	return t.Status, true
}

func (v *bugVersions) Development() bool {
	return v.series != nil && v.series.Development
}

func (v *bugVersions) Duplicates() []pkgset.DuplicatePackageSet {
	var out []pkgset.DuplicatePackageSet
	for _, id := range v.bug.Duplicates() {
		ps, ok := v.duplicates(id)
		if !ok {
			continue
		}
		out = append(out, pkgset.DuplicatePackageSet{
			ID: id,
			AllBuiltAndInPocket: func(pocket swmtypes.Pocket) bool {
				return ps.AllBuiltAndInPocket(context.Background(), pocket)
			},
		})
	}
	return out
}
