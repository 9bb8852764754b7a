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

// Package bugmodel implements C2: the tracker model. It owns title/tag
// parsing, SWM-properties description persistence, per-task mutation, and
// duplicate resolution (§3, §4.2).
package bugmodel

import (
	"fmt"
	"sort"

	"github.com/canonical/swm/internal/errkind"
	"github.com/canonical/swm/internal/version"
	"github.com/canonical/swm/pkg/swmtypes"
)

// Mutator is the subset of tracker-API write operations C2 drives. It is
// satisfied by internal/tracker's client; bugmodel never imports that
// package, avoiding the import cycle the predecessor's constructor-time
// parent lookup risked (§9).
type Mutator interface {
	SetTitle(id int, title string) error
	SetDescription(id int, description string) error
	SetTags(id int, tags []string) error
	AddComment(id int, subject, body string) error
	SetTaskStatus(id int, taskName string, status, importance, assignee string) error
}

// Lookup resolves another tracker by id, used only for the lazy
// master-bug reference (§9: "look up the parent lazily when a handler
// first needs it").
type Lookup interface {
	Lookup(id int) (*Bug, error)
}

// RawTask is the tracker-API shape of one bug task, as loaded.
type RawTask struct {
	Name       string
	Status     swmtypes.TaskStatus
	Importance string
	Assignee   string
}

// RawBug is the tracker-API shape of one bug, as loaded, before bugmodel
// parses it into a Bug.
type RawBug struct {
	ID          int
	Title       string
	Description string
	Tags        []string
	Tasks       []RawTask
	DuplicateOf int // 0 means "not a duplicate"
}

// Bug is one tracking bug: the engine's in-memory model of a tracker
// between load and save.
type Bug struct {
	ID int

	RawTitle string
	Parsed   *version.Title // nil if unparseable
	Tags     TagSet

	preamble string
	Props    *Properties
	original *Properties // snapshot at load, for the conditional-write rule

	Tasks     map[string]*Task
	taskOrder []string

	RootTaskName string
	DuplicateOf  int

	mutator Mutator
	lookup  Lookup

	masterLoaded bool
	master       *Bug
	masterErr    error

	titleDirty bool
	tagsDirty  bool

	duplicates        []int
	dupReplacesCalled bool

	dryrun bool
}

// Load builds a Bug from raw tracker data. It does not contact the
// tracker again; all fields are derived from raw.
func Load(raw RawBug, mutator Mutator, lookup Lookup, rootTaskName string, dryrun bool) (*Bug, error) {
	desc, err := parseDescription(raw.Description)
	if err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}

	b := &Bug{
		ID:           raw.ID,
		RawTitle:     raw.Title,
		Tags:         NewTagSet(raw.Tags),
		preamble:     desc.Preamble,
		Props:        desc.Properties,
		original:     desc.Properties.Clone(),
		Tasks:        map[string]*Task{},
		RootTaskName: rootTaskName,
		DuplicateOf:  raw.DuplicateOf,
		mutator:      mutator,
		lookup:       lookup,
		dryrun:       dryrun,
	}

	for _, rt := range raw.Tasks {
		b.Tasks[rt.Name] = &Task{Name: rt.Name, Status: rt.Status, Importance: rt.Importance, Assignee: rt.Assignee}
		b.taskOrder = append(b.taskOrder, rt.Name)
	}
	sort.Strings(b.taskOrder)

	if t, err := version.Parse(raw.Title); err == nil {
		b.Parsed = t
	}

	return b, nil
}

// IsDuplicate reports whether this tracker is a duplicate of another.
func (b *Bug) IsDuplicate() bool { return b.DuplicateOf != 0 }

// HasPackage reports whether the title parsed to a recognizable package
// name, mirroring the original's bug.has_package guard ahead of every
// handler's evaluate_status.
func (b *Bug) HasPackage() bool { return b.Parsed != nil }

// IsValid reports whether a version has been determined for this tracker
// (bug.is_valid in the original): the title parsed AND a kernel version
// has been recorded in SWM properties.
func (b *Bug) IsValid() bool {
	return b.Parsed != nil && b.Props.Versions != nil && b.Props.Versions["main"] != ""
}

// RootTask returns the distinguished root workflow task.
func (b *Bug) RootTask() *Task { return b.Tasks[b.RootTaskName] }

// SortedTaskNames returns every non-root task name in lexicographic
// order, the crank loop's mandated iteration order (§5).
func (b *Bug) SortedTaskNames() []string {
	out := make([]string, 0, len(b.taskOrder))
	for _, name := range b.taskOrder {
		if name == b.RootTaskName {
			continue
		}
		out = append(out, name)
	}
	return out
}

// TargetSeries derives the series codename from tags, per §4.2: locate
// the first tag matching a known series codename from candidates.
func (b *Bug) TargetSeries(knownSeries []string) (string, error) {
	series, ok := b.Tags.FindSeries(knownSeries)
	if !ok {
		return "", &errkind.SeriesUnknownError{Series: ""}
	}
	return series, nil
}

// MasterBugID returns the authoritative master-bug id: the SWM property
// if set (authoritative per §4.2), else the derivative/backport tag,
// reconciling a mismatch by rewriting the tag to match the property.
func (b *Bug) MasterBugID() (id string, isBackport bool, ok bool) {
	tagID, tagBackport, tagFound := b.Tags.FindMaster()
	if b.Props.MasterBug != "" {
		if tagFound && tagID != b.Props.MasterBug {
			// Property is authoritative; rewrite the stale tag.
			if tagBackport {
				b.Tags.Remove(fmt.Sprintf("kernel-sru-backport-of-%s", tagID))
			} else {
				b.Tags.Remove(fmt.Sprintf("kernel-sru-derivative-of-%s", tagID))
			}
			b.Tags.Add(fmt.Sprintf("kernel-sru-derivative-of-%s", b.Props.MasterBug))
			b.tagsDirty = true
		}
		return b.Props.MasterBug, tagBackport, true
	}
	if tagFound {
		return tagID, tagBackport, true
	}
	return "", false, false
}

// IsDerivativePackage reports whether this tracker has a master.
func (b *Bug) IsDerivativePackage() bool {
	_, _, ok := b.MasterBugID()
	return ok
}

// MasterBug lazily resolves and caches the master tracker, per §9: never
// constructed eagerly in Load, to avoid recursive construction and
// double-locking across two trackers.
func (b *Bug) MasterBug() (*Bug, error) {
	if b.masterLoaded {
		return b.master, b.masterErr
	}
	b.masterLoaded = true

	idStr, _, ok := b.MasterBugID()
	if !ok {
		b.masterErr = fmt.Errorf("bug %d is not a derivative/backport", b.ID)
		return nil, b.masterErr
	}
	id := atoi(idStr)
	if b.lookup == nil {
		b.masterErr = fmt.Errorf("no lookup configured to resolve master bug %d", id)
		return nil, b.masterErr
	}
	b.master, b.masterErr = b.lookup.Lookup(id)
	return b.master, b.masterErr
}

// ReasonResetAll clears every task's reason at the start of a crank
// (§4.2, §4.5's pseudocode).
func (b *Bug) ReasonResetAll() {
	for _, t := range b.Tasks {
		t.ResetReason()
	}
}

// Dirty reports whether anything about the bug changed since Load: any
// task, the tag set, the title, or the properties (via description
// serialization equality, checked lazily in Save).
func (b *Bug) Dirty() bool {
	if b.titleDirty || b.tagsDirty {
		return true
	}
	for _, t := range b.Tasks {
		if t.Dirty() {
			return true
		}
	}
	return false
}

// SetTitleFromVersion rewrites the tracker's title once the version
// becomes known (§6: "bug title rewrite when the version becomes known").
func (b *Bug) SetTitleFromVersion(source string) {
	if b.Parsed == nil || b.Props.Versions == nil {
		return
	}
	v, ok := b.Props.Versions["main"]
	if !ok || v == "" {
		return
	}
	newTitle := version.Compose(&version.Title{Source: source, Version: v})
	if newTitle == b.RawTitle {
		return
	}
	b.RawTitle = newTitle
	b.titleDirty = true
}

// Save persists tags, title, and description if anything changed, and
// removes LiveTag once the root task has reached Fix Released (§4.5).
// It performs no I/O in dry-run mode.
func (b *Bug) Save() error {
	if root := b.RootTask(); root != nil && root.Status == swmtypes.StatusFixReleased {
		if b.Tags.Remove(LiveTag) {
			b.tagsDirty = true
		}
	}

	newDesc, err := serializeDescription(b.preamble, b.Props)
	if err != nil {
		return fmt.Errorf("serialize description: %w", err)
	}
	oldDesc, err := serializeDescription(b.preamble, b.original)
	if err != nil {
		return fmt.Errorf("serialize original description: %w", err)
	}
	descDirty := newDesc != oldDesc

	if b.dryrun {
		return nil
	}

	if b.tagsDirty {
		if err := b.mutator.SetTags(b.ID, b.Tags.Slice()); err != nil {
			return fmt.Errorf("set tags: %w", err)
		}
	}
	if b.titleDirty {
		if err := b.mutator.SetTitle(b.ID, b.RawTitle); err != nil {
			return fmt.Errorf("set title: %w", err)
		}
	}
	if descDirty {
		if err := b.mutator.SetDescription(b.ID, newDesc); err != nil {
			return fmt.Errorf("set description: %w", err)
		}
		b.original = b.Props.Clone()
	}

	for _, name := range b.taskOrder {
		t := b.Tasks[name]
		if !t.Dirty() {
			continue
		}
		if err := b.mutator.SetTaskStatus(b.ID, name, string(t.Status), t.Importance, t.Assignee); err != nil {
			return fmt.Errorf("set task status for %s: %w", name, err)
		}
	}

	for _, t := range b.Tasks {
		t.ClearDirty()
	}
	b.titleDirty = false
	b.tagsDirty = false

	return nil
}

// Comment posts an operator-visible comment, skipped in dry-run.
func (b *Bug) Comment(subject, body string) error {
	if b.dryrun {
		return nil
	}
	return b.mutator.AddComment(b.ID, subject, body)
}
