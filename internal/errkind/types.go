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

// Package errkind defines the typed error kinds the engine reasons about,
// per the error handling design: each kind carries its own propagation
// policy, decided by the caller via errors.As, not by string matching.
package errkind

import "fmt"

// InvalidTrackerError is returned when the tracker API reports an id
// unknown. The crank for that id is aborted and it is dropped from the
// live set on the next scan.
type InvalidTrackerError struct {
	TrackerID int
	Cause     error
}

func (e *InvalidTrackerError) Error() string {
	return fmt.Sprintf("tracker %d: invalid or unknown", e.TrackerID)
}

func (e *InvalidTrackerError) Unwrap() error { return e.Cause }

// TitleUnparseableError is returned when a tracker's title does not match
// the expected source/version grammar.
type TitleUnparseableError struct {
	Title string
}

func (e *TitleUnparseableError) Error() string {
	return fmt.Sprintf("title unparseable: %q", e.Title)
}

// SeriesUnknownError is returned when no tag matches a known series
// codename, or the matched codename is not present in the source catalog.
type SeriesUnknownError struct {
	Series string
}

func (e *SeriesUnknownError) Error() string {
	return fmt.Sprintf("series unknown: %q", e.Series)
}

// SourceUnknownError is returned when the source package named by a
// tracker's title is not declared for its series in the catalog.
type SourceUnknownError struct {
	Series string
	Source string
}

func (e *SourceUnknownError) Error() string {
	return fmt.Sprintf("source %q unknown for series %q", e.Source, e.Series)
}

// RoutingError is returned for a missing or structurally invalid routing
// entry. The affected pocket is treated as empty by the caller.
type RoutingError struct {
	Pocket string
	Reason string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing for pocket %q: %s", e.Pocket, e.Reason)
}

// CrankError is raised by a task handler when one of its preconditions is
// violated. The outer loop catches it, stamps the task's reason, and
// continues with the next task.
type CrankError struct {
	Task    string
	Message string
}

func (e *CrankError) Error() string {
	return fmt.Sprintf("crank error in %s: %s", e.Task, e.Message)
}

// WorkflowCrankError is CrankError's counterpart for failures that
// originate in the workflow manager itself rather than a single handler
// (e.g. an unresolvable task dependency).
type WorkflowCrankError struct {
	Message string
}

func (e *WorkflowCrankError) Error() string {
	return fmt.Sprintf("workflow crank error: %s", e.Message)
}

// PackageError is returned when a package set cannot be constructed at
// all — e.g. the package/series combination is unknown in the catalog.
// It aborts the current crank pass for that tracker; the next crank
// retries from scratch.
type PackageError struct {
	Source string
	Series string
	Reason string
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("package set for %s/%s: %s", e.Series, e.Source, e.Reason)
}

// SnapStoreError is returned when a channel-map query fails. Callers treat
// this as "not published"; the affected snap-release task stays Confirmed.
type SnapStoreError struct {
	Snap  string
	Cause error
}

func (e *SnapStoreError) Error() string {
	return fmt.Sprintf("snap store query for %q failed", e.Snap)
}

func (e *SnapStoreError) Unwrap() error { return e.Cause }

// GitTagError is returned when the git-tag HTTPS lookup fails outright
// (as opposed to the tag simply not being present, which is a normal
// negative result, not an error).
type GitTagError struct {
	URL   string
	Cause error
}

func (e *GitTagError) Error() string {
	return fmt.Sprintf("git tag lookup %q failed", e.URL)
}

func (e *GitTagError) Unwrap() error { return e.Cause }

// BugMailConfigMissingError is returned when an announcement is requested
// but email.yaml is missing. Callers print this once and continue without
// announcements.
type BugMailConfigMissingError struct {
	Path string
}

func (e *BugMailConfigMissingError) Error() string {
	return fmt.Sprintf("mail config missing: %s", e.Path)
}
