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

// Package swmtypes holds the small value types shared by every package-set,
// snap-set, handler, and status component, so none of them need to import
// each other just to share an enum.
package swmtypes

// State is a per-source-per-pocket build/publish state, ordered by
// severity for the combine rule in §4.3 (least severe first).
type State int

const (
	StateUnknown State = iota
	StateFullyBuilt
	StatePending
	StateFullyBuiltPending
	StateBuilding
	StateDepWait
	StateFailedToBuild
)

// severity ranks states for the combine operation; higher wins.
// Order per spec: FAILEDTOBUILD > DEPWAIT > BUILDING > FULLYBUILT_PENDING > PENDING > FULLYBUILT > UNKNOWN
var severity = map[State]int{
	StateUnknown:           0,
	StateFullyBuilt:        1,
	StatePending:           2,
	StateFullyBuiltPending: 3,
	StateBuilding:          4,
	StateDepWait:           5,
	StateFailedToBuild:     6,
}

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StatePending:
		return "PENDING"
	case StateDepWait:
		return "DEPWAIT"
	case StateBuilding:
		return "BUILDING"
	case StateFullyBuiltPending:
		return "FULLYBUILT_PENDING"
	case StateFullyBuilt:
		return "FULLYBUILT"
	case StateFailedToBuild:
		return "FAILEDTOBUILD"
	default:
		return "UNKNOWN"
	}
}

// Combine returns the most severe of a and b. It is associative and
// commutative (property 5, §8), so folding a slice of States with
// StateUnknown as the zero value is well defined regardless of order.
func Combine(a, b State) State {
	if severity[a] >= severity[b] {
		return a
	}
	return b
}

// CombineAll folds Combine across states, starting from StateUnknown.
func CombineAll(states ...State) State {
	out := StateUnknown
	for _, s := range states {
		out = Combine(out, s)
	}
	return out
}

// Built reports whether a combined state counts as "built" for
// all_built_and_in_pocket-style predicates.
func (s State) Built() bool {
	return s == StateFullyBuilt
}

// PackageType identifies one dependent package within a package set.
type PackageType string

const (
	PackageMain      PackageType = "main"
	PackageMeta      PackageType = "meta"
	PackagePortsMeta PackageType = "ports-meta"
	PackageSigned    PackageType = "signed"
	PackageLBM       PackageType = "lbm"
	PackageLRM       PackageType = "lrm"
	PackageLRG       PackageType = "lrg"
	PackageLRS       PackageType = "lrs"
)

// Feeder returns the predecessor package type in the build dependency
// chain, or "" if t has no feeder (it is a root, like main).
func (t PackageType) Feeder() PackageType {
	switch t {
	case PackageSigned, PackageMeta, PackagePortsMeta, PackageLBM, PackageLRM:
		return PackageMain
	case PackageLRG:
		return PackageLRM
	case PackageLRS:
		return PackageLRG
	default:
		return ""
	}
}

// Pocket is a logical release stage.
type Pocket string

const (
	PocketBuild        Pocket = "build"
	PocketBuildPrivate Pocket = "build-private"
	PocketSigning      Pocket = "Signing"
	PocketProposed     Pocket = "Proposed"
	PocketAsProposed   Pocket = "as-proposed"
	PocketUpdates      Pocket = "Updates"
	PocketSecurity     Pocket = "Security"
	PocketRelease      Pocket = "Release"
)

// FailureState is the failure-rollup classification from §4.3's
// feeder-propagated roll-up.
type FailureState string

const (
	FailureMissing     FailureState = "missing"
	FailureQueued      FailureState = "queued"
	FailurePending     FailureState = "pending"
	FailureBuilding    FailureState = "building"
	FailureDepWait     FailureState = "depwait"
	FailureRetryNeeded FailureState = "retry-needed"
	FailureFailWait    FailureState = "failwait"
	FailureFailed      FailureState = "failed"
)

// TaskStatus is a Launchpad-shaped task status.
type TaskStatus string

const (
	StatusNew           TaskStatus = "New"
	StatusConfirmed     TaskStatus = "Confirmed"
	StatusTriaged       TaskStatus = "Triaged"
	StatusInProgress    TaskStatus = "In Progress"
	StatusIncomplete    TaskStatus = "Incomplete"
	StatusFixCommitted  TaskStatus = "Fix Committed"
	StatusFixReleased   TaskStatus = "Fix Released"
	StatusWontFix       TaskStatus = "Won't Fix"
	StatusOpinion       TaskStatus = "Opinion"
	StatusInvalid       TaskStatus = "Invalid"
	StatusExpired       TaskStatus = "Expired"
	StatusUnknownStatus TaskStatus = "Unknown"
)

// Live reports whether a root workflow task in this status counts the
// tracker as live per §4.1's enumerate() contract.
func (s TaskStatus) Live() bool {
	switch s {
	case StatusNew, StatusConfirmed, StatusInProgress, StatusIncomplete, StatusFixCommitted:
		return true
	default:
		return false
	}
}

// Terminal reports whether s is one of the root task's terminal states.
func (s TaskStatus) Terminal() bool {
	return s == StatusFixReleased || s == StatusInvalid
}
