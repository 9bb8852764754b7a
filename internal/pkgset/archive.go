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

// Package pkgset implements C3: the package-set build-status aggregator.
// It unifies publication, build, and upload-queue data spanning every
// archive/pocket a source routes through into one PackageBuild per
// (dependent package, logical pocket), then exposes the pocket-level
// predicates the task handlers (C4) drive off of.
package pkgset

import (
	"context"
	"time"
)

// SourceQuery selects published sources the way Launchpad's
// getPublishedSources(exact_match=True, order_by_date=True) does.
type SourceQuery struct {
	Archive    string
	Series     string
	SourceName string
	Pocket     string
}

// UploadQuery selects queued package uploads for one source publication.
type UploadQuery struct {
	Archive    string
	Series     string
	SourceName string
	Version    string
	Pocket     string
}

// PublishedSource is one archive publication of a source package.
type PublishedSource struct {
	Self            string // opaque handle, passed back into Builds/PublishedBinaries
	Status          string // "Pending", "Published", "Superseded", "Deleted", "Obsolete"
	Version         string
	DatePublished   time.Time
	Creator         string
	Signer          string
	ChangesFileURL  string
	ComponentName   string
}

// Build is one per-architecture build record for a published source.
type Build struct {
	Self              string
	SourcePackageName string
	ArchTag           string
	BuildState        string // "Needs building", "Currently building", "Uploading build",
	                          // "Dependency wait", "Successfully built", or a failure state
	DateBuilt         time.Time
	WebLink           string
	BuildLogURL       string // empty means "logless failure"
	CanBeRetried      bool
}

// Binary is one published binary package deriving from a source build.
type Binary struct {
	Self                 string
	ArchitectureSpecific bool
	DistroArchSeriesLink string // last path segment is the arch tag
	Status               string // "Pending", "Published", else broken
	DatePublished        time.Time
	BuildLink            string
}

// Upload is one queued package-upload record.
type Upload struct {
	Self   string
	Status string // "New", "Unapproved", "Done", "Rejected", ...
}

// ArchiveClient is the subset of the Launchpad-shaped archive API C3
// needs. internal/tracker provides the production implementation; tests
// supply a fixture-backed fake.
type ArchiveClient interface {
	PublishedSources(ctx context.Context, q SourceQuery) ([]PublishedSource, error)
	Builds(ctx context.Context, source PublishedSource) ([]Build, error)
	PublishedBinaries(ctx context.Context, source PublishedSource) ([]Binary, error)
	PackageUploads(ctx context.Context, q UploadQuery) ([]Upload, error)
	Retry(ctx context.Context, build Build) error
}
