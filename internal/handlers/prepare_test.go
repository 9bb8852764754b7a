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
	"testing"
	"time"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/internal/messaging"
	"github.com/canonical/swm/internal/pkgset"
	"github.com/canonical/swm/pkg/swmtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type emptyArchive struct{}

func (emptyArchive) PublishedSources(context.Context, pkgset.SourceQuery) ([]pkgset.PublishedSource, error) {
	return nil, nil
}
func (emptyArchive) Builds(context.Context, pkgset.PublishedSource) ([]pkgset.Build, error) {
	return nil, nil
}
func (emptyArchive) PublishedBinaries(context.Context, pkgset.PublishedSource) ([]pkgset.Binary, error) {
	return nil, nil
}
func (emptyArchive) PackageUploads(context.Context, pkgset.UploadQuery) ([]pkgset.Upload, error) {
	return nil, nil
}
func (emptyArchive) Retry(context.Context, pkgset.Build) error { return nil }

func newPrepareSource() *catalog.Source {
	return &catalog.Source{
		Name:     "linux",
		Packages: map[swmtypes.PackageType]string{swmtypes.PackageMain: "linux", swmtypes.PackageMeta: "linux-meta"},
	}
}

func TestPackageTypeForTaskMain(t *testing.T) {
	assert.Equal(t, swmtypes.PackageMain, packageTypeForTask("prepare-package"))
}

func TestPackageTypeForTaskDerivedFromSuffix(t *testing.T) {
	assert.Equal(t, swmtypes.PackageMeta, packageTypeForTask("prepare-package-meta"))
}

func TestBlockingTagKernelBlock(t *testing.T) {
	tag, blocked := blockingTag(bugmodel.NewTagSet([]string{"kernel-block"}))
	assert.True(t, blocked)
	assert.Equal(t, "kernel-block", tag)
}

func TestBlockingTagKernelBlockSource(t *testing.T) {
	tag, blocked := blockingTag(bugmodel.NewTagSet([]string{"kernel-block-source"}))
	assert.True(t, blocked)
	assert.Equal(t, "kernel-block-source", tag)
}

func TestBlockingTagTrelloPrefix(t *testing.T) {
	tag, blocked := blockingTag(bugmodel.NewTagSet([]string{"kernel-trello-blocked-XYZ"}))
	assert.True(t, blocked)
	assert.Equal(t, "kernel-trello-blocked-XYZ", tag)
}

func TestBlockingTagNoneWhenAbsent(t *testing.T) {
	_, blocked := blockingTag(bugmodel.NewTagSet([]string{"kernel-sru-cycle-2026.03.02"}))
	assert.False(t, blocked)
}

func newPreparePackageContext(t *testing.T, taskStatus swmtypes.TaskStatus) *Context {
	t.Helper()
	bug := newTestBug(t, map[string]swmtypes.TaskStatus{"prepare-package": taskStatus})
	src := newPrepareSource()
	ps, err := pkgset.New(src, "jammy", emptyArchive{}, NewVersionsOf(bug, &catalog.Series{}, func(int) (*pkgset.PackageSet, bool) { return nil, false }))
	require.NoError(t, err)

	c := NewContext(bug, &catalog.Series{Codename: "jammy"}, src, ps, nil, nil, messaging.NoopPublisher{}, nil)
	c.Clock = fixedClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	return c
}

func TestHandlePreparePackageUndeclaredTypeGoesInvalid(t *testing.T) {
	bug := newTestBug(t, map[string]swmtypes.TaskStatus{"prepare-package-signed": swmtypes.StatusNew})
	src := newPrepareSource() // does not declare "signed"
	ps, err := pkgset.New(src, "jammy", emptyArchive{}, NewVersionsOf(bug, &catalog.Series{}, func(int) (*pkgset.PackageSet, bool) { return nil, false }))
	require.NoError(t, err)
	c := NewContext(bug, &catalog.Series{}, src, ps, nil, nil, messaging.NoopPublisher{}, nil)

	changed, err := handlePreparePackage(c, c.task("prepare-package-signed"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusInvalid, c.task("prepare-package-signed").Status)
}

func TestHandlePreparePackageNewAdvancesToConfirmedForMainPackage(t *testing.T) {
	c := newPreparePackageContext(t, swmtypes.StatusNew)
	changed, err := handlePreparePackage(c, c.task("prepare-package"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusConfirmed, c.task("prepare-package").Status)
}

func TestHandlePreparePackageBlockingTagResetsToNew(t *testing.T) {
	c := newPreparePackageContext(t, swmtypes.StatusInProgress)
	c.Bug.Tags.Add("kernel-block")

	changed, err := handlePreparePackage(c, c.task("prepare-package"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, swmtypes.StatusNew, c.task("prepare-package").Status)
}

func TestHandlePreparePackageConfirmedWithNoVersionHolds(t *testing.T) {
	bug := newTestBug(t, map[string]swmtypes.TaskStatus{"prepare-package-meta": swmtypes.StatusConfirmed})
	src := newPrepareSource()
	ps, err := pkgset.New(src, "jammy", emptyArchive{}, NewVersionsOf(bug, &catalog.Series{}, func(int) (*pkgset.PackageSet, bool) { return nil, false }))
	require.NoError(t, err)
	c := NewContext(bug, &catalog.Series{}, src, ps, nil, nil, messaging.NoopPublisher{}, nil)

	changed, err := handlePreparePackage(c, c.task("prepare-package-meta"))
	require.NoError(t, err)
	assert.False(t, changed, "a derived package type with no declared version and no main reference must hold")
	assert.Equal(t, swmtypes.StatusConfirmed, c.task("prepare-package-meta").Status)
	assert.Equal(t, "Pending -- version not specified", c.task("prepare-package-meta").Reason())
}

func TestHandlePreparePackageConfirmedAdvancesWhenMainVersionKnown(t *testing.T) {
	c := newPreparePackageContext(t, swmtypes.StatusConfirmed)
	changed, err := handlePreparePackage(c, c.task("prepare-package"))
	require.NoError(t, err)
	assert.True(t, changed, "the main package's parsed title stands in for an explicit version")
	assert.Equal(t, swmtypes.StatusInProgress, c.task("prepare-package").Status)
}
