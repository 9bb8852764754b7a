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

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/internal/config"
	"github.com/canonical/swm/internal/lock"
	"github.com/canonical/swm/internal/messaging"
	"github.com/canonical/swm/internal/pkgset"
	"github.com/canonical/swm/internal/tracker"
	"github.com/canonical/swm/pkg/swmtypes"
)

func TestMatchesFilterKeepsTrackerWithNoPriorRow(t *testing.T) {
	e := New(tracker.New(tracker.Config{BaseURL: "http://unused"}), nil, &catalog.Catalog{}, nil, messaging.NoopPublisher{}, nil, "", nil, Options{Filter: `series == "jammy"`})
	assert.True(t, e.matchesFilter(42, config.StatusFile{}))
}

func TestMatchesFilterEvaluatesAgainstExistingRow(t *testing.T) {
	e := New(tracker.New(tracker.Config{BaseURL: "http://unused"}), nil, &catalog.Catalog{}, nil, messaging.NoopPublisher{}, nil, "", nil, Options{Filter: `series == "jammy"`})
	sf := config.StatusFile{"42": config.StatusRow{Series: "focal"}}
	assert.False(t, e.matchesFilter(42, sf))

	sf["42"] = config.StatusRow{Series: "jammy"}
	assert.True(t, e.matchesFilter(42, sf))
}

func TestNewIgnoresInvalidFilterExpression(t *testing.T) {
	e := New(tracker.New(tracker.Config{BaseURL: "http://unused"}), nil, &catalog.Catalog{}, nil, messaging.NoopPublisher{}, nil, "", nil, Options{Filter: "not( valid"})
	assert.Nil(t, e.filterProg)
}

// fakeTracker is a minimal Launchpad-shaped HTTP backend covering exactly
// the endpoints a crank of one simple tracker touches: GET the bug, PATCH
// its tasks, PATCH the bug itself (tags/title/description).
type fakeTracker struct {
	bug     map[string]any
	patches []string
}

func newFakeTracker(id int, title string, tags []string, tasks []map[string]any) *fakeTracker {
	return &fakeTracker{
		bug: map[string]any{
			"id":          id,
			"title":       title,
			"description": "some notes",
			"tags":        tags,
			"tasks":       tasks,
		},
	}
}

func (f *fakeTracker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bugs/5", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(f.bug)
		case http.MethodPatch:
			f.patches = append(f.patches, "bug")
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/bugs/5/tasks/prepare-package", func(w http.ResponseWriter, r *http.Request) {
		f.patches = append(f.patches, "task:prepare-package")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/kernel-sru-workflow", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"entries": []map[string]any{{"bug_id": 5}}})
	})
	return mux
}

func task(name, status string) map[string]any {
	return map[string]any{"bug_target_name": name, "status": status, "importance": "Medium", "assignee": ""}
}

func newTestCatalog() *catalog.Catalog {
	return &catalog.Catalog{SeriesList: map[string]*catalog.Series{
		"jammy": {
			Codename: "jammy",
			Sources: map[string]*catalog.Source{
				"linux": {
					Name:     "linux",
					Packages: map[swmtypes.PackageType]string{swmtypes.PackageMain: "linux"},
				},
			},
		},
	}}
}

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

func TestCrankOneAdvancesPreparePackageAndPersistsStatusRow(t *testing.T) {
	ft := newFakeTracker(5, "linux: 5.15.0-1001.1 -proposed tracker", []string{"jammy"}, []map[string]any{
		task("kernel-sru-workflow", "New"),
		task("prepare-package", "New"),
	})
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	dir := t.TempDir()
	locks, err := lock.Open(filepath.Join(dir, "swm.lock"))
	require.NoError(t, err)

	statusPath := filepath.Join(dir, "status.yaml")
	client := tracker.New(tracker.Config{BaseURL: srv.URL})
	e := New(client, nil, newTestCatalog(), nil, messaging.NoopPublisher{}, locks, statusPath, emptyArchive{}, Options{})

	changed, err := e.CrankOne(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, ft.patches, "task:prepare-package")

	sf, err := config.LoadStatus(statusPath)
	require.NoError(t, err)
	row, ok := sf["5"]
	require.True(t, ok, "CrankOne must write a status row for the tracker it cranked")
	assert.Equal(t, "jammy", row.Series)
	assert.Equal(t, "linux", row.Package)
}

func TestCrankOneDryRunSkipsTrackerMutationButStillWritesStatus(t *testing.T) {
	ft := newFakeTracker(5, "linux: 5.15.0-1001.1 -proposed tracker", []string{"jammy"}, []map[string]any{
		task("kernel-sru-workflow", "New"),
		task("prepare-package", "New"),
	})
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	dir := t.TempDir()
	locks, err := lock.Open(filepath.Join(dir, "swm.lock"))
	require.NoError(t, err)

	statusPath := filepath.Join(dir, "status.yaml")
	client := tracker.New(tracker.Config{BaseURL: srv.URL})
	e := New(client, nil, newTestCatalog(), nil, messaging.NoopPublisher{}, locks, statusPath, emptyArchive{}, Options{DryRun: true})

	changed, err := e.CrankOne(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, changed, "the in-memory fixed point still advances in dry-run mode")
	assert.NotContains(t, ft.patches, "task:prepare-package", "dry-run must perform no tracker writes")

	_, err = config.LoadStatus(statusPath)
	require.NoError(t, err)
}

func TestCrankOneReturnsErrorForUnresolvableSeries(t *testing.T) {
	ft := newFakeTracker(5, "linux: 5.15.0-1001.1 -proposed tracker", []string{"focal"}, []map[string]any{
		task("kernel-sru-workflow", "New"),
	})
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	dir := t.TempDir()
	locks, err := lock.Open(filepath.Join(dir, "swm.lock"))
	require.NoError(t, err)

	client := tracker.New(tracker.Config{BaseURL: srv.URL})
	e := New(client, nil, newTestCatalog(), nil, messaging.NoopPublisher{}, locks, filepath.Join(dir, "status.yaml"), emptyArchive{}, Options{})

	_, err = e.CrankOne(context.Background(), 5)
	assert.Error(t, err, "a series absent from the catalog must surface as an error, not a silent no-op")
}

func TestRunWithExplicitIDsSkipsEnumerateAndCranksOnlyThose(t *testing.T) {
	ft := newFakeTracker(5, "linux: 5.15.0-1001.1 -proposed tracker", []string{"jammy"}, []map[string]any{
		task("kernel-sru-workflow", "New"),
		task("prepare-package", "New"),
	})
	srv := httptest.NewServer(ft.handler())
	defer srv.Close()

	dir := t.TempDir()
	locks, err := lock.Open(filepath.Join(dir, "swm.lock"))
	require.NoError(t, err)
	statusPath := filepath.Join(dir, "status.yaml")

	// Seed a stale row for a tracker id we never pass to Run; an explicit-id
	// run must leave it alone (only a full scan's cleanStatus may drop it).
	require.NoError(t, config.SaveStatus(statusPath, config.StatusFile{"999": config.StatusRow{Series: "focal"}}))

	client := tracker.New(tracker.Config{BaseURL: srv.URL})
	e := New(client, nil, newTestCatalog(), nil, messaging.NoopPublisher{}, locks, statusPath, emptyArchive{}, Options{})

	require.NoError(t, e.Run(context.Background(), []int{5}))

	sf, err := config.LoadStatus(statusPath)
	require.NoError(t, err)
	_, stillThere := sf["999"]
	assert.True(t, stillThere, "explicit-id runs must not clean status rows for untouched trackers")
	_, cranked := sf["5"]
	assert.True(t, cranked)
}
