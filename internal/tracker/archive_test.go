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

package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/canonical/swm/internal/pkgset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishedSourcesBuildsExactMatchQuery(t *testing.T) {
	var gotPath string
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{
					"self_link":               "https://x/+build/1",
					"status":                  "Published",
					"source_package_version":  "5.15.0-1001.1",
					"component_name":          "main",
				},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.PublishedSources(context.Background(), pkgset.SourceQuery{
		Archive: "ubuntu", Series: "jammy", SourceName: "linux", Pocket: "Proposed",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "/ubuntu", gotPath)
	assert.Equal(t, "getPublishedSources", gotQuery.Get("ws.op"))
	assert.Equal(t, "jammy", gotQuery.Get("distro_series"))
	assert.Equal(t, "linux", gotQuery.Get("source_name"))
	assert.Equal(t, "Proposed", gotQuery.Get("pocket"))
	assert.Equal(t, "true", gotQuery.Get("exact_match"))
	assert.Equal(t, "Published", out[0].Status)
	assert.Equal(t, "5.15.0-1001.1", out[0].Version)
	assert.Equal(t, "main", out[0].ComponentName)
}

func TestBuildsQueriesSourceSelfLink(t *testing.T) {
	var gotPath string
	var gotOp string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOp = r.URL.Query().Get("ws.op")
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{"self_link": "https://x/+build/9", "arch_tag": "amd64", "buildstate": "Successfully built", "can_be_retried": false},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.Builds(context.Background(), pkgset.PublishedSource{Self: "/+source/linux/1001"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "/+source/linux/1001", gotPath)
	assert.Equal(t, "getBuilds", gotOp)
	assert.Equal(t, "amd64", out[0].ArchTag)
	assert.Equal(t, "Successfully built", out[0].BuildState)
	assert.False(t, out[0].CanBeRetried)
}

func TestPublishedBinariesQueriesSourceSelfLink(t *testing.T) {
	var gotOp string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOp = r.URL.Query().Get("ws.op")
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{"self_link": "https://x/+binary/1", "architecture_specific": true, "status": "Published"},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.PublishedBinaries(context.Background(), pkgset.PublishedSource{Self: "/+source/linux/1001"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "getPublishedBinaries", gotOp)
	assert.True(t, out[0].ArchitectureSpecific)
	assert.Equal(t, "Published", out[0].Status)
}

func TestPackageUploadsBuildsExactMatchQuery(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{
			"entries": []map[string]any{
				{"self_link": "https://x/+upload/1", "status": "Done"},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	out, err := c.PackageUploads(context.Background(), pkgset.UploadQuery{
		Archive: "ubuntu", Series: "jammy", SourceName: "linux", Version: "5.15.0-1001.1", Pocket: "Proposed",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, "getPackageUploads", gotQuery.Get("ws.op"))
	assert.Equal(t, "5.15.0-1001.1", gotQuery.Get("version"))
	assert.Equal(t, "Done", out[0].Status)
}

func TestRetryPostsRetryOpAgainstBuildSelfLink(t *testing.T) {
	var gotMethod, gotPath, gotOp string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotOp = r.URL.Query().Get("ws.op")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.Retry(context.Background(), pkgset.Build{Self: "/+build/9"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/+build/9", gotPath)
	assert.Equal(t, "retry", gotOp)
}

func TestRetryPropagatesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.Retry(context.Background(), pkgset.Build{Self: "/+build/9"})
	assert.Error(t, err)
}
