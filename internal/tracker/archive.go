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
	"fmt"
	"net/http"
	"time"

	"github.com/canonical/swm/internal/pkgset"
)

// Client also implements pkgset.ArchiveClient: the same rate-limited,
// OAuth-bearing transport used for tracker mutation serves the archive's
// publishing-history, build, and upload-queue endpoints, since both are
// Launchpad-hosted lazr.restful collections behind the same base host.

type publishedSourceWire struct {
	Self           string    `json:"self_link"`
	Status         string    `json:"status"`
	Version        string    `json:"source_package_version"`
	DatePublished  time.Time `json:"date_published"`
	Creator        string    `json:"package_creator_link"`
	Signer         string    `json:"package_signer_link"`
	ChangesFileURL string    `json:"changesFileUrl"`
	ComponentName  string    `json:"component_name"`
}

// PublishedSources implements pkgset.ArchiveClient.
func (c *Client) PublishedSources(ctx context.Context, q pkgset.SourceQuery) ([]pkgset.PublishedSource, error) {
	query := map[string]string{
		"ws.op":              "getPublishedSources",
		"distro_series":      q.Series,
		"source_name":        q.SourceName,
		"pocket":              q.Pocket,
		"exact_match":        "true",
		"order_by_date":      "true",
	}
	var wire struct {
		Entries []publishedSourceWire `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s", q.Archive), query, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]pkgset.PublishedSource, 0, len(wire.Entries))
	for _, e := range wire.Entries {
		out = append(out, pkgset.PublishedSource{
			Self:           e.Self,
			Status:         e.Status,
			Version:        e.Version,
			DatePublished:  e.DatePublished,
			Creator:        e.Creator,
			Signer:         e.Signer,
			ChangesFileURL: e.ChangesFileURL,
			ComponentName:  e.ComponentName,
		})
	}
	return out, nil
}

type buildWire struct {
	Self              string    `json:"self_link"`
	SourcePackageName string    `json:"source_package_name"`
	ArchTag           string    `json:"arch_tag"`
	BuildState        string    `json:"buildstate"`
	DateBuilt         time.Time `json:"datebuilt"`
	WebLink           string    `json:"web_link"`
	BuildLogURL       string    `json:"build_log_url"`
	CanBeRetried      bool      `json:"can_be_retried"`
}

// Builds implements pkgset.ArchiveClient.
func (c *Client) Builds(ctx context.Context, source pkgset.PublishedSource) ([]pkgset.Build, error) {
	var wire struct {
		Entries []buildWire `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, source.Self, map[string]string{"ws.op": "getBuilds"}, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]pkgset.Build, 0, len(wire.Entries))
	for _, b := range wire.Entries {
		out = append(out, pkgset.Build{
			Self:              b.Self,
			SourcePackageName: b.SourcePackageName,
			ArchTag:           b.ArchTag,
			BuildState:        b.BuildState,
			DateBuilt:         b.DateBuilt,
			WebLink:           b.WebLink,
			BuildLogURL:       b.BuildLogURL,
			CanBeRetried:      b.CanBeRetried,
		})
	}
	return out, nil
}

type binaryWire struct {
	Self                 string    `json:"self_link"`
	ArchitectureSpecific bool      `json:"architecture_specific"`
	DistroArchSeriesLink string    `json:"distro_arch_series_link"`
	Status               string    `json:"status"`
	DatePublished        time.Time `json:"date_published"`
	BuildLink            string    `json:"build_link"`
}

// PublishedBinaries implements pkgset.ArchiveClient.
func (c *Client) PublishedBinaries(ctx context.Context, source pkgset.PublishedSource) ([]pkgset.Binary, error) {
	var wire struct {
		Entries []binaryWire `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, source.Self, map[string]string{"ws.op": "getPublishedBinaries"}, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]pkgset.Binary, 0, len(wire.Entries))
	for _, b := range wire.Entries {
		out = append(out, pkgset.Binary{
			Self:                 b.Self,
			ArchitectureSpecific: b.ArchitectureSpecific,
			DistroArchSeriesLink: b.DistroArchSeriesLink,
			Status:               b.Status,
			DatePublished:        b.DatePublished,
			BuildLink:            b.BuildLink,
		})
	}
	return out, nil
}

type uploadWire struct {
	Self   string `json:"self_link"`
	Status string `json:"status"`
}

// PackageUploads implements pkgset.ArchiveClient.
func (c *Client) PackageUploads(ctx context.Context, q pkgset.UploadQuery) ([]pkgset.Upload, error) {
	query := map[string]string{
		"ws.op":       "getPackageUploads",
		"distro_series": q.Series,
		"name":        q.SourceName,
		"version":     q.Version,
		"pocket":      q.Pocket,
		"exact_match": "true",
	}
	var wire struct {
		Entries []uploadWire `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s", q.Archive), query, nil, &wire); err != nil {
		return nil, err
	}
	out := make([]pkgset.Upload, 0, len(wire.Entries))
	for _, u := range wire.Entries {
		out = append(out, pkgset.Upload{Self: u.Self, Status: u.Status})
	}
	return out, nil
}

// Retry implements pkgset.ArchiveClient: a named-operation POST against
// the build's own resource, using Launchpad's "retry" op.
func (c *Client) Retry(ctx context.Context, build pkgset.Build) error {
	return c.do(ctx, http.MethodPost, build.Self, map[string]string{"ws.op": "retry"}, nil, nil)
}
