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
	"strings"
	"time"

	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/pkg/swmtypes"
)

// PackageBuild is one (dependent package, logical pocket) resolution: the
// result of walking a routing list until a matching publication is found
// (or exhausting it), per §4.3's route walk.
type PackageBuild struct {
	Dependent swmtypes.PackageType
	Pocket    swmtypes.Pocket
	routing   []catalog.Route
	pkgName   string
	srchVer   string
	srchABI   string
	sloppy    bool
	series    string

	built      bool
	Found      bool // a publication was located at all, even if not yet built
	Status     swmtypes.State
	Version       string
	Published     time.Time
	MostRecent    time.Time
	Creator       string
	Signer        string
	ChangesURL    string
	ComponentName string
	Route         catalog.Route

	// FailedBuilds collects every per-arch build record that did not reach
	// "Successfully built", mirroring the original's deb-build maintenance
	// records, consulted by the retry policy (§4.3).
	FailedBuilds []Build

	instantiated bool
	err          error
}

func newPackageBuild(dep swmtypes.PackageType, pocket swmtypes.Pocket, routing []catalog.Route, series, pkgName, version, abi string, sloppy bool) *PackageBuild {
	return &PackageBuild{
		Dependent: dep,
		Pocket:    pocket,
		routing:   routing,
		series:    series,
		pkgName:   pkgName,
		srchVer:   version,
		srchABI:   abi,
		sloppy:    sloppy,
	}
}

// ensure lazily drives the archive queries for this PackageBuild,
// memoizing the result, per §4.3's "instantiated only on first attribute
// access" rule.
func (pb *PackageBuild) ensure(ctx context.Context, client ArchiveClient) error {
	if pb.instantiated {
		return pb.err
	}
	pb.instantiated = true

	type probe struct {
		route   catalog.Route
		built   bool
		status  swmtypes.State
		creator string
		signer  string
		pub     time.Time
		recent  time.Time
		version string
		changes string
		comp    string
		failed  []Build
		found   bool
	}

	var probes []probe
	for _, route := range pb.routing {
		p := probe{route: route}
		sources, err := client.PublishedSources(ctx, SourceQuery{
			Archive:    route.Archive,
			Series:     pb.series,
			SourceName: pb.pkgName,
			Pocket:     route.Pocket,
		})
		if err != nil {
			pb.err = err
			return err
		}

		matches := findMatches(sources, pb.srchABI, pb.srchVer, pb.sloppy)
		if len(matches) > 0 && (matches[0].Status == "Pending" || matches[0].Status == "Published") {
			built, creator, signer, published, recent, status, failed, err := sourcesBuilt(ctx, client, matches, route.Archive, pb.series, pb.pkgName, route.Pocket)
			if err != nil {
				pb.err = err
				return err
			}
			p.built = built
			p.creator = creator
			p.signer = signer
			p.pub = published
			p.recent = recent
			p.status = status
			p.version = matches[0].Version
			p.changes = matches[0].ChangesFileURL
			p.comp = matches[0].ComponentName
			p.failed = failed
			p.found = true
		} else if len(sources) > 0 && (sources[0].Status == "Pending" || sources[0].Status == "Published") {
			p.version = sources[0].Version
		}

		probes = append(probes, p)
		if p.found {
			break
		}
	}

	if len(probes) == 0 {
		return nil
	}

	// Prefer the last probe if it matched; else fall back to the first,
	// mirroring publications[-1] vs publications[0] in the original.
	chosen := probes[0]
	if probes[len(probes)-1].found {
		chosen = probes[len(probes)-1]
	}

	pb.built = chosen.built
	pb.Found = chosen.found
	pb.Status = chosen.status
	pb.Creator = chosen.creator
	pb.Signer = chosen.signer
	pb.Published = chosen.pub
	pb.MostRecent = chosen.recent
	pb.Version = chosen.version
	pb.ChangesURL = chosen.changes
	pb.ComponentName = chosen.comp
	pb.Route = chosen.route
	pb.FailedBuilds = chosen.failed

	return nil
}

// findMatches filters sources down to those matching the requested
// version/abi, per §4.3's version-matching rule.
func findMatches(sources []PublishedSource, abi, release string, sloppy bool) []PublishedSource {
	var matches []PublishedSource
	if abi != "" {
		prefix1 := release + "-" + abi
		prefix2 := release + "." + abi
		for _, s := range sources {
			if strings.HasPrefix(s.Version, prefix1+".") || strings.HasPrefix(s.Version, prefix2+".") {
				matches = append(matches, s)
			}
		}
		return matches
	}
	for _, s := range sources {
		if s.Version == release || (sloppy && strings.HasPrefix(s.Version, release+"+")) {
			matches = append(matches, s)
		}
	}
	return matches
}

// sourcesBuilt folds a matched source's own status, its build records, and
// its published binaries into one combined state, per §4.3 steps 1-5.
func sourcesBuilt(ctx context.Context, client ArchiveClient, sources []PublishedSource, archiveRef, series, pkgName, pocket string) (built bool, creator, signer string, published, mostRecent time.Time, status swmtypes.State, failed []Build, err error) {
	source := sources[0]
	creator = source.Creator
	signer = source.Signer
	published = source.DatePublished
	mostRecent = source.DatePublished

	var present []swmtypes.State
	switch source.Status {
	case "Pending":
		present = append(present, swmtypes.StatePending)
	case "Published":
		present = append(present, swmtypes.StateFullyBuilt)
	default:
		present = append(present, swmtypes.StateFailedToBuild)
	}

	builds, err := client.Builds(ctx, source)
	if err != nil {
		return false, "", "", time.Time{}, time.Time{}, swmtypes.StateUnknown, nil, err
	}

	archBuild := map[string]bool{}
	archComplete := map[string]bool{}
	for _, b := range builds {
		switch b.BuildState {
		case "Needs building", "Currently building", "Uploading build":
			present = append(present, swmtypes.StateBuilding)
		case "Dependency wait":
			present = append(present, swmtypes.StateDepWait)
		case "Successfully built":
			present = append(present, swmtypes.StateFullyBuilt)
			archComplete[b.ArchTag] = true
		default:
			present = append(present, swmtypes.StateFailedToBuild)
		}
		if b.BuildState != "Successfully built" {
			failed = append(failed, b)
		}
		if !b.DateBuilt.IsZero() && (mostRecent.IsZero() || mostRecent.Before(b.DateBuilt)) {
			mostRecent = b.DateBuilt
		}
		archBuild[b.ArchTag] = true
	}

	binaries, err := client.PublishedBinaries(ctx, source)
	if err != nil {
		return false, "", "", time.Time{}, time.Time{}, swmtypes.StateUnknown, nil, err
	}

	archPublished := map[string]bool{}
	for _, bin := range binaries {
		archTag := "all"
		if bin.ArchitectureSpecific {
			parts := strings.Split(bin.DistroArchSeriesLink, "/")
			archTag = parts[len(parts)-1]
		}
		switch bin.Status {
		case "Pending":
			present = append(present, swmtypes.StatePending)
		case "Published":
			present = append(present, swmtypes.StateFullyBuilt)
		default:
			present = append(present, swmtypes.StateFailedToBuild)
		}
		if !bin.DatePublished.IsZero() && (published.IsZero() || published.Before(bin.DatePublished)) {
			published = bin.DatePublished
		}
		if bin.ArchitectureSpecific {
			archPublished[archTag] = true
		}
	}

	if !sameSet(archBuild, archPublished) {
		if sameSet(archBuild, archComplete) {
			uploads, err := client.PackageUploads(ctx, UploadQuery{
				Archive:    archiveRef,
				Series:     series,
				SourceName: pkgName,
				Version:    source.Version,
				Pocket:     pocket,
			})
			if err != nil {
				return false, "", "", time.Time{}, time.Time{}, swmtypes.StateUnknown, nil, err
			}
			queued := false
			for _, u := range uploads {
				if u.Status != "Done" && u.Status != "Rejected" {
					if u.Status == "New" || u.Status == "Unapproved" {
						queued = true
					}
				}
			}
			if queued {
				present = append(present, swmtypes.StateFullyBuiltPending)
			} else {
				present = append(present, swmtypes.StatePending)
			}
		} else {
			present = append(present, swmtypes.StateBuilding)
		}
	}

	combined := swmtypes.CombineAll(present...)
	return combined.Built(), creator, signer, published, mostRecent, combined, failed, nil
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
