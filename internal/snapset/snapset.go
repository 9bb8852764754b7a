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

// Package snapset implements C6: the same aggregation pattern §4.3 applies
// to deb archives, applied instead to the Snap Store's channel map, keyed
// by (architecture, track/risk) per §4.6.
package snapset

import (
	"context"
	"time"

	"github.com/canonical/swm/internal/catalog"
)

// Risk is a snap channel risk level, ordered least to most stable.
type Risk string

const (
	RiskEdge      Risk = "edge"
	RiskBeta      Risk = "beta"
	RiskCandidate Risk = "candidate"
	RiskStable    Risk = "stable"
)

// riskOrder ranks risk levels for HighestPublishedRisk.
var riskOrder = map[Risk]int{RiskEdge: 0, RiskBeta: 1, RiskCandidate: 2, RiskStable: 3}

// ChannelEntry is one row of the Snap Store's channel-map response (§6):
// one architecture/track/risk triple's currently-released revision.
type ChannelEntry struct {
	Architecture string
	Track        string
	Risk         Risk
	Revision     int
	Version      string
	ReleasedAt   time.Time
}

// StoreClient is the Snap Store query surface C6 needs: a single
// unauthenticated channel-map GET per snap name (§6).
type StoreClient interface {
	ChannelMap(ctx context.Context, snapName string) ([]ChannelEntry, error)
}

// SnapSet is C6's per-tracker aggregator across every snap a source
// declares (catalog.Source.Snaps), mirroring PackageSet's role for debs.
type SnapSet struct {
	Source *catalog.Source
	Client StoreClient

	cache map[string][]ChannelEntry
}

// New builds a SnapSet for one tracker's source.
func New(src *catalog.Source, client StoreClient) *SnapSet {
	return &SnapSet{Source: src, Client: client, cache: map[string][]ChannelEntry{}}
}

func (ss *SnapSet) entries(ctx context.Context, snapName string) ([]ChannelEntry, error) {
	if e, ok := ss.cache[snapName]; ok {
		return e, nil
	}
	e, err := ss.Client.ChannelMap(ctx, snapName)
	if err != nil {
		return nil, err
	}
	ss.cache[snapName] = e
	return e, nil
}

// expectedTriples enumerates every (track, arch) pair a snap's catalog
// entry declares, to check against the channel map for a given risk.
func expectedTriples(snap *catalog.SnapSource) [][2]string {
	var out [][2]string
	tracks := snap.Tracks
	if len(tracks) == 0 {
		tracks = []string{"latest"}
	}
	for _, track := range tracks {
		for _, arch := range snap.Arches {
			out = append(out, [2]string{track, arch})
		}
	}
	return out
}

// revisionsForRisk selects, for each (track, arch) pair, the channel-map
// entry whose risk equals the requested one; entries at other risks,
// more stable or not, are ignored.
func revisionsForRisk(entries []ChannelEntry, risk Risk) map[[2]string]ChannelEntry {
	out := map[[2]string]ChannelEntry{}
	for _, e := range entries {
		if e.Risk != risk {
			continue
		}
		out[[2]string{e.Track, e.Architecture}] = e
	}
	return out
}

// IsInTracks is §4.6's per-risk predicate: every expected (track, arch)
// pair has a channel-map entry at exactly this risk whose version equals
// the tracker's version for that snap. Revision numbers are not compared,
// so whether that entry is the highest revision of the version is not
// checked.
func (ss *SnapSet) IsInTracks(ctx context.Context, snapName, version string, risk Risk) (bool, error) {
	snap, ok := ss.Source.Snaps[snapName]
	if !ok {
		return false, nil
	}
	entries, err := ss.entries(ctx, snapName)
	if err != nil {
		return false, err
	}

	byTriple := revisionsForRisk(entries, risk)
	for _, triple := range expectedTriples(snap) {
		e, ok := byTriple[triple]
		if !ok || e.Version != version {
			return false, nil
		}
	}
	return true, nil
}

// ChannelRevisionsConsistent is §4.6's channel_revisions_consistent:
// publications across architectures+tracks for one risk MUST share one
// revision number. Returns the set of entries that diverge from the
// majority revision, empty if consistent.
func (ss *SnapSet) ChannelRevisionsConsistent(ctx context.Context, snapName string, risk Risk) ([]ChannelEntry, error) {
	entries, err := ss.entries(ctx, snapName)
	if err != nil {
		return nil, err
	}

	counts := map[int]int{}
	var atRisk []ChannelEntry
	for _, e := range entries {
		if e.Risk != risk {
			continue
		}
		atRisk = append(atRisk, e)
		counts[e.Revision]++
	}
	if len(atRisk) == 0 {
		return nil, nil
	}

	majority, best := 0, -1
	for rev, n := range counts {
		if n > best {
			majority, best = rev, n
		}
	}

	var divergent []ChannelEntry
	for _, e := range atRisk {
		if e.Revision != majority {
			divergent = append(divergent, e)
		}
	}
	return divergent, nil
}

// HighestPublishedRisk returns the most-stable risk level at which
// version has been published for snapName, used by snap-release
// handlers to decide which -to-<risk> tasks are already satisfied.
func (ss *SnapSet) HighestPublishedRisk(ctx context.Context, snapName, version string) (Risk, bool, error) {
	entries, err := ss.entries(ctx, snapName)
	if err != nil {
		return "", false, err
	}
	found := false
	best := RiskEdge
	for _, e := range entries {
		if e.Version != version {
			continue
		}
		found = true
		if riskOrder[e.Risk] > riskOrder[best] {
			best = e.Risk
		}
	}
	return best, found, nil
}
