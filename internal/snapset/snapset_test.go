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

package snapset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canonical/swm/internal/catalog"
)

type fakeStoreClient struct {
	entries map[string][]ChannelEntry
	calls   map[string]int
	err     error
}

func newFakeStoreClient() *fakeStoreClient {
	return &fakeStoreClient{entries: map[string][]ChannelEntry{}, calls: map[string]int{}}
}

func (f *fakeStoreClient) ChannelMap(ctx context.Context, snapName string) ([]ChannelEntry, error) {
	f.calls[snapName]++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[snapName], nil
}

func sourceWithSnap(name string, tracks, arches []string) *catalog.Source {
	return &catalog.Source{
		Name: "linux",
		Snaps: map[string]*catalog.SnapSource{
			name: {Name: name, Tracks: tracks, Arches: arches},
		},
	}
}

func TestIsInTracksTrueWhenEveryTripleMatches(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64", "arm64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskBeta, Revision: 10, Version: "5.15.0-1001.1"},
		{Architecture: "arm64", Track: "22", Risk: RiskBeta, Revision: 11, Version: "5.15.0-1001.1"},
	}

	ss := New(src, client)
	ok, err := ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskBeta)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsInTracksFalseOnVersionMismatch(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskBeta, Revision: 10, Version: "5.15.0-1000.1"},
	}

	ss := New(src, client)
	ok, err := ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskBeta)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsInTracksFalseWhenTripleMissing(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64", "arm64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskBeta, Revision: 10, Version: "5.15.0-1001.1"},
	}

	ss := New(src, client)
	ok, err := ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskBeta)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsInTracksDefaultsToLatestTrack(t *testing.T) {
	src := sourceWithSnap("pc-kernel", nil, []string{"amd64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "latest", Risk: RiskEdge, Revision: 3, Version: "5.15.0-1001.1"},
	}

	ss := New(src, client)
	ok, err := ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskEdge)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsInTracksUnknownSnapReturnsFalse(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	ss := New(src, newFakeStoreClient())
	ok, err := ss.IsInTracks(context.Background(), "other-kernel", "5.15.0-1001.1", RiskBeta)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsInTracksCachesChannelMap(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskBeta, Revision: 10, Version: "5.15.0-1001.1"},
	}

	ss := New(src, client)
	_, err := ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskBeta)
	require.NoError(t, err)
	_, err = ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskBeta)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls["pc-kernel"])
}

func TestIsInTracksPropagatesClientError(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	client := newFakeStoreClient()
	client.err = assert.AnError

	ss := New(src, client)
	_, err := ss.IsInTracks(context.Background(), "pc-kernel", "5.15.0-1001.1", RiskBeta)
	assert.Error(t, err)
}

func TestChannelRevisionsConsistentReturnsEmptyWhenAligned(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64", "arm64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskStable, Revision: 42},
		{Architecture: "arm64", Track: "22", Risk: RiskStable, Revision: 42},
	}

	ss := New(src, client)
	divergent, err := ss.ChannelRevisionsConsistent(context.Background(), "pc-kernel", RiskStable)
	require.NoError(t, err)
	assert.Empty(t, divergent)
}

func TestChannelRevisionsConsistentReturnsMinorityOnMismatch(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64", "arm64", "armhf"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskStable, Revision: 42},
		{Architecture: "arm64", Track: "22", Risk: RiskStable, Revision: 42},
		{Architecture: "armhf", Track: "22", Risk: RiskStable, Revision: 41},
	}

	ss := New(src, client)
	divergent, err := ss.ChannelRevisionsConsistent(context.Background(), "pc-kernel", RiskStable)
	require.NoError(t, err)
	require.Len(t, divergent, 1)
	assert.Equal(t, "armhf", divergent[0].Architecture)
	assert.Equal(t, 41, divergent[0].Revision)
}

func TestChannelRevisionsConsistentIgnoresOtherRisks(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskEdge, Revision: 99},
	}

	ss := New(src, client)
	divergent, err := ss.ChannelRevisionsConsistent(context.Background(), "pc-kernel", RiskStable)
	require.NoError(t, err)
	assert.Empty(t, divergent)
}

func TestHighestPublishedRiskFindsMostStable(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskEdge, Version: "5.15.0-1001.1"},
		{Architecture: "amd64", Track: "22", Risk: RiskCandidate, Version: "5.15.0-1001.1"},
		{Architecture: "amd64", Track: "22", Risk: RiskBeta, Version: "5.15.0-1001.1"},
	}

	ss := New(src, client)
	risk, found, err := ss.HighestPublishedRisk(context.Background(), "pc-kernel", "5.15.0-1001.1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, RiskCandidate, risk)
}

func TestHighestPublishedRiskNotFoundWhenVersionAbsent(t *testing.T) {
	src := sourceWithSnap("pc-kernel", []string{"22"}, []string{"amd64"})
	client := newFakeStoreClient()
	client.entries["pc-kernel"] = []ChannelEntry{
		{Architecture: "amd64", Track: "22", Risk: RiskStable, Version: "5.15.0-1000.1"},
	}

	ss := New(src, client)
	risk, found, err := ss.HighestPublishedRisk(context.Background(), "pc-kernel", "5.15.0-1001.1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, RiskEdge, risk)
}
