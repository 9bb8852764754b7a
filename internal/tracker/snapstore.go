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
	"fmt"
	"net/http"
	"time"

	"github.com/canonical/swm/internal/snapset"
)

// SnapStoreClient is a standalone, unauthenticated client for the Snap
// Store's public channel-map endpoint, kept separate from Client since it
// talks to a different host (the Snap Store, not Launchpad) and needs
// none of Client's OAuth/rate-limit plumbing beyond a plain HTTP GET.
type SnapStoreClient struct {
	BaseURL string // e.g. "https://api.snapcraft.io/v2"
	HTTP    *http.Client
}

// NewSnapStoreClient returns a SnapStoreClient with sane defaults.
func NewSnapStoreClient(baseURL string) *SnapStoreClient {
	return &SnapStoreClient{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type channelMapResponse struct {
	ChannelMap []struct {
		Channel struct {
			Architecture string `json:"architecture"`
			Track        string `json:"track"`
			Risk         string `json:"risk"`
			ReleasedAt   string `json:"released-at"`
		} `json:"channel"`
		Revision int    `json:"revision"`
		Version  string `json:"version"`
	} `json:"channel-map"`
}

// ChannelMap implements snapset.StoreClient.
func (s *SnapStoreClient) ChannelMap(ctx context.Context, snapName string) ([]snapset.ChannelEntry, error) {
	target := fmt.Sprintf("%s/snaps/info/%s?fields=channel-map", s.BaseURL, snapName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build channel map request: %w", err)
	}
	req.Header.Set("Snap-Device-Series", "16")
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel map for %s: %w", snapName, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("channel map for %s: unexpected status %s", snapName, resp.Status)
	}

	var wire channelMapResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode channel map for %s: %w", snapName, err)
	}

	out := make([]snapset.ChannelEntry, 0, len(wire.ChannelMap))
	for _, row := range wire.ChannelMap {
		released, _ := time.Parse(time.RFC3339, row.Channel.ReleasedAt)
		out = append(out, snapset.ChannelEntry{
			Architecture: row.Channel.Architecture,
			Track:        row.Channel.Track,
			Risk:         snapset.Risk(row.Channel.Risk),
			Revision:     row.Revision,
			Version:      row.Version,
			ReleasedAt:   released,
		})
	}
	return out, nil
}
