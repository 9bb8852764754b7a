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

// Package tracker implements the Launchpad-shaped tracker/archive client
// §6 specifies the contract for: bug fetch/mutate, search_tasks
// enumeration, and the archive publish/build/upload query surface C3
// drives. No generic REST client in the retrieved pack targets
// Launchpad's bespoke lazr.restful collection/entry hypermedia shape, so
// the transport is a thin net/http + encoding/json client (justified in
// DESIGN.md): the resource set consumed is small and fixed, and wrapping
// it behind a generic framework would add indirection without reducing
// code.
package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/errkind"
	"github.com/canonical/swm/pkg/swmtypes"
)

// Config configures a Client.
type Config struct {
	BaseURL     string // e.g. "https://api.launchpad.net/devel"
	TokenSource oauth2.TokenSource
	RateLimit   rate.Limit // requests/sec; 0 means DefaultRateLimit
	Burst       int
	HTTPClient  *http.Client
}

// DefaultRateLimit matches the original's conservative default for a
// shared, rate-limited production API -- a handful of requests per
// second, not a burst-everything client.
const DefaultRateLimit = rate.Limit(5)

// Client is the production bugmodel.Mutator / pkgset.ArchiveClient
// implementation; bugmodel.Lookup and snapset.StoreClient are implemented
// by Loader and SnapStoreClient.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	token   oauth2.TokenSource
}

// New builds a Client from cfg.
func New(cfg Config) *Client {
	limit := cfg.RateLimit
	if limit == 0 {
		limit = DefaultRateLimit
	}
	burst := cfg.Burst
	if burst == 0 {
		burst = 1
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		token:   cfg.TokenSource,
	}
}

// wait blocks for the rate limiter, honoring ctx cancellation -- every
// archive/tracker query is a suspension point per §5.
func (c *Client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

func (c *Client) do(ctx context.Context, method, path string, query map[string]string, body any, out any) error {
	if err := c.wait(ctx); err != nil {
		return err
	}

	target := c.baseURL + path
	if len(query) > 0 {
		var parts []string
		for k, v := range query {
			if v == "" {
				continue
			}
			parts = append(parts, k+"="+urlEscape(v))
		}
		if len(parts) > 0 {
			target += "?" + strings.Join(parts, "&")
		}
	}

	var bodyReader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if bodyReader != nil {
		req, err = http.NewRequestWithContext(ctx, method, target, bodyReader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, target, nil)
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token.Token()
		if err != nil {
			return fmt.Errorf("obtain access token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &errkind.InvalidTrackerError{Cause: fmt.Errorf("%s %s: 404", method, path)}
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func urlEscape(s string) string {
	// Minimal query escaping sufficient for the bounded value set this
	// client sends (series codenames, source names, pocket names,
	// versions); strconv.Quote's unicode handling is unneeded here.
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.', r == '~':
			b.WriteRune(r)
		default:
			b.WriteString("%")
			b.WriteString(strconv.FormatInt(int64(r), 16))
		}
	}
	return b.String()
}

// bugResponse is the wire shape of one bug fetch.
type bugResponse struct {
	ID          int              `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Tags        []string         `json:"tags"`
	DuplicateOf int              `json:"duplicate_of,omitempty"`
	Tasks       []taskResponse   `json:"tasks"`
}

type taskResponse struct {
	Name       string `json:"bug_target_name"`
	Status     string `json:"status"`
	Importance string `json:"importance"`
	Assignee   string `json:"assignee"`
}

// GetBug fetches one tracker by id, returning bugmodel.RawBug -- the
// shape bugmodel.Load consumes.
func (c *Client) GetBug(ctx context.Context, id int) (bugmodel.RawBug, error) {
	var resp bugResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/bugs/%d", id), nil, nil, &resp); err != nil {
		return bugmodel.RawBug{}, err
	}
	raw := bugmodel.RawBug{
		ID:          resp.ID,
		Title:       resp.Title,
		Description: resp.Description,
		Tags:        resp.Tags,
		DuplicateOf: resp.DuplicateOf,
	}
	for _, t := range resp.Tasks {
		raw.Tasks = append(raw.Tasks, bugmodel.RawTask{
			Name:       t.Name,
			Status:     statusFromWire(t.Status),
			Importance: t.Importance,
			Assignee:   t.Assignee,
		})
	}
	return raw, nil
}

// SetTitle implements bugmodel.Mutator.
func (c *Client) SetTitle(id int, title string) error {
	return c.do(context.Background(), http.MethodPatch, fmt.Sprintf("/bugs/%d", id), nil, map[string]string{"title": title}, nil)
}

// SetDescription implements bugmodel.Mutator.
func (c *Client) SetDescription(id int, description string) error {
	return c.do(context.Background(), http.MethodPatch, fmt.Sprintf("/bugs/%d", id), nil, map[string]string{"description": description}, nil)
}

// SetTags implements bugmodel.Mutator.
func (c *Client) SetTags(id int, tags []string) error {
	return c.do(context.Background(), http.MethodPatch, fmt.Sprintf("/bugs/%d", id), nil, map[string][]string{"tags": tags}, nil)
}

// AddComment implements bugmodel.Mutator.
func (c *Client) AddComment(id int, subject, body string) error {
	return c.do(context.Background(), http.MethodPost, fmt.Sprintf("/bugs/%d/comments", id), nil,
		map[string]string{"subject": subject, "content": body}, nil)
}

// SetTaskStatus updates one bug task's status/importance/assignee.
func (c *Client) SetTaskStatus(id int, taskName string, status, importance, assignee string) error {
	payload := map[string]string{}
	if status != "" {
		payload["status"] = status
	}
	if importance != "" {
		payload["importance"] = importance
	}
	if assignee != "" {
		payload["assignee"] = assignee
	}
	return c.do(context.Background(), http.MethodPatch, fmt.Sprintf("/bugs/%d/tasks/%s", id, urlEscape(taskName)), nil, payload, nil)
}

func statusFromWire(s string) swmtypes.TaskStatus {
	return swmtypes.TaskStatus(s)
}

// searchTasksResponse is the wire shape of lp_project.search_tasks: a
// lazr.restful collection of matching bug tasks.
type searchTasksResponse struct {
	Entries []struct {
		BugID int `json:"bug_id"`
	} `json:"entries"`
}

// liveRootStatuses are the root-task statuses enumerate() treats as live
// (§4.1's contract), i.e. every non-terminal status.
var liveRootStatuses = []string{"New", "Confirmed", "In Progress", "Incomplete", "Fix Committed"}

// Enumerate implements C1's enumerate(): every tracker whose project task
// carries one of the live tags and sits in a non-terminal root status.
// Duplicates are excluded at the search layer already (Launchpad's
// search_tasks never returns a task belonging to a bug marked as a
// duplicate of another).
func (c *Client) Enumerate(ctx context.Context, project string, liveTags []string) ([]int, error) {
	seen := map[int]bool{}
	var ids []int
	for _, tag := range liveTags {
		var resp searchTasksResponse
		query := map[string]string{
			"ws.op":           "search_tasks",
			"tags":            tag,
			"tags_combinator": "Any",
		}
		for _, status := range liveRootStatuses {
			query["status"] = status
			if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/%s", project), query, nil, &resp); err != nil {
				return nil, err
			}
			for _, e := range resp.Entries {
				if !seen[e.BugID] {
					seen[e.BugID] = true
					ids = append(ids, e.BugID)
				}
			}
		}
	}
	return ids, nil
}
