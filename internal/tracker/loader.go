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
	"sync"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/errkind"
)

// rootTaskNames are the two Launchpad bug_target_name values a tracker's
// distinguished root (project) task carries -- "kernel-sru-workflow" for
// the SRU project, "kernel-development-workflow" for the development
// series project. Exactly one is expected per bug.
var rootTaskNames = map[string]bool{
	"kernel-sru-workflow":         true,
	"kernel-development-workflow": true,
}

// findRootTaskName scans raw's tasks for the project task.
func findRootTaskName(raw bugmodel.RawBug) string {
	for _, t := range raw.Tasks {
		if rootTaskNames[t.Name] {
			return t.Name
		}
	}
	return ""
}

// Loader fetches and caches Bug models by id, implementing
// bugmodel.Lookup for the master-bug reference (§9: resolved lazily, one
// cache shared across a crank so repeated master lookups within the same
// pass do not refetch). dryrun controls whether Bug.Save is a no-op.
type Loader struct {
	client *Client
	dryrun bool

	mu    sync.Mutex
	cache map[int]*bugmodel.Bug
}

// NewLoader builds a Loader backed by client.
func NewLoader(client *Client, dryrun bool) *Loader {
	return &Loader{client: client, dryrun: dryrun, cache: map[int]*bugmodel.Bug{}}
}

// Load fetches and parses tracker id, bypassing the cache -- the entry
// point the engine's crank loop uses for the tracker it is actively
// cranking (always fresh, never the cached copy a prior Lookup call may
// have produced).
func (l *Loader) Load(ctx context.Context, id int) (*bugmodel.Bug, error) {
	raw, err := l.client.GetBug(ctx, id)
	if err != nil {
		return nil, err
	}
	rootName := findRootTaskName(raw)
	if rootName == "" {
		return nil, &errkind.InvalidTrackerError{TrackerID: id, Cause: errNoRootTask}
	}
	bug, err := bugmodel.Load(raw, l.client, l, rootName, l.dryrun)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.cache[id] = bug
	l.mu.Unlock()
	return bug, nil
}

// Lookup implements bugmodel.Lookup: a cached fetch, since master-bug
// references are read-only lookups from the referring tracker's crank and
// never need to observe a concurrent mutation made within the same pass.
func (l *Loader) Lookup(id int) (*bugmodel.Bug, error) {
	l.mu.Lock()
	if bug, ok := l.cache[id]; ok {
		l.mu.Unlock()
		return bug, nil
	}
	l.mu.Unlock()
	return l.Load(context.Background(), id)
}

// errNoRootTask is wrapped by InvalidTrackerError when a fetched bug
// carries neither the SRU nor the development-series project task.
var errNoRootTask = rootTaskError{}

type rootTaskError struct{}

func (rootTaskError) Error() string {
	return "bug carries no kernel-sru-workflow/kernel-development-workflow task"
}
