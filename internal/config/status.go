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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// StatusRow is one tracker's summary row in the shared status.yaml
// ledger (§6's "status.yaml — mapping tracker-id -> summary").
type StatusRow struct {
	Cycle      string            `yaml:"cycle,omitempty"`
	Series     string            `yaml:"series,omitempty"`
	Package    string            `yaml:"package,omitempty"`
	Version    string            `yaml:"version,omitempty"`
	Phase      string            `yaml:"phase,omitempty"`
	Reason     string            `yaml:"reason,omitempty"`
	MasterBug  string            `yaml:"master-bug,omitempty"`
	Versions   map[string]string `yaml:"versions,omitempty"`
}

// StatusFile is the on-disk shape: tracker id (as a string key, since
// YAML mapping keys round-trip more predictably that way) to row.
type StatusFile map[string]StatusRow

// LoadStatus reads the status file at path, returning an empty StatusFile
// if it does not yet exist.
func LoadStatus(path string) (StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusFile{}, nil
		}
		return nil, fmt.Errorf("read status file %s: %w", path, err)
	}
	var sf StatusFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse status file %s: %w", path, err)
	}
	if sf == nil {
		sf = StatusFile{}
	}
	return sf, nil
}

// SaveStatus writes sf to path atomically: marshal to a temp file in the
// same directory, then rename over the destination (§6, §5's "Shared
// resources" invariant). The caller MUST hold the offset-1 status lock
// for the entire read-modify-write sequence this wraps.
func SaveStatus(path string, sf StatusFile) error {
	data, err := yaml.Marshal(sf)
	if err != nil {
		return fmt.Errorf("marshal status file: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*.yaml.tmp")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp status file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp status file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp status file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename status file into place: %w", err)
	}
	return nil
}

// Put sets id's row, used after a crank completes.
func (sf StatusFile) Put(id int, row StatusRow) {
	sf[fmt.Sprintf("%d", id)] = row
}

// Clean removes every row not present in liveIDs, the full-scan "drop
// stale trackers" step (§4.5, §9's resolved draft-divergence: remove on
// full scans only, never during a partial run over explicit ids).
func (sf StatusFile) Clean(liveIDs []int) {
	keep := make(map[string]bool, len(liveIDs))
	for _, id := range liveIDs {
		keep[fmt.Sprintf("%d", id)] = true
	}
	for k := range sf {
		if !keep[k] {
			delete(sf, k)
		}
	}
}

// IDs returns every tracker id currently present, sorted ascending.
func (sf StatusFile) IDs() []int {
	ids := make([]int, 0, len(sf))
	for k := range sf {
		var id int
		fmt.Sscanf(k, "%d", &id)
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
