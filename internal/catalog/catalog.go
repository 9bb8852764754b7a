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

// Package catalog is the engine's read-only source catalog (C8): a tree of
// series -> sources -> packages/snaps/routing/testable-flavours, the same
// metadata the class-based PackagePockets form of the predecessor's
// kernel_versions.py exposed (preferred per spec.md §9's resolved Open
// Question over its free-function sibling).
package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/canonical/swm/internal/errkind"
	"github.com/canonical/swm/pkg/swmtypes"
)

// Route is one step of a logical pocket's routing list: an archive
// reference plus the upstream pocket name inside that archive.
type Route struct {
	Archive string `yaml:"archive"`
	Pocket  string `yaml:"pocket"`
}

// Repo describes the git repository backing a source, consulted by the
// git-tag existence check (internal/gittag).
type Repo struct {
	URL string `yaml:"url"`
}

// SnapSource describes one snap built from a kernel source.
type SnapSource struct {
	Name   string   `yaml:"name"`
	Tracks []string `yaml:"tracks"`
	Arches []string `yaml:"arches"`
}

// Source is one kernel source package within a series: its dependent
// package names, routing table, snaps, and testable flavours.
type Source struct {
	Name                 string                             `yaml:"name"`
	Packages             map[swmtypes.PackageType]string    `yaml:"packages"`
	Routing              map[swmtypes.Pocket][]Route        `yaml:"routing"`
	Snaps                map[string]*SnapSource             `yaml:"snaps"`
	TestableFlavours     []string                           `yaml:"testable-flavours"`
	DerivedFrom          string                             `yaml:"derived-from"`
	Repo                 *Repo                              `yaml:"repo"`
	NeedMasterInProposed bool                               `yaml:"need-master-in-proposed"`
	Component            string                             `yaml:"component"`
}

// RoutingFor returns the ordered route list for a logical pocket, or nil
// if the source has no routing entry for it (an empty route list, not an
// error — callers treat "no route" as "this pocket doesn't apply").
func (s *Source) RoutingFor(pocket swmtypes.Pocket) []Route {
	return s.Routing[pocket]
}

// Package returns the dependent package name for a type, and whether the
// source declares that type at all.
func (s *Source) Package(t swmtypes.PackageType) (string, bool) {
	name, ok := s.Packages[t]
	return name, ok
}

// PackageTypes returns the declared package types in a stable order
// (main first, then alphabetical), used wherever the engine needs to
// iterate "all dependent packages of this source".
func (s *Source) PackageTypes() []swmtypes.PackageType {
	types := make([]swmtypes.PackageType, 0, len(s.Packages))
	for t := range s.Packages {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i] == swmtypes.PackageMain {
			return true
		}
		if types[j] == swmtypes.PackageMain {
			return false
		}
		return types[i] < types[j]
	})
	return types
}

// Series is one Ubuntu release codename.
type Series struct {
	Codename    string             `yaml:"codename"`
	Development bool               `yaml:"development"`
	Supported   bool               `yaml:"supported"`
	ESM         bool               `yaml:"esm"`
	Sources     map[string]*Source `yaml:"sources"`
}

// LookupSource returns the named source within this series.
func (s *Series) LookupSource(name string) (*Source, error) {
	src, ok := s.Sources[name]
	if !ok {
		return nil, &errkind.SourceUnknownError{Series: s.Codename, Source: name}
	}
	return src, nil
}

// Catalog is the full read-only source catalog.
type Catalog struct {
	SeriesList map[string]*Series `yaml:"series"`
}

// LookupSeries returns the named series.
func (c *Catalog) LookupSeries(codename string) (*Series, error) {
	s, ok := c.SeriesList[codename]
	if !ok {
		return nil, &errkind.SeriesUnknownError{Series: codename}
	}
	return s, nil
}

// document is the on-disk shape of one catalog YAML file/fragment.
type document struct {
	Series map[string]*Series `yaml:"series"`
}

// LoadFile parses a single catalog YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &Catalog{SeriesList: doc.Series}, nil
}

// LoadGlob expands pattern (e.g. "kernel-series.d/*.yaml") and merges every
// matching file into one Catalog. Later files may add sources to a series
// already defined by an earlier file but may not redefine one — a
// dedicated split-catalog layout the engine's predecessor did not have,
// added here because a single monolithic kernel-series.yaml does not
// scale to the full archive of supported series.
func LoadGlob(pattern string) (*Catalog, error) {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expand catalog glob %s: %w", pattern, err)
	}
	sort.Strings(matches)

	merged := &Catalog{SeriesList: map[string]*Series{}}
	for _, path := range matches {
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for codename, series := range c.SeriesList {
			existing, ok := merged.SeriesList[codename]
			if !ok {
				merged.SeriesList[codename] = series
				continue
			}
			for name, src := range series.Sources {
				if _, dup := existing.Sources[name]; dup {
					return nil, fmt.Errorf("duplicate source %q in series %q across catalog fragments", name, codename)
				}
				if existing.Sources == nil {
					existing.Sources = map[string]*Source{}
				}
				existing.Sources[name] = src
			}
		}
	}
	return merged, nil
}
