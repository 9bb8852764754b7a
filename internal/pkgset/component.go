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

	"github.com/canonical/swm/pkg/swmtypes"
)

// ComponentResult is the outcome of CheckComponentInPocket: Decided is
// false while the dependent packages are still arriving in the pocket
// (mirrors the original's None sentinel -- "come back later").
type ComponentResult struct {
	Decided    bool
	OK         bool
	Mismatches []ComponentMismatch
}

// ComponentMismatch names one dependent package published into the wrong
// archive component.
type ComponentMismatch struct {
	Package swmtypes.PackageType
	Want    string
	Got     string
}

// expectedComponent derives the component a dependent package must land
// in given the primary source's resolved component, per §4.3's
// component-correctness rule.
func expectedComponent(t swmtypes.PackageType, primary string) string {
	if t == swmtypes.PackageLRM || t == swmtypes.PackageLRG || t == swmtypes.PackageLRS {
		if primary == "main" {
			return "restricted"
		}
		return "multiverse"
	}
	return primary
}

// CheckComponentInPocket verifies every dependent package published into
// pocket landed in the archive component matching the primary source's
// component there, per §4.3. A PPA route has no component concept and is
// always reported OK.
func (ps *PackageSet) CheckComponentInPocket(ctx context.Context, pocket swmtypes.Pocket) (ComponentResult, error) {
	routes := ps.Source.RoutingFor(pocket)
	if len(routes) == 0 {
		return ComponentResult{Decided: true, OK: true}, nil
	}
	if len(routes[0].Archive) > 0 && routes[0].Archive[0] == '~' {
		return ComponentResult{Decided: true, OK: true}, nil
	}

	if !ps.AllBuiltAndInPocket(ctx, pocket) {
		return ComponentResult{Decided: false}, nil
	}

	mainBuild, ok := ps.Get(ctx, swmtypes.PackageMain, pocket)
	if !ok || mainBuild.ComponentName == "" {
		return ComponentResult{Decided: false}, nil
	}
	primary := mainBuild.ComponentName

	var mismatches []ComponentMismatch
	for _, t := range ps.DependentPackagesForPocket(pocket) {
		pb, ok := ps.Get(ctx, t, pocket)
		if !ok || !pb.Found {
			continue
		}
		want := expectedComponent(t, primary)
		if pb.ComponentName != "" && pb.ComponentName != want {
			mismatches = append(mismatches, ComponentMismatch{Package: t, Want: want, Got: pb.ComponentName})
		}
	}

	return ComponentResult{Decided: true, OK: len(mismatches) == 0, Mismatches: mismatches}, nil
}
