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
	"fmt"
	"sort"
	"time"

	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/internal/errkind"
	"github.com/canonical/swm/internal/version"
	"github.com/canonical/swm/pkg/swmtypes"
)

// pocketAlias is the cache key the original addresses as "ppa": the
// route used for the PPA/build-archive step of the scan list, whichever
// of build/build-private it resolves to for a given dependent package.
const pocketAlias = swmtypes.Pocket("ppa")

// VersionsOf names the per-type version a tracker has recorded, mirroring
// the SWM property bag's "versions" map (bugmodel.Properties.Versions)
// without importing bugmodel; handlers (C4) supply the implementation.
type VersionsOf interface {
	Version(pkgType string) (string, bool)
	MainVersion() string
	MainKernel() string
	MainABI() string
	TaskStatus(taskName string) (swmtypes.TaskStatus, bool)
	Development() bool
	Duplicates() []DuplicatePackageSet
}

// DuplicatePackageSet is the minimal view of a duplicate tracker's
// package set pocket_clear needs: whether it owns the binaries occupying
// a pocket (§4.2's duplicate-occupancy rule).
type DuplicatePackageSet struct {
	ID                  int
	AllBuiltAndInPocket func(pocket swmtypes.Pocket) bool
}

// PackageSet is C3: the per-tracker build-status aggregator (Debs).
type PackageSet struct {
	Source *catalog.Source
	Series string
	Client ArchiveClient
	Bug    VersionsOf

	scanPockets []swmtypes.Pocket
	adjunct     map[swmtypes.PackageType]bool

	cache map[swmtypes.PackageType]map[swmtypes.Pocket]*PackageBuild
	built map[swmtypes.PackageType]string // type -> "build#N", mirrors bprops["built"]
}

// New builds a PackageSet for one tracker's source within series.
func New(src *catalog.Source, series string, client ArchiveClient, bug VersionsOf) (*PackageSet, error) {
	if src == nil {
		return nil, &errkind.PackageError{Series: series, Reason: "no source resolved for this tracker"}
	}
	ps := &PackageSet{
		Source: src,
		Series: series,
		Client: client,
		Bug:    bug,
		cache:  map[swmtypes.PackageType]map[swmtypes.Pocket]*PackageBuild{},
		built:  map[swmtypes.PackageType]string{},
	}
	if bug.Development() {
		ps.scanPockets = []swmtypes.Pocket{swmtypes.PocketSigning, swmtypes.PocketProposed, swmtypes.PocketAsProposed, swmtypes.PocketRelease}
	} else {
		ps.scanPockets = []swmtypes.Pocket{swmtypes.PocketSigning, swmtypes.PocketProposed, swmtypes.PocketAsProposed, swmtypes.PocketSecurity, swmtypes.PocketUpdates}
	}
	return ps, nil
}

// DependentPackages returns every declared dependent package type, main
// first then alphabetical (catalog.Source.PackageTypes).
func (ps *PackageSet) DependentPackages() []swmtypes.PackageType {
	return ps.Source.PackageTypes()
}

// DependentPackagesForPocket excludes `lrg` outside its signing-only
// route, matching the original's dependent_packages_for_pocket.
func (ps *PackageSet) DependentPackagesForPocket(pocket swmtypes.Pocket) []swmtypes.PackageType {
	var out []swmtypes.PackageType
	for _, t := range ps.DependentPackages() {
		if t == swmtypes.PackageLRG && pocket != pocketAlias && pocket != swmtypes.PocketBuildPrivate && pocket != swmtypes.PocketSigning {
			continue
		}
		out = append(out, t)
	}
	return out
}

// adjunctPackage reports whether a package type builds in the private
// build archive (ancillary_package_for(pkg) == "lrm").
func (ps *PackageSet) adjunctPackage(t swmtypes.PackageType) bool {
	anc := ""
	if t == swmtypes.PackageLRG || t == swmtypes.PackageLRS {
		anc = "lrm"
	}
	return anc == "lrm"
}

// packageVersion resolves the (version, abi, sloppy) triple used to
// search for a dependent package's publication, per §4.3's version
// matching rule and the original's package_version/ __determine_build_status.
func (ps *PackageSet) packageVersion(t swmtypes.PackageType) (ver, abi string, sloppy bool) {
	if v, ok := ps.Bug.Version(string(t)); ok && v != "" {
		return v, "", false
	}
	switch t {
	case swmtypes.PackageLBM:
		return ps.Bug.MainKernel() + "-" + ps.Bug.MainABI(), ps.Bug.MainABI(), true
	case swmtypes.PackageMeta, swmtypes.PackagePortsMeta:
		return ps.Bug.MainKernel() + "." + ps.Bug.MainABI(), ps.Bug.MainABI(), true
	default:
		return ps.Bug.MainVersion(), "", true
	}
}

// ensureAll lazily populates the cache for every (type, pocket) pair
// reachable from the scan list, per §4.3's "lazily-built cache" contract.
// It is a single driving pass rather than truly per-attribute lazy, since
// the predicates below need the full grid to fold over; the memoization
// still guarantees at most one archive round-trip per pair per crank.
func (ps *PackageSet) ensureAll(ctx context.Context) error {
	for _, t := range ps.DependentPackages() {
		if _, ok := ps.cache[t]; ok {
			continue
		}
		ps.cache[t] = map[swmtypes.Pocket]*PackageBuild{}

		pkgName, ok := ps.Source.Package(t)
		if !ok {
			continue
		}
		ver, abi, sloppy := ps.packageVersion(t)

		first := swmtypes.PocketBuild
		if ps.adjunctPackage(t) {
			first = swmtypes.PocketBuildPrivate
		}
		pockets := append([]swmtypes.Pocket{first}, ps.scanPockets...)

		for i, pocket := range pockets {
			routes := ps.Source.RoutingFor(pocket)
			if routes == nil {
				continue
			}
			for _, r := range routes {
				if r.Archive == "" {
					return &errkind.WorkflowCrankError{Message: fmt.Sprintf("routing table entry %s invalid for %s", pocket, pkgName)}
				}
			}
			pb := newPackageBuild(t, pocket, routes, ps.Series, pkgName, ver, abi, sloppy)
			if err := pb.ensure(ctx, ps.Client); err != nil {
				return err
			}
			ps.cache[t][pocket] = pb
			if i == 0 {
				ps.cache[t][pocketAlias] = pb
			}
			if (pocket == swmtypes.PocketBuild || pocket == swmtypes.PocketBuildPrivate) && pb.Found {
				ps.built[t] = fmt.Sprintf("build#%d", i+1)
			}
		}
	}
	return nil
}

// Get returns the memoized PackageBuild for (type, pocket), driving the
// archive queries on first access.
func (ps *PackageSet) Get(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) (*PackageBuild, bool) {
	if err := ps.ensureAll(ctx); err != nil {
		return nil, false
	}
	pb, ok := ps.cache[t][pocket]
	return pb, ok
}

// BuiltArchiveRoutes returns the type->"build#N" map recording which
// build archive produced each artifact, for persistence into SWM
// properties' "built" map.
func (ps *PackageSet) BuiltArchiveRoutes() map[swmtypes.PackageType]string {
	out := make(map[swmtypes.PackageType]string, len(ps.built))
	for k, v := range ps.built {
		out[k] = v
	}
	return out
}

func (ps *PackageSet) pkgBuilt(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) bool {
	pb, ok := ps.Get(ctx, t, pocket)
	return ok && pb.built
}

func (ps *PackageSet) pkgFound(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) bool {
	pb, ok := ps.Get(ctx, t, pocket)
	return ok && pb.Found
}

// AllInPocket reports whether every dependent package for pocket has any
// publication there at all (built or not).
func (ps *PackageSet) AllInPocket(ctx context.Context, pocket swmtypes.Pocket) bool {
	for _, t := range ps.DependentPackagesForPocket(pocket) {
		if !ps.pkgFound(ctx, t, pocket) {
			return false
		}
	}
	return true
}

// AllBuiltAndInPocket is §4.3's all_built_and_in_pocket(P).
func (ps *PackageSet) AllBuiltAndInPocket(ctx context.Context, pocket swmtypes.Pocket) bool {
	for _, t := range ps.DependentPackagesForPocket(pocket) {
		if !ps.pkgBuilt(ctx, t, pocket) {
			return false
		}
	}
	return true
}

// AllBuiltInSrcDst reports whether every dependent package for dst is
// built in either src or dst.
func (ps *PackageSet) AllBuiltInSrcDst(ctx context.Context, src, dst swmtypes.Pocket) bool {
	for _, t := range ps.DependentPackagesForPocket(dst) {
		if !ps.pkgBuilt(ctx, t, src) && !ps.pkgBuilt(ctx, t, dst) {
			return false
		}
	}
	return true
}

func (ps *PackageSet) pocketsFrom(from swmtypes.Pocket) []swmtypes.Pocket {
	var out []swmtypes.Pocket
	found := false
	for _, p := range ps.scanPockets {
		if p == from {
			found = true
		}
		if found {
			out = append(out, p)
		}
	}
	return out
}

// PocketAfter returns the pocket immediately following from in the scan
// sequence.
func (ps *PackageSet) PocketAfter(from swmtypes.Pocket) (swmtypes.Pocket, bool) {
	pockets := ps.pocketsFrom(from)
	if len(pockets) < 2 {
		return "", false
	}
	return pockets[1], true
}

// BuiltAndInPocketOrAfter reports whether pkg is built in pocket or any
// later pocket in the scan sequence.
func (ps *PackageSet) BuiltAndInPocketOrAfter(ctx context.Context, t swmtypes.PackageType, pocket swmtypes.Pocket) bool {
	for _, p := range ps.pocketsFrom(pocket) {
		if ps.pkgBuilt(ctx, t, p) {
			return true
		}
	}
	return false
}

// pkgTask names the prepare-package[-*] task for a dependent package.
func pkgTask(t swmtypes.PackageType) string {
	if t == swmtypes.PackageMain {
		return "prepare-package"
	}
	return "prepare-package-" + string(t)
}

// DeltaSrcDst is §4.3's delta_src_dst(src, dst): dependent packages
// present in src and not yet in dst or later.
func (ps *PackageSet) DeltaSrcDst(ctx context.Context, src, dst swmtypes.Pocket) []swmtypes.PackageType {
	var out []swmtypes.PackageType
	for _, t := range ps.DependentPackagesForPocket(dst) {
		inSrc := ps.pkgFound(ctx, t, src)
		inDst := false
		for _, p := range ps.pocketsFrom(dst) {
			if ps.pkgBuilt(ctx, t, p) {
				inDst = true
				break
			}
		}
		if inSrc && !inDst {
			out = append(out, t)
			continue
		}
		if src == pocketAlias {
			if status, ok := ps.Bug.TaskStatus(pkgTask(t)); ok && status != swmtypes.StatusFixReleased && status != swmtypes.StatusInvalid {
				out = append(out, t)
			}
		}
	}
	return out
}

// DeltaInPocket reports whether every package type in delta has any
// publication in pocket.
func (ps *PackageSet) DeltaInPocket(ctx context.Context, delta []swmtypes.PackageType, pocket swmtypes.Pocket) bool {
	for _, t := range delta {
		if !ps.pkgFound(ctx, t, pocket) {
			return false
		}
	}
	return true
}

// AllBuiltAndInPocketFor is §4.3's all_built_and_in_pocket_for(P, D): as
// AllBuiltAndInPocket plus a minimum dwell time since the most recent
// publish/build event. If the dwell has not yet elapsed it returns the
// timestamp at which it will, so the caller can register a refresh_at
// request (§9's suspension-point note); correctness never depends on
// that rescan actually happening.
func (ps *PackageSet) AllBuiltAndInPocketFor(ctx context.Context, pocket swmtypes.Pocket, period time.Duration) (ready bool, recheckAt time.Time) {
	if !ps.AllBuiltAndInPocket(ctx, pocket) {
		return false, time.Time{}
	}
	var latest time.Time
	for _, t := range ps.DependentPackagesForPocket(pocket) {
		pb, ok := ps.Get(ctx, t, pocket)
		if !ok {
			continue
		}
		candidate := pb.Published
		if pb.MostRecent.After(candidate) {
			candidate = pb.MostRecent
		}
		if candidate.After(latest) {
			latest = candidate
		}
	}
	if latest.IsZero() {
		return false, time.Time{}
	}
	deadline := latest.Add(period)
	if deadline.Before(time.Now()) {
		return true, time.Time{}
	}
	return false, deadline
}

// PocketClear is §4.3's pocket_clear(P, pockets_after): every package's
// version in P is either absent or <= its version in some later pocket.
// Duplicates that own the binaries occupying P count as "same version"
// (§4.2).
func (ps *PackageSet) PocketClear(ctx context.Context, pocket swmtypes.Pocket, pocketsAfter []swmtypes.Pocket) bool {
	clear := true
	for _, t := range ps.DependentPackages() {
		pb, ok := ps.Get(ctx, t, pocket)
		if !ok {
			continue
		}
		found := pb.Version == ""
		for _, next := range pocketsAfter {
			if found {
				break
			}
			nb, ok := ps.Get(ctx, t, next)
			if !ok {
				continue
			}
			if pb.Version != "" && nb.Version != "" && version.Compare(pb.Version, nb.Version) <= 0 {
				found = true
			}
			inDepsForNext := false
			for _, dt := range ps.DependentPackagesForPocket(next) {
				if dt == t {
					inDepsForNext = true
					break
				}
			}
			if !inDepsForNext {
				found = true
			}
		}
		if !found {
			clear = false
		}
	}
	if clear {
		return true
	}

	for _, dup := range ps.Bug.Duplicates() {
		if dup.AllBuiltAndInPocket != nil && dup.AllBuiltAndInPocket(pocket) {
			return true
		}
	}
	return false
}

// ReadyForTesting is §4.3's ready_for_testing: built and resident in
// Proposed for at least 1h on the primary archive, 0h on a PPA route.
func (ps *PackageSet) ReadyForTesting(ctx context.Context) (bool, time.Time) {
	routes := ps.Source.RoutingFor(swmtypes.PocketProposed)
	delay := time.Hour
	if len(routes) > 0 && routes[0].Archive != "ubuntu" {
		delay = 0
	}
	return ps.AllBuiltAndInPocketFor(ctx, swmtypes.PocketProposed, delay)
}

// ReadyForSecurity is §4.3's ready_for_security.
func (ps *PackageSet) ReadyForSecurity(ctx context.Context) (bool, time.Time) {
	if ps.AllBuiltAndInPocket(ctx, swmtypes.PocketSecurity) {
		return true, time.Time{}
	}
	return ps.AllBuiltAndInPocketFor(ctx, swmtypes.PocketUpdates, 4*time.Hour)
}

// OlderTrackerInProposed is the supplemented cycle-ordering gate from
// original package.py: a tracker targeting the same series+source with
// an older cycle that has reached Proposed but not yet Updates/Release
// blocks this tracker's own promotion, preventing out-of-order releases.
func (ps *PackageSet) OlderTrackerInProposed(selfID int, targets []TargetTrackerState) (blockerID int, blocked bool) {
	for _, t := range targets {
		if t.ID == selfID {
			return 0, false
		}
		ptp := t.Tasks["promote-to-proposed"]
		ptu, ok := t.Tasks["promote-to-updates"]
		if !ok {
			ptu = t.Tasks["promote-to-release"]
		}
		if ptp == swmtypes.StatusFixReleased && ptu != swmtypes.StatusFixReleased && ptu != swmtypes.StatusInvalid {
			return t.ID, true
		}
	}
	return 0, false
}

// TargetTrackerState is one entry of the cycle-ordered target-tracker
// list OlderTrackerInProposed walks.
type TargetTrackerState struct {
	ID    int
	Tasks map[string]swmtypes.TaskStatus
}

// sortedPackageTypes is a small helper kept for callers that need a
// deterministic package ordering outside catalog.Source.PackageTypes
// (e.g. reporting), matching main-first-then-alphabetical.
func sortedPackageTypes(types []swmtypes.PackageType) []swmtypes.PackageType {
	out := append([]swmtypes.PackageType(nil), types...)
	sort.Slice(out, func(i, j int) bool {
		if out[i] == swmtypes.PackageMain {
			return true
		}
		if out[j] == swmtypes.PackageMain {
			return false
		}
		return out[i] < out[j]
	})
	return out
}
