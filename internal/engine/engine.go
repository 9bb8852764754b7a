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

// Package engine implements C5: the crank loop tying C1's tracker loader,
// C2's bug model, C3/C6's package/snap aggregators, and C4's handlers
// together under the swm.lock byte-range locking scheme (§4.5, §5).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/canonical/swm/internal/bugmodel"
	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/internal/config"
	"github.com/canonical/swm/internal/errkind"
	"github.com/canonical/swm/internal/gittag"
	"github.com/canonical/swm/internal/handlers"
	"github.com/canonical/swm/internal/lock"
	"github.com/canonical/swm/internal/log"
	"github.com/canonical/swm/internal/messaging"
	"github.com/canonical/swm/internal/metrics"
	"github.com/canonical/swm/internal/pkgset"
	"github.com/canonical/swm/internal/snapset"
	"github.com/canonical/swm/internal/tracker"
)

// Project is the Launchpad project enumerate() searches for live
// trackers. Both the SRU and development-series root task names resolve
// under it (§4.1).
const Project = "kernel-sru-workflow"

// liveTags are the tags a tracker must carry to be considered for
// enumeration, alongside bugmodel.LiveTag -- kept as a slice since a
// deployment may run multiple concurrent cycles, each potentially tagged
// differently, though in practice the one live tag covers every cycle.
var liveTags = []string{bugmodel.LiveTag}

// Options are the per-invocation behavior flags the CLI surface exposes
// (§6): dry-run preview, and the granular --no-* suppressions.
type Options struct {
	DryRun          bool
	NoAnnouncements bool
	NoAssignments   bool
	NoTimestamps    bool
	NoStatusChanges bool
	NoPhaseChanges  bool

	// Filter, if non-empty, is an expr-lang boolean expression evaluated
	// against each tracker's last-known status row (cycle, series,
	// package, phase, reason, tracker_id) before a full scan cranks it.
	// Trackers with no prior row (first time seen) are always kept,
	// since there is nothing yet to filter on.
	Filter string
}

// Engine owns every long-lived collaborator a crank pass needs.
type Engine struct {
	Tracker   *tracker.Client
	Loader    *tracker.Loader
	SnapStore snapset.StoreClient
	Catalog   *catalog.Catalog
	Tag       gittag.Checker
	Publish   messaging.Publisher
	Locks     *lock.Manager
	StatusPath string

	// archiveClient serves PackageSet's archive queries. It is Tracker
	// itself unless New was given a cache-wrapped client.
	archiveClient pkgset.ArchiveClient

	Options Options
	Clock   handlers.Clock
	Logger  *slog.Logger
	Tracer  trace.Tracer

	mu         sync.Mutex
	pkgSets    map[int]*pkgset.PackageSet
	ctxs       map[int]*handlers.Context
	filterProg *vm.Program
}

// New builds an Engine from its collaborators. Callers assemble the
// collaborators (tracker.Client, lock.Manager, catalog.Catalog, ...) at
// startup from config.Config and pass them in here. archiveClient serves
// PackageSet's archive queries; pass trackerClient itself unless a
// cache-wrapped client (pkgset.NewCachingClient) is in play.
func New(trackerClient *tracker.Client, snapStore snapset.StoreClient, cat *catalog.Catalog, tag gittag.Checker, publish messaging.Publisher, locks *lock.Manager, statusPath string, archiveClient pkgset.ArchiveClient, opts Options) *Engine {
	if archiveClient == nil {
		archiveClient = trackerClient
	}
	e := &Engine{
		Tracker:       trackerClient,
		Loader:        tracker.NewLoader(trackerClient, opts.DryRun),
		SnapStore:     snapStore,
		Catalog:       cat,
		Tag:           tag,
		Publish:       publish,
		Locks:         locks,
		StatusPath:    statusPath,
		archiveClient: archiveClient,
		Options:       opts,
		Clock:         handlers.SystemClock,
		Logger:        slog.Default(),
		Tracer:        otel.Tracer("github.com/canonical/swm/internal/engine"),
	}
	if opts.Filter != "" {
		if prog, err := expr.Compile(opts.Filter, expr.AsBool(), expr.AllowUndefinedVariables()); err == nil {
			e.filterProg = prog
		} else {
			e.Logger.Warn("ignoring invalid --filter expression", log.Attr("error", err))
		}
	}
	return e
}

// matchesFilter evaluates the compiled --filter expression against id's
// last-known status row. A tracker absent from the row (never cranked
// before) always matches: there is nothing yet to filter on, and
// dropping it would starve it of its first crank forever.
func (e *Engine) matchesFilter(id int, sf config.StatusFile) bool {
	if e.filterProg == nil {
		return true
	}
	row, ok := sf[fmt.Sprintf("%d", id)]
	if !ok {
		return true
	}
	env := map[string]interface{}{
		"tracker_id": id,
		"cycle":      row.Cycle,
		"series":     row.Series,
		"package":    row.Package,
		"phase":      row.Phase,
		"reason":     row.Reason,
		"master_bug": row.MasterBug,
	}
	result, err := expr.Run(e.filterProg, env)
	if err != nil {
		e.Logger.Warn("filter expression evaluation failed, keeping tracker", log.Int(log.TrackerIDKey, id), log.Attr("error", err))
		return true
	}
	ok, _ = result.(bool)
	return ok
}

// resetScanCaches clears the per-scan duplicate-package-set and
// master-bug-context caches. Called once per top-level Run/RunOne so
// stale data from a previous scan never leaks into this one.
func (e *Engine) resetScanCaches() {
	e.mu.Lock()
	e.pkgSets = map[int]*pkgset.PackageSet{}
	e.ctxs = map[int]*handlers.Context{}
	e.mu.Unlock()
}

// packageSetFor builds (or returns the cached) PackageSet for id, used
// both as the tracker's own package set and, via the bugVersions
// adapter's Duplicates(), for a duplicate tracker's occupancy check
// (§4.2's pocket_clear rule).
func (e *Engine) packageSetFor(id int) (*pkgset.PackageSet, bool) {
	e.mu.Lock()
	if ps, ok := e.pkgSets[id]; ok {
		e.mu.Unlock()
		return ps, true
	}
	e.mu.Unlock()

	bug, err := e.Loader.Lookup(id)
	if err != nil || bug == nil {
		return nil, false
	}
	_, src, series, err := e.resolve(bug)
	if err != nil || src == nil {
		return nil, false
	}
	vers := handlers.NewVersionsOf(bug, series, e.packageSetFor)
	ps, err := pkgset.New(src, series.Codename, e.archiveClient, vers)
	if err != nil {
		return nil, false
	}

	e.mu.Lock()
	e.pkgSets[id] = ps
	e.mu.Unlock()
	return ps, true
}

// resolve derives the series and source catalog entries for bug from its
// tags (series) and parsed title (source name), per §4.2.
func (e *Engine) resolve(bug *bugmodel.Bug) (string, *catalog.Source, *catalog.Series, error) {
	knownSeries := make([]string, 0, len(e.Catalog.SeriesList))
	for codename := range e.Catalog.SeriesList {
		knownSeries = append(knownSeries, codename)
	}
	sort.Strings(knownSeries)

	seriesCodename, err := bug.TargetSeries(knownSeries)
	if err != nil {
		return "", nil, nil, err
	}
	series, err := e.Catalog.LookupSeries(seriesCodename)
	if err != nil {
		return "", nil, nil, err
	}
	if bug.Parsed == nil {
		return seriesCodename, nil, series, &errkind.TitleUnparseableError{Title: bug.RawTitle}
	}
	src, err := series.LookupSource(bug.Parsed.Source)
	if err != nil {
		return "", nil, nil, err
	}
	return seriesCodename, src, series, nil
}

// LookupContext implements handlers.Lookup: builds (or returns the
// cached) evaluation Context for another tracker, used for master-bug
// gating (§9: handlers never construct a Context for another tracker
// themselves).
func (e *Engine) LookupContext(id int) (*handlers.Context, error) {
	e.mu.Lock()
	if c, ok := e.ctxs[id]; ok {
		e.mu.Unlock()
		return c, nil
	}
	e.mu.Unlock()

	bug, err := e.Loader.Lookup(id)
	if err != nil {
		return nil, err
	}
	c, err := e.buildContext(bug)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.ctxs[id] = c
	e.mu.Unlock()
	return c, nil
}

func (e *Engine) buildContext(bug *bugmodel.Bug) (*handlers.Context, error) {
	_, src, series, err := e.resolve(bug)
	if err != nil {
		return nil, err
	}
	ps, ok := e.packageSetFor(bug.ID)
	if !ok {
		return nil, &errkind.PackageError{Series: series.Codename, Source: src.Name, Reason: "package set construction failed"}
	}

	var snaps *snapset.SnapSet
	if len(src.Snaps) > 0 && e.SnapStore != nil {
		snaps = snapset.New(src, e.SnapStore)
	}

	c := handlers.NewContext(bug, series, src, ps, snaps, e.Tag, e.Publish, e)
	c.Clock = e.Clock
	c.DryRun = e.Options.DryRun
	c.NoAnnouncements = e.Options.NoAnnouncements
	c.NoAssignments = e.Options.NoAssignments
	c.NoTimestamps = e.Options.NoTimestamps
	c.NoStatusChanges = e.Options.NoStatusChanges
	c.NoPhaseChanges = e.Options.NoPhaseChanges
	return c, nil
}

// CrankOne runs one full crank of tracker id: acquire its lock, load it
// fresh, fixed-point-iterate every non-root task's handler, persist, and
// write its status row. It returns whether anything changed.
func (e *Engine) CrankOne(ctx context.Context, id int) (changed bool, err error) {
	ctx, span := e.Tracer.Start(ctx, "swm.crank", trace.WithAttributes(attribute.Int("swm.tracker_id", id)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	start := time.Now()
	lk, err := e.Locks.Acquire(ctx, id)
	if err != nil {
		return false, fmt.Errorf("acquire lock for tracker %d: %w", id, err)
	}
	defer func() {
		if relErr := lk.Release(); relErr != nil && err == nil {
			err = fmt.Errorf("release lock for tracker %d: %w", id, relErr)
		}
	}()

	bug, err := e.Loader.Load(ctx, id)
	if err != nil {
		var invalid *errkind.InvalidTrackerError
		if errors.As(err, &invalid) {
			metrics.RecordCrank("invalid", time.Since(start).Seconds(), 0)
			return false, nil
		}
		metrics.RecordCrank("error", time.Since(start).Seconds(), 0)
		return false, err
	}

	c, err := e.buildContext(bug)
	if err != nil {
		metrics.RecordCrank("error", time.Since(start).Seconds(), 0)
		return false, err
	}
	e.mu.Lock()
	e.ctxs[id] = c
	e.mu.Unlock()

	bug.ReasonResetAll()

	iterations := 0
	for {
		iterations++
		modified := false
		for _, name := range bug.SortedTaskNames() {
			if handlers.Crank(c, name) {
				modified = true
				if t := bug.Tasks[name]; t != nil {
					metrics.RecordTransition(name, string(t.Status))
				}
			}
		}
		if !modified {
			break
		}
		changed = true
		if iterations > 64 {
			// A fixed point that never settles is a handler defect, not a
			// transient condition; stop rather than spin the process.
			return changed, &errkind.WorkflowCrankError{Message: fmt.Sprintf("tracker %d did not reach a fixed point after 64 iterations", id)}
		}
	}

	if !e.Options.DryRun {
		if err := bug.Save(); err != nil {
			metrics.RecordCrank("error", time.Since(start).Seconds(), iterations)
			return changed, fmt.Errorf("save tracker %d: %w", id, err)
		}
	}

	if err := e.writeStatusRow(bug, c); err != nil {
		return changed, err
	}

	outcome := "unchanged"
	if changed {
		outcome = "changed"
	}
	metrics.RecordCrank(outcome, time.Since(start).Seconds(), iterations)
	return changed, nil
}

// writeStatusRow persists bug's summary row into status.yaml under the
// reserved status-file lock key (§4.5, §5).
func (e *Engine) writeStatusRow(bug *bugmodel.Bug, c *handlers.Context) error {
	lk, err := e.Locks.Acquire(context.Background(), lock.StatusKey)
	if err != nil {
		return fmt.Errorf("acquire status lock: %w", err)
	}
	defer lk.Release()

	sf, err := config.LoadStatus(e.StatusPath)
	if err != nil {
		return err
	}

	cycle, _ := bug.Tags.FindCycle()
	masterID, _, _ := bug.MasterBugID()
	row := config.StatusRow{
		Cycle:     cycle.String(),
		Series:    seriesCodenameOf(c),
		Package:   sourceNameOf(c),
		Version:   bug.Props.Versions["main"],
		Phase:     bug.Phase(),
		Reason:    rootReason(bug),
		MasterBug: masterID,
		Versions:  bug.Props.Versions,
	}
	sf.Put(bug.ID, row)
	return config.SaveStatus(e.StatusPath, sf)
}

func seriesCodenameOf(c *handlers.Context) string {
	if c == nil || c.Series == nil {
		return ""
	}
	return c.Series.Codename
}

func sourceNameOf(c *handlers.Context) string {
	if c == nil || c.Source == nil {
		return ""
	}
	return c.Source.Name
}

func rootReason(bug *bugmodel.Bug) string {
	root := bug.RootTask()
	if root == nil {
		return ""
	}
	return root.Reason()
}

// Run performs one full pass: if ids is empty, it enumerates every live
// tracker and, on completion, cleans stale rows from status.yaml; with an
// explicit id set it cranks exactly those trackers and leaves status.yaml
// rows for untouched trackers alone (§4.5, §6).
func (e *Engine) Run(ctx context.Context, ids []int) error {
	e.resetScanCaches()

	crankID := uuid.NewString()
	logger := log.WithCrank(e.Logger, crankID)

	ctx, span := e.Tracer.Start(ctx, "swm.run", trace.WithAttributes(attribute.String("swm.crank_id", crankID)))
	defer span.End()

	fullScan := len(ids) == 0
	var liveIDs []int
	if fullScan {
		enumerated, err := e.Tracker.Enumerate(ctx, Project, liveTags)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("enumerate live trackers: %w", err)
		}
		liveIDs = enumerated
		ids = enumerated

		if e.filterProg != nil {
			sf, err := config.LoadStatus(e.StatusPath)
			if err != nil {
				return fmt.Errorf("load status file for filtering: %w", err)
			}
			filtered := make([]int, 0, len(ids))
			for _, id := range ids {
				if e.matchesFilter(id, sf) {
					filtered = append(filtered, id)
				}
			}
			logger.Info("filter applied", log.Int("matched", len(filtered)), log.Int("enumerated", len(ids)))
			ids = filtered
		}
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := e.CrankOne(ctx, id); err != nil {
			logger.Error("crank failed", log.Int(log.TrackerIDKey, id), log.Attr("error", err))
		}
	}

	if fullScan {
		// cleanStatus uses the full enumeration, not the filtered crank
		// list: a tracker excluded by --filter this pass is still live
		// and must keep its status.yaml row.
		if err := e.cleanStatus(liveIDs); err != nil {
			return err
		}
		metrics.SetLiveTrackers(len(liveIDs))
	}
	return nil
}

// cleanStatus removes from status.yaml any tracker not present in
// liveIDs, the full-scan-only stale-row removal (§4.5, §9).
func (e *Engine) cleanStatus(liveIDs []int) error {
	lk, err := e.Locks.Acquire(context.Background(), lock.StatusKey)
	if err != nil {
		return fmt.Errorf("acquire status lock: %w", err)
	}
	defer lk.Release()

	sf, err := config.LoadStatus(e.StatusPath)
	if err != nil {
		return err
	}
	sf.Clean(liveIDs)
	return config.SaveStatus(e.StatusPath, sf)
}
