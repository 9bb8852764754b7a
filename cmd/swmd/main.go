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

// Command swmd runs swm's full-scan pass on a ticker, watches swmd.yaml
// and the source catalog for changes, and serves a Prometheus exporter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/canonical/swm/internal/bootstrap"
	"github.com/canonical/swm/internal/config"
	"github.com/canonical/swm/internal/engine"
	"github.com/canonical/swm/internal/log"
	"github.com/canonical/swm/internal/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
)

// guardedEngine lets the watch loop swap out the active *engine.Engine
// after a config/catalog reload without the ticker goroutine observing a
// half-built engine.
type guardedEngine struct {
	mu  sync.RWMutex
	eng *engine.Engine
}

func (g *guardedEngine) get() *engine.Engine {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.eng
}

func (g *guardedEngine) set(eng *engine.Engine) {
	g.mu.Lock()
	g.eng = eng
	g.mu.Unlock()
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to swmd.yaml")
		staging     = flag.Bool("staging", false, "target the staging tracker/archive endpoints")
		filter      = flag.String("filter", "", "expr-lang predicate over a tracker's last-known status row, applied to each full scan")
		showVersion = flag.Bool("version", false, "show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("swmd %s (commit: %s)\n", version, commit)
		return
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	eng, cleanup, err := bootstrap.Engine(bootstrap.Options{
		ConfigPath: *configPath,
		Staging:    *staging,
		Logger:     logger,
		RunOptions: engine.Options{Filter: *filter},
	})
	if err != nil {
		logger.Error("initialize engine", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	guarded := &guardedEngine{eng: eng}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, stopping after current pass", "signal", sig.String())
		cancel()
	}()

	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	go watchReload(ctx, *configPath, *staging, *filter, cfg, logger, guarded)

	runLoop(ctx, guarded, cfg.ScanInterval, logger)
}

// runLoop drives the unattended full-scan ticker (§4.5's scheduler
// loop): one pass immediately, then one per ScanInterval, until ctx is
// canceled.
func runLoop(ctx context.Context, guarded *guardedEngine, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	pass := func() {
		eng := guarded.get()
		if eng == nil {
			return
		}
		start := time.Now()
		if err := eng.Run(ctx, nil); err != nil {
			logger.Error("full scan failed", "error", err)
			return
		}
		logger.Info("full scan complete", "duration", time.Since(start).String())
	}

	pass()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass()
		}
	}
}

// watchReload watches swmd.yaml and the source catalog for changes and
// rebuilds the engine in place, the same debounced-restart shape
// internal/mcp's file watcher uses for MCP server source changes.
func watchReload(ctx context.Context, configPath string, staging bool, filter string, cfg *config.Config, logger *slog.Logger, guarded *guardedEngine) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("catalog/config hot-reload disabled", "error", err)
		return
	}
	defer watcher.Close()

	watchPaths := []string{cfg.Catalog.Path}
	if configPath != "" {
		watchPaths = append(watchPaths, configPath)
	}
	for _, p := range watchPaths {
		if p == "" {
			continue
		}
		if err := watcher.Add(p); err != nil {
			logger.Warn("watch path failed", "path", p, "error", err)
		}
	}

	var debounce *time.Timer
	reload := func() {
		newEng, _, err := bootstrap.Engine(bootstrap.Options{ConfigPath: configPath, Staging: staging, Logger: logger, RunOptions: engine.Options{Filter: filter}})
		if err != nil {
			logger.Error("reload after catalog/config change failed, keeping previous engine", "error", err)
			return
		}
		guarded.set(newEng)
		logger.Info("catalog/config reloaded")
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(500*time.Millisecond, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("catalog/config watch error", "error", err)
		}
	}
}
