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

// Package bootstrap assembles an *engine.Engine from swmd.yaml: the one
// place cmd/swm and cmd/swmd share for wiring config, credentials, the
// catalog, and every collaborator C5 drives.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/canonical/swm/internal/catalog"
	"github.com/canonical/swm/internal/config"
	"github.com/canonical/swm/internal/engine"
	"github.com/canonical/swm/internal/gittag"
	"github.com/canonical/swm/internal/lock"
	"github.com/canonical/swm/internal/messaging"
	"github.com/canonical/swm/internal/pkgset"
	"github.com/canonical/swm/internal/snapset"
	"github.com/canonical/swm/internal/tracker"
	"github.com/canonical/swm/internal/tracing"
)

// stagingTrackerBaseURL and stagingArchiveBaseURL are the staging
// Launchpad endpoints --staging targets instead of production (§6).
const (
	stagingTrackerBaseURL = "https://api.staging.launchpad.net/devel"
	stagingArchiveBaseURL = "https://api.staging.launchpad.net/devel/ubuntu/+archive/primary"
)

// Options configures Engine.
type Options struct {
	ConfigPath string
	Staging    bool
	Logger     *slog.Logger
	RunOptions engine.Options
}

// Engine loads swmd.yaml, builds every collaborator, and returns a ready
// *engine.Engine plus a cleanup func releasing the lock file.
func Engine(opts Options) (*engine.Engine, func(), error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	trackerBaseURL := cfg.Tracker.BaseURL
	archiveBaseURL := cfg.Tracker.ArchiveURL
	if opts.Staging {
		trackerBaseURL = stagingTrackerBaseURL
		archiveBaseURL = stagingArchiveBaseURL
	}

	credDir := cfg.Tracker.CredentialDir
	if credDir == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, nil, fmt.Errorf("resolve credential dir: %w", err)
		}
		credDir = dir
	}
	store := tracker.NewCredentialStore(credDir)
	tokenSource, err := tracker.CachedTokenSource(context.Background(), store, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("load cached credentials: %w", err)
	}

	trackerClient := tracker.New(tracker.Config{
		BaseURL:     trackerBaseURL,
		TokenSource: tokenSource,
		RateLimit:   rate.Limit(cfg.Tracker.RateLimit),
	})
	_ = archiveBaseURL // archive operations share the tracker base in this client; kept for future split endpoints

	cat, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog %s: %w", cfg.Catalog.Path, err)
	}

	var snapStore snapset.StoreClient
	if cfg.SnapStore.BaseURL != "" {
		snapStore = tracker.NewSnapStoreClient(cfg.SnapStore.BaseURL)
	}

	tagChecker := gittag.NewHTTPChecker(30 * time.Second)

	publisher := messaging.Publisher(messaging.NoopPublisher{})
	if cfg.Messaging.WebhookURL != "" {
		var signingKey []byte
		if cfg.Messaging.SigningKeyEnv != "" {
			signingKey = []byte(os.Getenv(cfg.Messaging.SigningKeyEnv))
		}
		publisher = messaging.NewHTTPPublisher(cfg.Messaging.WebhookURL, signingKey)
	}

	locks, err := lock.Open(cfg.Status.LockPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open lock file %s: %w", cfg.Status.LockPath, err)
	}

	tracerProvider, err := tracing.NewProvider(context.Background(), tracing.Config{
		ServiceName:  "swm",
		Exporter:     tracing.Exporter(cfg.Tracing.Exporter),
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("set up tracing: %w", err)
	}

	var archiveClient pkgset.ArchiveClient = trackerClient
	var archiveCache *pkgset.CachingClient
	if cfg.ArchiveCache.Path != "" {
		archiveCache, err = pkgset.NewCachingClient(trackerClient, cfg.ArchiveCache.Path, cfg.ArchiveCache.TTL)
		if err != nil {
			if opts.Logger != nil {
				opts.Logger.Warn("archive cache disabled", "error", err)
			}
		} else {
			archiveClient = archiveCache
		}
	}

	eng := engine.New(trackerClient, snapStore, cat, tagChecker, publisher, locks, cfg.Status.Path, archiveClient, opts.RunOptions)
	if opts.Logger != nil {
		eng.Logger = opts.Logger
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil && opts.Logger != nil {
			opts.Logger.Warn("shut down tracer provider", "error", err)
		}
		if archiveCache != nil {
			if err := archiveCache.Close(); err != nil && opts.Logger != nil {
				opts.Logger.Warn("close archive cache", "error", err)
			}
		}
		if err := locks.Close(); err != nil && opts.Logger != nil {
			opts.Logger.Warn("close lock file", "error", err)
		}
	}
	return eng, cleanup, nil
}
