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

// Command swm runs one crank pass over some or all live kernel SRU
// tracking bugs, then exits. For the always-on service, see cmd/swmd.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/canonical/swm/internal/bootstrap"
	"github.com/canonical/swm/internal/config"
	"github.com/canonical/swm/internal/engine"
	"github.com/canonical/swm/internal/log"
	"github.com/canonical/swm/internal/mcpserve"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		dryrun          bool
		sauron          bool
		noAnnouncements bool
		noAssignments   bool
		noTimestamps    bool
		noStatusChanges bool
		noPhaseChanges  bool
		localMsgPort    int
		staging         bool
		configPath      string
		filter          string
	)

	cmd := &cobra.Command{
		Use:   "swm [tracker-id ...]",
		Short: "Crank Ubuntu kernel SRU tracking bugs through the release pipeline",
		Long: `swm evaluates one pass of the kernel SRU workflow state machine.

With explicit tracker ids, only those trackers are cranked. Without ids,
every live tracker is enumerated, cranked, and status.yaml is pruned of
any tracker no longer live.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, a := range args {
				id, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("invalid tracker id %q: %w", a, err)
				}
				ids = append(ids, id)
			}

			logger := log.New(log.FromEnv())

			eng, cleanup, err := bootstrap.Engine(bootstrap.Options{
				ConfigPath: configPath,
				Staging:    staging,
				Logger:     logger,
				RunOptions: engine.Options{
					DryRun:          dryrun,
					NoAnnouncements: noAnnouncements,
					NoAssignments:   noAssignments,
					NoTimestamps:    noTimestamps,
					NoStatusChanges: noStatusChanges,
					NoPhaseChanges:  noPhaseChanges,
					Filter:          filter,
				},
			})
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			defer cleanup()

			if sauron {
				logger.Info("sauron mode: watching every tracker's evaluation in detail")
			}
			if localMsgPort != 0 {
				logger.Info("local message queue override", log.Int("port", localMsgPort))
			}

			return eng.Run(context.Background(), ids)
		},
	}

	cmd.Flags().BoolVar(&dryrun, "dryrun", false, "evaluate without writing any change back to the tracker")
	cmd.Flags().BoolVar(&sauron, "sauron", false, "log that sauron mode is on; no further per-handler detail is logged")
	cmd.Flags().BoolVar(&noAnnouncements, "no-announcements", false, "suppress comments and test-request messages")
	cmd.Flags().BoolVar(&noAssignments, "no-assignments", false, "suppress task assignee changes")
	cmd.Flags().BoolVar(&noTimestamps, "no-timestamps", false, "suppress SWM-property timestamp updates")
	cmd.Flags().BoolVar(&noStatusChanges, "no-status-changes", false, "suppress task status transitions")
	cmd.Flags().BoolVar(&noPhaseChanges, "no-phase-changes", false, "suppress kernel-phase tag/property updates")
	cmd.Flags().IntVar(&localMsgPort, "local-msgqueue-port", 0, "local message broker port; the value is only logged, and messages still go to the configured webhook")
	cmd.Flags().BoolVar(&staging, "staging", false, "target the staging tracker/archive endpoints")
	cmd.Flags().StringVar(&configPath, "config", "", "path to swmd.yaml (default: ~/.config/swm/swmd.yaml)")
	cmd.Flags().StringVar(&filter, "filter", "", "expr-lang predicate over a tracker's last-known status row (cycle, series, package, phase, reason); only applies to a full scan (no explicit tracker-id args)")

	cmd.AddCommand(versionCommand())
	cmd.AddCommand(mcpServeCommand(&configPath))
	cmd.AddCommand(authCommand(&configPath))

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("swm %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

// mcpServeCommand serves status.yaml as read-only MCP tools over stdio,
// for an assistant session to query tracker state without shelling out.
func mcpServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-serve",
		Short: "Serve status.yaml as read-only MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			srv := mcpserve.New(cfg.Status.Path, version)
			return srv.Run(context.Background())
		},
	}
}
