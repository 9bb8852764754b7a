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

// Package mcpserve exposes status.yaml as read-only MCP tools, so an
// assistant session can answer "where is tracker N" or "what's live
// right now" without shelling out to swm itself.
package mcpserve

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/canonical/swm/internal/config"
)

// Server wraps the MCP server exposing swm_status and swm_tracker.
type Server struct {
	mcpServer  *server.MCPServer
	statusPath string
	logger     *slog.Logger
}

// New builds a Server reading status rows from statusPath on every call
// (status.yaml is small and rewritten wholesale, so there is no reason
// to cache it across calls).
func New(statusPath, version string) *Server {
	mcpServer := server.NewMCPServer("swm", version)
	s := &Server{
		mcpServer:  mcpServer,
		statusPath: statusPath,
		logger:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "swm_status",
		Description: "List every tracker currently recorded in status.yaml, optionally filtered by series codename. Read-only.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"series": map[string]interface{}{
					"type":        "string",
					"description": "Only return trackers targeting this series codename (e.g. 'noble')",
				},
			},
		},
	}, s.handleStatus)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "swm_tracker",
		Description: "Return the status.yaml row for one tracker id: its cycle, series, package, phase, and reason. Read-only.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"tracker_id": map[string]interface{}{
					"type":        "integer",
					"description": "The tracking bug id",
				},
			},
			Required: []string{"tracker_id"},
		},
	}, s.handleTracker)
}

// Run serves the tools over stdio until the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting swm MCP server")
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}

type trackerRow struct {
	TrackerID int               `json:"tracker_id"`
	Cycle     string            `json:"cycle,omitempty"`
	Series    string            `json:"series,omitempty"`
	Package   string            `json:"package,omitempty"`
	Version   string            `json:"version,omitempty"`
	Phase     string            `json:"phase,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	MasterBug string            `json:"master_bug,omitempty"`
	Versions  map[string]string `json:"versions,omitempty"`
}

func toRow(id int, row config.StatusRow) trackerRow {
	return trackerRow{
		TrackerID: id,
		Cycle:     row.Cycle,
		Series:    row.Series,
		Package:   row.Package,
		Version:   row.Version,
		Phase:     row.Phase,
		Reason:    row.Reason,
		MasterBug: row.MasterBug,
		Versions:  row.Versions,
	}
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sf, err := config.LoadStatus(s.statusPath)
	if err != nil {
		return errorResult(fmt.Sprintf("load status file: %v", err)), nil
	}

	seriesFilter := request.GetString("series", "")

	ids := sf.IDs()
	rows := make([]trackerRow, 0, len(ids))
	for _, id := range ids {
		row := sf[strconv.Itoa(id)]
		if seriesFilter != "" && row.Series != seriesFilter {
			continue
		}
		rows = append(rows, toRow(id, row))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TrackerID < rows[j].TrackerID })

	return jsonResult(rows)
}

func (s *Server) handleTracker(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("tracker_id")
	if err != nil {
		return errorResult("missing or invalid 'tracker_id' argument"), nil
	}

	sf, err := config.LoadStatus(s.statusPath)
	if err != nil {
		return errorResult(fmt.Sprintf("load status file: %v", err)), nil
	}

	row, ok := sf[strconv.Itoa(id)]
	if !ok {
		return errorResult(fmt.Sprintf("tracker %d is not present in status.yaml (not live, or never cranked)", id)), nil
	}

	return jsonResult(toRow(id, row))
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(data))}}, nil
}

func errorResult(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}
