// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package server

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/tejzpr/dayline/internal/app"
	"github.com/tejzpr/dayline/internal/tools"
)

// Name is the server name announced to MCP clients
const Name = "Dayline"

// MCPServer wraps the mcp-go server with our configuration
type MCPServer struct {
	mcpServer *server.MCPServer
	app       *app.App
	tools     []string
}

// NewMCPServer creates a server with every dayline tool registered
func NewMCPServer(a *app.App, version string) *MCPServer {
	if version == "" {
		version = "dev"
	}
	srv := &MCPServer{
		mcpServer: server.NewMCPServer(
			Name,
			version,
			server.WithToolCapabilities(true),
			server.WithRecovery(),
		),
		app: a,
	}
	srv.registerTools(tools.NewToolContext(a))
	return srv
}

func (s *MCPServer) registerTools(tc *tools.ToolContext) {
	// read views
	s.add(tools.NewSearchTool(), tools.SearchHandler(tc))
	s.add(tools.NewDayTool(), tools.DayHandler(tc))
	s.add(tools.NewUpcomingTool(), tools.UpcomingHandler(tc))
	s.add(tools.NewSegmentTool(), tools.SegmentHandler(tc))
	s.add(tools.NewMostMetTool(), tools.MostMetHandler(tc))
	s.add(tools.NewRecentDocumentsTool(), tools.RecentDocumentsHandler(tc))
	s.add(tools.NewWebsitesTool(), tools.WebsitesHandler(tc))

	// user edits
	s.add(tools.NewNoteTool(), tools.NoteHandler(tc))
	s.add(tools.NewTagTool(), tools.TagHandler(tc))
	s.add(tools.NewWebsiteUpdateTool(), tools.WebsiteUpdateHandler(tc))
	s.add(tools.NewBlocklistTool(), tools.BlocklistHandler(tc))

	// operations
	s.add(tools.NewHealthTool(), tools.HealthHandler(tc))
	s.add(tools.NewMaintainTool(), tools.MaintainHandler(tc))
}

func (s *MCPServer) add(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcpServer.AddTool(tool, handler)
	s.tools = append(s.tools, tool.Name)
}

// Tools returns the registered tool names in registration order
func (s *MCPServer) Tools() []string {
	return append([]string(nil), s.tools...)
}

// ServeStdio serves MCP over stdin and stdout until stdin closes
func (s *MCPServer) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
