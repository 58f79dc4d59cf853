// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// NewHealthTool creates the dayline_health tool definition
func NewHealthTool() mcp.Tool {
	return mcp.NewTool("dayline_health",
		mcp.WithDescription("Report database availability, per-collection query health and the state of each search lane."),
	)
}

// HealthHandler handles the dayline_health tool
func HealthHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(ctx.App.Status(c))
	}
}

// NewMaintainTool creates the dayline_maintain tool definition
func NewMaintainTool() mcp.Tool {
	return mcp.NewTool("dayline_maintain",
		mcp.WithDescription("Delete records older than the retention horizon and rebuild the links between meetings, people, documents, emails and websites."),
	)
}

// MaintainHandler handles the dayline_maintain tool
func MaintainHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := ctx.App.Maintain(c)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res)
	}
}
