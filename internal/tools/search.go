// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/dayline/internal/search"
)

// NewSearchTool creates the dayline_search tool definition
func NewSearchTool() mcp.Tool {
	return mcp.NewTool("dayline_search",
		mcp.WithDescription("Search meetings, people, documents, websites and emails by free text. Tolerates typos and partial words. Results are ranked by relevance."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for. Examples: 'budget review', 'ann@example.com'"),
		),
		mcp.WithArray("types",
			mcp.Description("Limit to these types: segment, person, document, website, email. Default: all"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results. Default: 10"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Results to skip, for paging"),
		),
		mcp.WithNumber("min_score",
			mcp.Description("Drop results scoring below this, between 0 and 1"),
		),
	)
}

// SearchHandler handles the dayline_search tool
func SearchHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		page, err := ctx.App.Search.Search(c, query, search.Options{
			Types:    request.GetStringSlice("types", nil),
			Limit:    int(request.GetFloat("limit", 10)),
			Offset:   int(request.GetFloat("offset", 0)),
			MinScore: request.GetFloat("min_score", ctx.App.Config.Search.MinScore),
		})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(page)
	}
}
