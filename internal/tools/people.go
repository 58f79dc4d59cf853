// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/dayline/internal/search"
	"github.com/tejzpr/dayline/internal/store"
)

// NewMostMetTool creates the dayline_most_met tool definition
func NewMostMetTool() mcp.Tool {
	return mcp.NewTool("dayline_most_met",
		mcp.WithDescription("Rank the people you share the most meetings with. The current user is left out."),
		mcp.WithNumber("limit",
			mcp.Description("Max people. Default: 10"),
		),
	)
}

// MostMetHandler handles the dayline_most_met tool
func MostMetHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := int(request.GetFloat("limit", 10))

		rows, err := ctx.App.Stores.Segments.AllAttendees(c)
		if err != nil {
			return errorResult(err), nil
		}
		ids := make([]string, 0, len(rows))
		for _, r := range rows {
			if !r.Self {
				ids = append(ids, r.PersonID)
			}
		}

		ranked, err := ctx.App.Stores.People.GetByIDsByFrequency(c, ids)
		if err != nil {
			return errorResult(err), nil
		}
		out := make([]store.RankedPerson, 0, len(ranked))
		for _, p := range ranked {
			if p.IsCurrentUser {
				continue
			}
			out = append(out, p)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return jsonResult(out)
	}
}

// NewNoteTool creates the dayline_note tool definition
func NewNoteTool() mcp.Tool {
	return mcp.NewTool("dayline_note",
		mcp.WithDescription("Set your note on a meeting or a person. Notes survive re-ingestion. An empty note clears it."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("What the note is on: 'segment' or 'person'"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Meeting or person id"),
		),
		mcp.WithString("note",
			mcp.Description("Note text"),
		),
	)
}

// NoteHandler handles the dayline_note tool
func NoteHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := request.RequireString("kind")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		note := request.GetString("note", "")

		switch kind {
		case "segment":
			seg, err := ctx.App.Stores.Segments.UpdateNote(c, id, note)
			if err != nil {
				return errorResult(err), nil
			}
			ctx.App.Search.Invalidate(search.TypeSegment)
			return jsonResult(seg)
		case "person":
			p, err := ctx.App.Stores.People.UpdateNote(c, id, note)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(p)
		default:
			return mcp.NewToolResultError(fmt.Sprintf("kind must be 'segment' or 'person', got %q", kind)), nil
		}
	}
}

// NewRecentDocumentsTool creates the dayline_recent_documents tool definition
func NewRecentDocumentsTool() mcp.Tool {
	return mcp.NewTool("dayline_recent_documents",
		mcp.WithDescription("List documents you edited recently, most recent first."),
		mcp.WithNumber("days",
			mcp.Description("How many days back to look. Default: 7"),
		),
	)
}

// RecentDocumentsHandler handles the dayline_recent_documents tool
func RecentDocumentsHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		days := int(request.GetFloat("days", 7))
		docs, err := ctx.App.Stores.Documents.EditedByCurrentUser(c, ctx.now(), days)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(docs)
	}
}
