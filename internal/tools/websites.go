// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/paging"
	"github.com/tejzpr/dayline/internal/search"
	"github.com/tejzpr/dayline/internal/store"
)

// NewWebsitesTool creates the dayline_websites tool definition
func NewWebsitesTool() mcp.Tool {
	return mcp.NewTool("dayline_websites",
		mcp.WithDescription("List visited websites. Without a sort field your manual order applies, then most recently visited."),
		mcp.WithString("domain",
			mcp.Description("Only this domain and its subdomains"),
		),
		mcp.WithBoolean("include_hidden",
			mcp.Description("Include websites you hid"),
		),
		mcp.WithString("sort_by",
			mcp.Description("order, last_visited, visit_count, title or domain"),
		),
		mcp.WithString("sort_direction",
			mcp.Description("asc or desc. Default: asc"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results. Default: 20"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Results to skip, for paging"),
		),
	)
}

// WebsitesHandler handles the dayline_websites tool
func WebsitesHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		page, err := ctx.App.Stores.Websites.List(c, store.ListOptions{
			Options: paging.Options{
				Limit:          int(request.GetFloat("limit", 20)),
				Offset:         int(request.GetFloat("offset", 0)),
				OrderBy:        request.GetString("sort_by", ""),
				OrderDirection: paging.ParseDirection(request.GetString("sort_direction", "")),
			},
			IncludeHidden: request.GetBool("include_hidden", false),
			Domain:        request.GetString("domain", ""),
		})
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(page)
	}
}

// NewWebsiteUpdateTool creates the dayline_website_update tool definition
func NewWebsiteUpdateTool() mcp.Tool {
	return mcp.NewTool("dayline_website_update",
		mcp.WithDescription("Rename or hide a website, or set the manual order of several. Your edits survive later visits."),
		mcp.WithString("id",
			mcp.Description("Website id, required unless 'order' is given"),
		),
		mcp.WithString("title",
			mcp.Description("Your title. An empty string restores the page title."),
		),
		mcp.WithBoolean("hidden",
			mcp.Description("Hide (true) or show (false) the website"),
		),
		mcp.WithArray("order",
			mcp.Description("Website ids in the order they should be listed"),
		),
	)
}

// WebsiteUpdateHandler handles the dayline_website_update tool
func WebsiteUpdateHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		websites := ctx.App.Stores.Websites
		defer ctx.App.Search.Invalidate(search.TypeWebsite)

		if order := request.GetStringSlice("order", nil); len(order) > 0 {
			items, err := websites.Reorder(c, order)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(items)
		}

		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		args := request.GetArguments()

		var item database.WebsiteItem
		if _, ok := args["title"]; ok {
			if item, err = websites.Rename(c, id, request.GetString("title", "")); err != nil {
				return errorResult(err), nil
			}
		}
		if _, ok := args["hidden"]; ok {
			if item, err = websites.Hide(c, id, request.GetBool("hidden", false)); err != nil {
				return errorResult(err), nil
			}
		}
		if item.ID == "" {
			if item, err = websites.GetByID(c, id); err != nil {
				return errorResult(err), nil
			}
		}
		return jsonResult(item)
	}
}

// NewTagTool creates the dayline_tag tool definition
func NewTagTool() mcp.Tool {
	return mcp.NewTool("dayline_tag",
		mcp.WithDescription("Toggle a tag on a website or meeting: adds it when absent, removes it when present. With 'order', reorders the existing tags instead."),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("'website' or 'segment'"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Website or meeting id"),
		),
		mcp.WithString("name",
			mcp.Description("Tag to toggle. Case-insensitive, no commas."),
		),
		mcp.WithArray("order",
			mcp.Description("Tag names in display order"),
		),
	)
}

// TagHandler handles the dayline_tag tool
func TagHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kind, err := request.RequireString("kind")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var tags []database.Tag
		if order := request.GetStringSlice("order", nil); len(order) > 0 {
			tags, err = ctx.App.Stores.Tags.Reorder(c, kind, id, order)
		} else {
			tags, err = ctx.App.Stores.Tags.Toggle(c, kind, id, request.GetString("name", ""))
		}
		if err != nil {
			return errorResult(err), nil
		}
		if kind == database.TagTargetWebsite {
			ctx.App.Search.Invalidate(search.TypeWebsite)
		}
		return jsonResult(store.TagNames(tags))
	}
}

// NewBlocklistTool creates the dayline_blocklist tool definition
func NewBlocklistTool() mcp.Tool {
	return mcp.NewTool("dayline_blocklist",
		mcp.WithDescription("Stop tracking a domain or a single page. Blocking also deletes what was already tracked. Use action 'unblock' to undo, 'list' to show entries."),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Description("block_domain, block_url, unblock or list"),
		),
		mcp.WithString("value",
			mcp.Description("Domain or URL"),
		),
		mcp.WithString("kind",
			mcp.Description("For unblock: 'domain' or 'url'. Default: domain"),
		),
	)
}

// BlocklistHandler handles the dayline_blocklist tool
func BlocklistHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action, err := request.RequireString("action")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		blocklist := ctx.App.Stores.Blocklist
		if action == "list" {
			entries, err := blocklist.List(c)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonResult(entries)
		}

		value, err := request.RequireString("value")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var res store.BlockResult
		switch action {
		case "block_domain":
			res, err = blocklist.BlockDomain(c, value)
		case "block_url":
			res, err = blocklist.BlockURL(c, value)
		case "unblock":
			err = blocklist.Remove(c, request.GetString("kind", database.BlockDomain), value)
			if err != nil {
				return errorResult(err), nil
			}
			return mcp.NewToolResultText(fmt.Sprintf("Unblocked %s", value)), nil
		default:
			return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
		}
		if err != nil {
			return errorResult(err), nil
		}
		ctx.App.Search.Invalidate(search.TypeWebsite)
		return jsonResult(res)
	}
}
