// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/dayline/internal/database"
	"github.com/tejzpr/dayline/internal/store"
)

// SegmentView is a segment with its state at request time
type SegmentView struct {
	database.Segment
	State database.SegmentState `json:"state"`
}

func segmentViews(segments []database.Segment, ctx *ToolContext) []SegmentView {
	now := ctx.now()
	out := make([]SegmentView, len(segments))
	for i, s := range segments {
		out[i] = SegmentView{Segment: s, State: s.State(now)}
	}
	return out
}

// NewDayTool creates the dayline_day tool definition
func NewDayTool() mcp.Tool {
	return mcp.NewTool("dayline_day",
		mcp.WithDescription("List the meetings of one day, or of the week containing it, ordered by start time."),
		mcp.WithString("date",
			mcp.Description("Day as YYYY-MM-DD. Default: today"),
		),
		mcp.WithString("timezone",
			mcp.Description("IANA timezone the day is read in, e.g. 'Europe/Berlin'. Default: local"),
		),
		mcp.WithBoolean("week",
			mcp.Description("Return the whole Monday-to-Sunday week instead of one day"),
		),
	)
}

// DayHandler handles the dayline_day tool
func DayHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		loc, err := parseLocation(request.GetString("timezone", ""))
		if err != nil {
			return errorResult(err), nil
		}
		day, err := parseDay(request.GetString("date", ""), ctx.now(), loc)
		if err != nil {
			return errorResult(err), nil
		}

		var segments []database.Segment
		if request.GetBool("week", false) {
			segments, err = ctx.App.Stores.Segments.ForWeek(c, day)
		} else {
			segments, err = ctx.App.Stores.Segments.ForDay(c, day)
		}
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(segmentViews(segments, ctx))
	}
}

// NewUpcomingTool creates the dayline_upcoming tool definition
func NewUpcomingTool() mcp.Tool {
	return mcp.NewTool("dayline_upcoming",
		mcp.WithDescription("List the meeting in progress, if any, followed by the next meetings."),
		mcp.WithNumber("limit",
			mcp.Description("Max meetings. Default: 5"),
		),
	)
}

// UpcomingHandler handles the dayline_upcoming tool
func UpcomingHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := int(request.GetFloat("limit", 5))
		segments, err := ctx.App.Stores.Segments.CurrentOrUpcoming(c, ctx.now(), limit)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(segmentViews(segments, ctx))
	}
}

// SegmentDetail is one segment with everything linked to it
type SegmentDetail struct {
	SegmentView
	AttendeeRows []database.SegmentAttendee `json:"attendee_rows"`
	Visits       []database.WebsiteVisit    `json:"visits"`
	Tags         []string                   `json:"tags"`
}

// NewSegmentTool creates the dayline_segment tool definition
func NewSegmentTool() mcp.Tool {
	return mcp.NewTool("dayline_segment",
		mcp.WithDescription("Show one meeting with its resolved attendees, the drive activity, emails and documents linked to it, the websites visited during it and its tags."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Meeting id"),
		),
	)
}

// SegmentHandler handles the dayline_segment tool
func SegmentHandler(ctx *ToolContext) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(c context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		stores := ctx.App.Stores
		seg, err := stores.Segments.GetByID(c, id)
		if err != nil {
			return errorResult(err), nil
		}
		rows, err := stores.Segments.Attendees(c, id)
		if err != nil {
			return errorResult(err), nil
		}
		visits, err := stores.Websites.VisitsForSegment(c, id)
		if err != nil {
			return errorResult(err), nil
		}
		tags, err := stores.Tags.ForTarget(c, database.TagTargetSegment, id)
		if err != nil {
			return errorResult(err), nil
		}

		return jsonResult(SegmentDetail{
			SegmentView:  SegmentView{Segment: seg, State: seg.State(ctx.now())},
			AttendeeRows: rows,
			Visits:       visits,
			Tags:         store.TagNames(tags),
		})
	}
}
