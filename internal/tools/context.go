// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package tools

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/tejzpr/dayline/internal/app"
	"github.com/tejzpr/dayline/internal/errs"
)

// Date layout accepted by day views
const dateLayout = "2006-01-02"

// ToolContext holds shared dependencies for all tools
type ToolContext struct {
	App *app.App
}

// NewToolContext creates a new tool context
func NewToolContext(a *app.App) *ToolContext {
	return &ToolContext{App: a}
}

func (tc *ToolContext) now() time.Time {
	return tc.App.Clock()
}

// jsonResult renders v as indented JSON text
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports err to the caller, keeping its code visible
func errorResult(err error) *mcp.CallToolResult {
	if e, ok := errs.As(err); ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return mcp.NewToolResultError(err.Error())
}

// parseDay reads a YYYY-MM-DD date in loc, defaulting to today
func parseDay(value string, now time.Time, loc *time.Location) (time.Time, error) {
	if value == "" {
		return now.In(loc), nil
	}
	day, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, errs.Invalid("date must look like %s, got %q", dateLayout, value)
	}
	return day, nil
}

func parseLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errs.Invalid("unknown timezone %q", name)
	}
	return loc, nil
}
