package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	_ "time/tzdata"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/swaggest/jsonschema-go"
)

// TimeServerID is the ID of the built-in time tool server.
const TimeServerID = "time"

// timeLayout is the wall-clock format accepted and produced by the time tools.
const timeLayout = "2006-01-02 15:04"

type currentTimeArgs struct {
	Timezone string `json:"timezone" required:"true" description:"IANA timezone name, e.g. Europe/Paris. Use UTC when the user gives none."`
}

type convertTimeArgs struct {
	Time           string `json:"time" required:"true" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2} [0-9]{2}:[0-9]{2}$" description:"Time to convert, formatted YYYY-MM-DD HH:MM"`
	SourceTimezone string `json:"source_timezone" required:"true" description:"IANA timezone the time is given in"`
	TargetTimezone string `json:"target_timezone" required:"true" description:"IANA timezone to convert to"`
}

// timeResult is the structured payload both tools return.
type timeResult struct {
	Timezone string `json:"timezone"`
	Datetime string `json:"datetime"`
	Weekday  string `json:"weekday"`
	IsDST    bool   `json:"is_dst"`
}

// schemaFor reflects a Go struct into a raw JSON Schema document.
func schemaFor(v any) (json.RawMessage, error) {
	reflector := jsonschema.Reflector{}

	schema, err := reflector.Reflect(v)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect %T to JSON schema: %w", v, err)
	}
	return json.Marshal(schema)
}

// NewTimeServer builds the in-process time tool server. now is injectable
// for tests and defaults to time.Now.
func NewTimeServer(now func() time.Time) (*server.MCPServer, error) {
	if now == nil {
		now = time.Now
	}

	srv := server.NewMCPServer("time", "1.0.0", server.WithToolCapabilities(false))

	currentSchema, err := schemaFor(currentTimeArgs{})
	if err != nil {
		return nil, err
	}
	convertSchema, err := schemaFor(convertTimeArgs{})
	if err != nil {
		return nil, err
	}

	srv.AddTool(
		mcptypes.NewToolWithRawSchema("current_time", "Get the current time in a timezone.", currentSchema),
		func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
			tz, err := req.RequireString("timezone")
			if err != nil {
				return mcptypes.NewToolResultError(err.Error()), nil
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return mcptypes.NewToolResultError(fmt.Sprintf("unknown timezone %q", tz)), nil
			}
			return timeToolResult(now().In(loc), tz)
		},
	)

	srv.AddTool(
		mcptypes.NewToolWithRawSchema("convert_time", "Convert a time between timezones.", convertSchema),
		func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
			var args convertTimeArgs
			if err := req.BindArguments(&args); err != nil {
				return mcptypes.NewToolResultError(err.Error()), nil
			}

			src, err := time.LoadLocation(args.SourceTimezone)
			if err != nil {
				return mcptypes.NewToolResultError(fmt.Sprintf("unknown timezone %q", args.SourceTimezone)), nil
			}
			dst, err := time.LoadLocation(args.TargetTimezone)
			if err != nil {
				return mcptypes.NewToolResultError(fmt.Sprintf("unknown timezone %q", args.TargetTimezone)), nil
			}

			t, err := time.ParseInLocation(timeLayout, args.Time, src)
			if err != nil {
				return mcptypes.NewToolResultError(fmt.Sprintf("invalid time %q, expected YYYY-MM-DD HH:MM", args.Time)), nil
			}
			return timeToolResult(t.In(dst), args.TargetTimezone)
		},
	)

	return srv, nil
}

func timeToolResult(t time.Time, tz string) (*mcptypes.CallToolResult, error) {
	out, err := json.Marshal(timeResult{
		Timezone: tz,
		Datetime: t.Format(timeLayout),
		Weekday:  t.Weekday().String(),
		IsDST:    t.IsDST(),
	})
	if err != nil {
		return nil, err
	}
	return mcptypes.NewToolResultText(string(out)), nil
}

// TimeServerConfig is the ServerConfig that routes to the built-in time server.
func TimeServerConfig() ServerConfig {
	return ServerConfig{
		ID:          TimeServerID,
		Name:        "Time",
		Description: "Provides time and timezone conversion capabilities.",
		Transport:   TransportBuiltin,
		Enabled:     true,
	}
}
