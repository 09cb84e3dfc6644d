package reportmcp

import (
	"context"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterTools registers the report-reading tools on the MCP server.
func RegisterTools(s *server.MCPServer, source *Source) {
	registerGetReport(s, source)
	registerListShooters(s, source)
	registerGetShooter(s, source)
}

func registerGetReport(s *server.MCPServer, source *Source) {
	tool := gomcp.NewTool("get_report",
		gomcp.WithDescription("Get the benchmark report summary: users, the host snapshot, all_bench_report, and the names of the shooters it covers (per-shooter metrics are not included; use get_shooter)."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		rep, err := source.Load()
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("loading report: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatReport(rep)), nil
	})
}

func registerListShooters(s *server.MCPServer, source *Source) {
	tool := gomcp.NewTool("list_shooters",
		gomcp.WithDescription("List the shooters present in the last report, with each one's kind (read or write) and amount; ok/error counts are not included."),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		rep, err := source.Load()
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("loading report: %v", err)), nil
		}
		return gomcp.NewToolResultText(formatShooterList(rep)), nil
	})
}

func registerGetShooter(s *server.MCPServer, source *Source) {
	tool := gomcp.NewTool("get_shooter",
		gomcp.WithDescription("Get one shooter's full metrics from the last report by name."),
		gomcp.WithString("name",
			gomcp.Required(),
			gomcp.Description("Shooter name, as it appears in list_shooters"),
		),
	)
	s.AddTool(tool, func(ctx context.Context, req gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		name, err := req.RequireString("name")
		if err != nil {
			return gomcp.NewToolResultError("name is required"), nil
		}
		rep, err := source.Load()
		if err != nil {
			return gomcp.NewToolResultError(fmt.Sprintf("loading report: %v", err)), nil
		}
		for _, bench := range rep.Benches {
			if bench.Name == name {
				return gomcp.NewToolResultText(formatBench(bench)), nil
			}
		}
		return gomcp.NewToolResultError(fmt.Sprintf("no shooter named %q in the last report", name)), nil
	})
}
