// Command gatling-report-mcp serves the last benchmark report written by
// gatling over MCP stdio transport, the same way the teacher's load
// generator exposes its live status over MCP, except this server is
// read-only and answers from a report file rather than a running process.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcptools "github.com/gateway-fm/starknet-gatling/internal/reportmcp"
)

func main() {
	reportPath := os.Getenv("GATLING_REPORT_PATH")
	if reportPath == "" {
		reportPath = "report.json"
	}

	s := server.NewMCPServer(
		"gatling-report",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	mcptools.RegisterTools(s, mcptools.NewSource(reportPath))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
