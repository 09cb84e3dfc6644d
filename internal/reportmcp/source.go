// Package reportmcp exposes a previously written report.Report over MCP,
// mirroring the teacher's internal/mcp package's shape (a thin source,
// tool registration, and response formatting split into three files) but
// reading from disk instead of polling a live HTTP API.
package reportmcp

import (
	"fmt"

	"github.com/gateway-fm/starknet-gatling/internal/report"
)

// Source loads the report at path fresh on every call, so the MCP server
// always answers with whatever gatling most recently wrote, without
// needing to watch the file or restart.
type Source struct {
	path string
}

// NewSource constructs a Source reading from path.
func NewSource(path string) *Source {
	return &Source{path: path}
}

// Load reads and parses the report file.
func (s *Source) Load() (report.Report, error) {
	rep, err := report.Read(s.path)
	if err != nil {
		return report.Report{}, fmt.Errorf("loading report from %q: %w", s.path, err)
	}
	return rep, nil
}
