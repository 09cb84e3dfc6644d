package reportmcp

import (
	"path/filepath"
	"testing"

	"github.com/gateway-fm/starknet-gatling/internal/metrics"
	"github.com/gateway-fm/starknet-gatling/internal/report"
)

func writeTestReport(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	rep := report.FromSnapshots(4, []metrics.ShooterSnapshot{
		{Name: "transfer", Amount: 10, OfferedRate: 5, AcceptedRate: 4},
	})
	if err := report.Write(path, rep); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return path
}

func TestSourceLoadRoundTrips(t *testing.T) {
	path := writeTestReport(t)
	source := NewSource(path)

	rep, err := source.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rep.Users != 4 {
		t.Fatalf("expected users=4, got %d", rep.Users)
	}
	if len(rep.Benches) != 1 || rep.Benches[0].Name != "transfer" {
		t.Fatalf("expected one transfer bench, got %+v", rep.Benches)
	}
}

func TestSourceLoadMissingFile(t *testing.T) {
	source := NewSource(filepath.Join(t.TempDir(), "missing.json"))
	if _, err := source.Load(); err == nil {
		t.Fatalf("expected an error loading a missing report")
	}
}

func TestFormatBenchIncludesMetricsAndAmount(t *testing.T) {
	path := writeTestReport(t)
	rep, err := NewSource(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	out := formatBench(rep.Benches[0])
	if out == "" {
		t.Fatalf("expected non-empty formatted bench")
	}
}
