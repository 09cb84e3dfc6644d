package reportmcp

import (
	"fmt"
	"strings"

	"github.com/gateway-fm/starknet-gatling/internal/report"
)

func section(title string) string {
	return "## " + title
}

func kv(key string, value any) string {
	return fmt.Sprintf("%-20s %v", key+":", value)
}

func joinLines(lines ...string) string {
	var out []string
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

func formatMetric(m report.Metric) string {
	if m.Unit == "" {
		return kv(m.Name, formatValue(m.Value))
	}
	return kv(m.Name, fmt.Sprintf("%s %s", formatValue(m.Value), m.Unit))
}

func formatValue(v float64) string {
	if v != v { // NaN: undefined at a zero-duration interval
		return "n/a"
	}
	return fmt.Sprintf("%.4f", v)
}

func formatReport(rep report.Report) string {
	lines := joinLines(
		section("Benchmark Report"),
		kv("Generated", rep.GeneratedAt.Format("2006-01-02 15:04:05")),
		kv("Users", rep.Users),
		kv("Host", rep.Extra.String()),
		"",
		section("All-Bench Throughput"),
	)
	for _, m := range rep.AllBenchReport {
		lines += "\n" + formatMetric(m)
	}
	lines += "\n\n" + section(fmt.Sprintf("Shooters (%d)", len(rep.Benches)))
	for _, bench := range rep.Benches {
		lines += "\n  - " + bench.Name
	}
	return lines
}

func formatShooterList(rep report.Report) string {
	lines := section(fmt.Sprintf("Shooters (%d)", len(rep.Benches)))
	for _, bench := range rep.Benches {
		kind := "write"
		if bench.IsRead {
			kind = "read"
		}
		lines += "\n" + joinLines(
			fmt.Sprintf("### %s (%s)", bench.Name, kind),
			kv("Amount", bench.Amount),
		)
	}
	return lines
}

func formatBench(bench report.BenchReport) string {
	kind := "write"
	if bench.IsRead {
		kind = "read"
	}
	lines := joinLines(
		section(fmt.Sprintf("%s (%s)", bench.Name, kind)),
		kv("Amount", bench.Amount),
		"",
	)
	for _, m := range bench.Metrics {
		lines += "\n" + formatMetric(m)
	}
	if len(bench.LastXBlocksMetrics) > 0 {
		lines += "\n\n" + section("Trailing Blocks")
		for _, m := range bench.LastXBlocksMetrics {
			lines += "\n" + formatMetric(m)
		}
	}
	if len(bench.ErrorCounts) > 0 {
		lines += "\n\n" + section("Errors")
		for kind, count := range bench.ErrorCounts {
			lines += "\n" + kv(kind, count)
		}
	}
	return lines
}
