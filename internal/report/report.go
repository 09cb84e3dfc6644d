// Package report implements the Report Writer (spec.md §4.G): it turns
// the aggregator's per-shooter snapshots into the benchmark's final JSON
// artifact, normalising the NaN/Inf sentinels metrics.ShooterSnapshot can
// carry (undefined rates at shoot=0, no accepted blocks yet) into JSON
// null rather than letting encoding/json reject them outright.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gateway-fm/starknet-gatling/internal/errkind"
	"github.com/gateway-fm/starknet-gatling/internal/hostinfo"
	"github.com/gateway-fm/starknet-gatling/internal/metrics"
)

// Metric is one named statistic, JSON-encoded with NaN/Inf collapsed to
// null so a reader parsing the report with a standard JSON library never
// trips over a non-finite float literal (encoding/json itself refuses to
// marshal NaN/Inf, which is the whole reason this type exists).
type Metric struct {
	Name  string
	Unit  string
	Value float64
}

// MarshalJSON renders {"name":..., "unit":..., "value": <number|null>}.
func (m Metric) MarshalJSON() ([]byte, error) {
	var valueJSON string
	if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
		valueJSON = "null"
	} else {
		b, err := json.Marshal(m.Value)
		if err != nil {
			return nil, err
		}
		valueJSON = string(b)
	}
	var buf bytes.Buffer
	buf.WriteString(`{"name":`)
	nameJSON, err := json.Marshal(m.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(nameJSON)
	buf.WriteString(`,"unit":`)
	unitJSON, err := json.Marshal(m.Unit)
	if err != nil {
		return nil, err
	}
	buf.Write(unitJSON)
	buf.WriteString(`,"value":`)
	buf.WriteString(valueJSON)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BenchReport is one shooter's section of the final report.
type BenchReport struct {
	Name               string            `json:"name"`
	Amount             uint64            `json:"amount"`
	IsRead             bool              `json:"is_read"`
	Metrics            []Metric          `json:"metrics"`
	LastXBlocksMetrics []Metric          `json:"last_x_blocks_metrics,omitempty"`
	ErrorCounts        map[string]uint64 `json:"error_counts,omitempty"`
}

// Report is the top-level JSON artifact spec.md §4.G describes. Field
// order matches spec.md's fixed key order (users, all_bench_report,
// benches, extra) exactly; GeneratedAt is an addition appended last so it
// never displaces any of the four documented keys.
type Report struct {
	Users          uint32            `json:"users"`
	AllBenchReport []Metric          `json:"all_bench_report"`
	Benches        []BenchReport     `json:"benches"`
	Extra          hostinfo.Snapshot `json:"extra"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// FromSnapshots builds a Report from the aggregator's final per-shooter
// snapshots. numAccounts is the configured account-pool size (spec's
// "users" field). Each snapshot's last_x_blocks_metrics window was fixed
// when the aggregator built it (Aggregator.AllShooters' trailingNumBlocks)
// and appears only in the per-shooter section, since all_bench_report
// concatenates whole-interval throughput, not a trailing window.
//
// all_bench_report only ever includes write-shooter snapshots: spec.md §9
// leaves it open whether reads belong there, and this resolves it by
// excluding them — a read bench's "offered/accepted rate" measures RPC
// serving capacity, not chain throughput, and mixing the two into one
// combined-TPS figure would be misleading.
func FromSnapshots(numAccounts uint32, snapshots []metrics.ShooterSnapshot) Report {
	report := Report{
		Users:       numAccounts,
		GeneratedAt: time.Now(),
		Extra:       hostinfo.Collect(),
	}

	for _, snap := range snapshots {
		bench := BenchReport{
			Name:    snap.Name,
			Amount:  snap.Amount,
			IsRead:  snap.IsRead,
			Metrics: shooterMetrics(snap),
		}
		if snap.TrailingNumBlocks > 0 {
			bench.LastXBlocksMetrics = []Metric{
				{Name: "trailing_tps_mean", Unit: "tx/s", Value: snap.TrailingTPSMean},
				{Name: "trailing_tps_min", Unit: "tx/s", Value: snap.TrailingTPSMin},
				{Name: "trailing_tps_max", Unit: "tx/s", Value: snap.TrailingTPSMax},
				{Name: "trailing_num_blocks", Unit: "blocks", Value: float64(snap.TrailingNumBlocks)},
			}
		}
		bench.ErrorCounts = errorCounts(snap)
		report.Benches = append(report.Benches, bench)

		if !snap.IsRead {
			report.AllBenchReport = append(report.AllBenchReport,
				Metric{Name: snap.Name + "_offered_rate", Unit: "tx/s", Value: snap.OfferedRate},
				Metric{Name: snap.Name + "_accepted_rate", Unit: "tx/s", Value: snap.AcceptedRate},
			)
		}
	}

	return report
}

func shooterMetrics(s metrics.ShooterSnapshot) []Metric {
	out := []Metric{
		{Name: "submit_ok", Unit: "count", Value: float64(s.SubmitOkCount)},
		{Name: "verify_ok", Unit: "count", Value: float64(s.VerifyOkCount)},
		{Name: "read_ok", Unit: "count", Value: float64(s.ReadOkCount)},
		{Name: "offered_rate", Unit: "tx/s", Value: s.OfferedRate},
		{Name: "accepted_rate", Unit: "tx/s", Value: s.AcceptedRate},
		{Name: "submit_latency_mean", Unit: "s", Value: s.SubmitMean},
		{Name: "submit_latency_p50", Unit: "s", Value: s.SubmitP50},
		{Name: "submit_latency_p95", Unit: "s", Value: s.SubmitP95},
		{Name: "submit_latency_p99", Unit: "s", Value: s.SubmitP99},
		{Name: "verify_latency_mean", Unit: "s", Value: s.VerifyMean},
		{Name: "verify_latency_p50", Unit: "s", Value: s.VerifyP50},
		{Name: "verify_latency_p95", Unit: "s", Value: s.VerifyP95},
		{Name: "verify_latency_p99", Unit: "s", Value: s.VerifyP99},
		{Name: "block_tps_mean", Unit: "tx/s", Value: s.BlockTPSMean},
		{Name: "block_tps_min", Unit: "tx/s", Value: s.BlockTPSMin},
		{Name: "block_tps_max", Unit: "tx/s", Value: s.BlockTPSMax},
		{Name: "block_steps_mean", Unit: "steps/s", Value: s.BlockStepsMean},
		{Name: "block_steps_min", Unit: "steps/s", Value: s.BlockStepsMin},
		{Name: "block_steps_max", Unit: "steps/s", Value: s.BlockStepsMax},
		{Name: "block_gas_price_mean", Unit: "wei/s", Value: s.BlockGasMean},
		{Name: "block_gas_price_min", Unit: "wei/s", Value: s.BlockGasMin},
		{Name: "block_gas_price_max", Unit: "wei/s", Value: s.BlockGasMax},
	}
	return out
}

func errorCounts(s metrics.ShooterSnapshot) map[string]uint64 {
	out := make(map[string]uint64)
	for kind, count := range s.SubmitErrCount {
		out["submit_"+string(kind)] += count
	}
	for kind, count := range s.VerifyErrCount {
		out["verify_"+string(kind)] += count
	}
	for kind, count := range s.ReadErrCount {
		out["read_"+string(kind)] += count
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Write marshals report as indented JSON and writes it to path, creating
// any missing parent directories and overwriting an existing file — a
// benchmark run's report is always the authoritative last one, never
// merged with a prior run's.
func Write(path string, report Report) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errkind.New(errkind.Config, fmt.Errorf("creating report directory %q: %w", dir, err))
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errkind.New(errkind.Config, fmt.Errorf("writing report %q: %w", path, err))
	}
	return nil
}

// Read loads a previously written report, used by the MCP server to
// answer queries about the last completed run without holding the
// benchmark process alive.
func Read(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("parsing report %q: %w", path, err)
	}
	return report, nil
}
