// Package hostinfo collects a point-in-time snapshot of the machine the
// benchmark ran on, for the report writer's "extra" section (spec.md's
// distillation is silent on machine provenance; a benchmark report
// without it cannot be meaningfully compared against a different run).
package hostinfo

import (
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// Snapshot is the subset of host state worth attaching to a report.
type Snapshot struct {
	OS            string  `json:"os"`
	Arch          string  `json:"arch"`
	GoVersion     string  `json:"go_version"`
	CPUModel      string  `json:"cpu_model,omitempty"`
	LogicalCPUs   int     `json:"logical_cpus"`
	TotalMemoryMB uint64  `json:"total_memory_mb"`
	HostID        string  `json:"host_id,omitempty"`
	Uptime        uint64  `json:"uptime_seconds,omitempty"`
}

// Collect gathers a Snapshot, degrading gracefully: a gopsutil probe
// failing (sandboxed containers frequently deny /proc/cpuinfo or SMBIOS
// reads) leaves its field at the zero value rather than failing the
// whole report.
func Collect() Snapshot {
	snap := Snapshot{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		GoVersion:   runtime.Version(),
		LogicalCPUs: runtime.NumCPU(),
	}

	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		snap.CPUModel = infos[0].ModelName
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.TotalMemoryMB = vm.Total / (1024 * 1024)
	}
	if info, err := host.Info(); err == nil {
		snap.HostID = info.HostID
		snap.Uptime = info.Uptime
	}

	return snap
}

// String renders a one-line summary for log lines.
func (s Snapshot) String() string {
	return fmt.Sprintf("%s/%s cpus=%d mem=%dMB", s.OS, s.Arch, s.LogicalCPUs, s.TotalMemoryMB)
}
