package health

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
)

const gib = 1 << 30

// Resource is one sampled host resource.
type Resource struct {
	UsagePercent float64 `json:"usage_percent"`
	AvailableGB  float64 `json:"available_gb,omitempty"`
	FreeGB       float64 `json:"free_gb,omitempty"`
	Status       Status  `json:"status"`
}

// NetworkCounters are cumulative interface totals.
type NetworkCounters struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
}

// SystemMetrics is a point-in-time host sample.
type SystemMetrics struct {
	CPU     Resource        `json:"cpu"`
	Memory  Resource        `json:"memory"`
	Disk    Resource        `json:"disk"`
	Network NetworkCounters `json:"network"`
	Error   string          `json:"error,omitempty"`
}

// levels maps usage onto a status: below warn is healthy, below crit is a
// warning.
func levels(usage, warn, crit float64) Status {
	switch {
	case usage < warn:
		return StatusHealthy
	case usage < crit:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// SampleSystem reads CPU, memory, root disk and network counters. CPU usage
// is measured since the previous call, so it never blocks.
func SampleSystem(ctx context.Context) (*SystemMetrics, error) {
	out := &SystemMetrics{}

	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(pct) > 0 {
		out.CPU.UsagePercent = round2(pct[0])
	}
	out.CPU.Status = levels(out.CPU.UsagePercent, 80, 95)

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out.Memory = Resource{
		UsagePercent: round2(vm.UsedPercent),
		AvailableGB:  round2(float64(vm.Available) / gib),
		Status:       levels(vm.UsedPercent, 80, 90),
	}

	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return nil, err
	}
	out.Disk = Resource{
		UsagePercent: round2(du.UsedPercent),
		FreeGB:       round2(float64(du.Free) / gib),
		Status:       levels(du.UsedPercent, 80, 90),
	}

	if counters, err := psnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		c := counters[0]
		out.Network = NetworkCounters{
			BytesSent:   c.BytesSent,
			BytesRecv:   c.BytesRecv,
			PacketsSent: c.PacketsSent,
			PacketsRecv: c.PacketsRecv,
		}
	}
	return out, nil
}
