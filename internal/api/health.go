package api

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostStatus reports memory pressure and CPU count. Probe failures leave the
// fields at their fallbacks rather than failing the health check.
func hostStatus(ctx context.Context) HostStatus {
	var status HostStatus

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.MemUsedPercent = vm.UsedPercent
	}

	status.CPUCount = runtime.NumCPU()
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		status.CPUCount = n
	}

	return status
}
