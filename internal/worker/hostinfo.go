package worker

import (
	"runtime"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"
)

// HostInfo describes the machine a worker runs on, logged next to the
// timings so results from different hosts can be told apart
type HostInfo struct {
	Arch     string
	Hostname string
	Platform string
	CPUCount int
	CPUMHz   float64
	RAMGiB   float64
}

// CollectHostInfo gathers host facts; unavailable facts stay zero
func CollectHostInfo() HostInfo {
	info := HostInfo{Arch: runtime.GOARCH}
	if hostStat, err := host.Info(); err == nil {
		info.Hostname = hostStat.Hostname
		info.Platform = hostStat.Platform
	}
	if cpuStat, err := cpu.Info(); err == nil && len(cpuStat) > 0 {
		total := 0.0
		for _, c := range cpuStat {
			total += c.Mhz
		}
		info.CPUCount = len(cpuStat)
		info.CPUMHz = total / float64(len(cpuStat))
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		info.RAMGiB = float64(vmStat.Total) / 1024 / 1024 / 1024
	}
	return info
}
