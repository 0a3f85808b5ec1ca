package sysinfo

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// Info describes the machine a run executed on.
type Info struct {
	Hostname           string  `json:"hostname" yaml:"hostname"`
	OS                 string  `json:"os" yaml:"os"`
	Platform           string  `json:"platform" yaml:"platform"`
	PlatformVersion    string  `json:"platform_version" yaml:"platform_version"`
	KernelVersion      string  `json:"kernel_version" yaml:"kernel_version"`
	Arch               string  `json:"arch" yaml:"arch"`
	Virtualization     string  `json:"virtualization,omitempty" yaml:"virtualization,omitempty"`
	VirtualizationRole string  `json:"virtualization_role,omitempty" yaml:"virtualization_role,omitempty"`
	CPUVendor          string  `json:"cpu_vendor" yaml:"cpu_vendor"`
	CPUModel           string  `json:"cpu_model" yaml:"cpu_model"`
	CPUCores           int     `json:"cpu_cores" yaml:"cpu_cores"`
	CPUMhz             float64 `json:"cpu_mhz" yaml:"cpu_mhz"`
	MemoryTotalBytes   uint64  `json:"memory_total_bytes" yaml:"memory_total_bytes"`
}

// Collect gathers host, CPU and memory information. Individual probes that
// fail are logged and left empty.
func Collect(ctx context.Context, log logrus.FieldLogger) *Info {
	log = log.WithField("component", "sysinfo")

	info := &Info{
		OS:   runtime.GOOS,
		Arch: runtime.GOARCH,
	}

	if h, err := host.InfoWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to collect host info")
	} else {
		info.Hostname = h.Hostname
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		info.Virtualization = h.VirtualizationSystem
		info.VirtualizationRole = h.VirtualizationRole

		if h.KernelArch != "" {
			info.Arch = h.KernelArch
		}
	}

	if cpus, err := cpu.InfoWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to collect CPU info")
	} else if len(cpus) > 0 {
		info.CPUVendor = cpus[0].VendorID
		info.CPUModel = cpus[0].ModelName
		info.CPUMhz = cpus[0].Mhz
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err != nil {
		log.WithError(err).Debug("Failed to count CPU cores")
	} else {
		info.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		log.WithError(err).Debug("Failed to collect memory info")
	} else {
		info.MemoryTotalBytes = vm.Total
	}

	return info
}
