package sampling

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	DefaultWindow   = time.Second
	DefaultDiskPath = "/"
)

// Reading is a raw utilization reading in percent.
type Reading struct {
	CPUPct  float64
	MemPct  float64
	DiskPct float64
}

// Probe takes one utilization reading. Implementations may block for the
// length of their measurement window.
type Probe interface {
	Read(ctx context.Context) (Reading, error)
}

// HostProbe reads the local host through gopsutil.
type HostProbe struct {
	window   time.Duration
	diskPath string
}

// NewHostProbe creates a probe measuring CPU over window and disk usage of
// the filesystem holding diskPath. A zero CPU window yields meaningless
// values, so non-positive windows fall back to DefaultWindow.
func NewHostProbe(window time.Duration, diskPath string) *HostProbe {
	if window <= 0 {
		window = DefaultWindow
	}
	if diskPath == "" {
		diskPath = DefaultDiskPath
	}
	return &HostProbe{window: window, diskPath: diskPath}
}

func (p *HostProbe) Window() time.Duration { return p.window }

func (p *HostProbe) Read(ctx context.Context) (Reading, error) {
	percents, err := cpu.PercentWithContext(ctx, p.window, false)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: cpu: %w", ErrMetricUnavailable, err)
	}
	if len(percents) == 0 {
		return Reading{}, fmt.Errorf("%w: cpu: no values returned", ErrMetricUnavailable)
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: memory: %w", ErrMetricUnavailable, err)
	}

	usage, err := disk.UsageWithContext(ctx, p.diskPath)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: disk %s: %w", ErrMetricUnavailable, p.diskPath, err)
	}

	return Reading{
		CPUPct:  percents[0],
		MemPct:  vm.UsedPercent,
		DiskPct: usage.UsedPercent,
	}, nil
}
