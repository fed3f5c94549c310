// Package probing reads host utilization straight from procfs and statfs,
// as an alternative to the gopsutil backed sampling.HostProbe.
package probing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"LoadMonitor/pkg/sampling"

	"golang.org/x/sys/unix"
)

const (
	DefaultProcRoot = "/proc"
	fieldSeparator  = ":"
)

// cpuTimes holds the aggregate "cpu" line of /proc/stat, in jiffies.
type cpuTimes struct {
	total int64
	idle  int64
}

// ProcProbe implements sampling.Probe on Linux without cgo or gopsutil.
type ProcProbe struct {
	root     string
	window   time.Duration
	diskPath string
}

func NewProcProbe(root string, window time.Duration, diskPath string) *ProcProbe {
	if root == "" {
		root = DefaultProcRoot
	}
	if window <= 0 {
		window = sampling.DefaultWindow
	}
	if diskPath == "" {
		diskPath = sampling.DefaultDiskPath
	}
	return &ProcProbe{root: root, window: window, diskPath: diskPath}
}

func (p *ProcProbe) Window() time.Duration { return p.window }

// Read blocks for one window to measure CPU, then reads memory and disk.
func (p *ProcProbe) Read(ctx context.Context) (sampling.Reading, error) {
	before, err := p.cpuTimes()
	if err != nil {
		return sampling.Reading{}, fmt.Errorf("%w: cpu: %w", sampling.ErrMetricUnavailable, err)
	}

	t := time.NewTimer(p.window)
	select {
	case <-ctx.Done():
		t.Stop()
		return sampling.Reading{}, ctx.Err()
	case <-t.C:
	}

	after, err := p.cpuTimes()
	if err != nil {
		return sampling.Reading{}, fmt.Errorf("%w: cpu: %w", sampling.ErrMetricUnavailable, err)
	}

	mem, err := p.memPercent()
	if err != nil {
		return sampling.Reading{}, fmt.Errorf("%w: memory: %w", sampling.ErrMetricUnavailable, err)
	}

	disk, err := diskPercent(p.diskPath)
	if err != nil {
		return sampling.Reading{}, fmt.Errorf("%w: disk: %w", sampling.ErrMetricUnavailable, err)
	}

	return sampling.Reading{
		CPUPct:  cpuPercent(before, after),
		MemPct:  mem,
		DiskPct: disk,
	}, nil
}

func (p *ProcProbe) cpuTimes() (cpuTimes, error) {
	data, err := os.ReadFile(filepath.Join(p.root, "stat"))
	if err != nil {
		return cpuTimes{}, err
	}
	return parseCPUTimes(string(data))
}

// parseCPUTimes sums user through steal. Guest time is already part of user.
func parseCPUTimes(stat string) (cpuTimes, error) {
	for _, line := range strings.Split(stat, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 9 || fields[0] != "cpu" {
			continue
		}

		var vals [8]int64
		for i := range vals {
			v, err := strconv.ParseInt(fields[i+1], 10, 64)
			if err != nil {
				return cpuTimes{}, fmt.Errorf("bad cpu field %d: %w", i+1, err)
			}
			vals[i] = v
		}

		var total int64
		for _, v := range vals {
			total += v
		}
		// idle + iowait
		return cpuTimes{total: total, idle: vals[3] + vals[4]}, nil
	}
	return cpuTimes{}, fmt.Errorf("no aggregate cpu line")
}

func cpuPercent(before, after cpuTimes) float64 {
	total := after.total - before.total
	if total <= 0 {
		return 0
	}
	busy := total - (after.idle - before.idle)
	if busy < 0 {
		busy = 0
	}
	return float64(busy) / float64(total) * 100
}

func (p *ProcProbe) memPercent() (float64, error) {
	data, err := os.ReadFile(filepath.Join(p.root, "meminfo"))
	if err != nil {
		return 0, err
	}
	return parseMemPercent(string(data))
}

// parseMemPercent reports (MemTotal - MemAvailable) / MemTotal. Kernels
// without MemAvailable fall back to free + buffers + cached.
func parseMemPercent(meminfo string) (float64, error) {
	info := make(map[string]int64)
	for _, line := range strings.Split(meminfo, "\n") {
		idx := strings.Index(line, fieldSeparator)
		if idx == -1 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[idx+1:]), "kB"))
		v, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			continue
		}
		info[key] = v
	}

	total := info["MemTotal"]
	if total <= 0 {
		return 0, fmt.Errorf("MemTotal missing")
	}
	available, ok := info["MemAvailable"]
	if !ok {
		available = info["MemFree"] + info["Buffers"] + info["Cached"] + info["SReclaimable"]
	}
	return float64(total-available) / float64(total) * 100, nil
}

// diskPercent matches df: used / (used + available to unprivileged users).
func diskPercent(path string) (float64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	used := (st.Blocks - st.Bfree) * uint64(st.Bsize)
	avail := st.Bavail * uint64(st.Bsize)
	if used+avail == 0 {
		return 0, nil
	}
	return float64(used) / float64(used+avail) * 100, nil
}
