package exporting

import "LoadMonitor/pkg/sampling"

// Records flattens phase recordings into one record per sample.
func Records(sessionID string, recs ...sampling.PhaseRecording) []Record {
	var n int
	for _, r := range recs {
		n += r.Len()
	}

	out := make([]Record, 0, n)
	for _, r := range recs {
		for i, s := range r.Samples {
			out = append(out, Record{
				"session":        sessionID,
				"phase":          r.Phase,
				"seq":            int64(i),
				"elapsedSeconds": s.ElapsedSeconds,
				"cpuPct":         s.CPUPct,
				"memPct":         s.MemPct,
				"diskPct":        s.DiskPct,
				"timestamp":      s.Timestamp.UnixMilli(),
			})
		}
	}
	return out
}
