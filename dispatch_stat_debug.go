//go:build debug

package taskq

import (
	"sync/atomic"
)

var (
	promoted    atomic.Int64
	absorbed    atomic.Int64
	peakRunning atomic.Int64
)

// DispatchStats is a process-wide snapshot of dispatcher activity,
// available in debug builds only.
type DispatchStats struct {
	Promoted    int64
	Absorbed    int64
	PeakRunning int64
}

func statPromoted(running int) {
	promoted.Add(1)
	for {
		cur := peakRunning.Load()
		if int64(running) <= cur || peakRunning.CompareAndSwap(cur, int64(running)) {
			return
		}
	}
}

func statAbsorbed() { absorbed.Add(1) }

func SnapshotDispatchStats() DispatchStats {
	return DispatchStats{
		Promoted:    promoted.Load(),
		Absorbed:    absorbed.Load(),
		PeakRunning: peakRunning.Load(),
	}
}

func PrintDispatchStat() {
	println(
		"promoted / absorbed / peak running :",
		promoted.Load(),
		absorbed.Load(),
		peakRunning.Load(),
	)
}
