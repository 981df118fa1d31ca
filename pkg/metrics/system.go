package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemSampler reads process-level resource usage.
type SystemSampler struct {
	proc    *process.Process
	lastGC  uint32
	started time.Time
}

// NewSystemSampler creates a sampler for the current process.
func NewSystemSampler() (*SystemSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}
	return &SystemSampler{proc: proc, started: time.Now()}, nil
}

// CPUPercent returns process CPU usage, falling back to system-wide usage
// when per-process accounting is unavailable.
func (s *SystemSampler) CPUPercent(ctx context.Context) (float64, error) {
	if pct, err := s.proc.PercentWithContext(ctx, 0); err == nil {
		return pct, nil
	}
	pcts, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrObserveFailed, err)
	}
	if len(pcts) == 0 {
		return 0, ErrObserveFailed
	}
	return pcts[0], nil
}

// Uptime returns the time since the sampler was created.
func (s *SystemSampler) Uptime() time.Duration {
	return time.Since(s.started)
}

// Collect publishes memory, goroutine, GC and CPU gauges once.
func (s *SystemSampler) Collect(ctx context.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	UpdateSystemMemoryUsage(m.Alloc)
	UpdateSystemGoroutineCount(runtime.NumGoroutine())

	from := s.lastGC
	if window := uint32(len(m.PauseNs)); m.NumGC-from > window {
		from = m.NumGC - window
	}
	for i := from; i < m.NumGC; i++ {
		pause := m.PauseNs[i%uint32(len(m.PauseNs))]
		RecordSystemGCPauseTime(float64(pause) / float64(time.Millisecond))
	}
	s.lastGC = m.NumGC

	pct, err := s.CPUPercent(ctx)
	if err != nil {
		return err
	}
	UpdateSystemCPUPercent(pct)
	return nil
}
