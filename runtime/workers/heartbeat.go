package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Heartbeat is one sample of the server's own health.
type Heartbeat struct {
	At             time.Time
	Pid            int32
	Status         string
	CPUPercent     float64
	RSSBytes       uint64
	Goroutines     int
	PendingCommits int
	CommitCapacity int
	Watchers       int
}

// Probe reports the engine side of a heartbeat.
type Probe func() (pendingCommits, commitCapacity, watchers int)

// HeartbeatWorker samples process stats every interval and keeps the
// latest sample for the debug inspector. A commit queue close to full is
// logged as a warning.
type HeartbeatWorker struct {
	log      *slog.Logger
	interval time.Duration
	probe    Probe
	latest   atomic.Pointer[Heartbeat]
}

func NewHeartbeatWorker(log *slog.Logger, interval time.Duration, probe Probe) *HeartbeatWorker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HeartbeatWorker{log: log, interval: interval, probe: probe}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			beat, err := w.sample(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "error", err)
				continue
			}
			w.latest.Store(&beat)
			if beat.CommitCapacity > 0 && beat.PendingCommits*10 >= beat.CommitCapacity*8 {
				w.log.Warn("Commit queue nearly full",
					"pending", beat.PendingCommits, "capacity", beat.CommitCapacity)
			}
		}
	}
}

// Latest returns the last sample, zero until the first tick.
func (w *HeartbeatWorker) Latest() Heartbeat {
	if beat := w.latest.Load(); beat != nil {
		return *beat
	}
	return Heartbeat{}
}

func (w *HeartbeatWorker) sample(p *process.Process) (Heartbeat, error) {
	rss, cpu, status, err := selfStats(p)
	if err != nil {
		return Heartbeat{}, err
	}
	beat := Heartbeat{
		At:         time.Now(),
		Pid:        p.Pid,
		Status:     status,
		CPUPercent: cpu,
		RSSBytes:   rss,
		Goroutines: runtime.NumGoroutine(),
	}
	if w.probe != nil {
		beat.PendingCommits, beat.CommitCapacity, beat.Watchers = w.probe()
	}
	return beat, nil
}

// selfStats retrieves memory, CPU and OS status for the given process.
func selfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
