package workers

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*StatsWorker)(nil)

// StatsWorker periodically logs the server counters together with the process footprint.
type StatsWorker struct {
	log        *slog.Logger
	interval   time.Duration
	registry   contract.IRegistry
	monitoring *observability.Monitoring
}

func NewStatsWorker(
	log *slog.Logger,
	interval time.Duration,
	registry contract.IRegistry,
	monitoring *observability.Monitoring) *StatsWorker {
	return &StatsWorker{log: log, interval: interval, registry: registry, monitoring: monitoring}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process stats unavailable", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats reporting")
			return nil
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *StatsWorker) report(p *process.Process) {
	stats := w.monitoring.Snapshot(w.registry.Len(), nil)
	attrs := w.monitoring.LogAttrs(stats)
	if p != nil {
		rss, cpu, err := selfStats(p)
		if err != nil {
			w.log.Debug("Failed to collect self stats", "error", err)
		} else {
			attrs = append(attrs, "rss_bytes", rss, "cpu_percent", cpu)
		}
	}
	w.log.Info("Server stats", attrs...)
}

// selfStats retrieves resident memory and CPU usage of the server process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
