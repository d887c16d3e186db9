package workers

import (
	"chat-relay/domain"
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Health is one sample of the relay's own resource usage.
type Health struct {
	At         time.Time
	Users      []domain.UserID
	Online     int
	Sessions   int
	Goroutines int
	CPU        float64
	RAM        float32
	RSS        uint64
}

// Counter reports a live count, such as open sessions.
type Counter func() int

// OnlineUsers returns a snapshot of the connected users.
type OnlineUsers func() []domain.UserID

type HealthMonitoringWorker struct {
	mu             sync.RWMutex
	log            *slog.Logger
	metricInterval time.Duration
	online         OnlineUsers
	sessions       Counter
	last           Health
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	metricInterval time.Duration,
	online OnlineUsers,
	sessions Counter,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		metricInterval: metricInterval,
		online:         online,
		sessions:       sessions,
	}
}

// Run samples the current process every metricInterval until ctx is done.
func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			health, err := w.sample(p)
			if err != nil {
				w.log.Error("Error while sampling process health", "error", err)
				continue
			}
			w.mu.Lock()
			w.last = health
			w.mu.Unlock()
			w.log.Info("Health",
				"online", health.Online,
				"sessions", health.Sessions,
				"goroutines", health.Goroutines,
				"cpu_percent", health.CPU,
				"ram_percent", health.RAM,
				"rss_bytes", health.RSS)
			w.log.Debug("Online users", "users", health.Users)
		}
	}
}

func (w *HealthMonitoringWorker) sample(p *process.Process) (Health, error) {
	cpu, err := p.CPUPercent()
	if err != nil {
		return Health{}, err
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return Health{}, err
	}
	memory, err := p.MemoryInfo()
	if err != nil {
		return Health{}, err
	}
	users := w.online()
	return Health{
		At:         time.Now().UTC(),
		Users:      users,
		Online:     len(users),
		Sessions:   w.sessions(),
		Goroutines: runtime.NumGoroutine(),
		CPU:        cpu,
		RAM:        ram,
		RSS:        memory.RSS,
	}, nil
}

// Last returns the latest sample, the zero value before the first tick.
func (w *HealthMonitoringWorker) Last() Health {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}
