// Package telemetry aggregates detection-loop activity from the event
// bus and reports a periodic heartbeat over MQTT.
package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/service"
)

// CycleStats are cumulative counters since process start, plus the
// most recent cycle outcome.
type CycleStats struct {
	CyclesCompleted uint64    `json:"cycles_completed"`
	CyclesFailed    uint64    `json:"cycles_failed"`
	FirstTriggers   uint64    `json:"first_triggers"`
	DailyResets     uint64    `json:"daily_resets"`
	PublishDropped  uint64    `json:"publish_dropped"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	LastState       string    `json:"last_state,omitempty"`
	LastHitCount    int       `json:"last_hit_count"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at,omitempty"`
}

// RuntimeStats are process-level metrics for the heartbeat.
type RuntimeStats struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	SysBytes       uint64  `json:"sys_bytes"`
	NumGC          uint32  `json:"num_gc"`
}

// Collector subscribes to the event bus and folds detection events
// into counters. It never blocks event producers.
type Collector struct {
	*service.ServiceBase

	mu        sync.RWMutex
	stats     CycleStats
	startedAt time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewCollector(log *logger.Logger) *Collector {
	return &Collector{
		ServiceBase: service.NewServiceBase("telemetry-collector", log),
		startedAt:   time.Now(),
	}
}

func (c *Collector) Start(_ context.Context) error {
	c.GetStatus().SetStatus(service.StatusStarting)

	bus := c.GetEventBus()
	if bus == nil {
		c.GetStatus().SetStatus(service.StatusRunning)
		c.LogWarn("No event bus attached, telemetry counters disabled")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	completed := bus.Subscribe(service.EventTypeCycleCompleted)
	failed := bus.Subscribe(service.EventTypeCycleFailed)
	triggers := bus.Subscribe(service.EventTypeFirstTrigger)
	resets := bus.Subscribe(service.EventTypeDailyReset)
	dropped := bus.Subscribe(service.EventTypePublishDropped)

	go func() {
		defer close(c.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-completed:
				c.onCycleCompleted(ev)
			case ev := <-failed:
				c.onCycleFailed(ev)
			case <-triggers:
				c.add(func(s *CycleStats) { s.FirstTriggers++ })
			case <-resets:
				c.add(func(s *CycleStats) { s.DailyResets++ })
			case <-dropped:
				c.add(func(s *CycleStats) { s.PublishDropped++ })
			}
		}
	}()

	c.GetStatus().SetStatus(service.StatusRunning)
	c.LogInfo("Telemetry collector started")
	return nil
}

func (c *Collector) Stop(ctx context.Context) error {
	c.GetStatus().SetStatus(service.StatusStopping)
	if c.cancel != nil {
		c.cancel()
		select {
		case <-c.done:
		case <-ctx.Done():
		}
	}
	c.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

func (c *Collector) add(fn func(*CycleStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.stats)
}

func (c *Collector) onCycleCompleted(ev service.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.CyclesCompleted++
	c.stats.LastCycleAt = ev.Timestamp
	if state, ok := ev.Data["state"].(string); ok {
		c.stats.LastState = state
	}
	if hits, ok := ev.Data["hit_count"].(int); ok {
		c.stats.LastHitCount = hits
	}
}

func (c *Collector) onCycleFailed(ev service.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.CyclesFailed++
	c.stats.LastCycleAt = ev.Timestamp
	if msg, ok := ev.Data["error"].(string); ok {
		c.stats.LastError = msg
		c.stats.LastErrorAt = ev.Timestamp
	}
}

// Stats returns a copy of the current counters.
func (c *Collector) Stats() CycleStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Runtime returns current process-level metrics.
func (c *Collector) Runtime() RuntimeStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return RuntimeStats{
		UptimeSeconds:  time.Since(c.startedAt).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: m.HeapAlloc,
		SysBytes:       m.Sys,
		NumGC:          m.NumGC,
	}
}
