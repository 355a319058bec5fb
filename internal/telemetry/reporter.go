package telemetry

import (
	"context"
	"time"

	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/service"
)

// Sink receives heartbeat documents. Implemented by the MQTT
// publisher.
type Sink interface {
	PublishTelemetry(doc interface{})
}

// Heartbeat is the periodic liveness document. Downstream consumers
// use it to tell "no deliveries today" apart from "detector is dead".
type Heartbeat struct {
	Timestamp time.Time    `json:"timestamp"`
	Stats     CycleStats   `json:"stats"`
	Runtime   RuntimeStats `json:"runtime"`
}

// Reporter periodically publishes collector stats through the sink.
type Reporter struct {
	*service.ServiceBase

	collector *Collector
	sink      Sink
	cfg       config.TelemetryConfig

	cancel context.CancelFunc
	done   chan struct{}
}

func NewReporter(log *logger.Logger, collector *Collector, sink Sink, cfg config.TelemetryConfig) *Reporter {
	return &Reporter{
		ServiceBase: service.NewServiceBase("telemetry-reporter", log),
		collector:   collector,
		sink:        sink,
		cfg:         cfg,
	}
}

func (r *Reporter) Start(_ context.Context) error {
	if !r.cfg.Enabled {
		r.LogInfo("Telemetry reporting is disabled")
		r.GetStatus().SetStatus(service.StatusRunning)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.sink.PublishTelemetry(Heartbeat{
					Timestamp: now,
					Stats:     r.collector.Stats(),
					Runtime:   r.collector.Runtime(),
				})
			}
		}
	}()

	r.GetStatus().SetStatus(service.StatusRunning)
	r.LogInfo("Telemetry reporter started", "interval", r.cfg.Interval)
	return nil
}

func (r *Reporter) Stop(ctx context.Context) error {
	r.GetStatus().SetStatus(service.StatusStopping)
	if r.cancel != nil {
		r.cancel()
		select {
		case <-r.done:
		case <-ctx.Done():
		}
	}
	r.GetStatus().SetStatus(service.StatusStopped)
	return nil
}
