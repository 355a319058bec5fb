package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/service"
)

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func startCollector(t *testing.T) (*Collector, *service.EventBus) {
	t.Helper()
	bus := service.NewEventBus(16)
	c := NewCollector(logger.NewNopLogger())
	c.SetEventBus(bus)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		c.Stop(ctx)
	})
	return c, bus
}

func TestCollector_Counters(t *testing.T) {
	c, bus := startCollector(t)

	bus.Publish(service.Event{
		Type:   service.EventTypeCycleCompleted,
		Source: "detector",
		Data:   map[string]interface{}{"state": "Delivered", "hit_count": 2},
	})
	bus.Publish(service.Event{
		Type:   service.EventTypeCycleCompleted,
		Source: "detector",
		Data:   map[string]interface{}{"state": "Not delivered", "hit_count": 0},
	})
	bus.Publish(service.Event{
		Type:   service.EventTypeCycleFailed,
		Source: "detector",
		Data:   map[string]interface{}{"stage": "fetch", "error": "timeout"},
	})
	bus.Publish(service.Event{Type: service.EventTypeFirstTrigger, Source: "detector"})
	bus.Publish(service.Event{Type: service.EventTypePublishDropped, Source: "publisher"})

	waitFor(t, func() bool {
		s := c.Stats()
		return s.CyclesCompleted == 2 && s.CyclesFailed == 1 &&
			s.FirstTriggers == 1 && s.PublishDropped == 1
	}, "counters to settle")

	s := c.Stats()
	if s.LastState != "Not delivered" {
		t.Errorf("Expected last state from final completed cycle, got %q", s.LastState)
	}
	if s.LastError != "timeout" {
		t.Errorf("Expected last error recorded, got %q", s.LastError)
	}
	if s.LastCycleAt.IsZero() {
		t.Error("Expected last cycle timestamp to be set")
	}
}

func TestCollector_Runtime(t *testing.T) {
	c, _ := startCollector(t)

	rt := c.Runtime()
	if rt.Goroutines <= 0 {
		t.Error("Expected a positive goroutine count")
	}
	if rt.HeapAllocBytes == 0 {
		t.Error("Expected non-zero heap usage")
	}
}

type fakeSink struct {
	mu   sync.Mutex
	docs []interface{}
}

func (s *fakeSink) PublishTelemetry(doc interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func TestReporter_PublishesHeartbeats(t *testing.T) {
	c, _ := startCollector(t)
	sink := &fakeSink{}

	r := NewReporter(logger.NewNopLogger(), c, sink, config.TelemetryConfig{
		Enabled:  true,
		Interval: 10 * time.Millisecond,
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		r.Stop(ctx)
	}()

	waitFor(t, func() bool { return sink.count() >= 2 }, "heartbeats")

	sink.mu.Lock()
	hb, ok := sink.docs[0].(Heartbeat)
	sink.mu.Unlock()
	if !ok {
		t.Fatalf("Expected Heartbeat document, got %T", sink.docs[0])
	}
	if hb.Timestamp.IsZero() {
		t.Error("Heartbeat should carry a timestamp")
	}
}

func TestReporter_Disabled(t *testing.T) {
	c, _ := startCollector(t)
	sink := &fakeSink{}

	r := NewReporter(logger.NewNopLogger(), c, sink, config.TelemetryConfig{
		Enabled:  false,
		Interval: time.Millisecond,
	})
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if sink.count() != 0 {
		t.Error("Disabled reporter should not publish")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
