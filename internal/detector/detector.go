// Package detector runs the periodic snapshot-to-state cycle: fetch,
// preprocess, infer, decode, track, publish.
package detector

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/fetch"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/model"
	"github.com/mailcam/mailcam/internal/publisher"
	"github.com/mailcam/mailcam/internal/service"
	"github.com/mailcam/mailcam/internal/tracker"
	"github.com/mailcam/mailcam/internal/vision"
)

// Fetcher retrieves one snapshot image per cycle.
type Fetcher interface {
	Fetch(ctx context.Context) (image.Image, error)
}

// StatePublisher receives cycle results and tracker state. Calls must
// not block beyond a bounded enqueue.
type StatePublisher interface {
	PublishCycle(publisher.CycleDetails)
	PublishSnapshot(tracker.Snapshot)
	PublishTrigger(tracker.FirstTrigger)
}

// Detector is the managed service owning the detection loop. All
// tracker state is mutated only by the loop goroutine.
type Detector struct {
	*service.ServiceBase

	cfg      *config.Config
	fetcher  Fetcher
	invoker  model.Invoker
	pipeline *vision.Pipeline
	tracker  *tracker.Tracker
	pub      StatePublisher

	now       func() time.Time
	iteration uint64

	lastSnapshot atomic.Value // tracker.Snapshot
	lastCycle    atomic.Value // publisher.CycleDetails

	cancel context.CancelFunc
	done   chan struct{}
}

func New(log *logger.Logger, cfg *config.Config, fetcher Fetcher, invoker model.Invoker,
	pipeline *vision.Pipeline, track *tracker.Tracker, pub StatePublisher) *Detector {
	return &Detector{
		ServiceBase: service.NewServiceBase("detector", log),
		cfg:         cfg,
		fetcher:     fetcher,
		invoker:     invoker,
		pipeline:    pipeline,
		tracker:     track,
		pub:         pub,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

func (d *Detector) Start(_ context.Context) error {
	d.GetStatus().SetStatus(service.StatusStarting)

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go d.run(ctx)

	d.GetStatus().SetStatus(service.StatusRunning)
	d.LogInfo("Detection loop started",
		"poll_interval", d.cfg.Source.PollInterval,
		"labels", d.tracker.Labels())
	return nil
}

func (d *Detector) Stop(ctx context.Context) error {
	d.GetStatus().SetStatus(service.StatusStopping)
	if d.cancel != nil {
		d.cancel()
	}
	select {
	case <-d.done:
	case <-ctx.Done():
		d.LogWarn("Detection loop did not stop before shutdown deadline")
	}
	d.GetStatus().SetStatus(service.StatusStopped)
	return nil
}

// run executes cycles on a drift-free schedule: each cycle is due at a
// fixed multiple of the poll interval, and a slow cycle shortens the
// following sleep instead of shifting every later cycle.
func (d *Detector) run(ctx context.Context) {
	defer close(d.done)

	interval := d.cfg.Source.PollInterval
	next := time.Now()
	for {
		d.cycle(ctx)

		next = next.Add(interval)
		sleep := time.Until(next)
		if sleep < 0 {
			sleep = 0
			next = time.Now()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// cycle runs one end-to-end pass. Any stage failure abandons the cycle
// without recording detections, but still publishes the current
// snapshot so downstream consumers keep receiving periodic state.
func (d *Detector) cycle(ctx context.Context) {
	d.iteration++
	start := d.now()

	// Roll the day over before anything that can fail. A broken camera
	// must not keep yesterday's retained carrier states alive past the
	// reset hour.
	if d.tracker.Rollover(start) {
		day := d.tracker.Snapshot(start).DayBoundary
		d.LogInfo("Daily reset", "effective_day", day)
		d.PublishEvent(service.EventTypeDailyReset, map[string]interface{}{
			"effective_day": day,
		})
	}

	img, err := d.fetcher.Fetch(ctx)
	if err != nil {
		d.failCycle(start, "fetch", err)
		return
	}

	bounds := img.Bounds()
	tensor, tf, err := vision.Preprocess(img, d.invoker.InputSide())
	if err != nil {
		d.failCycle(start, "preprocess", err)
		return
	}

	inferCtx, cancel := context.WithTimeout(ctx, d.cfg.Source.InferTimeout)
	raw, err := d.invoker.Infer(inferCtx, tensor)
	cancel()
	if err != nil {
		d.failCycle(start, "infer", err)
		return
	}

	hits, err := d.pipeline.Run(raw, tf, bounds.Dx(), bounds.Dy())
	if err != nil {
		d.failCycle(start, "decode", err)
		return
	}

	seen := make([]string, 0, len(hits))
	for _, hit := range hits {
		seen = append(seen, hit.Label)
	}

	triggers, _ := d.tracker.Observe(start, seen)
	for _, trig := range triggers {
		d.LogInfo("First detection of the day", "label", trig.Label, "at", trig.At)
		d.pub.PublishTrigger(trig)
		d.PublishEvent(service.EventTypeFirstTrigger, map[string]interface{}{
			"label": trig.Label,
			"id":    trig.ID,
		})
	}

	state := "Not delivered"
	if len(hits) > 0 {
		state = "Delivered"
	}

	details := publisher.CycleDetails{
		State:       state,
		Timestamp:   start,
		Iteration:   d.iteration,
		ImageWidth:  bounds.Dx(),
		ImageHeight: bounds.Dy(),
		Hits:        hits,
		HitCount:    len(hits),
	}
	snap := d.tracker.Snapshot(start)
	d.pub.PublishCycle(details)
	d.pub.PublishSnapshot(snap)
	d.lastCycle.Store(details)
	d.lastSnapshot.Store(snap)

	d.PublishEvent(service.EventTypeCycleCompleted, map[string]interface{}{
		"iteration":   d.iteration,
		"state":       state,
		"hit_count":   len(hits),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// failCycle logs and reports a skipped cycle. No detections are
// recorded; the published snapshot carries the last recorded state,
// including any rollover that already ran this cycle.
func (d *Detector) failCycle(start time.Time, stage string, err error) {
	switch {
	case errors.Is(err, vision.ErrUnsupportedOutputShape):
		// Model/config mismatch, worth more attention than a flaky
		// camera.
		d.LogError("Cycle failed", err, "stage", stage, "iteration", d.iteration)
	case isFetchTimeout(err):
		d.LogWarn("Cycle timed out", "stage", stage, "iteration", d.iteration, "error", err)
	default:
		d.LogWarn("Cycle failed", "stage", stage, "iteration", d.iteration, "error", err)
	}

	details := publisher.CycleDetails{
		Error:     err.Error(),
		Timestamp: start,
		Iteration: d.iteration,
	}
	snap := d.tracker.Snapshot(start)
	d.pub.PublishCycle(details)
	d.pub.PublishSnapshot(snap)
	d.lastCycle.Store(details)
	d.lastSnapshot.Store(snap)

	d.PublishEvent(service.EventTypeCycleFailed, map[string]interface{}{
		"iteration": d.iteration,
		"stage":     stage,
		"error":     err.Error(),
	})
}

// Snapshot returns the tracker state from the most recent cycle. Safe
// to call from other goroutines.
func (d *Detector) Snapshot() (tracker.Snapshot, bool) {
	v := d.lastSnapshot.Load()
	if v == nil {
		return tracker.Snapshot{}, false
	}
	return v.(tracker.Snapshot), true
}

// LastCycle returns the most recent cycle details.
func (d *Detector) LastCycle() (publisher.CycleDetails, bool) {
	v := d.lastCycle.Load()
	if v == nil {
		return publisher.CycleDetails{}, false
	}
	return v.(publisher.CycleDetails), true
}

func isFetchTimeout(err error) bool {
	var fe *fetch.Error
	return errors.As(err, &fe) && fe.Timeout()
}
