package health

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mailcam/mailcam/internal/telemetry"
)

// ModelChecker verifies the model and labels files are present.
type ModelChecker struct {
	modelPath  string
	labelsPath string
}

func NewModelChecker(modelPath, labelsPath string) *ModelChecker {
	return &ModelChecker{modelPath: modelPath, labelsPath: labelsPath}
}

func (c *ModelChecker) Name() string {
	return "model"
}

func (c *ModelChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"path": c.modelPath},
	}

	if _, err := os.Stat(c.modelPath); err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("Model file not accessible: %v", err)
		return check
	}
	if c.labelsPath != "" {
		if _, err := os.Stat(c.labelsPath); err != nil {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("Labels file not accessible: %v", err)
			return check
		}
	}

	check.Status = StatusHealthy
	check.Message = "Model files present"
	return check
}

// SourceChecker verifies the snapshot source responds. A camera outage
// degrades but does not fail the process: the loop keeps republishing
// last-known state.
type SourceChecker struct {
	url    string
	client *http.Client
}

func NewSourceChecker(url string) *SourceChecker {
	return &SourceChecker{
		url: url,
		client: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

func (c *SourceChecker) Name() string {
	return "source"
}

func (c *SourceChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"url": c.url},
	}

	if !strings.HasPrefix(c.url, "http://") && !strings.HasPrefix(c.url, "https://") {
		if _, err := os.Stat(strings.TrimPrefix(c.url, "file://")); err != nil {
			check.Status = StatusDegraded
			check.Message = fmt.Sprintf("Snapshot file not accessible: %v", err)
			return check
		}
		check.Status = StatusHealthy
		check.Message = "Snapshot file present"
		return check
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Failed to create request: %v", err)
		return check
	}

	resp, err := c.client.Do(req)
	if err != nil {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Snapshot source unreachable: %v", err)
		return check
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("Snapshot source returned status %d", resp.StatusCode)
		check.Details["status_code"] = resp.StatusCode
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Snapshot source reachable"
	return check
}

// BrokerConnection reports whether the MQTT connection is currently
// open. Implemented by the publisher.
type BrokerConnection interface {
	Connected() bool
}

// BrokerChecker reports broker connectivity. Disconnection degrades:
// the publish queue buffers until the client reconnects.
type BrokerChecker struct {
	conn   BrokerConnection
	broker string
}

func NewBrokerChecker(conn BrokerConnection, broker string) *BrokerChecker {
	return &BrokerChecker{conn: conn, broker: broker}
}

func (c *BrokerChecker) Name() string {
	return "broker"
}

func (c *BrokerChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   map[string]interface{}{"broker": c.broker},
	}

	if c.conn == nil || !c.conn.Connected() {
		check.Status = StatusDegraded
		check.Message = "MQTT broker not connected"
		return check
	}

	check.Status = StatusHealthy
	check.Message = "MQTT broker connected"
	return check
}

// LoopStats provides the detection-loop counters. Implemented by the
// telemetry collector.
type LoopStats interface {
	Stats() telemetry.CycleStats
}

// LoopChecker verifies the detection loop is making progress based on
// the telemetry counters.
type LoopChecker struct {
	collector    LoopStats
	pollInterval time.Duration
}

func NewLoopChecker(collector LoopStats, pollInterval time.Duration) *LoopChecker {
	return &LoopChecker{collector: collector, pollInterval: pollInterval}
}

func (c *LoopChecker) Name() string {
	return "detection_loop"
}

func (c *LoopChecker) Check(ctx context.Context) Check {
	check := Check{
		Name:      c.Name(),
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}

	stats := c.collector.Stats()
	check.Details["cycles_completed"] = stats.CyclesCompleted
	check.Details["cycles_failed"] = stats.CyclesFailed

	if stats.LastCycleAt.IsZero() {
		check.Status = StatusDegraded
		check.Message = "No cycles recorded yet"
		return check
	}

	age := time.Since(stats.LastCycleAt)
	check.Details["last_cycle_age"] = age.String()
	if age > 5*c.pollInterval {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("No cycle for %v", age.Round(time.Second))
		return check
	}

	check.Status = StatusHealthy
	check.Message = "Detection loop running"
	return check
}
