// Package publisher delivers tracker state to an MQTT broker with
// retained messages and Home Assistant discovery. Publishing runs on a
// single worker goroutine so per-topic ordering is preserved, and the
// detection loop never blocks on a dead broker.
package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mailcam/mailcam/internal/config"
	"github.com/mailcam/mailcam/internal/logger"
	"github.com/mailcam/mailcam/internal/service"
	"github.com/mailcam/mailcam/internal/tracker"
	"github.com/mailcam/mailcam/internal/vision"
)

// Client is the slice of the paho client the publisher uses. The
// concrete paho client satisfies it; tests substitute a fake.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
	IsConnectionOpen() bool
}

type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// CycleDetails is the per-cycle detail payload. On failed cycles only
// Error, Timestamp and Iteration are set.
type CycleDetails struct {
	State       string             `json:"state,omitempty"`
	Error       string             `json:"error,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
	Iteration   uint64             `json:"iteration"`
	ImageWidth  int                `json:"image_width,omitempty"`
	ImageHeight int                `json:"image_height,omitempty"`
	Hits        []vision.Detection `json:"hits"`
	HitCount    int                `json:"hit_count"`
}

// Publisher is a managed service wrapping the MQTT connection and the
// ordered publish queue.
type Publisher struct {
	*service.ServiceBase

	cfg    config.MQTTConfig
	labels []string

	clientFactory func(*mqtt.ClientOptions) Client
	client        Client

	mu     sync.Mutex
	queue  chan message
	done   chan struct{}
	closed bool

	dropped atomic.Uint64
}

func New(log *logger.Logger, cfg config.MQTTConfig, labels []string) *Publisher {
	return &Publisher{
		ServiceBase: service.NewServiceBase("publisher", log),
		cfg:         cfg,
		labels:      labels,
		clientFactory: func(opts *mqtt.ClientOptions) Client {
			return mqtt.NewClient(opts)
		},
	}
}

func (p *Publisher) Start(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusStarting)

	opts := mqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL()).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true).
		SetWill(p.topic("availability"), "offline", 1, true)
	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		p.LogInfo("Connected to MQTT broker", "broker", p.cfg.BrokerURL())
		p.PublishEvent(service.EventTypePublisherConnected, map[string]interface{}{
			"broker": p.cfg.BrokerURL(),
		})
		p.announce()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.LogWarn("MQTT connection lost", "error", err)
		p.PublishEvent(service.EventTypePublisherDisconnected, map[string]interface{}{
			"error": err.Error(),
		})
	})

	p.client = p.clientFactory(opts)
	p.queue = make(chan message, p.cfg.QueueSize)
	p.done = make(chan struct{})

	// Connect in the background. The retry loop inside paho keeps
	// trying; the detection loop queues snapshots meanwhile.
	token := p.client.Connect()
	go func() {
		if token.WaitTimeout(p.cfg.ConnectTimeout) && token.Error() != nil {
			p.LogWarn("Initial MQTT connect failed, retrying in background",
				"broker", p.cfg.BrokerURL(), "error", token.Error())
		}
	}()

	go p.worker()

	p.GetStatus().SetStatus(service.StatusRunning)
	p.LogInfo("Publisher started", "base_topic", p.cfg.BaseTopic, "queue_size", p.cfg.QueueSize)
	return nil
}

func (p *Publisher) Stop(ctx context.Context) error {
	p.GetStatus().SetStatus(service.StatusStopping)

	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		p.LogWarn("Publisher queue not drained before shutdown deadline",
			"remaining", len(p.queue))
	}

	if p.client != nil {
		if p.client.IsConnectionOpen() {
			t := p.client.Publish(p.topic("availability"), 1, true, "offline")
			t.WaitTimeout(time.Second)
		}
		p.client.Disconnect(250)
	}

	p.GetStatus().SetStatus(service.StatusStopped)
	p.LogInfo("Publisher stopped", "dropped_total", p.dropped.Load())
	return nil
}

// worker drains the queue one message at a time. Retained-state topics
// rely on this ordering: a later snapshot can never be overtaken by an
// earlier one.
func (p *Publisher) worker() {
	defer close(p.done)
	for msg := range p.queue {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			p.LogWarn("MQTT publish failed", "topic", msg.topic, "error", token.Error())
		}
	}
}

// enqueue hands a message to the worker without blocking. When the
// broker is down long enough to fill the queue, the newest message is
// dropped and counted; retained topics recover on the next cycle.
func (p *Publisher) enqueue(topic string, payload []byte, qos byte, retained bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- message{topic: topic, payload: payload, qos: qos, retained: retained}:
	default:
		n := p.dropped.Add(1)
		p.LogWarn("Publish queue full, dropping message", "topic", topic, "dropped_total", n)
		p.PublishEvent(service.EventTypePublishDropped, map[string]interface{}{
			"topic": topic,
		})
	}
}

func (p *Publisher) enqueueJSON(topic string, v interface{}, qos byte, retained bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.LogError("Failed to encode payload", err, "topic", topic)
		return
	}
	p.enqueue(topic, payload, qos, retained)
}

func (p *Publisher) topic(parts ...string) string {
	t := p.cfg.BaseTopic
	for _, part := range parts {
		t += "/" + part
	}
	return t
}

// announce publishes availability plus the discovery configs. Runs on
// every (re)connect so a restarted hub rediscovers the device.
func (p *Publisher) announce() {
	p.enqueue(p.topic("availability"), []byte("online"), 1, true)
	p.publishDiscovery()
}

// PublishCycle publishes the headline state and the per-cycle detail
// document.
func (p *Publisher) PublishCycle(details CycleDetails) {
	state := details.State
	if state == "" {
		state = "Unknown"
	}
	p.enqueue(p.topic("state"), []byte(state), 1, true)
	p.enqueueJSON(p.topic("details"), details, 0, true)
}

// PublishSnapshot publishes the per-carrier boolean topics and the
// daily summary document, all retained so late subscribers converge.
func (p *Publisher) PublishSnapshot(snap tracker.Snapshot) {
	for _, st := range snap.States {
		payload := "no"
		if st.DetectedToday {
			payload = "yes"
		}
		p.enqueue(p.topic("carriers", st.Label), []byte(payload), 1, true)
	}
	p.enqueueJSON(p.topic("daily_summary"), summaryPayload(snap), 1, true)
}

// PublishTrigger publishes a first-detection event. Not retained: it
// is a notification, not state.
func (p *Publisher) PublishTrigger(trig tracker.FirstTrigger) {
	p.enqueueJSON(p.topic("events", "first_trigger"), trig, 1, false)
}

// PublishTelemetry publishes the periodic heartbeat document. Not
// retained: stale heartbeats are worse than none.
func (p *Publisher) PublishTelemetry(doc interface{}) {
	p.enqueueJSON(p.topic("telemetry"), doc, 0, false)
}

// Connected reports whether the MQTT connection is currently open.
func (p *Publisher) Connected() bool {
	return p.client != nil && p.client.IsConnectionOpen()
}

// Dropped returns how many messages were dropped due to a full queue.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

type summaryCarrier struct {
	DetectedToday bool       `json:"detected_today"`
	FirstSeen     *time.Time `json:"first_seen,omitempty"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
}

type summaryDoc struct {
	Date     string                    `json:"date"`
	AsOf     time.Time                 `json:"as_of"`
	Carriers map[string]summaryCarrier `json:"carriers"`
}

func summaryPayload(snap tracker.Snapshot) summaryDoc {
	carriers := make(map[string]summaryCarrier, len(snap.States))
	for _, st := range snap.States {
		carriers[st.Label] = summaryCarrier{
			DetectedToday: st.DetectedToday,
			FirstSeen:     st.FirstSeen,
			LastSeen:      st.LastSeen,
		}
	}
	return summaryDoc{
		Date:     snap.DayBoundary,
		AsOf:     snap.AsOf,
		Carriers: carriers,
	}
}
