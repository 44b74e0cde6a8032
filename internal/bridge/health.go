package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the MQTT side of health reporting.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// LinkStatus reports the state of the controller session.
type LinkStatus interface {
	IsConnected() bool
	Stats() sclink.ManagerStats
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Version string
	Topic   string

	// Interval between periodic reports. Defaults to 30s.
	Interval time.Duration

	Publisher HealthPublisher
	Link      LinkStatus

	// Collect adds service statistics to each message. Optional.
	Collect func(msg *HealthMessage)
}

// HealthReporter publishes a retained HealthMessage on a fixed interval and
// on demand. The first failing check decides the reported reason.
type HealthReporter struct {
	cfg      HealthReporterConfig
	interval time.Duration
	started  time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu     sync.RWMutex
	logger Logger
}

// NewHealthReporter returns a reporter; nothing is published until
// PublishStarting, PublishNow or Start.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		cfg:      cfg,
		interval: interval,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for failed periodic publishes.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.mu.Lock()
	h.logger = logger
	h.mu.Unlock()
}

// Start publishes every interval until ctx is done or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t := time.NewTicker(h.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-t.C:
				if err := h.PublishNow(); err != nil {
					h.mu.RLock()
					l := h.logger
					h.mu.RUnlock()
					if l != nil {
						l.Error("failed to publish health", "error", err)
					}
				}
			}
		}
	}()
}

// Stop ends periodic reporting and publishes a final "stopping" status.
// Further calls do nothing.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.publish(h.message(HealthStopping, "")) //nolint:errcheck // shutting down
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(h.message(HealthStarting, "service starting"))
}

// PublishNow evaluates and publishes the current status.
func (h *HealthReporter) PublishNow() error {
	return h.publish(h.Snapshot())
}

// Snapshot evaluates the current status without publishing it.
func (h *HealthReporter) Snapshot() HealthMessage {
	msg := h.message(HealthHealthy, "")
	for _, check := range h.checks(&msg) {
		if reason := check(); reason != "" {
			msg.Status, msg.Reason = HealthDegraded, reason
			break
		}
	}
	return msg
}

// checks lists the health conditions in priority order. Each returns the
// degradation reason, or "" when it passes.
func (h *HealthReporter) checks(msg *HealthMessage) []func() string {
	pub, link := h.cfg.Publisher, h.cfg.Link
	return []func() string{
		func() string {
			if pub == nil || !pub.IsConnected() {
				return "MQTT disconnected"
			}
			return ""
		},
		func() string {
			switch {
			case link == nil:
				return "no controller link"
			case msg.Controller != nil && msg.Controller.AuthFailed:
				return "controller rejected credentials"
			case !link.IsConnected():
				return "controller disconnected"
			}
			return ""
		},
		func() string {
			// Polls are running but every unit is silent or invalid.
			if r := msg.Registry; r != nil && r.Units > 0 && r.ValidUnits == 0 &&
				msg.Controller != nil && msg.Controller.PollsTotal > 0 {
				return "no unit is reporting a valid status"
			}
			return ""
		},
	}
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Reason:        reason,
		Version:       h.cfg.Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if h.cfg.Link != nil {
		stats := h.cfg.Link.Stats()
		msg.Controller = &stats
	}
	if h.cfg.Collect != nil {
		h.cfg.Collect(&msg)
	}
	return msg
}

// publish sends msg at QoS 1, retained. Without a publisher it is a no-op.
func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.cfg.Publisher == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}
