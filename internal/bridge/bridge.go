package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/mhi-hvac-core/internal/sclink"
)

// Bridge operation constants.
const (
	// commandTimeout bounds one inbound command, including every member write.
	commandTimeout = 30 * time.Second

	// recordTimeout bounds history writes for one poll report.
	recordTimeout = 5 * time.Second

	// reportQueueSize is how many poll reports may wait for publishing.
	reportQueueSize = 16

	linkEventQueueSize = 8

	maxRequestIDLength = 128
	defaultQoS         = 1
)

// Bridge connects the HVAC service to MQTT. It handles:
//   - Publishing retained entity state after each poll that changed it
//   - Receiving commands on {prefix}/command/{name} and acknowledging them
//   - Controller availability and periodic health reporting
//   - Recording unit history and telemetry after each poll
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	svc       Service
	link      Link
	mqtt      MQTTClient
	topics    mqtt.Topics
	qos       byte
	health    *HealthReporter
	history   hvac.HistoryRepository
	telemetry Telemetry
	tracker   *CommandTracker

	listeners   []Listener
	listenersMu sync.RWMutex

	// State cache for change detection, keyed by entity ID.
	stateCache   map[string][]byte
	stateCacheMu sync.Mutex

	reports    chan sclink.PollReport
	linkEvents chan sclink.State
	resync     atomic.Bool
	linkKnown  bool
	linkUp     bool

	stats bridgeCounters

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Link is the controller session as seen by the bridge.
// It is satisfied by *sclink.Manager.
type Link interface {
	LinkStatus
	OnPollComplete(fn func(sclink.PollReport))
	OnStateChange(fn func(from, to sclink.State))
	RequestRefresh()
}

// Service is the command and query surface the bridge drives.
// It is satisfied by *hvac.Service.
type Service interface {
	SetProperties(ctx context.Context, targets []string, cmd hvac.Command) (hvac.DispatchResult, error)
	ApplyPreset(ctx context.Context, target, name string) (hvac.DispatchResult, error)
	ReplaceModeSet(ctx context.Context, target string, names []string) ([]hvac.UnitID, error)
	ActivateModeSet(ctx context.Context, name string) (bool, error)
	Entities() []hvac.EntityView
	EntitiesContaining(unit hvac.UnitID) []hvac.EntityView
	DispatchStats() hvac.DispatchStats
	Registry() *hvac.Registry
}

// Telemetry receives per-poll samples. Satisfied by *influxdb.Client.
type Telemetry interface {
	WriteUnitSample(s influxdb.UnitSample, at time.Time)
	WritePollSample(p influxdb.PollSample, at time.Time)
}

// Listener is notified of published state changes, in publish order.
// Implementations must not block.
type Listener interface {
	EntityChanged(view hvac.EntityView)
	ControllerChanged(msg ControllerMessage)
}

// Options holds configuration for creating a bridge.
type Options struct {
	Service    Service
	Link       Link
	MQTTClient MQTTClient

	// Topics builds topic names. The zero value uses the default prefix.
	Topics mqtt.Topics

	// QoS for state and ack publishes. Zero means 1.
	QoS byte

	// Version is reported in health messages.
	Version string

	// HealthInterval is how often health is published. Zero means 30s.
	HealthInterval time.Duration

	// History records unit status changes. Optional.
	History hvac.HistoryRepository

	// Tracker attributes changes to commands in history. Optional.
	Tracker *CommandTracker

	// Telemetry receives unit and poll samples. Optional.
	Telemetry Telemetry

	// Logger is optional structured logger.
	Logger Logger
}

// Stats counts bridge activity.
type Stats struct {
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
	PublishErrors    uint64 `json:"publish_errors"`
	ReportsDropped   uint64 `json:"reports_dropped"`
	HistoryErrors    uint64 `json:"history_errors"`
}

type bridgeCounters struct {
	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64
	publishErrors    atomic.Uint64
	reportsDropped   atomic.Uint64
	historyErrors    atomic.Uint64
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	switch {
	case opts.Service == nil:
		return nil, errors.New("bridge: service is required")
	case opts.Link == nil:
		return nil, errors.New("bridge: controller link is required")
	case opts.MQTTClient == nil:
		return nil, errors.New("bridge: MQTT client is required")
	}

	qos := opts.QoS
	if qos == 0 {
		qos = defaultQoS
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		svc:        opts.Service,
		link:       opts.Link,
		mqtt:       opts.MQTTClient,
		topics:     opts.Topics,
		qos:        qos,
		history:    opts.History,
		telemetry:  opts.Telemetry,
		tracker:    opts.Tracker,
		stateCache: make(map[string][]byte),
		reports:    make(chan sclink.PollReport, reportQueueSize),
		linkEvents: make(chan sclink.State, linkEventQueueSize),
		done:       make(chan struct{}),
		ctx:        ctx,
		ctxCancel:  ctxCancel,
		logger:     opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Topic:     b.topics.SystemHealth(),
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTTClient,
		Link:      opts.Link,
		Collect:   b.collectHealth,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// AddListener registers l for state change notifications.
func (b *Bridge) AddListener(l Listener) {
	b.listenersMu.Lock()
	b.listeners = append(b.listeners, l)
	b.listenersMu.Unlock()
}

// SetLogger replaces the bridge logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// Start subscribes to command topics, hooks into the controller link,
// publishes the current state of every entity and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	commandTopic := b.topics.AllCommands()
	if err := b.mqtt.Subscribe(commandTopic, b.qos, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", commandTopic)

	b.link.OnPollComplete(b.enqueueReport)
	b.link.OnStateChange(func(_, to sclink.State) { b.enqueueLinkState(to) })

	b.wg.Add(1)
	go b.processLoop()

	b.health.Start(ctx)

	b.Republish()
	b.enqueueLinkState(b.currentLinkState())

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}

	b.logInfo("bridge started", "entities", len(b.svc.Entities()))
	return nil
}

// Stop gracefully shuts down the bridge. In-flight commands are cancelled.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.ctxCancel()
		b.wg.Wait()

		// Publishes the "stopping" health status.
		b.health.Stop()
		b.logInfo("bridge stopped")
	})
}

// Stats returns bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		CommandsReceived: b.stats.commandsReceived.Load(),
		CommandsFailed:   b.stats.commandsFailed.Load(),
		StatesPublished:  b.stats.statesPublished.Load(),
		PublishErrors:    b.stats.publishErrors.Load(),
		ReportsDropped:   b.stats.reportsDropped.Load(),
		HistoryErrors:    b.stats.historyErrors.Load(),
	}
}

// Health returns the current health message without publishing it.
func (b *Bridge) Health() HealthMessage {
	return b.health.Snapshot()
}

// Republish forgets the state cache and publishes every entity. Call it
// after the broker connection is re-established or entity attributes
// changed outside a poll.
func (b *Bridge) Republish() {
	b.stateCacheMu.Lock()
	b.stateCache = make(map[string][]byte)
	b.stateCacheMu.Unlock()

	for _, view := range b.svc.Entities() {
		b.publishEntity(view)
	}
}

func (b *Bridge) currentLinkState() sclink.State {
	if b.link.IsConnected() {
		return sclink.StateAuthenticated
	}
	return sclink.StateDisconnected
}

func (b *Bridge) collectHealth(msg *HealthMessage) {
	dispatch := b.svc.DispatchStats()
	msg.Dispatch = &dispatch
	reg := b.svc.Registry().Stats()
	msg.Registry = &reg
	stats := b.Stats()
	msg.Bridge = &stats
}

// =============================================================================
// Poll processing
// =============================================================================

// enqueueReport runs on the session goroutine and must not block. When the
// queue is full the report is dropped and the next one republishes
// everything.
func (b *Bridge) enqueueReport(r sclink.PollReport) {
	select {
	case b.reports <- r:
	default:
		b.stats.reportsDropped.Add(1)
		b.resync.Store(true)
	}
}

func (b *Bridge) enqueueLinkState(s sclink.State) {
	select {
	case b.linkEvents <- s:
	default:
		b.logWarn("controller state event dropped", "state", s.String())
	}
}

func (b *Bridge) processLoop() {
	defer b.wg.Done()

	for {
		select {
		case <-b.done:
			return
		case r := <-b.reports:
			b.handlePoll(r)
		case s := <-b.linkEvents:
			b.handleLinkState(s)
		}
	}
}

func (b *Bridge) handlePoll(r sclink.PollReport) {
	b.writeTelemetry(r)
	b.recordHistory(r.Changed)

	if b.resync.Swap(false) {
		b.Republish()
		return
	}

	affected := make([]hvac.UnitID, 0, len(r.Changed)+len(r.Rejected))
	affected = append(affected, r.Changed...)
	affected = append(affected, r.Rejected...)
	b.publishEntitiesFor(affected)
}

// publishEntitiesFor publishes every entity containing any of units, once.
func (b *Bridge) publishEntitiesFor(units []hvac.UnitID) {
	seen := make(map[string]bool)
	for _, id := range units {
		for _, view := range b.svc.EntitiesContaining(id) {
			if seen[view.ID] {
				continue
			}
			seen[view.ID] = true
			b.publishEntity(view)
		}
	}
}

// publishEntity publishes view when it differs from the last published
// state of that entity, ignoring the update timestamp.
func (b *Bridge) publishEntity(view hvac.EntityView) {
	key := view
	key.Status.UpdatedAt = time.Time{}
	fingerprint, err := json.Marshal(key)
	if err != nil {
		b.logError("failed to marshal entity state", err)
		return
	}

	b.stateCacheMu.Lock()
	prev, ok := b.stateCache[view.ID]
	if ok && string(prev) == string(fingerprint) {
		b.stateCacheMu.Unlock()
		return
	}
	b.stateCache[view.ID] = fingerprint
	b.stateCacheMu.Unlock()

	b.notifyEntity(view)

	payload, err := json.Marshal(view)
	if err != nil {
		b.logError("failed to marshal entity state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.EntityState(view.ID), payload, b.qos, true); err != nil {
		b.stats.publishErrors.Add(1)
		b.logError("failed to publish entity state", err)
		return
	}
	b.stats.statesPublished.Add(1)
}

func (b *Bridge) handleLinkState(s sclink.State) {
	connected := s.Connected()
	if b.linkKnown && b.linkUp == connected {
		return
	}
	b.linkKnown = true
	b.linkUp = connected

	msg := ControllerMessage{
		Connected: connected,
		State:     s.String(),
		Endpoint:  b.link.Stats().Endpoint,
		Timestamp: time.Now().UTC(),
	}
	b.notifyController(msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal controller state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.ControllerState(), payload, b.qos, true); err != nil {
		b.stats.publishErrors.Add(1)
		b.logError("failed to publish controller state", err)
	}
	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish health", err)
	}
	b.logInfo("controller availability changed", "connected", connected, "state", s.String())
}

func (b *Bridge) writeTelemetry(r sclink.PollReport) {
	if b.telemetry == nil {
		return
	}

	at := r.Started.Add(r.Duration)
	units, err := b.svc.Registry().GetMany(r.Updated)
	if err != nil {
		b.logDebug("telemetry lookup failed", "error", err)
	}
	for _, u := range units {
		b.telemetry.WriteUnitSample(unitSample(u), at)
	}

	b.telemetry.WritePollSample(influxdb.PollSample{
		Duration:   r.Duration,
		Answered:   len(r.Answered),
		Unanswered: len(r.Unanswered),
		Updated:    len(r.Updated),
		Changed:    len(r.Changed),
		Rejected:   len(r.Rejected),
	}, at)
}

func unitSample(u hvac.Unit) influxdb.UnitSample {
	s := influxdb.UnitSample{
		Unit:       u.ID.String(),
		Block:      u.ID.Block,
		Power:      u.Status.Power,
		Mode:       string(u.Status.Mode),
		Target:     u.Status.Target,
		Fan:        string(u.Status.Fan),
		FilterSign: u.Status.FilterSign,
	}
	if u.Status.RoomTempValid {
		t := u.Status.RoomTemp
		s.RoomTemp = &t
	}
	return s
}

func (b *Bridge) recordHistory(changed []hvac.UnitID) {
	if b.history == nil || len(changed) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, recordTimeout)
	defer cancel()

	for _, id := range changed {
		u, err := b.svc.Registry().Get(id)
		if err != nil {
			continue
		}
		source := hvac.HistorySourcePoll
		if b.tracker != nil {
			source = b.tracker.Source(id)
		}
		if err := b.history.Record(ctx, id, u.Status, source); err != nil {
			b.stats.historyErrors.Add(1)
			b.logError("failed to record unit history", err)
		}
	}
}

func (b *Bridge) notifyEntity(view hvac.EntityView) {
	b.listenersMu.RLock()
	defer b.listenersMu.RUnlock()
	for _, l := range b.listeners {
		l.EntityChanged(view)
	}
}

func (b *Bridge) notifyController(msg ControllerMessage) {
	b.listenersMu.RLock()
	defer b.listenersMu.RUnlock()
	for _, l := range b.listeners {
		l.ControllerChanged(msg)
	}
}

// =============================================================================
// Commands
// =============================================================================

// handleMQTTMessage decodes a command and runs it on its own goroutine so
// the MQTT client's delivery goroutine is never held by controller writes.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	name, ok := b.topics.CommandName(topic)
	if !ok {
		b.logWarn("message on unexpected topic", "topic", topic)
		return
	}
	b.stats.commandsReceived.Add(1)

	var msg CommandMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.finish(NewAck(uuid.NewString(), name, fmt.Errorf("%w: %w", ErrInvalidPayload, err)))
		return
	}
	if msg.RequestID == "" {
		msg.RequestID = uuid.NewString()
	} else if !validRequestID(msg.RequestID) {
		err := fmt.Errorf("%w: %q", ErrInvalidRequestID, msg.RequestID)
		b.finish(NewAck(uuid.NewString(), name, fmt.Errorf("%w: %w", ErrInvalidPayload, err)))
		return
	}

	select {
	case <-b.done:
		return
	default:
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
		defer cancel()

		b.finish(b.Execute(ctx, name, msg))
	}()
}

// Execute runs one command and returns its acknowledgement without
// publishing it.
func (b *Bridge) Execute(ctx context.Context, name string, msg CommandMessage) AckMessage {
	source := msg.Source
	if source == "" {
		source = "mqtt"
	}
	b.logInfo("received command", "command", name, "request_id", msg.RequestID, "source", source)

	switch name {
	case CommandSetProperties:
		cmd, err := msg.Command()
		if err != nil {
			return NewAck(msg.RequestID, name, err)
		}
		result, err := b.svc.SetProperties(ctx, msg.targets(), cmd)
		return withResult(NewAck(msg.RequestID, name, err), result)

	case CommandApplyPreset:
		if msg.Target == "" || msg.Preset == "" {
			return NewAck(msg.RequestID, name, fmt.Errorf("%w: target and preset are required", ErrInvalidPayload))
		}
		result, err := b.svc.ApplyPreset(ctx, msg.Target, msg.Preset)
		return withResult(NewAck(msg.RequestID, name, err), result)

	case CommandReplaceModes:
		if msg.Target == "" {
			return NewAck(msg.RequestID, name, fmt.Errorf("%w: target is required", ErrInvalidPayload))
		}
		units, err := b.svc.ReplaceModeSet(ctx, msg.Target, msg.Modes)
		ack := NewAck(msg.RequestID, name, err)
		ack.Units = units
		if err == nil {
			b.Republish()
		}
		return ack

	case CommandSetActiveModes:
		if msg.ModeSet == "" {
			return NewAck(msg.RequestID, name, fmt.Errorf("%w: mode_set is required", ErrInvalidPayload))
		}
		changed, err := b.svc.ActivateModeSet(ctx, msg.ModeSet)
		ack := NewAck(msg.RequestID, name, err)
		if err == nil {
			ack.Changed = &changed
			if changed {
				b.Republish()
			}
		}
		return ack

	case CommandRefresh:
		b.link.RequestRefresh()
		return NewAck(msg.RequestID, name, nil)
	}

	return NewAck(msg.RequestID, name, fmt.Errorf("%w: %q", ErrUnknownCommand, name))
}

func withResult(ack AckMessage, result hvac.DispatchResult) AckMessage {
	if len(result.Results) > 0 {
		ack.Result = &result
	}
	return ack
}

// finish publishes ack and logs the outcome.
func (b *Bridge) finish(ack AckMessage) {
	if ack.Status != AckAccepted {
		b.stats.commandsFailed.Add(1)
		b.logWarn("command not applied",
			"command", ack.Command,
			"request_id", ack.RequestID,
			"status", string(ack.Status),
			"code", ack.Error.Code,
			"error", ack.Error.Message)
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(ack.RequestID), payload, b.qos, false); err != nil {
		b.stats.publishErrors.Add(1)
		b.logError("failed to publish ack", err)
	}
}

// validRequestID reports whether id can be used as a single topic level.
func validRequestID(id string) bool {
	return len(id) <= maxRequestIDLength && !strings.ContainsAny(id, "/+#\x00")
}

// =============================================================================
// Logging helpers
// =============================================================================

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
