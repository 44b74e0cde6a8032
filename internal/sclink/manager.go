package sclink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mhi-hvac-core/internal/hvac"
)

// Default timeouts and intervals for the controller link.
const (
	// DefaultScanInterval is the poll period.
	DefaultScanInterval = 30 * time.Second

	// DefaultRequestTimeout bounds one request/reply exchange.
	DefaultRequestTimeout = 5 * time.Second

	// DefaultConnectTimeout bounds dial plus login.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultReconnectInterval is the initial delay between reconnection attempts.
	DefaultReconnectInterval = 5 * time.Second

	// DefaultMaxReconnectInterval caps the reconnection backoff.
	DefaultMaxReconnectInterval = 2 * time.Minute

	// DefaultQueueSize is the capacity of the write queue.
	DefaultQueueSize = 64

	// frameQueueSize buffers frames between the reader and the session loop.
	frameQueueSize = 8

	backoffFactor = 1.5
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// State is the connection manager's session state.
type State int32

// Session states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StatePolling
	StateWriting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StatePolling:
		return "polling"
	case StateWriting:
		return "writing"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Connected reports whether an authenticated session exists.
func (s State) Connected() bool {
	return s >= StateAuthenticated
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StatusSink receives decoded poll results. *hvac.Registry implements it.
type StatusSink interface {
	ApplyStatus(id hvac.UnitID, status hvac.UnitStatus, at time.Time) bool
	MarkInvalid(id hvac.UnitID, reason error)
	Has(id hvac.UnitID) bool
	Blocks() []int
}

var _ StatusSink = (*hvac.Registry)(nil)

// Options configures a Manager.
type Options struct {
	Dialer   Dialer
	Sink     StatusSink
	Username string
	Password string

	// Zero durations select the defaults above.
	ScanInterval         time.Duration
	RequestTimeout       time.Duration
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration

	QueueSize int
}

// ManagerStats holds operational statistics.
type ManagerStats struct {
	State           string    `json:"state"`
	Connected       bool      `json:"connected"`
	AuthFailed      bool      `json:"auth_failed"`
	Endpoint        string    `json:"endpoint"`
	PollsTotal      uint64    `json:"polls_total"`
	BlocksTimedOut  uint64    `json:"blocks_timed_out"`
	WritesTotal     uint64    `json:"writes_total"`
	WritesFailed    uint64    `json:"writes_failed"`
	WritesDropped   uint64    `json:"writes_dropped"`
	Timeouts        uint64    `json:"timeouts"`
	DecodeErrors    uint64    `json:"decode_errors"`
	StaleReplies    uint64    `json:"stale_replies"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	QueueDepth      int       `json:"queue_depth"`
	LastPoll        time.Time `json:"last_poll"`
}

// Write job lifecycle. A job moves from pending to either started (the
// session owns it) or abandoned (the caller gave up first), never both.
const (
	jobPending int32 = iota
	jobStarted
	jobAbandoned
)

type writeJob struct {
	op      hvac.WriteOp
	payload []byte
	state   atomic.Int32
	result  chan error
}

// Manager owns the single session to the controller.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Only the session goroutine touches the connection, so requests never
//     overlap on the wire.
//
// Session lifecycle:
//   - Disconnected → Connecting → Authenticated → Polling ⇄ Writing.
//   - Connection failures retry with backoff starting at ReconnectInterval,
//     ×1.5 per failure, capped at MaxReconnectInterval.
//   - Authentication failure parks the manager in Disconnected until
//     UpdateCredentials is called.
//
// Observer callbacks run on the session goroutine and must not block.
type Manager struct {
	opts Options

	credMu   sync.RWMutex
	username string
	password string

	state      atomic.Int32
	authFailed atomic.Bool

	writeCh   chan *writeJob
	refreshCh chan struct{}
	credsCh   chan struct{}

	observerMu     sync.RWMutex
	pollObservers  []func(PollReport)
	stateObservers []func(from, to State)

	started  atomic.Bool
	done     *closeOnce
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	pollsTotal      atomic.Uint64
	blocksTimedOut  atomic.Uint64
	writesTotal     atomic.Uint64
	writesFailed    atomic.Uint64
	writesDropped   atomic.Uint64
	timeouts        atomic.Uint64
	decodeErrors    atomic.Uint64
	staleReplies    atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastPoll        atomic.Int64 // Unix nanoseconds
}

// Ensure Manager plugs into the command path.
var (
	_ hvac.Writer    = (*Manager)(nil)
	_ hvac.Refresher = (*Manager)(nil)
)

// NewManager creates a manager. Call Start to begin connecting.
//
// Parameters:
//   - opts: Dialer and Sink are required; zero timings select defaults
//
// Returns:
//   - *Manager: Stopped manager
//   - error: If a required option is missing
func NewManager(opts Options) (*Manager, error) {
	if opts.Dialer == nil {
		return nil, errors.New("sclink: dialer is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("sclink: status sink is required")
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = DefaultMaxReconnectInterval
	}
	if opts.MaxReconnectInterval < opts.ReconnectInterval {
		opts.MaxReconnectInterval = opts.ReconnectInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	return &Manager{
		opts:      opts,
		username:  opts.Username,
		password:  opts.Password,
		writeCh:   make(chan *writeJob, opts.QueueSize),
		refreshCh: make(chan struct{}, 1),
		credsCh:   make(chan struct{}, 1),
		done:      newCloseOnce(),
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Manager) log() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// OnPollComplete registers an observer called after every poll cycle.
func (m *Manager) OnPollComplete(fn func(PollReport)) {
	m.observerMu.Lock()
	m.pollObservers = append(m.pollObservers, fn)
	m.observerMu.Unlock()
}

// OnStateChange registers an observer called on every state transition.
func (m *Manager) OnStateChange(fn func(from, to State)) {
	m.observerMu.Lock()
	m.stateObservers = append(m.stateObservers, fn)
	m.observerMu.Unlock()
}

// Start launches the session goroutine. Cancelling ctx stops the manager.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("sclink: manager already started")
	}

	m.wg.Add(1)
	go m.run()

	go func() {
		select {
		case <-ctx.Done():
			m.Stop()
		case <-m.done.Done():
		}
	}()

	m.log().Info("controller link started", "endpoint", m.opts.Dialer.String())
	return nil
}

// Stop closes the session and waits for the session goroutine to exit.
// A write already sent to the controller still waits for its ack or the
// request timeout; queued writes fail with ErrStopped. Safe to call more
// than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.done.Close()
		m.wg.Wait()
		m.failQueued(ErrStopped)
		m.setState(StateDisconnected)
		m.log().Info("controller link stopped")
	})
}

// State returns the current session state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// IsConnected reports whether an authenticated session exists.
func (m *Manager) IsConnected() bool {
	return m.State().Connected()
}

// UpdateCredentials replaces the login credentials. A manager parked after
// an authentication failure retries immediately.
func (m *Manager) UpdateCredentials(username, password string) {
	m.credMu.Lock()
	m.username = username
	m.password = password
	m.credMu.Unlock()

	m.authFailed.Store(false)
	select {
	case m.credsCh <- struct{}{}:
	default:
	}
}

func (m *Manager) credentials() (string, string) {
	m.credMu.RLock()
	defer m.credMu.RUnlock()
	return m.username, m.password
}

// RequestRefresh schedules an extra poll. Requests made while one is
// already pending are coalesced.
func (m *Manager) RequestRefresh() {
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Write sends a partial write for one unit and waits for the controller's
// acknowledgement.
//
// If ctx ends while the write is still queued, the write is dropped and
// ctx.Err() is returned. Once the session has taken the write it runs to
// completion or request timeout regardless of ctx.
//
// Returns:
//   - nil: The controller acknowledged the write
//   - *EncodeError: A field cannot be represented on the wire
//   - ErrNotConnected, ErrQueueFull, ErrStopped: The write was never sent
//   - ErrTimeout, ErrConnectionLost, ErrRejected: The write was sent and failed
func (m *Manager) Write(ctx context.Context, op hvac.WriteOp) error {
	payload, err := EncodeWrite(op.Unit, op.Changes)
	if err != nil {
		return err
	}

	select {
	case <-m.done.Done():
		return ErrStopped
	default:
	}
	if !m.IsConnected() {
		return ErrNotConnected
	}

	job := &writeJob{op: op, payload: payload, result: make(chan error, 1)}
	select {
	case m.writeCh <- job:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		if job.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ctx.Err()
		}
		return <-job.result
	case <-m.done.Done():
		if job.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ErrStopped
		}
		return <-job.result
	}
}

// Stats returns operational statistics.
func (m *Manager) Stats() ManagerStats {
	var lastPoll time.Time
	if ns := m.lastPoll.Load(); ns != 0 {
		lastPoll = time.Unix(0, ns)
	}
	st := m.State()
	return ManagerStats{
		State:           st.String(),
		Connected:       st.Connected(),
		AuthFailed:      m.authFailed.Load(),
		Endpoint:        m.opts.Dialer.String(),
		PollsTotal:      m.pollsTotal.Load(),
		BlocksTimedOut:  m.blocksTimedOut.Load(),
		WritesTotal:     m.writesTotal.Load(),
		WritesFailed:    m.writesFailed.Load(),
		WritesDropped:   m.writesDropped.Load(),
		Timeouts:        m.timeouts.Load(),
		DecodeErrors:    m.decodeErrors.Load(),
		StaleReplies:    m.staleReplies.Load(),
		ReconnectsTotal: m.reconnectsTotal.Load(),
		QueueDepth:      len(m.writeCh),
		LastPoll:        lastPoll,
	}
}

// HealthCheck reports whether the link is usable.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.authFailed.Load() {
		return ErrAuthFailed
	}
	if !m.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (m *Manager) setState(to State) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	m.log().Debug("controller state changed", "from", from.String(), "to", to.String())

	m.observerMu.RLock()
	observers := m.stateObservers
	m.observerMu.RUnlock()
	for _, fn := range observers {
		m.safeCall("state observer", func() { fn(from, to) })
	}
}

func (m *Manager) notifyPoll(report PollReport) {
	m.observerMu.RLock()
	observers := m.pollObservers
	m.observerMu.RUnlock()
	for _, fn := range observers {
		m.safeCall("poll observer", func() { fn(report) })
	}
}

func (m *Manager) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log().Error(name+" panic", "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

func (m *Manager) isClosed() bool {
	select {
	case <-m.done.Done():
		return true
	default:
		return false
	}
}

// run is the session goroutine: connect, serve until the session drops,
// then reconnect with backoff.
func (m *Manager) run() {
	defer m.wg.Done()

	backoff := m.opts.ReconnectInterval
	everConnected := false

	for !m.isClosed() {
		if m.authFailed.Load() {
			if !m.waitForCredentials() {
				return
			}
			backoff = m.opts.ReconnectInterval
		}

		m.setState(StateConnecting)
		sess, err := m.connect()
		if err != nil {
			m.setState(StateDisconnected)
			if errors.Is(err, ErrStopped) {
				return
			}
			if errors.Is(err, ErrAuthFailed) {
				m.authFailed.Store(true)
				m.log().Error("controller rejected credentials, waiting for new credentials", "error", err)
				continue
			}
			m.log().Warn("controller connection failed", "error", err, "retry_in", backoff.String())
			if !m.sleep(backoff) {
				return
			}
			backoff = m.nextBackoff(backoff)
			continue
		}

		if everConnected {
			m.reconnectsTotal.Add(1)
		}
		everConnected = true
		backoff = m.opts.ReconnectInterval
		m.log().Info("controller session established", "endpoint", m.opts.Dialer.String())

		err = m.serve(sess)
		sess.close()
		m.setState(StateDisconnected)
		m.failQueued(ErrConnectionLost)
		if m.isClosed() {
			return
		}
		m.log().Warn("controller session lost", "error", err)
	}
}

// nextBackoff grows the delay by backoffFactor up to the configured cap.
func (m *Manager) nextBackoff(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * backoffFactor)
	if next > m.opts.MaxReconnectInterval {
		next = m.opts.MaxReconnectInterval
	}
	return next
}

// sleep waits for d, returning false if the manager stops first.
// New credentials cut the wait short.
func (m *Manager) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.done.Done():
		return false
	case <-m.credsCh:
		return true
	case <-timer.C:
		return true
	}
}

func (m *Manager) waitForCredentials() bool {
	for m.authFailed.Load() {
		select {
		case <-m.done.Done():
			return false
		case <-m.credsCh:
		}
	}
	return true
}

// connect dials and logs in.
func (m *Manager) connect() (*session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConnectTimeout)
	defer cancel()
	go func() {
		select {
		case <-m.done.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, err := m.opts.Dialer.Dial(ctx)
	if err != nil {
		if m.isClosed() {
			return nil, ErrStopped
		}
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	sess := newSession(conn)
	m.wg.Add(1)
	go m.readLoop(sess)

	username, password := m.credentials()
	payload, err := EncodeLogin(username, password)
	if err != nil {
		sess.close()
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	reply, err := m.request(sess, MsgLogin, payload, m.opts.ConnectTimeout)
	if err == nil {
		err = decodeLoginReply(reply.Payload)
	}
	if err != nil {
		sess.close()
		if errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrStopped) || errors.Is(err, ErrConnectionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: login: %w", ErrConnectionFailed, err)
	}

	m.authFailed.Store(false)
	m.setState(StateAuthenticated)
	return sess, nil
}

// serve runs the authenticated session until it is lost or the manager stops.
func (m *Manager) serve(sess *session) error {
	ticker := time.NewTicker(m.opts.ScanInterval)
	defer ticker.Stop()

	if err := m.pollCycle(sess); err != nil {
		return err
	}

	for {
		select {
		case <-m.done.Done():
			return ErrStopped
		case <-sess.dead.Done():
			return fmt.Errorf("%w: %w", ErrConnectionLost, sess.err())
		case job := <-m.writeCh:
			if err := m.runWrite(sess, job); err != nil {
				return err
			}
		case <-ticker.C:
			if err := m.pollCycle(sess); err != nil {
				return err
			}
		case <-m.refreshCh:
			if err := m.pollCycle(sess); err != nil {
				return err
			}
		}
	}
}

// isFatal reports whether err ends the session.
func isFatal(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrStopped)
}

// flushWrites runs every queued write. After Stop, queued writes are left
// for failQueued.
func (m *Manager) flushWrites(sess *session) error {
	for {
		if m.isClosed() {
			return ErrStopped
		}
		select {
		case job := <-m.writeCh:
			if err := m.runWrite(sess, job); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// runWrite sends one queued write. Only session-ending errors are returned;
// the write's own outcome goes to its caller.
func (m *Manager) runWrite(sess *session, job *writeJob) error {
	if !job.state.CompareAndSwap(jobPending, jobStarted) {
		m.writesDropped.Add(1)
		m.log().Debug("abandoned write dropped", "unit", job.op.Unit.String())
		return nil
	}

	m.setState(StateWriting)
	defer m.setState(StateAuthenticated)

	// A write on the wire is not cut short by Stop.
	m.writesTotal.Add(1)
	reply, err := m.exchange(sess, MsgWrite, job.payload, m.opts.RequestTimeout, nil)
	if err == nil {
		var acked hvac.UnitID
		acked, err = decodeWriteAck(reply.Payload)
		var decErr *DecodeError
		if !errors.As(err, &decErr) && acked != job.op.Unit {
			err = decodeErrorf("write ack for %s, want %s", acked, job.op.Unit)
		}
	}
	if err != nil {
		m.writesFailed.Add(1)
		m.log().Warn("write failed", "unit", job.op.Unit.String(), "fields", job.op.Changes.Fields(), "error", err)
	} else {
		m.log().Debug("write acknowledged", "unit", job.op.Unit.String(), "fields", job.op.Changes.Fields())
	}
	job.result <- err

	if isFatal(err) {
		return err
	}
	return nil
}

// failQueued fails every write still in the queue.
func (m *Manager) failQueued(reason error) {
	for {
		select {
		case job := <-m.writeCh:
			if job.state.CompareAndSwap(jobPending, jobStarted) {
				job.result <- reason
			}
		default:
			return
		}
	}
}

// pollCycle requests the status of every configured block, flushing queued
// writes before each request.
//
// Returns an error only when the session must be dropped: the link failed,
// or every block timed out.
func (m *Manager) pollCycle(sess *session) error {
	if err := m.flushWrites(sess); err != nil {
		return err
	}

	m.setState(StatePolling)
	defer func() {
		if m.State() == StatePolling {
			m.setState(StateAuthenticated)
		}
	}()

	report := PollReport{Started: time.Now()}
	blocks := m.opts.Sink.Blocks()
	timedOut := 0

	for _, block := range blocks {
		if err := m.flushWrites(sess); err != nil {
			return err
		}
		m.setState(StatePolling)

		err := m.pollBlock(sess, block, &report)
		switch {
		case err == nil:
			report.Answered = append(report.Answered, block)
		case isFatal(err):
			return err
		default:
			if errors.Is(err, ErrTimeout) {
				timedOut++
				m.blocksTimedOut.Add(1)
			}
			report.Unanswered = append(report.Unanswered, block)
			m.log().Warn("block poll failed", "block", block, "error", err)
		}
	}

	report.Duration = time.Since(report.Started)
	m.pollsTotal.Add(1)
	m.lastPoll.Store(time.Now().UnixNano())
	m.log().Debug("poll complete",
		"answered", len(report.Answered),
		"unanswered", len(report.Unanswered),
		"changed", len(report.Changed),
		"duration", report.Duration.String())
	m.notifyPoll(report)

	if len(blocks) > 0 && timedOut == len(blocks) {
		return fmt.Errorf("%w: no block answered within %s", ErrConnectionLost, m.opts.RequestTimeout)
	}
	return nil
}

// pollBlock requests and applies one block's status.
func (m *Manager) pollBlock(sess *session, block int, report *PollReport) error {
	payload, err := EncodeStatusRequest(block)
	if err != nil {
		return err
	}
	frame, err := m.request(sess, MsgStatusRequest, payload, m.opts.RequestTimeout)
	if err != nil {
		return err
	}

	reply, err := DecodeStatusResponse(frame.Payload, m.opts.Sink.Has)
	if err != nil {
		m.decodeErrors.Add(1)
		return err
	}
	if reply.Block != block {
		m.decodeErrors.Add(1)
		return decodeErrorf("status reply for block %d, want %d", reply.Block, block)
	}
	if reply.Malformed > 0 {
		m.decodeErrors.Add(uint64(reply.Malformed))
		m.log().Warn("status reply carried out-of-range unit indexes", "block", block, "count", reply.Malformed)
	}

	now := time.Now()
	for _, rec := range reply.Records {
		if rec.Err != nil {
			m.decodeErrors.Add(1)
			m.opts.Sink.MarkInvalid(rec.ID, rec.Err)
			report.Rejected = append(report.Rejected, rec.ID)
			continue
		}
		if m.opts.Sink.ApplyStatus(rec.ID, rec.Status, now) {
			report.Changed = append(report.Changed, rec.ID)
		}
		report.Updated = append(report.Updated, rec.ID)
	}
	report.Skipped += reply.Skipped
	return nil
}

// request sends one frame and waits for the reply carrying the same sequence
// number. Replies with any other sequence number are late answers to earlier
// requests and are discarded. Stop abandons the wait.
func (m *Manager) request(sess *session, typ MsgType, payload []byte, timeout time.Duration) (Frame, error) {
	return m.exchange(sess, typ, payload, timeout, m.done.Done())
}

// exchange is request with an explicit stop channel. A nil stop waits for
// the reply, the timeout or the end of the session.
func (m *Manager) exchange(sess *session, typ MsgType, payload []byte, timeout time.Duration, stop <-chan struct{}) (Frame, error) {
	seq := sess.nextSeq()
	raw, err := EncodeFrame(Frame{Seq: seq, Type: typ, Payload: payload})
	if err != nil {
		return Frame{}, err
	}

	if wd, ok := sess.conn.(writeDeadliner); ok {
		_ = wd.SetWriteDeadline(time.Now().Add(timeout)) //nolint:errcheck // write error surfaces below
	}
	if _, err := sess.conn.Write(raw); err != nil {
		sess.fail(err)
		return Frame{}, fmt.Errorf("%w: write %s: %w", ErrConnectionLost, typ, err)
	}

	want := typ | 0x80
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case f := <-sess.frames:
			if f.Seq != seq {
				m.staleReplies.Add(1)
				m.log().Debug("stale reply discarded", "seq", f.Seq, "want", seq, "type", f.Type.String())
				continue
			}
			if f.Type == MsgError {
				return f, errorReply(f.Payload)
			}
			if f.Type != want {
				m.decodeErrors.Add(1)
				return f, decodeErrorf("reply type %s to %s", f.Type, typ)
			}
			return f, nil
		case <-timer.C:
			m.timeouts.Add(1)
			return Frame{}, fmt.Errorf("%w: %s after %s", ErrTimeout, typ, timeout)
		case <-sess.dead.Done():
			return Frame{}, fmt.Errorf("%w: %w", ErrConnectionLost, sess.err())
		case <-stop:
			return Frame{}, ErrStopped
		}
	}
}

// readLoop reads frames until the session ends. Corrupt frames are counted
// and skipped.
func (m *Manager) readLoop(sess *session) {
	defer m.wg.Done()

	fr := NewFrameReader(sess.conn)
	for {
		f, err := fr.Next()
		if err != nil {
			var decErr *DecodeError
			switch {
			case errors.As(err, &decErr):
				m.decodeErrors.Add(1)
				m.log().Debug("corrupt frame skipped", "error", err)
				continue
			case isTimeout(err):
				if sess.closed() {
					return
				}
				continue
			default:
				sess.fail(err)
				return
			}
		}

		select {
		case sess.frames <- f:
		case <-sess.dead.Done():
			return
		}
	}
}

// session is one authenticated connection. Only the session goroutine sends.
type session struct {
	conn   Conn
	seq    byte
	frames chan Frame
	dead   *closeOnce

	mu      sync.Mutex
	lastErr error
}

func newSession(conn Conn) *session {
	return &session{
		conn:   conn,
		frames: make(chan Frame, frameQueueSize),
		dead:   newCloseOnce(),
	}
}

func (s *session) nextSeq() byte {
	s.seq++
	return s.seq
}

// fail records the first error and marks the session dead.
func (s *session) fail(err error) {
	s.mu.Lock()
	if s.lastErr == nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.dead.Close()
}

func (s *session) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return errors.New("session closed")
	}
	return s.lastErr
}

func (s *session) closed() bool {
	select {
	case <-s.dead.Done():
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.fail(errors.New("session closed"))
	s.conn.Close() //nolint:errcheck // closing a dead session
}
