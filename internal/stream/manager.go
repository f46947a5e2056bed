package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Nibbler1250/Domotique-Jetson/internal/envelope"
)

// Manager owns the channel lifecycle for one hub feed.
type Manager interface {
	// Connect starts the channel. No-op while already started.
	Connect(ctx context.Context) error

	// Disconnect tears the channel down and cancels all timers. Safe to
	// call repeatedly; Connect may be called again afterwards.
	Disconnect() error

	// Close disconnects and closes the envelope queue. Terminal.
	Close() error

	// Send writes a raw frame to the live connection.
	Send(data []byte) error

	// Envelopes returns the queue of decoded data envelopes.
	Envelopes() *Queue[envelope.Envelope]

	// State returns a snapshot of the channel state.
	State() ConnectionState

	// Stats returns frame-handling counters.
	Stats() ManagerStats
}

// manager implements the Manager interface. A single run goroutine owns the
// dial/serve/redial cycle, so overlapping error and close events can never
// schedule two reconnect timers.
type manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	queue *Queue[envelope.Envelope]

	mu      sync.Mutex
	client  Client // live client, nil between sessions
	state   ConnectionState
	stats   ManagerStats
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a feed channel manager.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Name != "" {
		logger = logger.With("feed", cfg.Name)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Backoff == "" {
		cfg.Backoff = BackoffFixed
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}

	return &manager{
		cfg:    cfg,
		logger: logger,
		queue:  NewQueue[envelope.Envelope](cfg.QueueSize),
		state:  ConnectionState{Status: StatusIdle},
	}
}

// Connect starts the channel lifecycle.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// Disconnect stops the channel lifecycle and waits for it to finish, so no
// timer or read callback can mutate state after return.
func (m *manager) Disconnect() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.logger.Info("feed disconnected")
	return nil
}

// Close tears the channel down for good.
func (m *manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	err := m.Disconnect()
	m.queue.Close()
	return err
}

// Send writes to the live connection.
func (m *manager) Send(data []byte) error {
	m.mu.Lock()
	cl := m.client
	m.mu.Unlock()

	if cl == nil {
		return ErrNotConnected
	}
	return cl.Send(data)
}

// Envelopes returns the decoded data envelope queue.
func (m *manager) Envelopes() *Queue[envelope.Envelope] {
	return m.queue
}

// State returns a snapshot of the channel state.
func (m *manager) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns frame-handling counters.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// run drives dial/serve/redial until the context is cancelled.
func (m *manager) run(ctx context.Context) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.running = false
		m.state.Status = StatusClosed
		m.state.Reconnecting = false
		m.mu.Unlock()
	}()

	delay := m.cfg.ReconnectDelay
	attempt := 0

	for {
		opened := m.session(ctx, attempt > 0)
		if ctx.Err() != nil {
			return
		}

		if opened {
			delay = m.cfg.ReconnectDelay
		} else if m.cfg.Backoff == BackoffExponential {
			delay *= 2
			if delay > m.cfg.ReconnectMax {
				delay = m.cfg.ReconnectMax
			}
		}
		attempt++

		m.mu.Lock()
		m.state.Status = StatusClosed
		m.state.Reconnecting = true
		m.mu.Unlock()

		m.logger.Info("feed closed, reconnecting", "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session dials once and serves the connection until it drops. Returns
// whether the dial succeeded.
func (m *manager) session(ctx context.Context, isReconnect bool) bool {
	m.mu.Lock()
	m.state.Status = StatusConnecting
	m.mu.Unlock()

	cl := NewClient(ClientConfig{
		URL:          m.cfg.URL,
		Token:        m.cfg.Token,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   DefaultClientConfig().BufferSize,
	}, m.logger)

	if err := cl.Connect(ctx); err != nil {
		m.recordError(err)
		m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
		return false
	}

	m.mu.Lock()
	m.client = cl
	m.state.Status = StatusOpen
	m.state.LastError = ""
	m.state.Reconnecting = false
	m.state.ConnectedAt = time.Now()
	if isReconnect {
		m.stats.Reconnects++
	}
	m.mu.Unlock()

	m.logger.Info("feed connected", "url", m.cfg.URL)

	if len(m.cfg.SubscribeTopics) > 0 {
		frame, err := envelope.Subscribe(m.cfg.SubscribeTopics)
		if err == nil {
			err = cl.Send(frame)
		}
		if err != nil {
			m.logger.Warn("subscribe failed", "error", err)
		}
	}

	m.serve(ctx, cl)

	// A read error may race the message-channel close; pick it up so
	// LastError reflects why the session ended.
	select {
	case err := <-cl.Errors():
		if err != nil {
			m.recordError(err)
			m.logger.Warn("feed error", "error", err)
		}
	default:
	}

	m.mu.Lock()
	m.client = nil
	m.mu.Unlock()

	cl.Close()
	return true
}

// serve pumps frames and keepalives until the connection drops or the
// context is cancelled.
func (m *manager) serve(ctx context.Context, cl Client) {
	var pingC <-chan time.Time
	if m.cfg.PingInterval > 0 {
		ticker := time.NewTicker(m.cfg.PingInterval)
		defer ticker.Stop()
		pingC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-cl.Errors():
			// Record only. The redial is driven by the message channel
			// closing, never by the error itself, so an error followed by
			// a close yields exactly one reconnect.
			if err != nil {
				m.recordError(err)
				m.logger.Warn("feed error", "error", err)
			}

		case msg, ok := <-cl.Messages():
			if !ok {
				return
			}
			m.handleFrame(msg)

		case <-pingC:
			if err := cl.Send(envelope.Ping()); err != nil {
				m.logger.Debug("keepalive send failed", "error", err)
			}
		}
	}
}

// handleFrame decodes one raw frame, updates liveness bookkeeping for
// control frames, and queues data envelopes.
func (m *manager) handleFrame(msg TimestampedMessage) {
	m.mu.Lock()
	m.stats.FramesReceived++
	m.mu.Unlock()

	env, err := envelope.Decode(msg.Data)
	if err != nil {
		m.mu.Lock()
		m.stats.DecodeErrors++
		m.mu.Unlock()
		m.logger.Debug("dropping malformed frame", "error", err)
		return
	}
	env.ReceivedAt = msg.ReceivedAt

	if !env.IsData() {
		m.mu.Lock()
		m.stats.ControlFrames++
		if env.Kind == envelope.KindPong {
			m.state.LastPongAt = msg.ReceivedAt
			if env.BridgeConnected != nil {
				m.state.BridgeConnected = *env.BridgeConnected
			}
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.stats.DataEnvelopes++
	m.mu.Unlock()

	m.queue.Push(env)
}

// recordError stores a human-readable transport error.
func (m *manager) recordError(err error) {
	m.mu.Lock()
	m.state.LastError = err.Error()
	m.mu.Unlock()
}
