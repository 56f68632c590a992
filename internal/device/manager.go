// Package device owns the single WebSocket connection to the LED controller and keeps
// it alive with a fixed-interval reconnect schedule.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// State is the connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const (
	// DefaultReconnectInterval is the fixed retry cadence after a close.
	DefaultReconnectInterval = 5 * time.Second

	// MsgSocketClosed is reported through OnError whenever the connection goes away.
	MsgSocketClosed = "socket closed"
	// MsgNotOpen is reported through OnError when Send is called without an open connection.
	MsgNotOpen = "connection not open"
)

// ErrNotOpen is returned by Send when the connection is not open.
var ErrNotOpen = errors.New(MsgNotOpen)

// Handlers are the three callbacks the manager reports through.
type Handlers struct {
	OnError   func(message string)
	OnOpen    func()
	OnMessage func(payload string)
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetrySchedule replaces DefaultRetry.
func WithRetrySchedule(r *RetrySchedule) Option {
	return func(m *Manager) { m.retry = r }
}

// WithReconnectInterval sets the retry cadence.
func WithReconnectInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithPingInterval enables a WebSocket ping heartbeat. Zero disables it.
func WithPingInterval(d time.Duration) Option {
	return func(m *Manager) { m.pingInterval = d }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager maintains at most one live connection to a fixed endpoint.
type Manager struct {
	endpoint     string
	dialer       Dialer
	handlers     Handlers
	retry        *RetrySchedule
	interval     time.Duration
	pingInterval time.Duration
	log          logrus.FieldLogger

	mu         sync.Mutex
	state      State
	conn       Conn
	gen        uint64
	cancelDial context.CancelFunc
	shutdown   bool

	writeMu sync.Mutex
}

// NewManager returns a disconnected manager. Nothing is dialed until Connect.
func NewManager(endpoint string, dialer Dialer, handlers Handlers, opts ...Option) *Manager {
	m := &Manager{
		endpoint: endpoint,
		dialer:   dialer,
		handlers: handlers,
		retry:    DefaultRetry,
		interval: DefaultReconnectInterval,
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Endpoint returns the configured device URI.
func (m *Manager) Endpoint() string {
	return m.endpoint
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connect starts a fresh connection attempt and returns immediately. Any previous
// connection is dropped and its events are ignored from then on.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	old := m.conn
	m.conn = nil
	if m.cancelDial != nil {
		m.cancelDial()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelDial = cancel
	m.state = Connecting
	m.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	m.log.Infof("Connecting to %s...", m.endpoint)
	go m.run(ctx, gen)
}

// Send transmits one text frame. Without an open connection it reports MsgNotOpen
// through OnError, logs the payload and returns ErrNotOpen.
func (m *Manager) Send(payload string) error {
	m.mu.Lock()
	conn, state, gen := m.conn, m.state, m.gen
	m.mu.Unlock()

	if state != Open || conn == nil {
		m.emitError(MsgNotOpen)
		m.log.Infof("Attempted to send: %s", payload)
		return ErrNotOpen
	}

	m.writeMu.Lock()
	err := conn.WriteMessage(websocket.TextMessage, []byte(payload))
	m.writeMu.Unlock()
	if err != nil {
		m.log.Warnf("Write failed (assuming disconnected): %v", err)
		m.emitError(err.Error())
		m.closed(gen)
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Shutdown closes the connection and stops reconnecting. The manager cannot be reused.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true
	m.state = Closing
	m.gen++
	conn := m.conn
	m.conn = nil
	if m.cancelDial != nil {
		m.cancelDial()
	}
	m.mu.Unlock()

	m.retry.Disarm(m)
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	}

	m.mu.Lock()
	m.state = Disconnected
	m.mu.Unlock()
	m.log.Info("Device connection shut down.")
}

func (m *Manager) run(ctx context.Context, gen uint64) {
	conn, err := m.dialer.Dial(ctx, m.endpoint)
	if err != nil {
		if !m.current(gen) {
			return
		}
		m.log.Warnf("Failed to connect: %v", err)
		m.emitError(err.Error())
		m.closed(gen)
		return
	}

	m.mu.Lock()
	if gen != m.gen || m.shutdown {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.state = Open
	m.mu.Unlock()

	if m.retry.Disarm(m) {
		m.log.Debug("Reconnect schedule cleared.")
	}
	m.log.Infof("Connected to %s", m.endpoint)
	if m.handlers.OnOpen != nil {
		m.handlers.OnOpen()
	}

	stopHeartbeat := m.startHeartbeat(gen, conn)
	defer stopHeartbeat()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !m.current(gen) {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, io.EOF) {
				m.emitError(err.Error())
			}
			m.closed(gen)
			return
		}
		if !m.current(gen) {
			return
		}
		if m.handlers.OnMessage != nil {
			m.handlers.OnMessage(string(data))
		}
	}
}

// closed handles the end of connection gen: it bumps the generation so the
// connection's remaining events are ignored, reports the close and arms the retry
// schedule if nothing is armed yet.
func (m *Manager) closed(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.gen++
	conn := m.conn
	m.conn = nil
	m.state = Disconnected
	shutdown := m.shutdown
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if shutdown {
		return
	}

	m.emitError(MsgSocketClosed)
	if m.retry.Arm(m, m.interval, m.retryTick) {
		m.log.Infof("Reconnecting every %s", m.interval)
	} else {
		m.log.Debug("Waiting on the running reconnect schedule.")
	}
}

// retryTick only dials when nothing is in flight, so a slow handshake is not
// abandoned by the next tick. A manager shut down while arming withdraws here.
func (m *Manager) retryTick() {
	m.mu.Lock()
	shutdown, state := m.shutdown, m.state
	m.mu.Unlock()
	if shutdown {
		m.retry.Disarm(m)
		return
	}
	if state != Disconnected {
		return
	}
	m.Connect()
}

func (m *Manager) startHeartbeat(gen uint64, conn Conn) func() {
	if m.pingInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(m.pingInterval))
				if err != nil {
					if !m.current(gen) {
						return
					}
					m.log.Warnf("Heartbeat failed: %v", err)
					m.emitError(err.Error())
					m.closed(gen)
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen && !m.shutdown
}

func (m *Manager) emitError(msg string) {
	if m.handlers.OnError != nil {
		m.handlers.OnError(msg)
	}
}
