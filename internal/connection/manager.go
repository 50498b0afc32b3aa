// Package connection maintains the single persistent websocket connection
// to the notification server, re-joining the per-user room after every
// (re)connect.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nhle/frontdesk-notify/internal/events"
	"github.com/nhle/frontdesk-notify/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// UserIDSource supplies the identifier sent in the room-join message.
type UserIDSource interface {
	UserID(ctx context.Context) (string, error)
}

// TokenFunc returns the bearer token for the handshake, or "".
type TokenFunc func() (string, error)

// Handler receives the data of inbound notification events.
type Handler func(event string, data []byte)

// Options configures a Manager.
type Options struct {
	URL                string
	JoinEvent          string
	NotificationEvents []string

	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration

	Dialer Dialer
	Token  TokenFunc
	Clock  clock.Clock
	Logger *logrus.Entry
	Bus    *events.Bus
}

func (o *Options) setDefaults() {
	if o.JoinEvent == "" {
		o.JoinEvent = "join"
	}
	if len(o.NotificationEvents) == 0 {
		o.NotificationEvents = []string{"notification", "new_notification"}
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = time.Second
	}
	if o.MaxDelay < o.InitialDelay {
		o.MaxDelay = 5 * time.Second
		if o.MaxDelay < o.InitialDelay {
			o.MaxDelay = o.InitialDelay
		}
	}
	if o.Dialer == nil {
		o.Dialer = NewWebsocketDialer()
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Manager owns one connection for the process lifetime.
type Manager struct {
	opts    Options
	users   UserIDSource
	handler Handler
	events  map[string]struct{}
	log     *logrus.Entry

	mu      sync.Mutex
	state   model.ConnectionState
	conn    Conn
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	writeMu sync.Mutex
}

// NewManager builds a manager. users and handler may be nil.
func NewManager(opts Options, users UserIDSource, handler Handler) *Manager {
	opts.setDefaults()

	evts := make(map[string]struct{}, len(opts.NotificationEvents))
	for _, e := range opts.NotificationEvents {
		evts[e] = struct{}{}
	}

	return &Manager{
		opts:    opts,
		users:   users,
		handler: handler,
		events:  evts,
		log:     opts.Logger.WithField("component", "connection"),
		state:   model.ConnectionState{Status: model.ConnectionDisconnected},
	}
}

// Connect starts the connection loop. Calling it while a loop is already
// running is a no-op. It never blocks on the network.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if m.opts.URL == "" {
		return errors.New("connection: no server url configured")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	m.running = true
	m.cancel = cancel
	m.done = done

	go m.run(runCtx, done)
	return nil
}

// Disconnect closes the connection and stops reconnecting. It is
// idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.setState(model.ConnectionState{
		Status:          model.ConnectionDisconnected,
		LastConnectedAt: m.State().LastConnectedAt,
	}, nil)
	m.log.Info("disconnected")
}

// Reconnect tears the connection down and starts over with a fresh
// attempt budget. It is the way out of the failed state.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.Disconnect()
	return m.Connect(ctx)
}

// State returns a snapshot of the connection state.
func (m *Manager) State() model.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsStale reports whether the connection has not been live within maxAge.
func (m *Manager) IsStale(maxAge time.Duration) bool {
	return m.State().IsStale(m.opts.Clock.Now(), maxAge)
}

// Send writes an outbound event on the live connection.
func (m *Manager) Send(event string, data any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errors.New("connection: not connected")
	}
	return m.writeEnvelope(conn, event, data)
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		if m.done == done {
			m.running = false
			m.conn = nil
		}
		m.mu.Unlock()
		close(done)
	}()

	var (
		attempt   int
		immediate bool
		lastErr   error
	)

	for {
		if ctx.Err() != nil {
			return
		}

		if attempt > m.opts.MaxAttempts {
			m.exhausted(attempt-1, lastErr)
			return
		}

		if attempt == 0 {
			m.setStatus(model.ConnectionConnecting, 0, nil)
		} else {
			m.setStatus(model.ConnectionReconnecting, attempt, lastErr)
			if !immediate && !m.sleep(ctx, backoffDelay(attempt, m.opts.InitialDelay, m.opts.MaxDelay)) {
				return
			}
		}
		immediate = false

		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lastErr = err
			attempt++
			m.log.WithError(err).WithField("attempt", attempt-1).Warn("dial failed")
			continue
		}

		m.mu.Lock()
		if ctx.Err() != nil {
			m.mu.Unlock()
			conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()

		m.onConnected(ctx, conn)
		err = m.serve(ctx, conn)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		lastErr = err
		attempt = 1
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			// Server ended the session on purpose; rejoin right away.
			immediate = true
			m.log.WithField("code", closeErr.Code).Info("server closed connection, reconnecting")
		} else {
			m.log.WithError(err).Warn("connection dropped")
		}
	}
}

func (m *Manager) dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	if m.opts.Token != nil {
		token, err := m.opts.Token()
		if err != nil {
			m.log.WithError(err).Warn("reading api token")
		} else if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}
	return m.opts.Dialer.Dial(ctx, m.opts.URL, header)
}

// onConnected records the connection and sends the room-join before the
// read loop starts, so the join is emitted exactly once per connection.
func (m *Manager) onConnected(ctx context.Context, conn Conn) {
	m.setState(model.ConnectionState{
		Status:          model.ConnectionConnected,
		LastConnectedAt: m.opts.Clock.Now(),
	}, nil)
	m.log.WithField("url", m.opts.URL).Info("connected")

	if m.users == nil {
		return
	}
	userID, err := m.users.UserID(ctx)
	if err != nil {
		m.log.WithError(err).Warn("reading user id, skipping room join")
		return
	}
	if userID == "" {
		m.log.Debug("no user id stored, skipping room join")
		return
	}
	if err := m.writeEnvelope(conn, m.opts.JoinEvent, userID); err != nil {
		m.log.WithError(err).Warn("sending room join")
		return
	}
	m.log.WithField("user_id", userID).Debug("joined room")
}

// serve reads until the connection fails or ctx is cancelled.
func (m *Manager) serve(ctx context.Context, conn Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go m.keepalive(ctx, conn, stop)

	if ws, ok := conn.(*websocket.Conn); ok {
		ws.SetReadLimit(maxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.dispatch(data)
	}
}

func (m *Manager) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.log.WithError(err).Debug("ignoring non-envelope frame")
		return
	}
	if _, ok := m.events[env.Event]; !ok {
		return
	}
	if m.handler != nil {
		m.handler(env.Event, env.Data)
	}
}

// keepalive pings on pingPeriod and closes conn when ctx is cancelled.
func (m *Manager) keepalive(ctx context.Context, conn Conn, stop <-chan struct{}) {
	ticker := m.opts.Clock.Ticker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			conn.Close()
			return
		case <-ctx.Done():
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			m.writeMu.Unlock()
			conn.Close()
			return
		case <-ticker.C:
			m.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			m.writeMu.Unlock()
			if err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (m *Manager) writeEnvelope(conn Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshaling %s envelope: %w", event, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("writing %s: %w", event, err)
	}
	return nil
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := m.opts.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (m *Manager) exhausted(attempts int, lastErr error) {
	err := &ReconnectExhaustedError{
		Attempts:    attempts,
		MaxAttempts: m.opts.MaxAttempts,
		LastErr:     lastErr,
	}
	m.setStatus(model.ConnectionFailed, attempts, err)
	m.log.WithError(err).Error("giving up on server connection")
}

func (m *Manager) setStatus(status model.ConnectionStatus, attempt int, err error) {
	m.mu.Lock()
	st := m.state
	m.mu.Unlock()

	st.Status = status
	st.Attempt = attempt
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	m.setState(st, err)
}

func (m *Manager) setState(st model.ConnectionState, err error) {
	if err != nil && st.LastError == "" {
		st.LastError = err.Error()
	}
	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	m.opts.Bus.Publish(events.ConnectionChanged{State: st, Err: err})
}

// backoffDelay returns the wait before reconnect attempt n (1-based):
// initial doubled per attempt, capped at maxDelay.
func backoffDelay(n int, initial, maxDelay time.Duration) time.Duration {
	d := initial
	for i := 1; i < n; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return min(d, maxDelay)
}
