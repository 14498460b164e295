// Package messaging is a reconnecting WebSocket client.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dkeye/classroom/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultReconnectInitial = 1000 * time.Millisecond
	DefaultReconnectMax     = 10000 * time.Millisecond
	DefaultOpenTimeout      = 10 * time.Second

	writeWait = 5 * time.Second
)

var (
	ErrNotOpen = errors.New("socket not open")
	ErrClosed  = errors.New("socket closed")
)

type Option func(*Socket)

// WithReconnect sets the backoff window between reconnect attempts.
func WithReconnect(initial, max time.Duration) Option {
	return func(s *Socket) {
		s.initial = initial
		s.max = max
	}
}

func WithDialer(d *websocket.Dialer) Option {
	return func(s *Socket) { s.dialer = d }
}

func WithHeader(h http.Header) Option {
	return func(s *Socket) { s.header = h }
}

// WithName tags log lines, e.g. "messaging" or "events".
func WithName(name string) Option {
	return func(s *Socket) { s.name = name }
}

// Socket keeps one text-frame WebSocket open, reconnecting with exponential
// backoff and jitter whenever the read side fails while not closed.
type Socket struct {
	url     string
	name    string
	dialer  *websocket.Dialer
	header  http.Header
	initial time.Duration
	max     time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	cancel context.CancelFunc

	writeMu sync.Mutex

	messages   core.Listeners[[]byte]
	reconnects core.Listeners[int]
	logger     zerolog.Logger
}

func New(rawURL string, opts ...Option) *Socket {
	s := &Socket{
		url:     rawURL,
		name:    "messaging",
		dialer:  websocket.DefaultDialer,
		initial: DefaultReconnectInitial,
		max:     DefaultReconnectMax,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = log.With().Str("module", "adapters.socket").Str("socket", s.name).Logger()
	return s
}

// OnMessage registers fn for every incoming text frame.
func (s *Socket) OnMessage(fn func([]byte)) core.ListenerID { return s.messages.Add(fn) }

func (s *Socket) RemoveMessageListener(id core.ListenerID) { s.messages.Remove(id) }

// OnReconnect registers fn, called with the attempt number after a successful reconnect.
func (s *Socket) OnReconnect(fn func(attempt int)) core.ListenerID { return s.reconnects.Add(fn) }

// Open dials once, bounded by timeout, and starts the read loop.
func (s *Socket) Open(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := s.dial(dialCtx)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.name, err)
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		loopCancel()
		_ = conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.cancel = loopCancel
	s.mu.Unlock()

	s.logger.Info().Msg("socket open")
	go s.run(loopCtx, conn)
	return nil
}

// Send writes one text frame on the current connection.
func (s *Socket) Send(data []byte) error {
	s.mu.Lock()
	conn := s.conn
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotOpen
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close stops reconnecting and closes the connection. Frames arriving after
// Close are not delivered; a callback already running may still finish.
// Close does not wait for the read loop, so it may be called from a
// callback. Safe to call twice.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn, cancel := s.conn, s.cancel
	s.conn = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = conn.Close()
	}
	s.logger.Info().Msg("socket closed")
	return err
}

func (s *Socket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	return conn, err
}

func (s *Socket) run(ctx context.Context, conn *websocket.Conn) {
	for {
		err := s.readAll(conn)
		if ctx.Err() != nil || errors.Is(err, ErrClosed) {
			return
		}
		s.logger.Warn().Err(err).Msg("socket read failed, reconnecting")
		_ = conn.Close()

		conn = s.reconnect(ctx)
		if conn == nil {
			return
		}
	}
}

func (s *Socket) readAll(conn *websocket.Conn) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if s.isClosed() {
			return ErrClosed
		}
		s.messages.Notify(data)
	}
}

func (s *Socket) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initial
	b.MaxInterval = s.max
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (s *Socket) reconnect(ctx context.Context) *websocket.Conn {
	b := s.newBackOff()
	for attempt := 1; ; attempt++ {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("reconnect failed")
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.conn = conn
		s.mu.Unlock()

		s.logger.Info().Int("attempt", attempt).Msg("socket reconnected")
		s.reconnects.Notify(attempt)
		return conn
	}
}
