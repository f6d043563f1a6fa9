// Package transport provides the persistent connection between the widget and its backend.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MegaGrindStone/chatwidget/internal/models"
)

// Config configures a WebSocket transport.
type Config struct {
	// URL is the backend socket endpoint, e.g. ws://localhost:5000/socket.
	URL string

	// Reconnect enables re-dialing after the connection is lost. Each successful re-dial delivers a
	// new ConnectEvent.
	Reconnect bool
	// MaxAttempts bounds the re-dials after a single loss. Zero means no bound.
	MaxAttempts int
	// InitialBackoff is the delay before the first re-dial; it doubles up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	HandshakeTimeout time.Duration
	// WriteTimeout bounds every frame write. A context deadline that expires earlier wins.
	WriteTimeout time.Duration
	Header       http.Header
}

var (
	// ErrNotConnected is returned by Emit when there is no open connection.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("transport closed")
)

const (
	errLoggerKey = "err"

	eventsBufferSize = 64

	defaultInitialBackoff   = 500 * time.Millisecond
	defaultMaxBackoff       = 30 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// WebSocket is a transport carrying models.Envelope frames as JSON text messages. Lifecycle changes and
// decoded frames are delivered, in order, on the channel returned by Events.
type WebSocket struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	events chan models.InboundEvent
	done   chan struct{}

	// mu guards conn and serialises writes on it.
	mu   sync.Mutex
	conn *websocket.Conn

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocket creates a WebSocket transport. Nothing is dialed until Connect is called.
func NewWebSocket(cfg Config, logger *slog.Logger) *WebSocket {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(defaultMaxBackoff, cfg.InitialBackoff)
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	return &WebSocket{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger.With(slog.String("module", "transport")),
		events: make(chan models.InboundEvent, eventsBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the backend. On success a ConnectEvent is delivered and frames start flowing on Events.
// Connect is a no-op while a connection is open.
func (w *WebSocket) Connect(ctx context.Context) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	if w.connected() {
		return nil
	}

	conn, _, err := w.dialer.DialContext(ctx, w.cfg.URL, w.cfg.Header)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", w.cfg.URL, err)
	}

	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	default:
	}
	if w.conn != nil {
		// Another Connect won the race.
		w.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	w.conn = conn
	// Registered under the lock so Close never waits on a group it raced with.
	w.wg.Add(1)
	w.mu.Unlock()

	w.logger.Info("Connected to backend", slog.String("url", w.cfg.URL))
	w.deliver(models.ConnectEvent{})

	go w.readLoop(conn)

	return nil
}

// Emit sends req as a chat_message frame. It does not wait for any acknowledgement.
func (w *WebSocket) Emit(ctx context.Context, req models.OutboundRequest) error {
	frame, err := models.EncodeRequest(req)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(w.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

func (w *WebSocket) connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// Events returns the channel on which inbound events are delivered. It is closed by Close.
func (w *WebSocket) Events() <-chan models.InboundEvent {
	return w.events
}

// Close closes the connection, stops any pending re-dial, and closes the Events channel.
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		close(w.done)
		if w.conn != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			err = w.conn.Close()
			w.conn = nil
		}
		w.mu.Unlock()

		w.wg.Wait()
		close(w.events)
	})
	return err
}

func (w *WebSocket) readLoop(conn *websocket.Conn) {
	defer w.wg.Done()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			w.lost(conn, err)
			return
		}

		ev, err := models.DecodeInbound(frame)
		if err != nil {
			w.logger.Warn("Dropping malformed frame",
				slog.String("frame", string(frame)),
				slog.String(errLoggerKey, err.Error()))
			ev = models.InvalidEvent{Err: err}
		}
		w.deliver(ev)
	}
}

// lost handles a read failure on conn. It must run on the read loop's goroutine.
func (w *WebSocket) lost(conn *websocket.Conn, cause error) {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return
	default:
	}
	if w.conn == conn {
		w.conn = nil
	}
	_ = conn.Close()
	if w.cfg.Reconnect {
		w.wg.Add(1)
		go w.reconnect()
	}
	w.mu.Unlock()

	w.logger.Warn("Disconnected from backend", slog.String(errLoggerKey, cause.Error()))
	w.deliver(models.DisconnectEvent{Err: cause})
}

func (w *WebSocket) reconnect() {
	defer w.wg.Done()

	backoff := w.cfg.InitialBackoff
	for attempt := 1; w.cfg.MaxAttempts == 0 || attempt <= w.cfg.MaxAttempts; attempt++ {
		timer := time.NewTimer(backoff)
		select {
		case <-w.done:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-w.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := w.Connect(ctx)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, ErrClosed) {
			return
		}

		w.logger.Warn("Reconnect failed",
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String(errLoggerKey, err.Error()))
		backoff = min(backoff*2, w.cfg.MaxBackoff)
	}

	w.logger.Error("Giving up reconnecting", slog.Int("attempts", w.cfg.MaxAttempts))
}

func (w *WebSocket) deliver(ev models.InboundEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}
