// Package widget implements the chat widget controller. The widget owns an ordered list of messages, the
// typing indicator, the voice mode flag, the control values and the connection to the backend. The page a
// user sees is a projection of View, so it can be thrown away and re-rendered at any time.
package widget

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MegaGrindStone/chatwidget/internal/models"
)

// Transport is the persistent connection to the backend.
type Transport interface {
	Connect(ctx context.Context) error
	Emit(ctx context.Context, req models.OutboundRequest) error
	// Events delivers lifecycle changes and inbound frames in order. It is closed by Close.
	Events() <-chan models.InboundEvent
	Close() error
}

// Renderer turns a message into an HTML fragment.
type Renderer interface {
	Message(msg models.ChatMessage) (template.HTML, error)
}

// Config configures a Widget.
type Config struct {
	// Modes are the values offered by the mode selector. They are opaque to the widget.
	Modes []string
	// DefaultMode is the initially selected mode. It defaults to the first of Modes.
	DefaultMode string
}

// Entry is a message together with its rendered HTML.
type Entry struct {
	models.ChatMessage
	HTML template.HTML
}

// View is a snapshot of everything the page displays.
type View struct {
	Messages []Entry
	// Typing reports whether the typing indicator is shown. There is never more than one.
	Typing bool

	VoiceMode  bool
	VoiceClass string

	State models.ConnectionState

	Modes []string
	Mode  string
	Input string

	// ScrollToBottom is set when the last change appended to the message list.
	ScrollToBottom bool
}

// System notices.
const (
	NoticeDisconnected  = "Disconnected from server. Please refresh the page."
	NoticeCleared       = "Chat history cleared."
	NoticeVoiceEnabled  = "Voice mode enabled. Click the microphone to speak."
	NoticeVoiceDisabled = "Voice mode disabled."
	NoticeUndisplayable = "Message could not be displayed."
)

// Voice toggle affordance classes.
const (
	VoiceClassActive   = "btn-primary"
	VoiceClassInactive = "btn-outline-secondary"
)

const errLoggerKey = "err"

var (
	// ErrUnknownMode is returned when selecting a mode the selector does not offer.
	ErrUnknownMode = errors.New("unknown mode")

	// DefaultModes are offered when the configuration names none.
	DefaultModes = []string{"normal", "code", "creative"}
)

// Widget is the chat widget controller. All operations and inbound event handlers run to completion under
// a single lock, so they never interleave.
type Widget struct {
	transport Transport
	renderer  Renderer
	logger    *slog.Logger
	modes     []string

	now   func() time.Time
	newID func() string

	// sendMu orders transmissions so requests reach the backend in the order they were staged.
	sendMu sync.Mutex

	mu       sync.Mutex
	messages []Entry
	typing   bool
	voice    bool
	state    models.ConnectionState
	input    string
	mode     string
	scroll   bool
	// pending holds the IDs of sent requests without a response, oldest first.
	pending []string

	subscribers map[chan View]struct{}
	closed      bool

	dispatching bool
	dispatched  chan struct{}
}

// New creates a Widget bound to transport and renderer. Nothing is dialed until Initialize is called.
func New(cfg Config, transport Transport, renderer Renderer, logger *slog.Logger) (*Widget, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}

	modes := slices.Clone(cfg.Modes)
	if len(modes) == 0 {
		modes = slices.Clone(DefaultModes)
	}
	mode := cfg.DefaultMode
	if !slices.Contains(modes, mode) {
		mode = modes[0]
	}

	return &Widget{
		transport:   transport,
		renderer:    renderer,
		logger:      logger.With(slog.String("module", "widget")),
		modes:       modes,
		now:         time.Now,
		newID:       uuid.NewString,
		state:       models.StateDisconnected,
		mode:        mode,
		subscribers: make(map[chan View]struct{}),
		dispatched:  make(chan struct{}),
	}, nil
}

// Initialize starts handling the transport's events and opens the connection. If the first dial fails
// the error is returned and the widget stays disconnected.
func (w *Widget) Initialize(ctx context.Context) error {
	w.mu.Lock()
	if !w.dispatching {
		w.dispatching = true
		go w.dispatch()
	}
	w.mu.Unlock()

	if err := w.transport.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (w *Widget) dispatch() {
	defer close(w.dispatched)

	for ev := range w.transport.Events() {
		switch ev := ev.(type) {
		case models.ConnectEvent:
			w.OnConnected()
		case models.DisconnectEvent:
			w.OnDisconnected()
		case models.ResponseEvent:
			w.OnResponseReceived(ev)
		case models.InvalidEvent:
			w.onInvalid(ev.Err)
		}
	}
}

// SetInput replaces the text of the input control.
func (w *Widget) SetInput(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.input = text
	w.scroll = false
	w.publish()
}

// SelectMode changes the selected mode. The selection is left unchanged if mode is not offered.
func (w *Widget) SelectMode(mode string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !slices.Contains(w.modes, mode) {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	w.mode = mode
	w.scroll = false
	w.publish()
	return nil
}

// SendMessage sends the trimmed input text with the selected mode. Blank input is ignored. The message
// is shown and the input cleared before transmission; a transmission error is returned but not retried,
// and the view is left as it is.
func (w *Widget) SendMessage(ctx context.Context) error {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	w.mu.Lock()
	req, ok := w.stage()
	w.mu.Unlock()
	if !ok {
		return nil
	}

	return w.emit(ctx, req)
}

// Submit selects mode, when not empty, and sends text in one step, so concurrent submissions never see
// each other's input or mode. It reports whether the selected mode changed. An unknown mode is rejected
// before anything is changed or sent.
func (w *Widget) Submit(ctx context.Context, text, mode string) (bool, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	w.mu.Lock()
	changed := false
	if mode != "" && mode != w.mode {
		if !slices.Contains(w.modes, mode) {
			w.mu.Unlock()
			return false, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
		}
		w.mode = mode
		changed = true
	}
	w.input = text
	req, ok := w.stage()
	if !ok {
		w.scroll = false
		w.publish()
	}
	w.mu.Unlock()

	if !ok {
		return changed, nil
	}
	return changed, w.emit(ctx, req)
}

// stage moves the input into the message list and returns the request to transmit. It reports false for
// blank input. It must be called with mu held.
func (w *Widget) stage() (models.OutboundRequest, bool) {
	text := strings.TrimSpace(w.input)
	if text == "" {
		return models.OutboundRequest{}, false
	}

	w.append(models.ChatMessage{Role: models.RoleUser, Text: text})
	w.input = ""

	req := models.OutboundRequest{
		Message: text,
		Mode:    w.mode,
		ID:      w.newID(),
	}
	w.pending = append(w.pending, req.ID)

	w.typing = true
	w.scroll = true
	w.publish()

	return req, true
}

// emit transmits req without holding mu, so a slow backend never blocks the view or inbound events.
func (w *Widget) emit(ctx context.Context, req models.OutboundRequest) error {
	err := w.transport.Emit(ctx, req)
	if err == nil {
		return nil
	}

	w.logger.Warn("Failed to send message",
		slog.String("id", req.ID),
		slog.String(errLoggerKey, err.Error()))

	w.mu.Lock()
	if idx := slices.Index(w.pending, req.ID); idx != -1 {
		w.pending = slices.Delete(w.pending, idx, idx+1)
	}
	w.mu.Unlock()

	return fmt.Errorf("failed to send message: %w", err)
}

// OnResponseReceived renders res as an assistant message and removes the typing indicator, if shown.
func (w *Widget) OnResponseReceived(res models.ResponseEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.typing = false

	replyTo := w.settle(res.ID)
	w.append(models.ChatMessage{Role: models.RoleAssistant, Text: res.Response, ReplyTo: replyTo})
	w.scroll = true
	w.publish()
}

// settle removes the request answered by a response from the pending list and returns its ID. A response
// without an ID is attributed to the oldest pending request.
func (w *Widget) settle(id string) string {
	if id == "" {
		if len(w.pending) == 0 {
			return ""
		}
		id = w.pending[0]
		w.pending = w.pending[1:]
		return id
	}

	idx := slices.Index(w.pending, id)
	if idx == -1 {
		w.logger.Warn("Response for unknown request", slog.String("id", id))
		return id
	}
	w.pending = slices.Delete(w.pending, idx, idx+1)
	return id
}

func (w *Widget) onInvalid(err error) {
	if errors.Is(err, models.ErrUnknownEvent) {
		w.logger.Debug("Ignoring event", slog.String(errLoggerKey, err.Error()))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Error("Invalid response", slog.String(errLoggerKey, err.Error()))
	w.typing = false
	w.settle("")
	w.appendSystem(NoticeUndisplayable)
	w.publish()
}

// OnConnected records that the transport confirmed the connection.
func (w *Widget) OnConnected() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = models.StateConnected
	w.logger.Info("Connected to server")
	w.publish()
}

// OnDisconnected records the loss of the connection and asks the user to refresh. The typing indicator,
// if shown, is left in place.
func (w *Widget) OnDisconnected() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state = models.StateDisconnected
	w.logger.Info("Disconnected from server")
	w.appendSystem(NoticeDisconnected)
	w.publish()
}

// ClearHistory removes every message, and the typing indicator, then confirms with a notice.
func (w *Widget) ClearHistory() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.messages = nil
	w.typing = false
	w.appendSystem(NoticeCleared)
	w.publish()
}

// ToggleVoiceMode flips the voice mode flag. Voice mode has no effect besides its affordance and notice.
func (w *Widget) ToggleVoiceMode() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.voice = !w.voice
	if w.voice {
		w.appendSystem(NoticeVoiceEnabled)
	} else {
		w.appendSystem(NoticeVoiceDisabled)
	}
	w.publish()
}

// View returns a snapshot of the widget.
func (w *Widget) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.view()
}

// Subscribe returns a channel receiving a View after every change, and a function to stop receiving.
// Slow subscribers only see the latest View. After Close the channel is returned already closed.
func (w *Widget) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	w.subscribers[ch] = struct{}{}
	w.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if _, ok := w.subscribers[ch]; ok {
				delete(w.subscribers, ch)
				close(ch)
			}
		})
	}
}

// Close closes the transport and every subscription.
func (w *Widget) Close() error {
	err := w.transport.Close()

	w.mu.Lock()
	dispatching := w.dispatching
	w.mu.Unlock()
	if dispatching {
		<-w.dispatched
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	for ch := range w.subscribers {
		delete(w.subscribers, ch)
		close(ch)
	}

	return err
}

func (w *Widget) appendSystem(text string) {
	w.append(models.ChatMessage{Role: models.RoleSystem, Text: text})
	w.scroll = true
}

// append renders msg and adds it to the list. A message that cannot be rendered is replaced by a notice.
func (w *Widget) append(msg models.ChatMessage) {
	msg.ID = w.newID()
	msg.Timestamp = w.now()

	html, err := w.render(msg)
	if err != nil {
		w.logger.Error("Failed to render message",
			slog.String("message", fmt.Sprintf("%+v", msg)),
			slog.String(errLoggerKey, err.Error()))

		msg = models.ChatMessage{
			ID:        msg.ID,
			Role:      models.RoleSystem,
			Text:      NoticeUndisplayable,
			Timestamp: msg.Timestamp,
		}
		html = template.HTML(template.HTMLEscapeString(msg.Text))
	}

	w.messages = append(w.messages, Entry{ChatMessage: msg, HTML: html})
}

func (w *Widget) render(msg models.ChatMessage) (html template.HTML, err error) {
	// A panicking highlighter surfaces as a render error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("renderer panicked: %v", r)
		}
	}()
	return w.renderer.Message(msg)
}

func (w *Widget) view() View {
	voiceClass := VoiceClassInactive
	if w.voice {
		voiceClass = VoiceClassActive
	}

	return View{
		Messages:       slices.Clone(w.messages),
		Typing:         w.typing,
		VoiceMode:      w.voice,
		VoiceClass:     voiceClass,
		State:          w.state,
		Modes:          slices.Clone(w.modes),
		Mode:           w.mode,
		Input:          w.input,
		ScrollToBottom: w.scroll,
	}
}

// publish must be called with mu held.
func (w *Widget) publish() {
	if len(w.subscribers) == 0 {
		return
	}

	v := w.view()
	for ch := range w.subscribers {
		select {
		case ch <- v:
		default:
			// Replace the stale view nobody has read yet.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}
