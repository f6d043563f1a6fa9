package handlers

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmaxmax/go-sse"

	chatwidget "github.com/MegaGrindStone/chatwidget"
	"github.com/MegaGrindStone/chatwidget/internal/widget"
)

// Widget is the chat widget the page projects and drives.
type Widget interface {
	View() widget.View
	Subscribe() (<-chan widget.View, func())

	Submit(ctx context.Context, text, mode string) (bool, error)
	ClearHistory()
	ToggleVoiceMode()
}

// Store keeps the settings that outlive a restart.
type Store interface {
	SetMode(ctx context.Context, mode string) error
}

// Main serves the widget page, its control endpoints, and the stream of view updates.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	codeCSS   []byte

	widget Widget
	store  Store

	unsubscribe func()
	forwarded   chan struct{}

	logger *slog.Logger
}

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	controlsSSEType = sse.Type("controls")
	closeSSEType    = sse.Type("closeChat")
)

const errLoggerKey = "err"

// NewMain parses the page templates and starts forwarding every change of w to the connected browsers.
// codeCSS is served as the stylesheet for highlighted code.
func NewMain(w Widget, store Store, codeCSS []byte, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		chatwidget.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, fmt.Errorf("failed to parse templates: %w", err)
	}

	views, unsubscribe := w.Subscribe()

	m := Main{
		sseSrv:      &sse.Server{},
		templates:   tmpl,
		codeCSS:     codeCSS,
		widget:      w,
		store:       store,
		unsubscribe: unsubscribe,
		forwarded:   make(chan struct{}),
		logger:      logger.With(slog.String("module", "handlers")),
	}
	m.sseSrv.OnSession = m.onSession

	go m.forward(views)

	return m, nil
}

// forward publishes the partials of every view until the subscription ends.
func (m Main) forward(views <-chan widget.View) {
	defer close(m.forwarded)

	for v := range views {
		msgs, err := m.viewMessages(v)
		if err != nil {
			m.logger.Error("Failed to render view", slog.String(errLoggerKey, err.Error()))
			continue
		}
		for _, msg := range msgs {
			if err := m.sseSrv.Publish(msg); err != nil {
				m.logger.Error("Failed to publish",
					slog.String("type", msg.Type.String()),
					slog.String(errLoggerKey, err.Error()))
			}
		}
	}
}

// onSession sends the current view to a browser that just opened the stream, before the session is
// subscribed to later changes.
func (m Main) onSession(w http.ResponseWriter, r *http.Request) ([]string, bool) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		m.logger.Error("Failed to upgrade session", slog.String(errLoggerKey, err.Error()))
		http.Error(w, "Server-sent events unsupported", http.StatusInternalServerError)
		return nil, false
	}

	v := m.widget.View()
	v.ScrollToBottom = true
	msgs, err := m.viewMessages(v)
	if err != nil {
		m.logger.Error("Failed to render view", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}

	for _, msg := range msgs {
		if err := sess.Send(msg); err != nil {
			m.logger.Warn("Failed to send initial view", slog.String(errLoggerKey, err.Error()))
			return nil, false
		}
	}
	if err := sess.Flush(); err != nil {
		m.logger.Warn("Failed to flush initial view", slog.String(errLoggerKey, err.Error()))
		return nil, false
	}

	return nil, true
}

// viewMessages renders the messages and controls partials of v.
func (m Main) viewMessages(v widget.View) ([]*sse.Message, error) {
	partials := []struct {
		typ  sse.EventType
		name string
	}{
		{typ: messagesSSEType, name: "messages"},
		{typ: controlsSSEType, name: "controls"},
	}

	msgs := make([]*sse.Message, 0, len(partials))
	for _, p := range partials {
		data, err := m.renderPartial(p.name, v)
		if err != nil {
			return nil, err
		}
		msg := &sse.Message{Type: p.typ}
		msg.AppendData(data)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (m Main) renderPartial(name string, v widget.View) (string, error) {
	var buf bytes.Buffer
	if err := m.templates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// Shutdown stops forwarding updates, tells every browser the stream is over, and waits up to 5 seconds
// for the SSE connections to terminate.
func (m Main) Shutdown(ctx context.Context) error {
	m.unsubscribe()
	<-m.forwarded

	e := &sse.Message{Type: closeSSEType}
	// An SSE event without data is never dispatched by browsers
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
