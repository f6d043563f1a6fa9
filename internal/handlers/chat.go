package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MegaGrindStone/chatwidget/internal/widget"
)

// HandleChats sends a message typed in the page. It expects a "message" form field and a "mode" field
// holding one of the offered modes; an empty mode keeps the current selection. A blank message is
// accepted and ignored by the widget. The reply arrives later through the SSE stream, so a successful
// request answers 204 No Content.
//
// A message the widget could not transmit is still shown in the page, and the request still succeeds:
// delivery is fire-and-forget.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")
	mode := r.FormValue("mode")

	changed, err := m.widget.Submit(r.Context(), msg, mode)
	if errors.Is(err, widget.ErrUnknownMode) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		m.logger.Warn("Message was not delivered", slog.String(errLoggerKey, err.Error()))
	}

	if changed {
		if err := m.store.SetMode(r.Context(), mode); err != nil {
			m.logger.Error("Failed to save mode",
				slog.String("mode", mode),
				slog.String(errLoggerKey, err.Error()))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleClear clears the chat history.
func (m Main) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.widget.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// HandleVoice toggles voice mode.
func (m Main) HandleVoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.widget.ToggleVoiceMode()
	w.WriteHeader(http.StatusNoContent)
}
