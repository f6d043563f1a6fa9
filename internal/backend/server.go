// Package backend is a reference backend for the widget. It answers every chat_message on a socket with a
// single response produced by an LLM, using the generation parameters of the requested mode.
package backend

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MegaGrindStone/chatwidget/internal/models"
)

// LLM represents a large language model. It streams the reply to messages as text chunks.
type LLM interface {
	Chat(ctx context.Context, messages []models.ChatMessage, params models.ModeParams) iter.Seq2[string, error]
}

// Server serves the chat socket.
type Server struct {
	llm         LLM
	modes       map[string]models.ModeParams
	defaultMode string
	timeout     time.Duration

	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// FallbackMode is used for requests naming a mode the server does not know.
const FallbackMode = "normal"

// ErrorReply is sent in place of a reply the LLM failed to produce.
const ErrorReply = "Sorry, I encountered an error generating a response."

const (
	errLoggerKey = "err"

	defaultTimeout = 2 * time.Minute
)

// NewServer creates a Server. If modes is empty the default mode parameters are used. A zero timeout
// bounds each reply to two minutes.
func NewServer(llm LLM, modes map[string]models.ModeParams, timeout time.Duration, logger *slog.Logger) Server {
	if len(modes) == 0 {
		modes = models.DefaultModeParams
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return Server{
		llm:         llm,
		modes:       modes,
		defaultMode: FallbackMode,
		timeout:     timeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(slog.String("module", "backend")),
	}
}

// HandleSocket upgrades the request and answers chat messages until the client goes away. Requests on a
// connection are answered in the order they arrive.
func (s Server) HandleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", slog.String(errLoggerKey, err.Error()))
		return
	}
	defer conn.Close()

	s.logger.Info("Client connected", slog.String("remote", r.RemoteAddr))
	defer s.logger.Info("Client disconnected", slog.String("remote", r.RemoteAddr))

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Read failed", slog.String(errLoggerKey, err.Error()))
			}
			return
		}

		req, err := models.DecodeRequest(frame)
		if err != nil {
			s.logger.Warn("Ignoring frame",
				slog.String("frame", string(frame)),
				slog.String(errLoggerKey, err.Error()))
			continue
		}

		reply := s.reply(r.Context(), req)

		res, err := models.EncodeResponse(models.ResponseEvent{Response: reply, ID: req.ID})
		if err != nil {
			s.logger.Error("Failed to encode response", slog.String(errLoggerKey, err.Error()))
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, res); err != nil {
			s.logger.Warn("Write failed", slog.String(errLoggerKey, err.Error()))
			return
		}
	}
}

func (s Server) reply(ctx context.Context, req models.OutboundRequest) string {
	mode := req.Mode
	params, ok := s.modes[mode]
	if !ok {
		mode = s.defaultMode
		params = s.modes[mode]
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	messages := []models.ChatMessage{
		{Role: models.RoleUser, Text: req.Message},
	}

	var sb strings.Builder
	for chunk, err := range s.llm.Chat(ctx, messages, params) {
		if err != nil {
			s.logger.Error("Error from llm provider",
				slog.String("id", req.ID),
				slog.String("mode", mode),
				slog.String(errLoggerKey, err.Error()))
			return ErrorReply
		}
		sb.WriteString(chunk)
	}

	s.logger.Debug("Reply generated",
		slog.String("id", req.ID),
		slog.String("mode", mode),
		slog.Int("length", sb.Len()))

	return strings.TrimSpace(sb.String())
}
