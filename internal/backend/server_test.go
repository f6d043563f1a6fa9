package backend_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MegaGrindStone/chatwidget/internal/backend"
	"github.com/MegaGrindStone/chatwidget/internal/models"
)

type mockLLM struct {
	mu         sync.Mutex
	responses  []string
	err        error
	gotParams  []models.ModeParams
	gotMessage []string
}

func (m *mockLLM) Chat(_ context.Context, messages []models.ChatMessage, params models.ModeParams) iter.Seq2[string, error] {
	m.mu.Lock()
	m.gotParams = append(m.gotParams, params)
	m.gotMessage = append(m.gotMessage, messages[len(messages)-1].Text)
	m.mu.Unlock()

	return func(yield func(string, error) bool) {
		if m.err != nil {
			yield("", m.err)
			return
		}
		for _, resp := range m.responses {
			if !yield(resp, nil) {
				return
			}
		}
	}
}

func dial(t *testing.T, llm backend.LLM) *websocket.Conn {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(http.HandlerFunc(backend.NewServer(llm, nil, time.Second, logger).HandleSocket))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, req models.OutboundRequest) models.ResponseEvent {
	t.Helper()

	frame, err := models.EncodeRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, res, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	ev, err := models.DecodeInbound(res)
	if err != nil {
		t.Fatalf("DecodeInbound() error = %v", err)
	}
	return ev.(models.ResponseEvent)
}

func TestHandleSocket(t *testing.T) {
	llm := &mockLLM{responses: []string{"  **hi", "**\n"}}
	conn := dial(t, llm)

	tests := []struct {
		name       string
		mode       string
		wantParams models.ModeParams
	}{
		{name: "Code mode", mode: "code", wantParams: models.DefaultModeParams["code"]},
		{name: "Unknown mode falls back", mode: "poetry", wantParams: models.DefaultModeParams["normal"]},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := exchange(t, conn, models.OutboundRequest{Message: "hello", Mode: tt.mode, ID: tt.name})

			want := models.ResponseEvent{Response: "**hi**", ID: tt.name}
			if res != want {
				t.Errorf("response = %+v, want %+v", res, want)
			}
			llm.mu.Lock()
			defer llm.mu.Unlock()
			if llm.gotParams[i] != tt.wantParams {
				t.Errorf("params = %+v, want %+v", llm.gotParams[i], tt.wantParams)
			}
		})
	}
}

func TestHandleSocketLLMError(t *testing.T) {
	conn := dial(t, &mockLLM{err: errors.New("model not loaded")})

	res := exchange(t, conn, models.OutboundRequest{Message: "hello", Mode: "normal", ID: "1"})
	if res.Response != backend.ErrorReply || res.ID != "1" {
		t.Errorf("response = %+v, want error reply for 1", res)
	}
}

func TestHandleSocketIgnoresMalformedFrames(t *testing.T) {
	llm := &mockLLM{responses: []string{"ok"}}
	conn := dial(t, llm)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"typing"}`)); err != nil {
		t.Fatal(err)
	}

	res := exchange(t, conn, models.OutboundRequest{Message: "hello", Mode: "normal"})
	if res.Response != "ok" {
		t.Errorf("response = %+v, want ok", res)
	}
	llm.mu.Lock()
	defer llm.mu.Unlock()
	if len(llm.gotMessage) != 1 {
		t.Errorf("llm calls = %d, want 1", len(llm.gotMessage))
	}
}
