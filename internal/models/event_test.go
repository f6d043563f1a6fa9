package models_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MegaGrindStone/chatwidget/internal/models"
)

func TestEncodeRequest(t *testing.T) {
	frame, err := models.EncodeRequest(models.OutboundRequest{Message: "hello", Mode: "normal", ID: "1"})
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	var env struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatal(err)
	}
	if env.Event != "chat_message" {
		t.Errorf("EncodeRequest() event = %v, want %v", env.Event, "chat_message")
	}
	if env.Data["message"] != "hello" || env.Data["mode"] != "normal" {
		t.Errorf("EncodeRequest() data = %v, want message and mode", env.Data)
	}

	if _, err := models.EncodeRequest(models.OutboundRequest{Message: "  "}); !errors.Is(err, models.ErrInvalidPayload) {
		t.Errorf("EncodeRequest() with blank message error = %v, want %v", err, models.ErrInvalidPayload)
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    models.ResponseEvent
		wantErr error
	}{
		{
			name:  "Response",
			frame: `{"event":"response","data":{"response":"**hi**"}}`,
			want:  models.ResponseEvent{Response: "**hi**"},
		},
		{
			name:  "Response with id",
			frame: `{"event":"response","data":{"response":"ok","id":"abc"}}`,
			want:  models.ResponseEvent{Response: "ok", ID: "abc"},
		},
		{
			name:  "Empty response is valid",
			frame: `{"event":"response","data":{"response":""}}`,
			want:  models.ResponseEvent{},
		},
		{
			name:    "Unknown event",
			frame:   `{"event":"typing","data":{}}`,
			wantErr: models.ErrUnknownEvent,
		},
		{
			name:    "Missing response field",
			frame:   `{"event":"response","data":{"text":"hi"}}`,
			wantErr: models.ErrInvalidPayload,
		},
		{
			name:    "Response is not a string",
			frame:   `{"event":"response","data":{"response":42}}`,
			wantErr: models.ErrInvalidPayload,
		},
		{
			name:    "Missing data",
			frame:   `{"event":"response"}`,
			wantErr: models.ErrInvalidPayload,
		},
		{
			name:    "Not JSON",
			frame:   `response`,
			wantErr: models.ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.DecodeInbound([]byte(tt.frame))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("DecodeInbound() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeInbound() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeInbound() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	req, err := models.DecodeRequest([]byte(`{"event":"chat_message","data":{"message":" hi ","mode":"code","id":"7"}}`))
	if err != nil {
		t.Fatalf("DecodeRequest() error = %v", err)
	}
	want := models.OutboundRequest{Message: "hi", Mode: "code", ID: "7"}
	if req != want {
		t.Errorf("DecodeRequest() = %+v, want %+v", req, want)
	}

	_, err = models.DecodeRequest([]byte(`{"event":"chat_message","data":{"message":"","mode":"code"}}`))
	if !errors.Is(err, models.ErrInvalidPayload) {
		t.Errorf("DecodeRequest() with empty message error = %v, want %v", err, models.ErrInvalidPayload)
	}

	_, err = models.DecodeRequest([]byte(`{"event":"response","data":{"response":"x"}}`))
	if !errors.Is(err, models.ErrUnknownEvent) {
		t.Errorf("DecodeRequest() with response frame error = %v, want %v", err, models.ErrUnknownEvent)
	}
}
