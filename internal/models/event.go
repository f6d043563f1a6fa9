package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventName is the name under which a payload travels on the socket.
type EventName string

const (
	// EventChatMessage carries an OutboundRequest from the widget to the backend.
	EventChatMessage EventName = "chat_message"
	// EventResponse carries a ResponseEvent from the backend to the widget.
	EventResponse EventName = "response"
	// EventConnect and EventDisconnect are produced by the transport itself and never travel on the wire.
	EventConnect    EventName = "connect"
	EventDisconnect EventName = "disconnect"
)

var (
	// ErrUnknownEvent is returned when a frame names an event the receiver does not handle.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrInvalidPayload is returned when a frame's payload does not have the expected shape.
	ErrInvalidPayload = errors.New("invalid payload")
)

// Envelope is the frame exchanged over the socket: an event name and its JSON payload.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundRequest is the payload of a chat_message event.
type OutboundRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode"`
	// ID correlates the request with its response. Backends are free to ignore it.
	ID string `json:"id,omitempty"`
}

// InboundEvent is one of ConnectEvent, DisconnectEvent, ResponseEvent or InvalidEvent.
type InboundEvent interface {
	inboundEvent()
}

// ConnectEvent reports that the transport established its connection.
type ConnectEvent struct{}

// DisconnectEvent reports that the transport lost its connection. Err holds the cause, if known.
type DisconnectEvent struct {
	Err error
}

// ResponseEvent is the payload of a response event.
type ResponseEvent struct {
	Response string `json:"response"`
	ID       string `json:"id,omitempty"`
}

// InvalidEvent is delivered in place of a frame that could not be decoded.
type InvalidEvent struct {
	Err error
}

func (ConnectEvent) inboundEvent()    {}
func (DisconnectEvent) inboundEvent() {}
func (ResponseEvent) inboundEvent()   {}
func (InvalidEvent) inboundEvent()    {}

// EncodeRequest encodes req as a chat_message frame. The message must not be empty after trimming.
func EncodeRequest(req OutboundRequest) ([]byte, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidPayload)
	}
	return encode(EventChatMessage, req)
}

// EncodeResponse encodes res as a response frame.
func EncodeResponse(res ResponseEvent) ([]byte, error) {
	return encode(EventResponse, res)
}

func encode(name EventName, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return json.Marshal(Envelope{Event: name, Data: data})
}

// DecodeInbound decodes a frame received by the widget. Only response frames are accepted, and their
// payload must carry a string response field.
func DecodeInbound(frame []byte) (InboundEvent, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	if env.Event != EventResponse {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	var raw struct {
		Response *string `json:"response"`
		ID       string  `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if raw.Response == nil {
		return nil, fmt.Errorf("%w: missing response field", ErrInvalidPayload)
	}

	return ResponseEvent{Response: *raw.Response, ID: raw.ID}, nil
}

// DecodeRequest decodes a chat_message frame received by a backend. A missing mode is left empty for
// the backend to default.
func DecodeRequest(frame []byte) (OutboundRequest, error) {
	env, err := decodeEnvelope(frame)
	if err != nil {
		return OutboundRequest{}, err
	}
	if env.Event != EventChatMessage {
		return OutboundRequest{}, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}

	var req OutboundRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return OutboundRequest{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return OutboundRequest{}, fmt.Errorf("%w: empty message", ErrInvalidPayload)
	}

	return req, nil
}

func decodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrInvalidPayload)
	}
	return env, nil
}
