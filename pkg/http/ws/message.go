package ws

import "encoding/json"

// MessageType constants for the progress stream.
const (
	// Client -> Server
	TypeWatchRun   = "watch_run"
	TypeUnwatchRun = "unwatch_run"
	TypePing       = "ping"

	// Server -> Client
	TypeWatching       = "watching"
	TypeUploadProgress = "upload_progress"
	TypeError          = "error"
	TypePong           = "pong"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

type WatchRunPayload struct {
	RunID string `json:"run_id"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(kind string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: kind}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: kind, Payload: raw}, nil
}
