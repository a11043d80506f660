package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted MessageType = "sync.completed"
	TypeSyncFeedError MessageType = "sync.feed_error"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncCompletedPayload is the payload for sync.completed events.
type SyncCompletedPayload struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Feeds         int       `json:"feeds"`
	FeedsOK       int       `json:"feeds_ok"`
	FeedsErrored  int       `json:"feeds_errored"`
	GuestsCreated int       `json:"guests_created"`
	Upserted      int       `json:"upserted"`
	Status        string    `json:"status"` // "success", "partial" or "error"
	StoreError    string    `json:"store_error,omitempty"`
}

// SyncFeedErrorPayload is the payload for sync.feed_error events.
type SyncFeedErrorPayload struct {
	RoomID  int    `json:"room_id"`
	URL     string `json:"url"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}

// Reply builds the response to a client command. It returns false when the
// command needs no response.
func Reply(raw []byte) (Message, bool) {
	var in struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return NewMessage(TypeError, ErrorPayload{Code: "bad_request", Message: "message is not valid JSON"}), true
	}

	switch in.Type {
	case TypePing:
		return NewMessage(TypePong, nil), true
	case "":
		return NewMessage(TypeError, ErrorPayload{Code: "bad_request", Message: "missing message type"}), true
	default:
		return NewMessage(TypeError, ErrorPayload{
			Code:         "unknown_type",
			Message:      "unsupported message type",
			OriginalType: string(in.Type),
		}), true
	}
}
