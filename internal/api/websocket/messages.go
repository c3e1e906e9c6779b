package websocket

import (
	"time"

	"github.com/KevinKickass/PumpFleet/internal/collection"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Handshake messages
	MessageTypeAuth        MessageType = "auth"
	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"

	// Collection change messages, delivered only to the owning user
	MessageTypeCollectionChanged MessageType = "collection_changed"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// inbound is what clients send. Only auth carries a token.
type inbound struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token,omitempty"`
}

type AuthData struct {
	Username string `json:"username,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewCollectionMessage(change collection.Change) Message {
	return NewMessage(MessageTypeCollectionChanged, change)
}
