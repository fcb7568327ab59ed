package hub

import (
	"encoding/json"
	"time"

	"chatcore/internal/models"
)

const (
	KindMessage    = "message"
	KindUserJoined = "user_joined"
	KindUserLeft   = "user_left"
	KindError      = "error"
)

// Envelope is the ephemeral wire event delivered to room occupants. It is a
// tagged union over the four kinds; unused fields are omitted from the JSON.
type Envelope struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	Timestamp time.Time `json:"timestamp"`

	// message
	ID             string          `json:"id,omitempty"`
	Body           string          `json:"message,omitempty"`
	MessageType    string          `json:"message_type,omitempty"`
	AttachmentURL  string          `json:"file_url,omitempty"`
	AttachmentType string          `json:"file_type,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      *time.Time      `json:"created_at,omitempty"`

	// message + presence
	UserID string `json:"user_id,omitempty"`

	// presence
	ActiveUsers int `json:"active_users,omitempty"`

	// error
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

func NewMessageEnvelope(m *models.Message) Envelope {
	created := m.CreatedAt
	return Envelope{
		Type:           KindMessage,
		RoomID:         m.RoomID,
		Timestamp:      time.Now().UTC(),
		ID:             m.ID.String(),
		UserID:         m.UserID,
		Body:           m.Body,
		MessageType:    m.MessageType,
		AttachmentURL:  m.AttachmentURL,
		AttachmentType: m.AttachmentType,
		Metadata:       json.RawMessage(m.Metadata),
		CreatedAt:      &created,
	}
}

func NewJoinEnvelope(roomID, userID string, active int) Envelope {
	return Envelope{Type: KindUserJoined, RoomID: roomID, Timestamp: time.Now().UTC(), UserID: userID, ActiveUsers: active}
}

func NewLeaveEnvelope(roomID, userID string, active int) Envelope {
	return Envelope{Type: KindUserLeft, RoomID: roomID, Timestamp: time.Now().UTC(), UserID: userID, ActiveUsers: active}
}

func NewErrorEnvelope(roomID, code, reason string) Envelope {
	return Envelope{Type: KindError, RoomID: roomID, Timestamp: time.Now().UTC(), Code: code, Error: reason}
}
