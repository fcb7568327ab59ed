package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Room is provisioned outside the core; the pipeline only ever checks
// existence by the opaque RoomID string.
type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID    string    `gorm:"uniqueIndex;size:50;not null"`
	Name      string    `gorm:"size:200"`
	RoomType  string    `gorm:"size:20;default:group"`
	CreatedBy string    `gorm:"size:50;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID         string    `gorm:"size:50;index:idx_messages_room_created;not null"`
	UserID         string    `gorm:"size:50;index;not null"`
	Body           string    `gorm:"type:text;not null"`
	MessageType    string    `gorm:"size:20;default:text"`
	AttachmentURL  string    `gorm:"size:500"`
	AttachmentType string    `gorm:"size:50"`
	Metadata       datatypes.JSON
	IsRead         bool
	IsEdited       bool
	EditedAt       *time.Time
	CreatedAt      time.Time `gorm:"index:idx_messages_room_created"`
	UpdatedAt      time.Time
}

func (r *Room) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
