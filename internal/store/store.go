package store

import (
	"context"
	"errors"
	"time"

	"chatcore/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound  = errors.New("message not found")
	ErrNotAuthor = errors.New("only the author may modify a message")
)

// Messages persists chat messages in Postgres. Identity and creation
// timestamp are assigned on insert.
type Messages struct {
	db *gorm.DB
}

func NewMessages(db *gorm.DB) *Messages { return &Messages{db: db} }

func (s *Messages) Insert(ctx context.Context, m *models.Message) (*models.Message, error) {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Messages) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var m models.Message
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MarkEdited replaces the body of a message. Only the author may edit.
func (s *Messages) MarkEdited(ctx context.Context, id uuid.UUID, userID, body string) (*models.Message, error) {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.UserID != userID {
		return nil, ErrNotAuthor
	}
	now := time.Now().UTC()
	m.Body = body
	m.IsEdited = true
	m.EditedAt = &now
	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// MarkRead flags a message as read. Only the author may toggle the flag.
func (s *Messages) MarkRead(ctx context.Context, id uuid.UUID, userID string, read bool) error {
	m, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if m.UserID != userID {
		return ErrNotAuthor
	}
	return s.db.WithContext(ctx).Model(m).Update("is_read", read).Error
}

// Rooms answers existence checks against externally provisioned rooms.
type Rooms struct {
	db *gorm.DB
}

func NewRooms(db *gorm.DB) *Rooms { return &Rooms{db: db} }

func (s *Rooms) Exists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Room{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
