package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chatcore/internal/hub"
	"chatcore/internal/metrics"
	"chatcore/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// Inbound is the logical frame shape accepted from clients.
type Inbound struct {
	Body           string          `json:"message" validate:"required,max=5000"`
	MessageType    string          `json:"message_type" validate:"max=20"`
	AttachmentURL  string          `json:"file_url" validate:"max=500"`
	AttachmentType string          `json:"file_type" validate:"max=50"`
	Metadata       json.RawMessage `json:"metadata"`
}

type RoomStore interface {
	Exists(ctx context.Context, roomID string) (bool, error)
}

type MessageStore interface {
	Insert(ctx context.Context, m *models.Message) (*models.Message, error)
}

type Cache interface {
	SetLatest(ctx context.Context, roomID, messageID string, ttl time.Duration) error
}

type Broadcaster interface {
	Publish(roomID string, env hub.Envelope, exclude hub.Handle)
}

// Pipeline validates, persists and broadcasts inbound messages. The store
// and cache are opaque collaborators assumed to be safe for concurrent use;
// only the cache step is allowed to fail silently.
type Pipeline struct {
	rooms    RoomStore
	store    MessageStore
	cache    Cache
	bus      Broadcaster
	cacheTTL time.Duration
	validate *validator.Validate
}

func New(rooms RoomStore, store MessageStore, cache Cache, bus Broadcaster, cacheTTL time.Duration) *Pipeline {
	return &Pipeline{
		rooms:    rooms,
		store:    store,
		cache:    cache,
		bus:      bus,
		cacheTTL: cacheTTL,
		validate: validator.New(),
	}
}

// Ingest runs one raw frame through parse, validation, room lookup,
// persistence, best-effort cache warm and broadcast. On success every handle
// in the room, the author included, receives one message envelope. Any error
// belongs to the originating connection alone.
func (p *Pipeline) Ingest(ctx context.Context, roomID, userID string, raw []byte) (*models.Message, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		metrics.IngestErrors.WithLabelValues(CodeMalformedInput).Inc()
		return nil, ErrMalformedInput
	}

	in.Body = strings.TrimSpace(in.Body)
	if in.MessageType == "" {
		in.MessageType = "text"
	}
	if err := p.validate.Struct(&in); err != nil {
		metrics.IngestErrors.WithLabelValues(CodeValidationError).Inc()
		return nil, asValidationError(err)
	}

	ok, err := p.rooms.Exists(ctx, roomID)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(CodePersistenceError).Inc()
		return nil, &PersistenceError{Err: err}
	}
	if !ok {
		metrics.IngestErrors.WithLabelValues(CodeRoomNotFound).Inc()
		return nil, ErrRoomNotFound
	}

	msg := &models.Message{
		RoomID:         roomID,
		UserID:         userID,
		Body:           in.Body,
		MessageType:    in.MessageType,
		AttachmentURL:  in.AttachmentURL,
		AttachmentType: in.AttachmentType,
		Metadata:       datatypes.JSON(in.Metadata),
	}
	stored, err := p.store.Insert(ctx, msg)
	if err != nil {
		metrics.IngestErrors.WithLabelValues(CodePersistenceError).Inc()
		return nil, &PersistenceError{Err: err}
	}

	// Cache warm is best effort; a failure here must never delay or fail the
	// broadcast.
	if p.cache != nil {
		if err := p.cache.SetLatest(ctx, roomID, stored.ID.String(), p.cacheTTL); err != nil {
			log.Warn().Err(err).Str("room_id", roomID).Msg("cache latest message")
		}
	}

	metrics.WsMessagesTotal.Inc()
	p.bus.Publish(roomID, hub.NewMessageEnvelope(stored), nil)
	return stored, nil
}

func asValidationError(err error) error {
	var verrs validator.ValidationErrors
	if ok := errors.As(err, &verrs); ok && len(verrs) > 0 {
		fe := verrs[0]
		reason := "failed " + fe.Tag() + " validation"
		if fe.Tag() == "required" {
			reason = "must not be empty"
		}
		return &ValidationError{Field: fe.Field(), Reason: reason}
	}
	return &ValidationError{Reason: err.Error()}
}
