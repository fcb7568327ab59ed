package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"chatcore/internal/auth"
	"chatcore/internal/config"
	"chatcore/internal/hub"
	"chatcore/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve is the attach endpoint. A connection missing its room target or
// failing authentication is refused with a distinct status before it ever
// reaches the hub.
func Serve(h *hub.Hub, pipe *pipeline.Pipeline, rooms pipeline.RoomStore, authn *auth.Authenticator, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Query("room_id")
		if roomID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing room_id"})
			return
		}

		token := auth.TokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		userID, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ok, err := rooms.Exists(c.Request.Context(), roomID)
		if err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("room lookup")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "room lookup failed"})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}

		wsc, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		s := &session{
			conn:   NewConn(wsc, cfg.SendBuffer),
			hub:    h,
			pipe:   pipe,
			roomID: roomID,
			userID: userID,
		}
		s.run(c.Request.Context(), cfg.MaxMessageSize)
	}
}

// session owns one connection's lifecycle: it is the only code allowed to
// attach and detach its handle.
type session struct {
	conn   *Conn
	hub    *hub.Hub
	pipe   *pipeline.Pipeline
	roomID string
	userID string
	leave  sync.Once
}

func (s *session) run(ctx context.Context, readLimit int64) {
	s.hub.Join(s.conn, s.roomID, s.userID)
	log.Info().Str("room_id", s.roomID).Str("user_id", s.userID).Msg("session attached")
	go s.conn.writePump()
	s.readLoop(ctx, readLimit)
	s.teardown()
}

// teardown detaches exactly once, no matter how many paths signal closure.
func (s *session) teardown() {
	s.leave.Do(func() {
		s.hub.Leave(s.conn, s.roomID, s.userID)
		_ = s.conn.Close()
		log.Info().Str("room_id", s.roomID).Str("user_id", s.userID).Msg("session detached")
	})
}

// readLoop blocks on inbound frames and feeds each one to the pipeline. A
// bad frame is answered on this connection only; the loop keeps reading.
// Only a transport-level failure ends the session.
func (s *session) readLoop(ctx context.Context, readLimit int64) {
	wsc := s.conn.ws
	wsc.SetReadLimit(readLimit)
	_ = wsc.SetReadDeadline(time.Now().Add(pongWait))
	wsc.SetPongHandler(func(string) error {
		return wsc.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := wsc.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("user_id", s.userID).Msg("read frame")
			}
			return
		}
		if _, err := s.pipe.Ingest(ctx, s.roomID, s.userID, data); err != nil {
			s.reject(err)
		}
	}
}

// reject reports a pipeline error back to the originating connection. Error
// envelopes are never broadcast.
func (s *session) reject(err error) {
	env := hub.NewErrorEnvelope(s.roomID, pipeline.ReasonCode(err), err.Error())
	data, merr := json.Marshal(env)
	if merr != nil {
		return
	}
	if serr := s.conn.Send(data); serr != nil {
		log.Warn().Err(serr).Str("user_id", s.userID).Msg("send error envelope")
	}
}
