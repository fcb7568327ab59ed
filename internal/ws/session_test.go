package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"chatcore/internal/auth"
	"chatcore/internal/config"
	"chatcore/internal/hub"
	"chatcore/internal/models"
	"chatcore/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const testSecret = "test-secret"

type memRooms struct {
	exists map[string]bool
}

func (m *memRooms) Exists(ctx context.Context, roomID string) (bool, error) {
	return m.exists[roomID], nil
}

type memStore struct {
	mu   sync.Mutex
	err  error
	byID map[string]*models.Message
}

func (m *memStore) Insert(ctx context.Context, msg *models.Message) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().UTC()
	m.byID[msg.ID.String()] = msg
	return msg, nil
}

func (m *memStore) get(id string) *models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id]
}

func (m *memStore) failWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func newTestStack(t *testing.T) (*httptest.Server, *hub.Hub, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.New()
	st := &memStore{byID: make(map[string]*models.Message)}
	rooms := &memRooms{exists: map[string]bool{"r1": true}}
	pipe := pipeline.New(rooms, st, nil, h, time.Hour)
	authn := auth.NewAuthenticator(testSecret)
	cfg := config.Config{SendBuffer: 16, MaxMessageSize: 1 << 20}

	r := gin.New()
	r.GET("/ws", Serve(h, pipe, rooms, authn, cfg))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h, st
}

func dialRoom(t *testing.T, srv *httptest.Server, roomID, userID string) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateAccessToken(userID, testSecret, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room_id=" + roomID + "&token=" + token
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s as %s: %v", roomID, userID, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readEnvelope(t *testing.T, c *websocket.Conn) hub.Envelope {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	var env hub.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

// expectSilence asserts that no envelope arrives within a short window. The
// connection must not be used afterwards; a timed-out read poisons it.
func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := c.ReadMessage(); err == nil {
		t.Fatalf("expected no envelope, got %s", data)
	}
}

func TestServe_RejectsBeforeAttach(t *testing.T) {
	srv, h, _ := newTestStack(t)
	token, _ := auth.GenerateAccessToken("u1", testSecret, time.Hour)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"missing room_id", "/ws?token=" + token, http.StatusBadRequest},
		{"missing token", "/ws?room_id=r1", http.StatusUnauthorized},
		{"invalid token", "/ws?room_id=r1&token=garbage", http.StatusUnauthorized},
		{"unknown room", "/ws?room_id=ghost&token=" + token, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.path, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
	if got := h.OccupantCount("r1"); got != 0 {
		t.Errorf("rejected connections must never register, occupants = %d", got)
	}
}

func TestSession_JoinEchoAndBroadcast(t *testing.T) {
	srv, _, st := newTestStack(t)

	c1 := dialRoom(t, srv, "r1", "u1")
	if env := readEnvelope(t, c1); env.Type != hub.KindUserJoined || env.UserID != "u1" || env.ActiveUsers != 1 {
		t.Fatalf("own join = %+v, want user_joined u1 with 1 active", env)
	}

	c2 := dialRoom(t, srv, "r1", "u2")
	if env := readEnvelope(t, c2); env.Type != hub.KindUserJoined || env.UserID != "u2" || env.ActiveUsers != 2 {
		t.Fatalf("c2 own join = %+v, want user_joined u2 with 2 active", env)
	}
	if env := readEnvelope(t, c1); env.Type != hub.KindUserJoined || env.UserID != "u2" || env.ActiveUsers != 2 {
		t.Fatalf("c1 saw join = %+v, want user_joined u2 with 2 active", env)
	}

	// a third connection joining is announced to both with the new count
	c3 := dialRoom(t, srv, "r1", "u3")
	readEnvelope(t, c3)
	for _, c := range []*websocket.Conn{c1, c2} {
		if env := readEnvelope(t, c); env.Type != hub.KindUserJoined || env.UserID != "u3" || env.ActiveUsers != 3 {
			t.Fatalf("join announcement = %+v, want user_joined u3 with 3 active", env)
		}
	}

	if err := c1.WriteMessage(websocket.TextMessage, []byte(`{"message":"  hello  ","message_type":"text"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var id string
	for _, c := range []*websocket.Conn{c1, c2, c3} {
		env := readEnvelope(t, c)
		if env.Type != hub.KindMessage || env.UserID != "u1" || env.Body != "hello" || env.ID == "" {
			t.Fatalf("message envelope = %+v, want trimmed hello from u1", env)
		}
		id = env.ID
	}
	if st.get(id) == nil {
		t.Error("broadcast message was not persisted")
	}
}

func TestSession_BadFrameDoesNotKillLoop(t *testing.T) {
	srv, _, _ := newTestStack(t)

	c1 := dialRoom(t, srv, "r1", "u1")
	readEnvelope(t, c1)
	c2 := dialRoom(t, srv, "r1", "u2")
	readEnvelope(t, c2)
	readEnvelope(t, c1)

	if err := c1.WriteMessage(websocket.TextMessage, []byte(`{"message":"   "}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readEnvelope(t, c1)
	if env.Type != hub.KindError || env.Code != pipeline.CodeValidationError {
		t.Fatalf("envelope = %+v, want error with code %s", env, pipeline.CodeValidationError)
	}

	// the loop keeps reading after a rejected frame
	if err := c1.WriteMessage(websocket.TextMessage, []byte(`{"message":"still here"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if env := readEnvelope(t, c1); env.Type != hub.KindMessage || env.Body != "still here" {
		t.Fatalf("envelope after rejection = %+v, want message", env)
	}

	// c2 saw the good message but never the error
	if env := readEnvelope(t, c2); env.Type != hub.KindMessage || env.Body != "still here" {
		t.Fatalf("c2 envelope = %+v, want only the valid message", env)
	}
}

func TestSession_PersistenceFailureIsolated(t *testing.T) {
	srv, _, st := newTestStack(t)

	c1 := dialRoom(t, srv, "r1", "u1")
	readEnvelope(t, c1)
	c2 := dialRoom(t, srv, "r1", "u2")
	readEnvelope(t, c2)
	readEnvelope(t, c1)

	st.failWith(errors.New("store down"))
	if err := c1.WriteMessage(websocket.TextMessage, []byte(`{"message":"hi"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := readEnvelope(t, c1)
	if env.Type != hub.KindError || env.Code != pipeline.CodePersistenceError {
		t.Fatalf("envelope = %+v, want error with code %s", env, pipeline.CodePersistenceError)
	}
	expectSilence(t, c2)
}

func TestSession_DetachOnClose(t *testing.T) {
	srv, h, _ := newTestStack(t)

	c1 := dialRoom(t, srv, "r1", "u1")
	readEnvelope(t, c1)
	c2 := dialRoom(t, srv, "r1", "u2")
	readEnvelope(t, c2)
	readEnvelope(t, c1)

	_ = c2.Close()

	env := readEnvelope(t, c1)
	if env.Type != hub.KindUserLeft || env.UserID != "u2" || env.ActiveUsers != 1 {
		t.Fatalf("envelope = %+v, want user_left u2 with 1 active", env)
	}
	// the departure envelope is published after the detach, so the count is
	// already settled
	if got := h.OccupantCount("r1"); got != 1 {
		t.Errorf("OccupantCount(r1) = %d, want 1", got)
	}
}

func TestSession_SenderOrderPreserved(t *testing.T) {
	srv, _, _ := newTestStack(t)

	c1 := dialRoom(t, srv, "r1", "u1")
	readEnvelope(t, c1)
	c2 := dialRoom(t, srv, "r1", "u2")
	readEnvelope(t, c2)
	readEnvelope(t, c1)

	for _, body := range []string{"m1", "m2", "m3"} {
		if err := c1.WriteMessage(websocket.TextMessage, []byte(`{"message":"`+body+`"}`)); err != nil {
			t.Fatalf("write %s: %v", body, err)
		}
	}
	for _, want := range []string{"m1", "m2", "m3"} {
		env := readEnvelope(t, c2)
		if env.Type != hub.KindMessage || env.Body != want {
			t.Fatalf("envelope = %+v, want message %q", env, want)
		}
	}
}
