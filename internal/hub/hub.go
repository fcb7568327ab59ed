package hub

import "chatcore/internal/metrics"

// Hub composes the registry with the fanout and owns the presence side
// effects of membership changes.
type Hub struct {
	reg *Registry
	fan *Fanout
}

func New() *Hub {
	reg := NewRegistry()
	return &Hub{reg: reg, fan: NewFanout(reg)}
}

// Join attaches the handle and then announces the join to the room,
// including the joining connection itself, carrying the updated occupant
// count.
func (h *Hub) Join(hd Handle, roomID, userID string) {
	h.reg.Attach(hd, roomID, userID)
	metrics.WsConnections.Inc()
	h.fan.Publish(roomID, NewJoinEnvelope(roomID, userID, h.reg.OccupantCount(roomID)), nil)
}

// Leave detaches the handle and, if the room still has occupants, announces
// the departure with the updated count. Calling Leave twice for the same
// handle is a no-op the second time.
func (h *Hub) Leave(hd Handle, roomID, userID string) {
	removed, remaining := h.reg.Detach(hd, roomID, userID)
	if !removed {
		return
	}
	metrics.WsConnections.Dec()
	if remaining > 0 {
		h.fan.Publish(roomID, NewLeaveEnvelope(roomID, userID, remaining), nil)
	}
}

func (h *Hub) Publish(roomID string, env Envelope, exclude Handle) {
	h.fan.Publish(roomID, env, exclude)
}

func (h *Hub) OccupantCount(roomID string) int { return h.reg.OccupantCount(roomID) }

func (h *Hub) HandlesIn(roomID string) []Handle { return h.reg.HandlesIn(roomID) }
