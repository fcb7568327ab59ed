package hub

import "sync"

// Handle is one live client connection as seen by the registry and fanout.
// Send must not block indefinitely; slow or closed connections report an
// error instead.
type Handle interface {
	Send(data []byte) error
	Close() error
}

// Registry is the single source of truth for room membership. It owns two
// maps: room -> attached handles (with the owning user per handle) and
// user -> rooms the user currently occupies. The mutex is only ever held for
// map work, never across a send.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[string]map[Handle]string
	occupancy map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:     make(map[string]map[Handle]string),
		occupancy: make(map[string]map[string]struct{}),
	}
}

// Attach adds the handle to the room and records the user's occupancy.
// Attaching an already-present handle is a no-op.
func (r *Registry) Attach(h Handle, roomID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[Handle]string)
	}
	r.rooms[roomID][h] = userID

	if _, ok := r.occupancy[userID]; !ok {
		r.occupancy[userID] = make(map[string]struct{})
	}
	r.occupancy[userID][roomID] = struct{}{}
}

// Detach removes the handle from the room, pruning empty entries so no
// empty-set keys linger. The user's occupancy of the room is dropped only
// once none of their handles remain in it. Detaching an absent handle is a
// safe no-op. It reports whether the handle was actually removed and how
// many handles remain in the room.
func (r *Registry) Detach(h Handle, roomID, userID string) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	handles, ok := r.rooms[roomID]
	if !ok {
		return false, 0
	}
	if _, ok := handles[h]; !ok {
		return false, len(handles)
	}
	delete(handles, h)
	if len(handles) == 0 {
		delete(r.rooms, roomID)
	}

	stillPresent := false
	for _, owner := range handles {
		if owner == userID {
			stillPresent = true
			break
		}
	}
	if !stillPresent {
		if roomSet, ok := r.occupancy[userID]; ok {
			delete(roomSet, roomID)
			if len(roomSet) == 0 {
				delete(r.occupancy, userID)
			}
		}
	}
	return true, len(handles)
}

// OccupantCount returns the number of handles attached to the room, 0 for an
// unknown room.
func (r *Registry) OccupantCount(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// HandlesIn returns a snapshot of the handles attached to the room. The
// caller may iterate it freely; membership changes after the call are not
// reflected.
func (r *Registry) HandlesIn(roomID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handles := make([]Handle, 0, len(r.rooms[roomID]))
	for h := range r.rooms[roomID] {
		handles = append(handles, h)
	}
	return handles
}

// RoomsOf returns the rooms the user currently has at least one handle in.
func (r *Registry) RoomsOf(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.occupancy[userID]))
	for id := range r.occupancy[userID] {
		rooms = append(rooms, id)
	}
	return rooms
}
