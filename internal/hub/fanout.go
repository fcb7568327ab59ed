package hub

import (
	"encoding/json"

	"chatcore/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Fanout delivers envelopes to every handle currently in a room. Delivery is
// fire-and-forget: a failed send on one handle never aborts the others and
// never removes the handle from the registry; teardown belongs to the
// handle's own session loop.
type Fanout struct {
	reg *Registry
}

func NewFanout(reg *Registry) *Fanout { return &Fanout{reg: reg} }

// Publish marshals the envelope once and attempts delivery to a snapshot of
// the room's handles, skipping exclude when set. All sends happen outside
// the registry lock.
func (f *Fanout) Publish(roomID string, env Envelope, exclude Handle) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("kind", env.Type).Msg("marshal envelope")
		return
	}
	for _, h := range f.reg.HandlesIn(roomID) {
		if h == exclude {
			continue
		}
		if err := h.Send(data); err != nil {
			metrics.BroadcastFailures.Inc()
			log.Warn().Err(err).Str("room_id", roomID).Str("kind", env.Type).Msg("deliver envelope")
		}
	}
}
