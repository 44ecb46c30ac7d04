package orch

import (
	"encoding/json"
	"sync"

	"github.com/dkeye/coroom/internal/app"
	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/domain"
	"github.com/dkeye/coroom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator routes membership and mutation events to room members.
// Membership changes and their notifications are applied under one lock,
// so every member sees events of a room in the order the registry accepted them.
type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy

	mu sync.RWMutex
}

func (o *Orchestrator) Connect(sid core.SessionID, conn core.SignalConnection) {
	o.Registry.BindSignal(sid, conn)
	metrics.ConnectedSockets.Inc()
}

// Relay sends a peer mutation from sid to everyone else in room.
// Events for a room the sender is not in are dropped.
func (o *Orchestrator) Relay(sid core.SessionID, room domain.RoomName, evt domain.EventType, v any) core.PublishResult {
	if !evt.IsPeerMutation() {
		log.Warn().Str("module", "orch").Str("type", string(evt)).Msg("not a relayable event")
		return core.PublishResult{}
	}

	o.mu.RLock()
	current, ok := o.Registry.RoomOf(sid)
	if !ok || current != room {
		o.mu.RUnlock()
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("relay outside own room ignored")
		return core.PublishResult{}
	}
	res := o.fanOut(evt, o.Registry.Peers(room, sid), v)
	o.mu.RUnlock()

	o.applyPolicy(room, res.Dropped)
	return res
}

// SyncCode delivers code to a single member of the sender's room.
func (o *Orchestrator) SyncCode(from, to core.SessionID, code string) bool {
	o.mu.RLock()
	fromRoom, ok := o.Registry.RoomOf(from)
	if !ok {
		o.mu.RUnlock()
		return false
	}
	toRoom, ok := o.Registry.RoomOf(to)
	conn, connected := o.Registry.Conn(to)
	if !ok || toRoom != fromRoom || !connected {
		o.mu.RUnlock()
		log.Debug().Str("module", "orch").Str("sid", string(from)).Str("target", string(to)).Msg("code-sync target not in room")
		return false
	}
	res := o.fanOut(domain.EventCodeSync, []app.Peer{{SID: to, Conn: conn}},
		CodeMessage{Type: domain.EventCodeChange, Code: code})
	o.mu.RUnlock()

	o.applyPolicy(fromRoom, res.Dropped)
	return res.SendTo == 1
}

func (o *Orchestrator) fanOut(evt domain.EventType, peers []app.Peer, v any) core.PublishResult {
	res := core.PublishResult{}
	if len(peers) == 0 {
		return res
	}
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("type", string(evt)).Msg("encode frame")
		return res
	}
	for _, p := range peers {
		if err := p.Conn.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, p.SID)
			continue
		}
		res.SendTo++
	}
	metrics.EventsRelayed.WithLabelValues(string(evt)).Add(float64(res.SendTo))
	if len(res.Dropped) > 0 {
		metrics.DroppedFrames.WithLabelValues(string(evt)).Add(float64(len(res.Dropped)))
	}
	log.Debug().Str("module", "orch").Str("type", string(evt)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (o *Orchestrator) applyPolicy(room domain.RoomName, dropped []core.SessionID) {
	if o.Policy == nil {
		return
	}
	for _, slow := range dropped {
		switch o.Policy.OnBackPressure(room, slow) {
		case app.KickMember:
			if conn, ok := o.Registry.Conn(slow); ok {
				log.Warn().Str("module", "orch").Str("sid", string(slow)).Str("room", string(room)).Msg("kicking slow member")
				conn.Close()
			}
		case app.DropFrame, app.NoAction:
		}
	}
}
