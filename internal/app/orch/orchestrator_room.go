package orch

import (
	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/domain"
	"github.com/dkeye/coroom/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Join adds sid to room and pushes the full roster to every member, sid included.
func (o *Orchestrator) Join(sid core.SessionID, room domain.RoomName, username string) []domain.Member {
	o.mu.Lock()
	var dropped []core.SessionID
	if from, ok := o.Registry.RoomOf(sid); ok && from != room {
		dropped = append(dropped, o.leaveLocked(sid, from)...)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(from)).Msg("moved out of room")
	}
	roster := o.Registry.Join(sid, room, username)
	res := o.fanOut(domain.EventJoined, o.Registry.Peers(room, ""), JoinedMessage{
		Type:     domain.EventJoined,
		Clients:  roster,
		Username: username,
		SocketID: string(sid),
	})
	dropped = append(dropped, res.Dropped...)
	metrics.LiveRooms.Set(float64(o.Registry.RoomCount()))
	o.mu.Unlock()

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Int("members", len(roster)).Msg("added to room")
	o.applyPolicy(room, dropped)
	return roster
}

// Leave takes sid out of its room without closing the connection.
func (o *Orchestrator) Leave(sid core.SessionID) bool {
	o.mu.Lock()
	room, ok := o.Registry.RoomOf(sid)
	if !ok {
		o.mu.Unlock()
		return false
	}
	dropped := o.leaveLocked(sid, room)
	metrics.LiveRooms.Set(float64(o.Registry.RoomCount()))
	o.mu.Unlock()

	o.applyPolicy(room, dropped)
	return true
}

func (o *Orchestrator) leaveLocked(sid core.SessionID, room domain.RoomName) []core.SessionID {
	m, _ := o.Registry.Member(sid)
	o.Registry.Leave(sid)
	res := o.fanOut(domain.EventDisconnected, o.Registry.Peers(room, sid), DisconnectedMessage{
		Type:     domain.EventDisconnected,
		SocketID: m.SocketID,
		Username: m.Username,
	})
	return res.Dropped
}

// OnDisconnect purges sid and tells its room, using the membership as of the disconnect.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.mu.Lock()
	room, member, known := o.Registry.Unbind(sid)
	var dropped []core.SessionID
	if room != "" {
		res := o.fanOut(domain.EventDisconnected, o.Registry.Peers(room, sid), DisconnectedMessage{
			Type:     domain.EventDisconnected,
			SocketID: member.SocketID,
			Username: member.Username,
		})
		dropped = res.Dropped
	}
	metrics.LiveRooms.Set(float64(o.Registry.RoomCount()))
	o.mu.Unlock()

	if known {
		metrics.ConnectedSockets.Dec()
	}
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("disconnected")
	o.applyPolicy(room, dropped)
}

func (o *Orchestrator) Rooms() []domain.RoomInfo {
	return o.Registry.Rooms()
}
