package app

import (
	"sort"
	"sync"

	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	RoomName domain.RoomName
	Username string
	Conn     core.SignalConnection
	seq      uint64
}

// Registry is the in-memory map of rooms to participants.
// A room exists exactly while it has at least one member.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	rooms    map[domain.RoomName]map[core.SessionID]struct{}
	seq      uint64
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		rooms:    make(map[domain.RoomName]map[core.SessionID]struct{}),
	}
}

// Peer is a fan-out target.
type Peer struct {
	SID  core.SessionID
	Conn core.SignalConnection
}

// BindSignal attaches the transport of a freshly connected participant.
func (r *Registry) BindSignal(sid core.SessionID, conn core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.Conn = conn
		return
	}
	r.sessions[sid] = &sessionEntry{Conn: conn}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
}

// Join puts sid into room under username and returns the post-join roster.
// A participant that is already in another room is moved out of it first.
func (r *Registry) Join(sid core.SessionID, room domain.RoomName, username string) []domain.Member {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sid]
	if !ok {
		e = &sessionEntry{}
		r.sessions[sid] = e
	}
	if e.RoomName != "" && e.RoomName != room {
		r.removeFromRoomLocked(sid, e)
	}
	e.Username = username
	if e.RoomName != room {
		r.seq++
		e.seq = r.seq
		e.RoomName = room
		members, ok := r.rooms[room]
		if !ok {
			members = make(map[core.SessionID]struct{})
			r.rooms[room] = members
			log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("room created")
		}
		members[sid] = struct{}{}
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Str("username", username).Msg("joined room")
	return r.rosterLocked(room)
}

// Leave removes sid from its room and returns the vacated room.
// Leaving while not in a room is a no-op.
func (r *Registry) Leave(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomName == "" {
		return "", false
	}
	room := e.RoomName
	r.removeFromRoomLocked(sid, e)
	return room, true
}

// Unbind forgets sid entirely. The returned room and member are the state
// before the purge; room is empty when sid was not in one.
func (r *Registry) Unbind(sid core.SessionID) (domain.RoomName, domain.Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", domain.Member{}, false
	}
	room := e.RoomName
	m := domain.Member{SocketID: string(sid), Username: e.Username}
	if room != "" {
		r.removeFromRoomLocked(sid, e)
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return room, m, true
}

func (r *Registry) removeFromRoomLocked(sid core.SessionID, e *sessionEntry) {
	room := e.RoomName
	e.RoomName = ""
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("left room")
	if len(members) == 0 {
		delete(r.rooms, room)
		log.Info().Str("module", "app.registry").Str("room", string(room)).Msg("room closed (empty)")
	}
}

// MembersOf returns the ids in room, empty when the room is unknown.
func (r *Registry) MembersOf(room domain.RoomName) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]core.SessionID, 0, len(members))
	for sid := range members {
		out = append(out, sid)
	}
	return out
}

// Roster returns the members of room in join order.
func (r *Registry) Roster(room domain.RoomName) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rosterLocked(room)
}

func (r *Registry) rosterLocked(room domain.RoomName) []domain.Member {
	members := r.rooms[room]
	sids := make([]core.SessionID, 0, len(members))
	for sid := range members {
		sids = append(sids, sid)
	}
	sort.Slice(sids, func(i, j int) bool {
		return r.sessions[sids[i]].seq < r.sessions[sids[j]].seq
	})
	out := make([]domain.Member, 0, len(sids))
	for _, sid := range sids {
		out = append(out, domain.Member{SocketID: string(sid), Username: r.sessions[sid].Username})
	}
	return out
}

func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.RoomName == "" {
		return "", false
	}
	return e.RoomName, true
}

func (r *Registry) Member(sid core.SessionID) (domain.Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.Member{}, false
	}
	return domain.Member{SocketID: string(sid), Username: e.Username}, true
}

func (r *Registry) Conn(sid core.SessionID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Conn == nil {
		return nil, false
	}
	return e.Conn, true
}

// Peers lists the connected members of room, skipping except.
func (r *Registry) Peers(room domain.RoomName, except core.SessionID) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]Peer, 0, len(members))
	for sid := range members {
		if sid == except {
			continue
		}
		if e := r.sessions[sid]; e.Conn != nil {
			out = append(out, Peer{SID: sid, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) Rooms() []domain.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(r.rooms))
	for name, members := range r.rooms {
		out = append(out, domain.RoomInfo{Name: name, MemberCount: len(members)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
