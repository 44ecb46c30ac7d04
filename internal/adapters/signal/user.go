package signal

import (
	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/domain"
)

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type     domain.EventType `json:"type"`
		SocketID string           `json:"socketId"`
		Username string           `json:"username,omitempty"`
		RoomID   domain.RoomName  `json:"roomId,omitempty"`
	}{
		Type:     domain.EventWhoAmI,
		SocketID: string(sid),
	}
	if m, ok := ctl.Orch.Registry.Member(sid); ok {
		resp.Username = m.Username
	}
	if room, ok := ctl.Orch.Registry.RoomOf(sid); ok {
		resp.RoomID = room
	}
	ctl.sendJSON(conn, resp)
}
