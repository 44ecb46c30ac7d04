package signal

import (
	"github.com/dkeye/coroom/internal/app/orch"
	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/domain"
	"github.com/dkeye/coroom/internal/metrics"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		RoomID   string `json:"roomId"`
		Username string `json:"username"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	if p.RoomID == "" {
		ctl.sendError(conn, "room_required")
		return
	}
	name, err := domain.NormalizeUsername(p.Username)
	if err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join rejected")
		ctl.sendError(conn, "invalid_name")
		return
	}
	if !ctl.Joins.Allow(sid) {
		metrics.RateLimitHits.Inc()
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(conn, "rate_limited")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.RoomID).Msg("join")
	ctl.Orch.Join(sid, domain.RoomName(p.RoomID), name)
}

// handleLeave takes the member out of its room; the socket stays open.
func (ctl *SignalWSController) handleLeave(
	sid core.SessionID,
	_ *WsSignalConn,
) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Orch.Leave(sid)
}

func (ctl *SignalWSController) handleMutation(
	sid core.SessionID,
	conn *WsSignalConn,
	evt domain.EventType,
	data []byte,
) {
	var p struct {
		RoomID   string          `json:"roomId"`
		Code     string          `json:"code"`
		Language string          `json:"language"`
		Drawing  *domain.Drawing `json:"drawing"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	room := domain.RoomName(p.RoomID)
	if room == "" {
		room, _ = ctl.Orch.Registry.RoomOf(sid)
	}

	var msg any
	switch evt {
	case domain.EventCodeChange:
		msg = orch.CodeMessage{Type: evt, Code: p.Code}
	case domain.EventLanguageChange:
		msg = orch.LanguageMessage{Type: evt, Language: p.Language}
	case domain.EventDrawing:
		if p.Drawing == nil {
			ctl.sendError(conn, "bad_payload")
			return
		}
		msg = orch.DrawingMessage{Type: evt, Drawing: *p.Drawing}
	}
	ctl.Orch.Relay(sid, room, evt, msg)
}

func (ctl *SignalWSController) handleCodeSync(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	var p struct {
		SocketID string `json:"socketId"`
		Code     string `json:"code"`
	}
	if !ctl.decode(conn, data, &p) {
		return
	}
	if !ctl.Orch.SyncCode(sid, core.SessionID(p.SocketID), p.Code) {
		log.Debug().Str("module", "signal").Str("sid", string(sid)).Str("target", p.SocketID).Msg("code-sync not delivered")
	}
}
