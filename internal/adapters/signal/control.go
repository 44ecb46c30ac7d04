package signal

import "github.com/dkeye/coroom/internal/domain"

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	resp := struct {
		Type domain.EventType `json:"type"`
	}{
		Type: domain.EventPong,
	}
	ctl.sendJSON(conn, resp)
}
