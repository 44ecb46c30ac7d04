package orch

import "github.com/dkeye/coroom/internal/domain"

// Outgoing frames. Field names follow the browser client.

type JoinedMessage struct {
	Type     domain.EventType `json:"type"`
	Clients  []domain.Member  `json:"clients"`
	Username string           `json:"username"`
	SocketID string           `json:"socketId"`
}

type CodeMessage struct {
	Type domain.EventType `json:"type"`
	Code string           `json:"code"`
}

type LanguageMessage struct {
	Type     domain.EventType `json:"type"`
	Language string           `json:"language"`
}

type DrawingMessage struct {
	Type    domain.EventType `json:"type"`
	Drawing domain.Drawing   `json:"drawing"`
}

type DisconnectedMessage struct {
	Type     domain.EventType `json:"type"`
	SocketID string           `json:"socketId"`
	Username string           `json:"username"`
}
