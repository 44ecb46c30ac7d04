package app

import (
	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose send queue is full.
type Policy interface {
	OnBackPressure(room domain.RoomName, sid core.SessionID) BackpressureAction
}

// SimplePolicy kicks slow members; a kicked client reconnects and resyncs via code-sync.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(room domain.RoomName, sid core.SessionID) BackpressureAction {
	return KickMember
}
