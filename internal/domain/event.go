package domain

// EventType names a realtime frame on the signal socket.
type EventType string

const (
	EventJoin           EventType = "join"
	EventJoined         EventType = "joined"
	EventLeave          EventType = "leave"
	EventCodeChange     EventType = "code-change"
	EventLanguageChange EventType = "language-change"
	EventDrawing        EventType = "drawing"
	EventCodeSync       EventType = "code-sync"
	EventDisconnected   EventType = "disconnected"
	EventWhoAmI         EventType = "whoami"
	EventPing           EventType = "ping"
	EventPong           EventType = "pong"
	EventError          EventType = "error"
)

// IsPeerMutation reports whether t is relayed to room peers, excluding the sender.
func (t EventType) IsPeerMutation() bool {
	switch t {
	case EventCodeChange, EventLanguageChange, EventDrawing:
		return true
	}
	return false
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Drawing is one stroke on the shared canvas.
type Drawing struct {
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Points []Point `json:"points"`
}
