package orch

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/coroom/internal/app"
	"github.com/dkeye/coroom/internal/core"
	"github.com/dkeye/coroom/internal/core/mocks"
	"github.com/dkeye/coroom/internal/domain"
	"go.uber.org/mock/gomock"
)

// recConn records every frame queued to it.
type recConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *recConn) types(t *testing.T) []domain.EventType {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventType, 0, len(c.frames))
	for _, f := range c.frames {
		var env struct {
			Type domain.EventType `json:"type"`
		}
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (c *recConn) last(t *testing.T, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.frames) == 0 {
		t.Fatal("no frames received")
	}
	if err := json.Unmarshal(c.frames[len(c.frames)-1], v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func (c *recConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func newTestOrch() *Orchestrator {
	return &Orchestrator{Registry: app.NewRegistry(), Policy: app.SimplePolicy{}}
}

func connect(o *Orchestrator, sid core.SessionID) *recConn {
	c := &recConn{}
	o.Connect(sid, c)
	return c
}

func TestJoinPushesRosterToEveryMember(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	b := connect(o, "b")

	o.Join("a", "room", "alice")
	o.Join("b", "room", "bob")

	var msgA, msgB JoinedMessage
	a.last(t, &msgA)
	b.last(t, &msgB)

	for _, msg := range []JoinedMessage{msgA, msgB} {
		if msg.Type != domain.EventJoined {
			t.Errorf("Expected joined, got %s", msg.Type)
		}
		if msg.SocketID != "b" || msg.Username != "bob" {
			t.Errorf("Expected joiner b/bob, got %s/%s", msg.SocketID, msg.Username)
		}
		if len(msg.Clients) != 2 {
			t.Errorf("Roster should include the new member, got %v", msg.Clients)
		}
	}
	if a.count() != 2 || b.count() != 1 {
		t.Errorf("Unexpected frame counts a=%d b=%d", a.count(), b.count())
	}
}

func TestRelayExcludesSender(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch()

	sender := mocks.NewMockSignalConnection(ctrl)
	peer := mocks.NewMockSignalConnection(ctrl)
	outsider := mocks.NewMockSignalConnection(ctrl)

	// joined frames
	sender.EXPECT().TrySend(gomock.Any()).Return(nil).Times(2)
	peer.EXPECT().TrySend(gomock.Any()).Return(nil).Times(1)
	outsider.EXPECT().TrySend(gomock.Any()).Return(nil).Times(1)

	o.Connect("p", sender)
	o.Connect("q", peer)
	o.Connect("x", outsider)
	o.Join("p", "room", "pat")
	o.Join("q", "room", "quinn")
	o.Join("x", "elsewhere", "xena")

	var got CodeMessage
	peer.EXPECT().TrySend(gomock.Any()).DoAndReturn(func(f core.Frame) error {
		return json.Unmarshal(f, &got)
	})

	res := o.Relay("p", "room", domain.EventCodeChange, CodeMessage{Type: domain.EventCodeChange, Code: "x := 1"})
	if res.SendTo != 1 {
		t.Errorf("Expected 1 recipient, got %d", res.SendTo)
	}
	if got.Type != domain.EventCodeChange || got.Code != "x := 1" {
		t.Errorf("Unexpected relayed frame %+v", got)
	}
}

func TestRelayDrawingAndLanguage(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "room", "alice")
	o.Join("b", "room", "bob")

	stroke := domain.Drawing{Color: "#000", Width: 2, Points: []domain.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}}
	o.Relay("a", "room", domain.EventDrawing, DrawingMessage{Type: domain.EventDrawing, Drawing: stroke})

	var dm DrawingMessage
	b.last(t, &dm)
	if dm.Type != domain.EventDrawing || len(dm.Drawing.Points) != 2 || dm.Drawing.Color != "#000" {
		t.Errorf("Unexpected drawing frame %+v", dm)
	}

	o.Relay("b", "room", domain.EventLanguageChange, LanguageMessage{Type: domain.EventLanguageChange, Language: "cpp"})
	var lm LanguageMessage
	a.last(t, &lm)
	if lm.Language != "cpp" {
		t.Errorf("Expected cpp, got %q", lm.Language)
	}

	for _, typ := range a.types(t) {
		if typ == domain.EventDrawing {
			t.Error("Sender should not receive its own drawing")
		}
	}
}

func TestRelayIgnoresForeignRoom(t *testing.T) {
	o := newTestOrch()
	connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "one", "alice")
	o.Join("b", "two", "bob")
	before := b.count()

	res := o.Relay("a", "two", domain.EventCodeChange, CodeMessage{Type: domain.EventCodeChange, Code: "evil"})
	if res.SendTo != 0 || b.count() != before {
		t.Error("Relay into a room the sender is not in must be dropped")
	}

	res = o.Relay("a", "one", domain.EventJoined, nil)
	if res.SendTo != 0 {
		t.Error("Non-mutation events must not be relayed")
	}
}

func TestSyncCodeIsPointToPoint(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	c := connect(o, "c")
	o.Join("a", "room", "alice")
	o.Join("b", "room", "bob")
	o.Join("c", "room", "carol")
	beforeA, beforeB := a.count(), b.count()

	if !o.SyncCode("a", "c", "late joiner code") {
		t.Fatal("Expected sync to be delivered")
	}
	var msg CodeMessage
	c.last(t, &msg)
	if msg.Type != domain.EventCodeChange || msg.Code != "late joiner code" {
		t.Errorf("Unexpected sync frame %+v", msg)
	}
	if a.count() != beforeA || b.count() != beforeB {
		t.Error("Sync must reach only the target")
	}

	connect(o, "z")
	o.Join("z", "other", "zed")
	if o.SyncCode("a", "z", "nope") {
		t.Error("Sync to a member of another room must be refused")
	}
	if o.SyncCode("a", "ghost", "nope") {
		t.Error("Sync to an unknown id must be refused")
	}
}

func TestDisconnectNotifiesRoomOnce(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "room", "alice")
	o.Join("b", "room", "bob")

	o.OnDisconnect("b")

	var msg DisconnectedMessage
	a.last(t, &msg)
	if msg.Type != domain.EventDisconnected || msg.SocketID != "b" || msg.Username != "bob" {
		t.Errorf("Unexpected disconnect frame %+v", msg)
	}
	n := 0
	for _, typ := range a.types(t) {
		if typ == domain.EventDisconnected {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Expected exactly one disconnected frame, got %d", n)
	}
	for _, sid := range o.Registry.MembersOf("room") {
		if sid == "b" {
			t.Error("Disconnected member still listed")
		}
	}
	if b.count() != 1 {
		t.Error("Leaving member should not be notified about itself")
	}

	// a second disconnect for the same id is a no-op
	o.OnDisconnect("b")
	if a.count() != 3 {
		t.Errorf("Expected no further frames, got %d", a.count())
	}
}

func TestDisconnectWithoutRoomIsSilent(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	connect(o, "b")
	o.Join("a", "room", "alice")
	before := a.count()

	o.OnDisconnect("b")
	if a.count() != before {
		t.Error("Participant outside any room should not notify anyone")
	}
	if o.Leave("b") {
		t.Error("Leave of unknown id should be a no-op")
	}
}

func TestJoinOtherRoomNotifiesOldRoom(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	connect(o, "b")
	o.Join("a", "one", "alice")
	o.Join("b", "one", "bob")

	o.Join("b", "two", "bob")

	var msg DisconnectedMessage
	a.last(t, &msg)
	if msg.Type != domain.EventDisconnected || msg.SocketID != "b" {
		t.Errorf("Old room should see b leave, got %+v", msg)
	}
	if got := o.Registry.MembersOf("one"); len(got) != 1 {
		t.Errorf("Expected one member left in old room, got %v", got)
	}
}

func TestLeaveKeepsConnection(t *testing.T) {
	o := newTestOrch()
	a := connect(o, "a")
	b := connect(o, "b")
	o.Join("a", "room", "alice")
	o.Join("b", "room", "bob")

	if !o.Leave("b") {
		t.Fatal("Expected leave to succeed")
	}
	var msg DisconnectedMessage
	a.last(t, &msg)
	if msg.SocketID != "b" {
		t.Errorf("Expected b in leave notice, got %+v", msg)
	}
	if _, ok := o.Registry.Conn("b"); !ok {
		t.Error("Leave must not drop the transport")
	}
	if b.closed {
		t.Error("Leave must not close the connection")
	}
}

func TestBackpressureKicksSlowMember(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := newTestOrch()

	fast := connect(o, "fast")
	slow := mocks.NewMockSignalConnection(ctrl)
	o.Connect("slow", slow)

	slow.EXPECT().TrySend(gomock.Any()).Return(nil) // own joined
	o.Join("slow", "room", "sam")
	slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure)
	slow.EXPECT().Close()
	o.Join("fast", "room", "fran")

	if fast.count() != 1 {
		t.Errorf("Fast member should still get its roster, got %d frames", fast.count())
	}
}

func TestJoinedOrderPerRoom(t *testing.T) {
	o := newTestOrch()
	watcher := connect(o, "w")
	o.Join("w", "room", "watch")

	var wg sync.WaitGroup
	for _, sid := range []core.SessionID{"a", "b", "c", "d", "e", "f"} {
		connect(o, sid)
		wg.Add(1)
		go func(sid core.SessionID) {
			defer wg.Done()
			o.Join(sid, "room", string(sid))
		}(sid)
	}
	wg.Wait()

	// every roster the watcher sees is one member larger than the previous one
	watcher.mu.Lock()
	defer watcher.mu.Unlock()
	prev := 0
	for _, f := range watcher.frames {
		var msg JoinedMessage
		if err := json.Unmarshal(f, &msg); err != nil {
			t.Fatal(err)
		}
		if len(msg.Clients) != prev+1 {
			t.Fatalf("Roster went from %d to %d members", prev, len(msg.Clients))
		}
		prev = len(msg.Clients)
	}
	if prev != 7 {
		t.Errorf("Expected final roster of 7, got %d", prev)
	}
}
