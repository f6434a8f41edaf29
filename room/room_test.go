package room

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/network/nettest"
	"github.com/wfunc/roomserver/session"
)

// newTestSession creates a session backed by a recording connection.
func newTestSession(id int64, name string) (*session.Session, *nettest.Conn) {
	conn := nettest.NewConn()
	s := session.NewSession(id, conn)
	s.SetName(name)
	return s, conn
}

// panicBehavior blows up on every action.
type panicBehavior struct{ noopBehavior }

func (panicBehavior) HandleAction(*session.Session, network.Payload) error {
	panic("boom")
}

// recordingBehavior remembers the hook calls it receives.
type recordingBehavior struct {
	added   []int64
	removed []int64
	closed  bool
	host    Host
}

func (b *recordingBehavior) MemberAdded(c *session.Session) {
	b.added = append(b.added, c.ID)
	b.host.Send(c, network.GameEvent{Text: "welcome"})
}
func (b *recordingBehavior) MemberRemoved(c *session.Session) { b.removed = append(b.removed, c.ID) }
func (b *recordingBehavior) Close()                           { b.closed = true }
func (b *recordingBehavior) HandleAction(c *session.Session, action network.Payload) error {
	b.host.Broadcast(action)
	return nil
}

func TestRoom_JoinSendsCatchUpBeforeLiveEvents(t *testing.T) {
	r := NewRoom("arena", nil, nil)
	a, connA := newTestSession(1, "alice")
	b, connB := newTestSession(2, "bob")
	c, connC := newTestSession(3, "carol")

	require.NoError(t, r.Join(a))
	require.NoError(t, r.Join(b))
	require.NoError(t, r.Join(c))

	assert.Equal(t, []network.Payload{
		network.ResetMembers{Room: "arena"},
		network.ClientJoined{ClientID: 1, Name: "alice", Room: "arena", Quiet: true},
		network.ClientJoined{ClientID: 2, Name: "bob", Room: "arena", Quiet: true},
		network.ClientJoined{ClientID: 3, Name: "carol", Room: "arena"},
	}, connC.Events())

	joinedA := nettest.Filter[network.ClientJoined](connA)
	require.Len(t, joinedA, 3)
	for _, e := range joinedA {
		assert.False(t, e.Quiet)
	}
	assert.Len(t, nettest.Filter[network.ClientJoined](connB), 3)
	assert.Equal(t, 3, r.Count())
}

func TestRoom_JoinTwiceIsRejected(t *testing.T) {
	r := NewRoom("arena", nil, nil)
	a, _ := newTestSession(1, "alice")

	require.NoError(t, r.Join(a))
	assert.ErrorIs(t, r.Join(a), ErrAlreadyMember)
	assert.Equal(t, 1, r.Count())
}

func TestRoom_LeaveNotifiesOthersOnly(t *testing.T) {
	r := NewRoom(LobbyName, nil, nil)
	a, connA := newTestSession(1, "alice")
	b, connB := newTestSession(2, "bob")
	require.NoError(t, r.Join(a))
	require.NoError(t, r.Join(b))
	connA.Reset()
	connB.Reset()

	require.NoError(t, r.Leave(b))

	assert.Equal(t, []network.Payload{
		network.ClientLeft{ClientID: 2, Name: "bob", Room: LobbyName},
	}, connA.Events())
	assert.Empty(t, connB.Events())
	assert.Empty(t, b.Room())
	assert.False(t, connB.Closed())
	assert.ErrorIs(t, r.Leave(b), ErrNotMember)
}

func TestRoom_BroadcastEvictsFailedRecipient(t *testing.T) {
	r := NewRoom(LobbyName, nil, nil)
	a, connA := newTestSession(1, "alice")
	b, connB := newTestSession(2, "bob")
	c, connC := newTestSession(3, "carol")
	for _, s := range []*session.Session{a, b, c} {
		require.NoError(t, r.Join(s))
	}
	connA.Reset()
	connC.Reset()
	connB.Fail()

	require.NoError(t, r.Broadcast(network.GameEvent{Text: "hello"}))

	want := []network.Payload{
		network.GameEvent{Text: "hello"},
		network.Disconnected{ClientID: 2},
	}
	assert.Equal(t, want, connA.Events())
	assert.Equal(t, want, connC.Events())
	assert.True(t, connB.Closed())
	assert.Equal(t, 2, r.Count())
}

func TestRoom_EvictionCascadesOncePerClient(t *testing.T) {
	r := NewRoom(LobbyName, nil, nil)
	a, connA := newTestSession(1, "alice")
	b, connB := newTestSession(2, "bob")
	c, connC := newTestSession(3, "carol")
	for _, s := range []*session.Session{a, b, c} {
		require.NoError(t, r.Join(s))
	}
	connA.Reset()
	connB.Fail()
	// carol receives the broadcast but not bob's removal notice
	connC.FailAfter(1)

	require.NoError(t, r.Broadcast(network.GameEvent{Text: "hello"}))

	assert.Equal(t, []network.Payload{
		network.GameEvent{Text: "hello"},
		network.Disconnected{ClientID: 2},
		network.Disconnected{ClientID: 3},
	}, connA.Events())
	assert.True(t, connB.Closed())
	assert.True(t, connC.Closed())

	info, err := r.Info()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice#1"}, info.Members)
}

func TestRoom_FailedJoinIsRemovedSilently(t *testing.T) {
	r := NewRoom(LobbyName, nil, nil)
	a, connA := newTestSession(1, "alice")
	b, connB := newTestSession(2, "bob")
	require.NoError(t, r.Join(a))
	connA.Reset()
	connB.Fail()

	require.NoError(t, r.Join(b))

	assert.Empty(t, connA.Events())
	assert.Equal(t, 1, r.Count())
	assert.True(t, connB.Closed())
}

func TestRoom_MembershipMatchesReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRoom(LobbyName, nil, nil)

	const clients = 8
	sessions := make([]*session.Session, clients)
	conns := make([]*nettest.Conn, clients)
	for i := range sessions {
		sessions[i], conns[i] = newTestSession(int64(i+1), "c")
	}
	// every fourth client has a dead connection
	for i := 3; i < clients; i += 4 {
		conns[i].Fail()
	}

	expected := map[int64]bool{}
	for step := 0; step < 200; step++ {
		i := rng.Intn(clients)
		s := sessions[i]
		if rng.Intn(2) == 0 {
			err := r.Join(s)
			if expected[s.ID] {
				assert.ErrorIs(t, err, ErrAlreadyMember)
				continue
			}
			require.NoError(t, err)
			if !conns[i].Closed() {
				expected[s.ID] = true
			}
		} else {
			err := r.Leave(s)
			if !expected[s.ID] {
				assert.ErrorIs(t, err, ErrNotMember)
				continue
			}
			require.NoError(t, err)
			delete(expected, s.ID)
		}
	}

	info, err := r.Info()
	require.NoError(t, err)

	var want []string
	for _, s := range sessions {
		if expected[s.ID] {
			want = append(want, s.DisplayName())
		}
	}
	got := append([]string(nil), info.Members...)
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), r.Count())
}

func TestRoom_DisconnectNotifiesSelfAndOthers(t *testing.T) {
	r := NewRoom(LobbyName, nil, nil)
	a, connA := newTestSession(1, "alice")
	b, connB := newTestSession(2, "bob")
	require.NoError(t, r.Join(a))
	require.NoError(t, r.Join(b))
	connA.Reset()
	connB.Reset()

	require.NoError(t, r.Disconnect(b))

	assert.Equal(t, []network.Payload{network.Disconnected{ClientID: 2}}, connA.Events())
	assert.Equal(t, []network.Payload{network.Disconnected{ClientID: 2}}, connB.Events())
	assert.True(t, connB.Closed())
}

func TestRoom_HandleRoutesToBehavior(t *testing.T) {
	var behavior *recordingBehavior
	r := NewRoom(LobbyName, nil, func(h Host) Behavior {
		behavior = &recordingBehavior{host: h}
		return behavior
	})
	a, connA := newTestSession(1, "alice")
	outsider, _ := newTestSession(9, "mallory")
	require.NoError(t, r.Join(a))

	// MemberAdded runs between the catch-up and the live join
	assert.Equal(t, []network.Payload{
		network.ResetMembers{Room: LobbyName},
		network.GameEvent{Text: "welcome"},
		network.ClientJoined{ClientID: 1, Name: "alice", Room: LobbyName},
	}, connA.Events())

	require.NoError(t, r.Handle(a, network.Chat{SenderID: 1, Text: "hi"}))
	assert.Contains(t, connA.Events(), network.Payload(network.Chat{SenderID: 1, Text: "hi"}))
	assert.ErrorIs(t, r.Handle(outsider, network.Ready{}), ErrNotMember)

	require.NoError(t, r.Leave(a))
	require.NoError(t, r.Close())
	assert.Equal(t, []int64{1}, behavior.added)
	assert.Equal(t, []int64{1}, behavior.removed)
	assert.True(t, behavior.closed)
}

func TestRoom_NoopBehaviorRejectsActions(t *testing.T) {
	r := NewRoom(LobbyName, nil, nil)
	a, _ := newTestSession(1, "alice")
	require.NoError(t, r.Join(a))

	assert.ErrorIs(t, r.Handle(a, network.Ready{}), ErrUnsupportedAction)
}

func TestRoom_PanicIsContained(t *testing.T) {
	r := NewRoom(LobbyName, nil, func(Host) Behavior { return panicBehavior{} })
	a, _ := newTestSession(1, "alice")
	require.NoError(t, r.Join(a))

	assert.ErrorIs(t, r.Handle(a, network.Ready{}), ErrInternal)
	assert.True(t, r.Running())
	assert.Equal(t, 1, r.Count())
}

func TestRoom_PostRunsOnRoomGoroutine(t *testing.T) {
	var h Host
	r := NewRoom(LobbyName, nil, func(host Host) Behavior {
		h = host
		return noopBehavior{}
	})
	a, connA := newTestSession(1, "alice")
	require.NoError(t, r.Join(a))
	connA.Reset()

	require.True(t, h.Post(func() { h.Broadcast(network.GameEvent{Text: "tick"}) }))
	require.Eventually(t, func() bool {
		return len(connA.Events()) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Close())
	<-r.Done()
	assert.False(t, h.Post(func() {}))
}

func TestRoom_ClosedRoomRejectsMembership(t *testing.T) {
	r := NewRoom("arena", nil, nil)
	a, _ := newTestSession(1, "alice")
	require.NoError(t, r.Join(a))
	require.NoError(t, r.Leave(a))

	<-r.Done()
	assert.False(t, r.Running())
	assert.ErrorIs(t, r.Join(a), ErrRoomClosed)
	assert.True(t, errors.Is(r.Leave(a), ErrRoomClosed))
}
