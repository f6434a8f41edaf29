package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/network/nettest"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
	"github.com/wfunc/roomserver/state"
)

func startTurnGame(t *testing.T, opts ...Option) *fixture {
	f := newFixture(t, testConfig(ModeTurn), opts...)
	for _, name := range []string{"alice", "bob", "carol"} {
		f.join(name)
	}
	f.readyAll("alice", "bob", "carol")
	require.NoError(t, f.act("alice", network.Start{}))
	return f
}

func (f *fixture) current() string {
	var name string
	f.inspect(func() {
		if p := f.turn.CurrentPlayer(); p != nil {
			name = p.Client.Name()
		}
	})
	return name
}

func (f *fixture) order() []string {
	var names []string
	f.inspect(func() {
		for _, p := range f.turn.TurnOrder().Players() {
			names = append(names, p.Client.Name())
		}
	})
	return names
}

func TestTurnGame_SessionStart(t *testing.T) {
	f := startTurnGame(t)

	assert.Equal(t, state.InProgress.String(), f.phase())
	assert.Equal(t, 1, f.round())
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, f.order())
	assert.Equal(t, f.order()[0], f.current())
	assert.Contains(t, nettest.Filter[network.PhaseChanged](f.conns["bob"]), network.PhaseChanged{Phase: "IN_PROGRESS"})

	var matchID string
	f.inspect(func() { matchID = f.turn.MatchID() })
	assert.NotEmpty(t, matchID)
}

func TestTurnGame_StartNeedsReadyPlayers(t *testing.T) {
	f := newFixture(t, testConfig(ModeTurn))
	f.join("alice")
	f.join("bob")

	assert.ErrorIs(t, f.act("alice", network.Start{}), ErrNotReady)
	f.readyAll("alice")
	assert.ErrorIs(t, f.act("alice", network.Start{}), ErrNotEnoughPlayers)
	assert.Equal(t, state.Ready.String(), f.phase())

	// toggling twice leaves the player not ready
	f.readyAll("bob", "bob")
	assert.False(t, f.player("bob").Ready)
}

func TestTurnGame_GetNextPlayerVisitsEveryone(t *testing.T) {
	f := startTurnGame(t, WithAward(func() bool { return false }))
	order := f.order()

	var visited []string
	for i := 0; i < len(order)+1; i++ {
		name := f.current()
		visited = append(visited, name)
		require.NoError(t, f.act(name, network.Turn{}))
	}

	assert.Equal(t, append(order, order[0]), visited)
	assert.Equal(t, 2, f.round())
}

func TestTurnGame_RejectsInvalidTurns(t *testing.T) {
	f := newFixture(t, testConfig(ModeTurn), WithAward(func() bool { return true }))
	for _, name := range []string{"alice", "bob", "carol"} {
		f.join(name)
	}
	assert.ErrorIs(t, f.act("alice", network.Turn{}), ErrPhaseMismatch)

	f.readyAll("alice", "bob")
	require.NoError(t, f.act("alice", network.Start{}))

	current := f.current()
	other := "alice"
	if current == "alice" {
		other = "bob"
	}
	outsider := session.NewSession(99, nettest.NewConn())

	for _, c := range f.conns {
		c.Reset()
	}
	assert.ErrorIs(t, f.room.Handle(outsider, network.Turn{}), room.ErrNotMember)
	assert.ErrorIs(t, f.act("carol", network.Turn{}), ErrNotReady)
	assert.ErrorIs(t, f.act(other, network.Turn{}), ErrNotYourTurn)

	for _, c := range f.conns {
		assert.Empty(t, c.Events())
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		p := f.player(name)
		assert.Zero(t, p.Points)
		assert.False(t, p.TookTurn)
	}

	require.NoError(t, f.act(current, network.Turn{}))
	assert.Error(t, f.act(current, network.Turn{}))
	assert.Equal(t, 1, f.player(current).Points)
}

func TestTurnGame_WinThresholdEndsSession(t *testing.T) {
	f := startTurnGame(t, WithAward(func() bool { return true }))
	first := f.order()[0]

	for i := 0; i < 20 && f.phase() == state.InProgress.String(); i++ {
		require.NoError(t, f.act(f.current(), network.Turn{}))
	}

	assert.Equal(t, state.Ready.String(), f.phase())
	assert.Equal(t, 0, f.round())
	for _, name := range []string{"alice", "bob", "carol"} {
		p := f.player(name)
		assert.Zero(t, p.Points)
		assert.False(t, p.Ready)
	}

	events := f.conns["alice"].Events()
	end := -1
	for i, e := range events {
		if e == network.Payload(network.PhaseChanged{Phase: "ENDED"}) {
			end = i
		}
	}
	require.GreaterOrEqual(t, end, 0)
	tail := events[end:]
	require.Len(t, tail, 9)
	assert.Equal(t, network.GameEvent{Text: f.clients[first].DisplayName() + " wins the game!"}, tail[1])
	assert.Contains(t, tail[2].(network.GameEvent).Text, "Scoreboard")
	assert.Equal(t, network.ResetReady{}, tail[3])
	assert.Equal(t, network.ResetTurn{}, tail[4])
	for _, e := range tail[5:8] {
		assert.Zero(t, e.(network.PointsUpdate).Points)
	}
	assert.Equal(t, network.PhaseChanged{Phase: "READY"}, tail[8])
}

func TestTurnGame_RemovingCurrentPlayerAdvances(t *testing.T) {
	f := startTurnGame(t, WithAward(func() bool { return false }))
	order := f.order()
	current := f.current()

	require.NoError(t, f.room.Leave(f.clients[current]))

	next := f.current()
	assert.NotEqual(t, current, next)
	assert.Contains(t, order, next)
	assert.Equal(t, order[1], next)
	assert.Equal(t, state.InProgress.String(), f.phase())
	assert.Len(t, f.order(), 2)

	require.NoError(t, f.room.Leave(f.clients[next]))
	assert.Equal(t, state.Ready.String(), f.phase())
	assert.Contains(t, f.gameEvents(order[2]), f.clients[order[2]].DisplayName()+" wins the game!")
}

func TestTurnGame_RemovingLastPlayerOfRoundStartsNextRound(t *testing.T) {
	f := newFixture(t, testConfig(ModeTurn), WithAward(func() bool { return false }))
	for _, name := range []string{"alice", "bob", "carol", "dave"} {
		f.join(name)
	}
	f.readyAll("alice", "bob", "carol", "dave")
	require.NoError(t, f.act("alice", network.Start{}))
	order := f.order()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.act(f.current(), network.Turn{}))
	}
	require.Equal(t, order[3], f.current())

	require.NoError(t, f.room.Leave(f.clients[order[3]]))

	assert.Equal(t, 2, f.round())
	assert.Equal(t, order[0], f.current())
}

func TestTurnGame_RemovingOtherPlayerKeepsTurn(t *testing.T) {
	f := startTurnGame(t, WithAward(func() bool { return false }))
	order := f.order()

	require.NoError(t, f.room.Leave(f.clients[order[2]]))

	assert.Equal(t, order[0], f.current())
	require.NoError(t, f.act(order[0], network.Turn{}))
	assert.Equal(t, order[1], f.current())
}

func TestTurnGame_NewcomerGetsCatchUpFirst(t *testing.T) {
	f := startTurnGame(t)
	dave := f.join("dave")
	events := f.conns["dave"].Events()

	live := -1
	for i, e := range events {
		if j, ok := e.(network.ClientJoined); ok && !j.Quiet {
			live = i
			assert.Equal(t, dave.ID, j.ClientID)
		}
	}
	require.Equal(t, len(events)-1, live)

	assert.Equal(t, network.PhaseChanged{Phase: "IN_PROGRESS"}, events[4])
	ready := nettest.Filter[network.ReadyStatus](f.conns["dave"])
	require.Len(t, ready, 3)
	for _, r := range ready {
		assert.True(t, r.Quiet)
		assert.True(t, r.Ready)
	}
	assert.Len(t, nettest.Filter[network.TurnStatus](f.conns["dave"]), 3)
	assert.Len(t, nettest.Filter[network.PointsUpdate](f.conns["dave"]), 3)

	// dave is not part of this session
	assert.ErrorIs(t, f.act("dave", network.Turn{}), ErrNotReady)
	assert.ErrorIs(t, f.act("dave", network.Ready{}), ErrPhaseMismatch)
}

func TestTurnGame_EmptyRoomEndsSession(t *testing.T) {
	cfg := testConfig(ModeTurn)
	cfg.RoundSeconds = 100
	cfg.TurnSeconds = 100
	f := newFixture(t, cfg)
	f.join("alice")
	f.join("bob")
	f.readyAll("alice", "bob")
	require.NoError(t, f.act("bob", network.Start{}))
	require.Equal(t, 2, f.timers.Pending())

	require.NoError(t, f.room.Leave(f.clients["alice"]))
	assert.Equal(t, state.Ready.String(), f.phase())
	require.NoError(t, f.room.Leave(f.clients["bob"]))

	assert.Equal(t, state.Ready.String(), f.phase())
	assert.Zero(t, f.timers.Pending())
}

func TestTurnGame_TimerReplacementReportsClearedOnce(t *testing.T) {
	cfg := testConfig(ModeTurn)
	cfg.TurnSeconds = 100
	f := newFixture(t, cfg, WithAward(func() bool { return false }))
	f.join("alice")
	f.join("bob")
	f.readyAll("alice", "bob")
	require.NoError(t, f.act("alice", network.Start{}))

	turnTicks := func() []int {
		var out []int
		for _, tick := range nettest.Filter[network.TimerTick](f.conns["alice"]) {
			if tick.Kind == network.TimerTurn {
				out = append(out, tick.Seconds)
			}
		}
		return out
	}
	assert.Equal(t, []int{100}, turnTicks())

	require.NoError(t, f.act(f.current(), network.Turn{}))

	assert.Equal(t, []int{100, network.TimerCleared, 100}, turnTicks())
	assert.Equal(t, 1, f.timers.Pending())
}

func TestTurnGame_TurnTimerExpiryPassesTurn(t *testing.T) {
	cfg := testConfig(ModeTurn)
	cfg.TurnSeconds = 2
	cfg.TickInterval = 10 * time.Millisecond
	f := newFixture(t, cfg)
	f.join("alice")
	f.join("bob")
	f.readyAll("alice", "bob")
	require.NoError(t, f.act("alice", network.Start{}))
	first := f.current()

	require.Eventually(t, func() bool {
		return f.current() != first
	}, time.Second, 5*time.Millisecond)

	events := f.gameEvents("alice")
	assert.Contains(t, events, f.clients[first].DisplayName()+" ran out of time")
	assert.Contains(t, nettest.Filter[network.TimerTick](f.conns["alice"]), network.TimerTick{Kind: network.TimerTurn, Seconds: 1})
}
