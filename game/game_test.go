package game

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/network/nettest"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
	"github.com/wfunc/roomserver/timer"
)

// testConfig starts no timers unless a test asks for them.
func testConfig(mode string) config.GameConfig {
	return config.GameConfig{
		Mode:         mode,
		WinPoints:    3,
		MinPlayers:   2,
		TickInterval: time.Hour,
	}
}

// fixture is a lobby room running one game, with helpers to drive it.
type fixture struct {
	t       *testing.T
	room    *room.Room
	host    room.Host
	timers  *timer.TimerManager
	turn    *TurnGame
	pick    *PickGame
	clients map[string]*session.Session
	conns   map[string]*nettest.Conn
	nextID  int64
}

func newFixture(t *testing.T, cfg config.GameConfig, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		timers:  timer.NewTimerManager(time.Millisecond),
		clients: make(map[string]*session.Session),
		conns:   make(map[string]*nettest.Conn),
	}
	t.Cleanup(f.timers.Stop)

	factory, err := NewFactory(cfg, f.timers, nil, opts...)
	require.NoError(t, err)
	f.room = room.NewRoom(room.LobbyName, nil, func(h room.Host) room.Behavior {
		f.host = h
		b := factory(h)
		switch g := b.(type) {
		case *TurnGame:
			f.turn = g
		case *PickGame:
			f.pick = g
		}
		return b
	})
	t.Cleanup(func() { _ = f.room.Close() })
	return f
}

func (f *fixture) join(name string) *session.Session {
	f.t.Helper()
	f.nextID++
	conn := nettest.NewConn()
	c := session.NewSession(f.nextID, conn)
	c.SetName(name)
	require.NoError(f.t, f.room.Join(c))
	f.clients[name] = c
	f.conns[name] = conn
	return c
}

func (f *fixture) act(name string, action network.Payload) error {
	return f.room.Handle(f.clients[name], action)
}

// inspect runs fn on the room goroutine and waits for it.
func (f *fixture) inspect(fn func()) {
	f.t.Helper()
	done := make(chan struct{})
	require.True(f.t, f.host.Post(func() {
		defer close(done)
		fn()
	}))
	<-done
}

func (f *fixture) session() *Session {
	if f.turn != nil {
		return f.turn.Session
	}
	return f.pick.Session
}

func (f *fixture) phase() string {
	var phase string
	f.inspect(func() { phase = f.session().Phase().String() })
	return phase
}

func (f *fixture) round() int {
	var round int
	f.inspect(func() { round = f.session().Round() })
	return round
}

func (f *fixture) player(name string) Player {
	var p Player
	f.inspect(func() {
		got, ok := f.session().Player(f.clients[name].ID)
		require.True(f.t, ok)
		p = *got
	})
	return p
}

// readyAll marks every named player ready.
func (f *fixture) readyAll(names ...string) {
	f.t.Helper()
	for _, name := range names {
		require.NoError(f.t, f.act(name, network.Ready{}))
	}
}

// gameEvents returns the texts of the GameEvents name received.
func (f *fixture) gameEvents(name string) []string {
	var out []string
	for _, e := range nettest.Filter[network.GameEvent](f.conns[name]) {
		out = append(out, e.Text)
	}
	return out
}

func countPrefix(texts []string, prefix string) int {
	n := 0
	for _, text := range texts {
		if strings.HasPrefix(text, prefix) {
			n++
		}
	}
	return n
}

// fixedResolver always returns the same outcome and counts its calls.
type fixedResolver struct {
	outcome Outcome
	calls   int
}

func (r *fixedResolver) Resolve(*Player, *Player) Outcome {
	r.calls++
	return r.outcome
}
