package game

import (
	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
	"github.com/wfunc/roomserver/state"
	"github.com/wfunc/roomserver/timer"
)

const ModeTurn = "turn"

// TurnGame plays in a fixed, shuffled order. On their turn a player rolls
// for a point; the first to reach the point target wins.
type TurnGame struct {
	*Session
	turns *TurnOrder
	award func() bool
}

// NewTurnGame builds the turn order variant for one room. A ready member
// starts the session with START.
func NewTurnGame(host room.Host, cfg config.GameConfig, timers *timer.TimerManager, metrics *monitor.Monitor, opts ...Option) *TurnGame {
	o := buildOptions(opts)
	g := &TurnGame{
		Session: newSession(host, cfg, timers, metrics, ModeTurn, o.rng),
		turns:   &TurnOrder{index: -1},
		award:   o.award,
	}
	if g.award == nil {
		g.award = func() bool { return g.rng.Intn(4) == 3 }
	}
	g.hooks = g
	return g
}

// TurnOrder exposes the current order, mainly for inspection.
func (g *TurnGame) TurnOrder() *TurnOrder {
	return g.turns
}

// CurrentPlayer is the player whose turn it is, or nil.
func (g *TurnGame) CurrentPlayer() *Player {
	if !g.Phase().Playing() {
		return nil
	}
	return g.turns.Current()
}

// HandleAction accepts READY, START and TURN; anything else is unsupported.
func (g *TurnGame) HandleAction(c *session.Session, action network.Payload) error {
	switch action.(type) {
	case network.Ready:
		return g.toggleReady(c)
	case network.Start:
		return g.start(c)
	case network.Turn:
		return g.takeTurn(c)
	}
	return room.ErrUnsupportedAction
}

func (g *TurnGame) start(c *session.Session) error {
	p, ok := g.players[c.ID]
	if !ok {
		return ErrNotInRoom
	}
	if g.Phase() != state.Ready {
		return ErrPhaseMismatch
	}
	if !p.Ready {
		return ErrNotReady
	}
	return g.startSession()
}

func (g *TurnGame) takeTurn(c *session.Session) error {
	p, ok := g.players[c.ID]
	switch {
	case !ok:
		return ErrNotInRoom
	case g.Phase() != state.InProgress:
		return ErrPhaseMismatch
	case !p.Ready:
		return ErrNotReady
	case g.turns.Current() != p:
		return ErrNotYourTurn
	case p.TookTurn:
		return ErrAlreadyActed
	}

	p.TookTurn = true
	g.host.Broadcast(network.TurnStatus{ClientID: p.ID(), TookTurn: true})
	if g.award() {
		p.Points++
		g.host.Broadcast(network.PointsUpdate{ClientID: p.ID(), Points: p.Points})
		g.announce("%s scored a point", p.Name())
	} else {
		g.announce("%s didn't score", p.Name())
	}
	g.OnTurnEnd()
	return nil
}

// MemberRemoved advances past a departing current player and ends the
// session once fewer than two players remain in the order.
func (g *TurnGame) MemberRemoved(c *session.Session) {
	p := g.removePlayer(c)
	if p == nil || g.Phase() != state.InProgress || !g.turns.Contains(p.ID()) {
		return
	}

	wasCurrent := g.turns.Current() == p
	wasLast := g.turns.IsLast()
	g.turns.Remove(p.ID())

	if g.turns.Len() <= 1 {
		g.announce("Not enough players left")
		var winner *Player
		if g.turns.Len() == 1 {
			winner = g.turns.Players()[0]
		}
		g.endSession(winner)
		return
	}
	if !wasCurrent {
		return
	}
	g.cancelTimer(&g.turnTimer, network.TimerTurn)
	if wasLast {
		g.OnRoundEnd()
	} else {
		g.OnTurnStart()
	}
}

// OnSessionStart shuffles the ready players into the turn order.
func (g *TurnGame) OnSessionStart() {
	g.turns = NewTurnOrder(g.readyPlayers(), g.rng)
	if err := g.setPhase(state.InProgress); err != nil {
		return
	}
	g.announce("Session started with %d players", g.turns.Len())
	g.OnRoundStart()
}

func (g *TurnGame) OnRoundStart() {
	g.round++
	for _, p := range g.joined {
		p.TookTurn = false
	}
	g.host.Broadcast(network.ResetTurn{})
	g.turns.Rewind()
	g.announce("Round %d", g.round)
	if g.cfg.RoundSeconds > 0 {
		g.startTimer(&g.roundTimer, network.TimerRound, g.cfg.RoundSeconds, g.roundExpired)
	}
	g.OnTurnStart()
}

// OnTurnStart advances to the next player and starts the turn timer.
func (g *TurnGame) OnTurnStart() {
	next := g.turns.NextPlayer()
	if next == nil {
		g.log.Error("turn start with an empty turn order")
		g.endSession(nil)
		return
	}
	g.announce("It's %s's turn", next.Name())
	if g.cfg.TurnSeconds > 0 {
		g.startTimer(&g.turnTimer, network.TimerTurn, g.cfg.TurnSeconds, g.turnExpired)
	}
}

// OnTurnEnd ends the session on a winner, otherwise passes the turn or
// closes the round.
func (g *TurnGame) OnTurnEnd() {
	current := g.turns.Current()
	if current == nil {
		g.log.Error("turn end without a current player")
		return
	}
	g.cancelTimer(&g.turnTimer, network.TimerTurn)

	if current.Points >= g.cfg.WinPoints {
		g.endSession(current)
		return
	}
	if g.turns.IsLast() {
		g.OnRoundEnd()
		return
	}
	g.OnTurnStart()
}

// OnRoundEnd ends the session at max_rounds, otherwise starts the next round.
func (g *TurnGame) OnRoundEnd() {
	g.cancelTimer(&g.turnTimer, network.TimerTurn)
	g.cancelTimer(&g.roundTimer, network.TimerRound)
	g.announce("Round %d over", g.round)

	if g.cfg.MaxRounds > 0 && g.round >= g.cfg.MaxRounds {
		g.endSession(g.leader())
		return
	}
	g.OnRoundStart()
}

func (g *TurnGame) OnSessionEnd() {
	g.turns = &TurnOrder{index: -1}
}

func (g *TurnGame) turnExpired() {
	current := g.turns.Current()
	if g.Phase() != state.InProgress || current == nil {
		return
	}
	g.announce("%s ran out of time", current.Name())
	g.OnTurnEnd()
}

func (g *TurnGame) roundExpired() {
	if g.Phase() != state.InProgress {
		return
	}
	g.OnRoundEnd()
}
