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

const ModePick = "pick"

// BattlesProcessed closes the list of outcomes of one round.
const BattlesProcessed = "Battle results have been processed."

// PickGame has every player choose at once; the round's choices are then
// fought out pairwise. Losers are eliminated.
type PickGame struct {
	*Session
	resolver Resolver
}

// NewPickGame builds the simultaneous pick variant for one room. The session
// starts as soon as every member is ready.
func NewPickGame(host room.Host, cfg config.GameConfig, timers *timer.TimerManager, metrics *monitor.Monitor, opts ...Option) *PickGame {
	o := buildOptions(opts)
	g := &PickGame{
		Session:  newSession(host, cfg, timers, metrics, ModePick, o.rng),
		resolver: o.resolver,
	}
	if g.resolver == nil {
		g.resolver = NewResolver(cfg.BattlePolicy, o.rng)
	}
	g.autoStart = true
	g.hooks = g
	return g
}

// HandleAction accepts READY and PICK.
func (g *PickGame) HandleAction(c *session.Session, action network.Payload) error {
	switch a := action.(type) {
	case network.Ready:
		return g.toggleReady(c)
	case network.Pick:
		return g.pick(c, a.Choice)
	}
	return room.ErrUnsupportedAction
}

func (g *PickGame) pick(c *session.Session, raw string) error {
	p, ok := g.players[c.ID]
	switch {
	case !ok:
		return ErrNotInRoom
	case g.Phase() != state.Choosing:
		return ErrPhaseMismatch
	case !p.Ready:
		return ErrNotReady
	case p.Eliminated:
		return ErrEliminated
	case p.TookTurn:
		return ErrAlreadyActed
	}
	choice, err := ParseChoice(raw)
	if err != nil {
		return err
	}

	p.Choice = choice
	p.TookTurn = true
	g.host.Broadcast(network.TurnStatus{ClientID: p.ID(), TookTurn: true})
	g.announce("%s picked", p.Name())
	g.OnTurnEnd()
	return nil
}

// MemberRemoved ends the session when at most one participant is left, and
// closes the round early when the departing player was the last one the
// round waited for.
func (g *PickGame) MemberRemoved(c *session.Session) {
	// removal may start a session; judge by the phase c left
	phase := g.Phase()
	p := g.removePlayer(c)
	if p == nil || phase != state.Choosing || !p.Playing() {
		return
	}
	if survivors := g.participants(); len(survivors) <= 1 {
		g.announce("Not enough players left")
		var winner *Player
		if len(survivors) == 1 {
			winner = survivors[0]
		}
		g.endSession(winner)
		return
	}
	g.OnTurnEnd()
}

// OnSessionStart opens the first choosing round.
func (g *PickGame) OnSessionStart() {
	if err := g.setPhase(state.Choosing); err != nil {
		return
	}
	g.announce("Session started with %d players", len(g.participants()))
	g.OnRoundStart()
}

// OnRoundStart clears last round's picks.
func (g *PickGame) OnRoundStart() {
	g.round++
	for _, p := range g.joined {
		p.TookTurn = false
		p.Choice = NoChoice
	}
	g.host.Broadcast(network.ResetTurn{})
	g.announce("Round %d", g.round)
	if g.cfg.RoundSeconds > 0 {
		g.startTimer(&g.roundTimer, network.TimerRound, g.cfg.RoundSeconds, g.roundExpired)
	}
	g.OnTurnStart()
}

// OnTurnStart opens the acting window for every participant.
func (g *PickGame) OnTurnStart() {
	g.announce("Pick rock, paper or scissors")
}

// OnTurnEnd ends the round once every participant has picked.
func (g *PickGame) OnTurnEnd() {
	for _, p := range g.participants() {
		if !p.TookTurn {
			return
		}
	}
	g.OnRoundEnd()
}

// OnRoundEnd fights out the round, then checks the win conditions.
func (g *PickGame) OnRoundEnd() {
	g.cancelTimer(&g.roundTimer, network.TimerRound)
	if err := g.setPhase(state.InProgress); err != nil {
		return
	}

	battles := ProcessBattles(g.participants(), g.resolver)
	for _, b := range battles {
		g.announce("%s", b)
	}
	for _, b := range battles {
		if w := b.Winner(); w != nil {
			g.host.Broadcast(network.PointsUpdate{ClientID: w.ID(), Points: w.Points})
		}
	}
	g.announce(BattlesProcessed)

	if winner := g.leader(); winner != nil && winner.Points >= g.cfg.WinPoints {
		g.endSession(winner)
		return
	}
	survivors := g.participants()
	switch {
	case len(survivors) == 1:
		g.endSession(survivors[0])
		return
	case len(survivors) == 0:
		g.endSession(nil)
		return
	case g.cfg.MaxRounds > 0 && g.round >= g.cfg.MaxRounds:
		g.endSession(g.leader())
		return
	}

	if err := g.setPhase(state.Choosing); err != nil {
		return
	}
	g.OnRoundStart()
}

func (g *PickGame) OnSessionEnd() {}

func (g *PickGame) roundExpired() {
	if g.Phase() != state.Choosing {
		return
	}
	g.announce("Time is up")
	g.OnRoundEnd()
}
