package game

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
	"github.com/wfunc/roomserver/state"
	"github.com/wfunc/roomserver/timer"
	"go.uber.org/zap"
)

// Hooks are the lifecycle steps of one game variant. The embedded Session
// drives OnSessionStart and OnSessionEnd; the variant drives the rest. All
// hooks run on the room goroutine.
type Hooks interface {
	OnSessionStart()
	OnRoundStart()
	OnTurnStart()
	OnTurnEnd()
	OnRoundEnd()
	OnSessionEnd()
}

// Option customizes a game, mostly for tests.
type Option func(*options)

type options struct {
	rng      *rand.Rand
	resolver Resolver
	award    func() bool
}

// WithRand fixes the random source used for shuffling and outcomes.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithResolver overrides the battle resolver of the pick game.
func WithResolver(r Resolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithAward overrides the point roll of the turn game.
func WithAward(award func() bool) Option {
	return func(o *options) { o.award = award }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}

// Session is the state shared by every game variant: players, phase, round
// counter, timers and the ready check. It is not safe for concurrent use; the
// room serializes every call.
type Session struct {
	host    room.Host
	cfg     config.GameConfig
	timers  *timer.TimerManager
	metrics *monitor.Monitor
	log     *zap.SugaredLogger
	rng     *rand.Rand
	hooks   Hooks
	mode    string

	machine *state.BaseStateMachine
	players map[int64]*Player
	joined  []*Player
	round   int
	matchID string

	// start the session as soon as every member is ready
	autoStart bool
	// the room is shutting down; no new timers or sessions
	closed bool

	readyTimer *timer.Countdown
	roundTimer *timer.Countdown
	turnTimer  *timer.Countdown
}

func newSession(host room.Host, cfg config.GameConfig, timers *timer.TimerManager, metrics *monitor.Monitor, mode string, rng *rand.Rand) *Session {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.MinPlayers < 1 {
		cfg.MinPlayers = 1
	}
	if cfg.WinPoints < 1 {
		cfg.WinPoints = 3
	}
	s := &Session{
		host:    host,
		cfg:     cfg,
		timers:  timers,
		metrics: metrics,
		log:     host.Logger().With("mode", mode),
		rng:     rng,
		mode:    mode,
		players: make(map[int64]*Player),
	}
	s.machine = state.NewSessionMachine(func(from, to state.Phase) {
		s.log.Infof("phase %s -> %s", from, to)
		s.host.Broadcast(network.PhaseChanged{Phase: to.String()})
	})
	return s
}

func (s *Session) Phase() state.Phase {
	return s.machine.GetCurrentState()
}

func (s *Session) Round() int {
	return s.round
}

// MatchID identifies the current or last session; empty before the first.
func (s *Session) MatchID() string {
	return s.matchID
}

func (s *Session) Player(id int64) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players returns every player in join order.
func (s *Session) Players() []*Player {
	out := make([]*Player, len(s.joined))
	copy(out, s.joined)
	return out
}

func (s *Session) readyPlayers() []*Player {
	var out []*Player
	for _, p := range s.joined {
		if p.Ready {
			out = append(out, p)
		}
	}
	return out
}

// participants are the players still in the running session.
func (s *Session) participants() []*Player {
	var out []*Player
	for _, p := range s.joined {
		if p.Playing() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) setPhase(to state.Phase) error {
	if err := s.machine.ChangeState(to); err != nil {
		s.log.Errorf("phase change failed: %v", err)
		return err
	}
	return nil
}

func (s *Session) announce(format string, args ...interface{}) {
	s.host.Broadcast(network.GameEvent{Text: fmt.Sprintf(format, args...)})
}

// --- membership ---

// MemberAdded syncs the newcomer with the current phase, every known
// player's state and the live timers, then registers it.
func (s *Session) MemberAdded(c *session.Session) {
	s.host.Send(c, network.PhaseChanged{Phase: s.Phase().String()})
	for _, p := range s.joined {
		s.host.Send(c, network.ReadyStatus{ClientID: p.ID(), Ready: p.Ready, Quiet: true})
		s.host.Send(c, network.TurnStatus{ClientID: p.ID(), TookTurn: p.TookTurn, Quiet: true})
		s.host.Send(c, network.PointsUpdate{ClientID: p.ID(), Points: p.Points})
	}
	for _, t := range []struct {
		kind network.TimerKind
		t    *timer.Countdown
	}{
		{network.TimerReady, s.readyTimer},
		{network.TimerRound, s.roundTimer},
		{network.TimerTurn, s.turnTimer},
	} {
		if t.t != nil {
			s.host.Send(c, network.TimerTick{Kind: t.kind, Seconds: t.t.Remaining()})
		}
	}

	p := newPlayer(c)
	s.players[c.ID] = p
	s.joined = append(s.joined, p)
}

// removePlayer forgets c and returns its player, or nil if it had none. An
// empty room cancels every timer and force-ends the session.
func (s *Session) removePlayer(c *session.Session) *Player {
	p, ok := s.players[c.ID]
	if !ok {
		return nil
	}
	delete(s.players, c.ID)
	for i, q := range s.joined {
		if q == p {
			s.joined = append(s.joined[:i:i], s.joined[i+1:]...)
			break
		}
	}

	if len(s.players) == 0 {
		s.cancelTimers()
		if s.Phase() != state.Ready {
			s.log.Info("room emptied, ending session")
			s.endSession(nil)
		}
		return p
	}
	if s.Phase() != state.Ready {
		return p
	}
	if len(s.readyPlayers()) == 0 {
		s.cancelTimer(&s.readyTimer, network.TimerReady)
		return p
	}
	// the departing member may have been the only one holding the start back
	if err := s.maybeAutoStart(); err != nil {
		s.log.Errorf("auto start after %s left: %v", c.DisplayName(), err)
	}
	return p
}

// Close cancels every timer. The room is going away, so members removed
// afterwards no longer start sessions or timers.
func (s *Session) Close() {
	s.closed = true
	s.cancelTimers()
}

// --- ready check ---

// toggleReady flips c's ready flag while the session waits for players.
func (s *Session) toggleReady(c *session.Session) error {
	p, ok := s.players[c.ID]
	if !ok {
		return ErrNotInRoom
	}
	if s.Phase() != state.Ready {
		return ErrPhaseMismatch
	}

	p.Ready = !p.Ready
	s.host.Broadcast(network.ReadyStatus{ClientID: p.ID(), Ready: p.Ready})

	ready := len(s.readyPlayers())
	switch {
	case ready == 0:
		s.cancelTimer(&s.readyTimer, network.TimerReady)
	case s.readyTimer == nil && s.cfg.ReadySeconds > 0:
		s.startTimer(&s.readyTimer, network.TimerReady, s.cfg.ReadySeconds, s.readyExpired)
	}

	return s.maybeAutoStart()
}

// maybeAutoStart starts the session once every member is ready and there are
// at least min_players of them. Modes without auto start never do.
func (s *Session) maybeAutoStart() error {
	if s.closed {
		return nil
	}
	ready := len(s.readyPlayers())
	if s.autoStart && ready == len(s.joined) && ready >= s.cfg.MinPlayers {
		return s.startSession()
	}
	return nil
}

func (s *Session) readyExpired() {
	if s.Phase() != state.Ready {
		return
	}
	if len(s.readyPlayers()) >= s.cfg.MinPlayers {
		if err := s.startSession(); err != nil {
			s.log.Errorf("start on ready timeout: %v", err)
		}
		return
	}
	s.announce("Not enough players ready, resetting ready check")
	for _, p := range s.joined {
		p.Ready = false
	}
	s.host.Broadcast(network.ResetReady{})
}

// startSession moves from READY into play with every ready player.
func (s *Session) startSession() error {
	if s.Phase() != state.Ready {
		return ErrPhaseMismatch
	}
	if len(s.readyPlayers()) < s.cfg.MinPlayers {
		return ErrNotEnoughPlayers
	}

	s.cancelTimer(&s.readyTimer, network.TimerReady)
	s.round = 0
	s.matchID = uuid.NewString()
	s.log.Infof("session %s starting with %d players", s.matchID, len(s.readyPlayers()))
	s.metrics.IncSessionsStarted(s.mode)
	s.hooks.OnSessionStart()
	return nil
}

// --- session end ---

// endSession announces the result and the scoreboard, resets every player
// and returns to READY. winner may be nil.
func (s *Session) endSession(winner *Player) {
	s.cancelTimers()
	if err := s.setPhase(state.Ended); err != nil {
		return
	}

	if winner != nil {
		s.announce("%s wins the game!", winner.Name())
	} else {
		s.announce("Game Over: no winner")
	}
	s.announce("%s", s.scoreboard())

	s.hooks.OnSessionEnd()

	for _, p := range s.joined {
		p.reset()
	}
	s.round = 0
	s.host.Broadcast(network.ResetReady{})
	s.host.Broadcast(network.ResetTurn{})
	for _, p := range s.joined {
		s.host.Broadcast(network.PointsUpdate{ClientID: p.ID(), Points: 0})
	}
	_ = s.setPhase(state.Ready)
}

// leader returns the highest scorer, the earliest joined on ties.
func (s *Session) leader() *Player {
	var best *Player
	for _, p := range s.joined {
		if best == nil || p.Points > best.Points {
			best = p
		}
	}
	return best
}

func (s *Session) scoreboard() string {
	ranked := s.Players()
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Points > ranked[j].Points })

	var b strings.Builder
	fmt.Fprintf(&b, "Scoreboard (match %s):", s.matchID)
	for i, p := range ranked {
		fmt.Fprintf(&b, "\n%d. %s %d", i+1, p.Name(), p.Points)
	}
	return b.String()
}

// --- timers ---

// startTimer replaces the countdown in slot. Ticks and expiry are posted to
// the room and dropped if slot no longer holds this countdown.
func (s *Session) startTimer(slot **timer.Countdown, kind network.TimerKind, seconds int, onExpire func()) {
	s.cancelTimer(slot, kind)
	if s.closed {
		return
	}

	var t *timer.Countdown
	t = s.timers.NewCountdown(seconds, s.cfg.TickInterval,
		func(remaining int) {
			s.host.Post(func() {
				if *slot == t {
					s.host.Broadcast(network.TimerTick{Kind: kind, Seconds: remaining})
				}
			})
		},
		func() {
			s.host.Post(func() {
				if *slot != t {
					return
				}
				*slot = nil
				s.host.Broadcast(network.TimerTick{Kind: kind, Seconds: network.TimerCleared})
				onExpire()
			})
		},
	)
	*slot = t
	s.host.Broadcast(network.TimerTick{Kind: kind, Seconds: seconds})
}

// cancelTimer stops the countdown in slot and reports it cleared, once.
func (s *Session) cancelTimer(slot **timer.Countdown, kind network.TimerKind) {
	t := *slot
	if t == nil {
		return
	}
	*slot = nil
	t.Cancel()
	s.host.Broadcast(network.TimerTick{Kind: kind, Seconds: network.TimerCleared})
}

func (s *Session) cancelTimers() {
	s.cancelTimer(&s.readyTimer, network.TimerReady)
	s.cancelTimer(&s.roundTimer, network.TimerRound)
	s.cancelTimer(&s.turnTimer, network.TimerTurn)
}
