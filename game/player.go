package game

import (
	"fmt"
	"strings"

	"github.com/wfunc/roomserver/session"
)

// Choice is a pick in the simultaneous-choice game.
type Choice int

const (
	NoChoice Choice = iota
	Rock
	Paper
	Scissors
)

func (c Choice) String() string {
	switch c {
	case NoChoice:
		return "NONE"
	case Rock:
		return "ROCK"
	case Paper:
		return "PAPER"
	case Scissors:
		return "SCISSORS"
	default:
		return fmt.Sprintf("Choice(%d)", int(c))
	}
}

// Beats reports whether c wins against other.
func (c Choice) Beats(other Choice) bool {
	switch c {
	case Rock:
		return other == Scissors
	case Paper:
		return other == Rock
	case Scissors:
		return other == Paper
	}
	return false
}

// ParseChoice accepts the full name or its first letter, in any case.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "r", "rock":
		return Rock, nil
	case "p", "paper":
		return Paper, nil
	case "s", "scissors":
		return Scissors, nil
	}
	return NoChoice, fmt.Errorf("%w: %q", ErrInvalidChoice, s)
}

// Player is one member's game state. Only the owning session mutates it, on
// the room goroutine.
type Player struct {
	Client     *session.Session
	Ready      bool
	TookTurn   bool
	Points     int
	Choice     Choice
	Eliminated bool
}

func newPlayer(c *session.Session) *Player {
	return &Player{Client: c}
}

func (p *Player) ID() int64 {
	return p.Client.ID
}

func (p *Player) Name() string {
	return p.Client.DisplayName()
}

// Playing reports whether p still takes part in the running session.
func (p *Player) Playing() bool {
	return p.Ready && !p.Eliminated
}

func (p *Player) reset() {
	p.Ready = false
	p.TookTurn = false
	p.Points = 0
	p.Choice = NoChoice
	p.Eliminated = false
}
