package game

import (
	"fmt"
	"math/rand"
)

// Outcome of one contest between two players.
type Outcome int

const (
	Draw Outcome = iota
	FirstWins
	SecondWins
)

// Resolver decides a contest between two players who both made a choice.
type Resolver interface {
	Resolve(first, second *Player) Outcome
}

// RandomResolver draws every outcome uniformly, ignoring the choices.
type RandomResolver struct {
	rng *rand.Rand
}

// NewRandomResolver draws each outcome uniformly from rng.
func NewRandomResolver(rng *rand.Rand) *RandomResolver {
	return &RandomResolver{rng: rng}
}

func (r *RandomResolver) Resolve(*Player, *Player) Outcome {
	return Outcome(r.rng.Intn(3))
}

// ChoiceResolver plays rock, paper, scissors.
type ChoiceResolver struct{}

func (ChoiceResolver) Resolve(first, second *Player) Outcome {
	switch {
	case first.Choice.Beats(second.Choice):
		return FirstWins
	case second.Choice.Beats(first.Choice):
		return SecondWins
	default:
		return Draw
	}
}

// NewResolver returns the resolver for a battle policy name.
func NewResolver(policy string, rng *rand.Rand) Resolver {
	if policy == "choices" {
		return ChoiceResolver{}
	}
	return NewRandomResolver(rng)
}

// Battle is one resolved contest.
type Battle struct {
	First   *Player
	Second  *Player
	Outcome Outcome
}

func (b Battle) Winner() *Player {
	switch b.Outcome {
	case FirstWins:
		return b.First
	case SecondWins:
		return b.Second
	}
	return nil
}

func (b Battle) Loser() *Player {
	switch b.Outcome {
	case FirstWins:
		return b.Second
	case SecondWins:
		return b.First
	}
	return nil
}

func (b Battle) String() string {
	if b.Outcome == Draw {
		return fmt.Sprintf("%s (%s) and %s (%s) drew", b.First.Name(), b.First.Choice, b.Second.Name(), b.Second.Choice)
	}
	w, l := b.Winner(), b.Loser()
	return fmt.Sprintf("%s (%s) beat %s (%s)", w.Name(), w.Choice, l.Name(), l.Choice)
}

// ProcessBattles evaluates every pair of players that made a choice, once,
// in the given order. A winner gains a point and a loser is eliminated; a
// player may win or lose several contests in the same round.
func ProcessBattles(players []*Player, resolver Resolver) []Battle {
	var contenders []*Player
	for _, p := range players {
		if p.Choice != NoChoice {
			contenders = append(contenders, p)
		}
	}

	var battles []Battle
	for i := 0; i < len(contenders); i++ {
		for j := i + 1; j < len(contenders); j++ {
			b := Battle{First: contenders[i], Second: contenders[j]}
			b.Outcome = resolver.Resolve(b.First, b.Second)
			if w := b.Winner(); w != nil {
				w.Points++
				b.Loser().Eliminated = true
			}
			battles = append(battles, b)
		}
	}
	return battles
}
