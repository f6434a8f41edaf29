package game

import "math/rand"

// TurnOrder is the fixed playing order of one session. The cursor starts
// before the first player and wraps after the last.
type TurnOrder struct {
	players []*Player
	index   int
}

// NewTurnOrder shuffles a copy of players.
func NewTurnOrder(players []*Player, rng *rand.Rand) *TurnOrder {
	order := make([]*Player, len(players))
	copy(order, players)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return &TurnOrder{players: order, index: -1}
}

func (t *TurnOrder) Len() int {
	return len(t.players)
}

// Players returns the order as a copy.
func (t *TurnOrder) Players() []*Player {
	out := make([]*Player, len(t.players))
	copy(out, t.players)
	return out
}

// Current is the player whose turn it is, or nil before the first turn.
func (t *TurnOrder) Current() *Player {
	if t.index < 0 || t.index >= len(t.players) {
		return nil
	}
	return t.players[t.index]
}

// NextPlayer advances the cursor and returns the new current player.
func (t *TurnOrder) NextPlayer() *Player {
	if len(t.players) == 0 {
		t.index = -1
		return nil
	}
	t.index = (t.index + 1) % len(t.players)
	return t.players[t.index]
}

// Rewind puts the cursor back before the first player.
func (t *TurnOrder) Rewind() {
	t.index = -1
}

// IsLast reports whether the current player is the last of the order.
func (t *TurnOrder) IsLast() bool {
	return len(t.players) > 0 && t.index == len(t.players)-1
}

func (t *TurnOrder) Contains(id int64) bool {
	return t.indexOf(id) >= 0
}

// Remove drops a player. The cursor keeps pointing at the same player, or,
// when the current player is removed, at the one before it so that
// NextPlayer yields the player who followed.
func (t *TurnOrder) Remove(id int64) bool {
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	t.players = append(t.players[:i:i], t.players[i+1:]...)
	if i <= t.index {
		t.index--
	}
	return true
}

func (t *TurnOrder) indexOf(id int64) int {
	for i, p := range t.players {
		if p.ID() == id {
			return i
		}
	}
	return -1
}
