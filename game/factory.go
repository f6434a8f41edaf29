package game

import (
	"fmt"
	"strings"

	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/timer"
)

// NewFactory returns the room behavior factory for the configured mode.
// Every room, the lobby included, gets its own game.
func NewFactory(cfg config.GameConfig, timers *timer.TimerManager, metrics *monitor.Monitor, opts ...Option) (room.BehaviorFactory, error) {
	switch strings.ToLower(cfg.Mode) {
	case "", ModePick:
		return func(host room.Host) room.Behavior {
			return NewPickGame(host, cfg, timers, metrics, opts...)
		}, nil
	case ModeTurn:
		return func(host room.Host) room.Behavior {
			return NewTurnGame(host, cfg, timers, metrics, opts...)
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
}
