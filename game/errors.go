package game

import "errors"

// Action rejections. They are reported to the acting client only and leave
// the session untouched.
var (
	ErrNotInRoom        = errors.New("you are not in this room")
	ErrPhaseMismatch    = errors.New("that action is not allowed right now")
	ErrNotYourTurn      = errors.New("it is not your turn")
	ErrNotReady         = errors.New("you are not ready")
	ErrAlreadyActed     = errors.New("you already took your turn this round")
	ErrEliminated       = errors.New("you have been eliminated")
	ErrInvalidChoice    = errors.New("invalid choice, pick rock, paper or scissors")
	ErrNotEnoughPlayers = errors.New("not enough players are ready")
	ErrUnknownMode      = errors.New("unknown game mode")
)
