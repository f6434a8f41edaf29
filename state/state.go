package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the coarse state of a game session.
type Phase int

const (
	Ready Phase = iota
	Choosing
	InProgress
	Ended
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "READY"
	case Choosing:
		return "CHOOSING"
	case InProgress:
		return "IN_PROGRESS"
	case Ended:
		return "ENDED"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Playing reports whether rounds are running.
func (p Phase) Playing() bool {
	return p == Choosing || p == InProgress
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// Listener observes successful transitions.
type Listener func(from, to Phase)

type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	listener     Listener
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase, listener Listener) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
		listener:     listener,
	}
}

// NewSessionMachine returns a machine with the session lifecycle wired in:
// READY -> CHOOSING | IN_PROGRESS -> ENDED -> READY, plus CHOOSING <->
// IN_PROGRESS for variants that alternate between the two.
func NewSessionMachine(listener Listener) *BaseStateMachine {
	sm := NewBaseStateMachine(Ready, listener)
	for _, t := range [][2]Phase{
		{Ready, Choosing},
		{Ready, InProgress},
		{Choosing, InProgress},
		{InProgress, Choosing},
		{Choosing, Ended},
		{InProgress, Ended},
		{Ended, Ready},
	} {
		_ = sm.AddTransition(t[0], t[1], nil)
	}
	return sm
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	from := sm.currentState

	conditions, exists := sm.transitions[from]
	if !exists {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}
	condition, exists := conditions[to]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
	}

	sm.currentState = to
	listener := sm.listener
	sm.mutex.Unlock()

	if listener != nil {
		listener(from, to)
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// Is reports whether the machine is currently in p.
func (sm *BaseStateMachine) Is(p Phase) bool {
	return sm.GetCurrentState() == p
}

func (sm *BaseStateMachine) AddTransition(from, to Phase, condition func() bool) error {
	if from == to {
		return fmt.Errorf("%w: self transition %s", ErrTransitionNotAllowed, from)
	}

	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}

	sm.transitions[from][to] = condition
	return nil
}
