package room

import (
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/session"
	"go.uber.org/zap"
)

// Behavior is the game logic a room drives. The room calls every method from
// its own command goroutine, so implementations need no locking of their own.
type Behavior interface {
	// MemberAdded runs after the membership catch-up and before the join is
	// announced; it should sync the behavior's state to c.
	MemberAdded(c *session.Session)
	MemberRemoved(c *session.Session)
	HandleAction(c *session.Session, action network.Payload) error
	// Close releases timers and other resources when the room shuts down.
	// It runs before members are removed and may be called more than once.
	Close()
}

// Host is the room as its Behavior sees it. Apart from Post, methods must
// only be called from the room goroutine, i.e. from inside Behavior methods
// or posted functions.
type Host interface {
	Name() string
	Members() []*session.Session
	IsMember(id int64) bool
	// Broadcast delivers p to every member. Failed recipients are evicted
	// once the current command completes.
	Broadcast(p network.Payload)
	// Send delivers p to one member and reports whether it went out.
	Send(c *session.Session, p network.Payload) bool
	// Post queues fn to run on the room goroutine. It is safe to call from
	// any goroutine and reports false once the room has shut down.
	Post(fn func()) bool
	Logger() *zap.SugaredLogger
}

// BehaviorFactory builds the behavior for a new room.
type BehaviorFactory func(host Host) Behavior

type noopBehavior struct{}

func (noopBehavior) MemberAdded(*session.Session)   {}
func (noopBehavior) MemberRemoved(*session.Session) {}
func (noopBehavior) Close()                         {}

func (noopBehavior) HandleAction(*session.Session, network.Payload) error {
	return ErrUnsupportedAction
}
