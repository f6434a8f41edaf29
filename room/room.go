// room/room.go
package room

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/wfunc/roomserver/broadcast"
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/session"
	"go.uber.org/zap"
)

// LobbyName is the room every client starts in. It is never auto-closed.
const LobbyName = "lobby"

var (
	ErrRoomClosed        = errors.New("room is not running")
	ErrAlreadyMember     = errors.New("client is already in the room")
	ErrNotMember         = errors.New("client is not in the room")
	ErrUnsupportedAction = errors.New("action not supported in this room")
	ErrInternal          = errors.New("internal room error")
)

type removal int

const (
	removeLeave      removal = iota // client asked to leave
	removeEvict                     // a delivery to the client failed
	removeDisconnect                // connection ended or server shutdown
)

type command struct {
	fn     func() error
	result chan error
}

// Room is a named set of clients driven by one Behavior.
//
// Every membership change and every behavior call runs on one goroutine fed
// by inbox. Timer callbacks reach the room through Post, so user actions and
// timer expiry are serialized in arrival order.
type Room struct {
	name     string
	manager  *Manager
	behavior Behavior
	log      *zap.SugaredLogger

	// owned by the loop goroutine
	members   map[int64]*session.Session
	order     []*session.Session
	announced map[int64]bool
	failed    map[int64]bool
	pending   []*session.Session
	vacated   bool // the last member left during the current command
	closing   bool

	running atomic.Bool
	count   atomic.Int32
	inbox   chan command
	done    chan struct{}
}

// NewRoom starts a room. manager may be nil for a standalone room, which then
// has no lobby to migrate to and no directory entry to remove.
func NewRoom(name string, manager *Manager, factory BehaviorFactory) *Room {
	r := &Room{
		name:      name,
		manager:   manager,
		log:       logger.Log.With("room", name),
		members:   make(map[int64]*session.Session),
		announced: make(map[int64]bool),
		failed:    make(map[int64]bool),
		inbox:     make(chan command, 256),
		done:      make(chan struct{}),
	}
	r.running.Store(true)

	r.behavior = noopBehavior{}
	if factory != nil {
		r.behavior = factory(host{r})
	}

	go r.loop()
	r.log.Info("created")
	return r
}

// Name is the room name as created.
func (r *Room) Name() string {
	return r.name
}

// IsLobby reports whether this is the lobby, which never auto-closes.
func (r *Room) IsLobby() bool {
	return strings.EqualFold(r.name, LobbyName)
}

// Running reports whether the room still accepts membership changes.
func (r *Room) Running() bool {
	return r.running.Load()
}

// Count is a snapshot of the member count, safe from any goroutine.
func (r *Room) Count() int {
	return int(r.count.Load())
}

// Done is closed once the room goroutine has exited.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// --- public operations; each runs as one command on the room goroutine ---

// Join adds c. The newcomer first gets a member reset and a quiet join for
// every existing member, then the behavior's sync, then everyone sees the
// live join. A client already in the room gets ErrAlreadyMember.
func (r *Room) Join(c *session.Session) error {
	return r.do(func() error { return r.join(c) })
}

// Leave removes c at its own request. Only the remaining members are told.
func (r *Room) Leave(c *session.Session) error {
	return r.do(func() error {
		if _, ok := r.members[c.ID]; !ok {
			return ErrNotMember
		}
		r.removeMember(c, removeLeave)
		return nil
	})
}

// Disconnect removes a client whose connection is going away.
func (r *Room) Disconnect(c *session.Session) error {
	return r.do(func() error {
		if _, ok := r.members[c.ID]; !ok {
			return ErrNotMember
		}
		r.removeMember(c, removeDisconnect)
		return nil
	})
}

// Broadcast delivers p to every member, evicting those that fail.
func (r *Room) Broadcast(p network.Payload) error {
	return r.do(func() error {
		r.broadcastLocked(p, nil)
		return nil
	})
}

// DisconnectAll disconnects every member, as on server shutdown.
func (r *Room) DisconnectAll() error {
	return r.do(func() error {
		r.log.Info("disconnect all triggered")
		for _, c := range r.snapshot() {
			r.removeMember(c, removeDisconnect)
		}
		return nil
	})
}

// Handle passes a member's game action to the room behavior.
func (r *Room) Handle(c *session.Session, action network.Payload) error {
	return r.do(func() error {
		if _, ok := r.members[c.ID]; !ok {
			return ErrNotMember
		}
		return r.behavior.HandleAction(c, action)
	})
}

// Close shuts the room down even if members remain. Non-lobby rooms migrate
// them to the lobby; the lobby disconnects them.
func (r *Room) Close() error {
	return r.do(func() error {
		if r.IsLobby() {
			r.behavior.Close()
			for _, c := range r.snapshot() {
				r.removeMember(c, removeDisconnect)
			}
		}
		r.shutdown()
		return nil
	})
}

// Info is a point-in-time description of a room.
type Info struct {
	Name    string
	Members []string
}

// Info snapshots the room name and member display names in join order.
func (r *Room) Info() (Info, error) {
	var info Info
	err := r.do(func() error {
		info.Name = r.name
		for _, c := range r.order {
			info.Members = append(info.Members, c.DisplayName())
		}
		return nil
	})
	return info, err
}

// --- command loop ---

func (r *Room) do(fn func() error) error {
	if !r.running.Load() {
		return ErrRoomClosed
	}
	cmd := command{fn: fn, result: make(chan error, 1)}
	select {
	case r.inbox <- cmd:
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case err := <-cmd.result:
		return err
	case <-r.done:
		// the result is sent before done closes, so prefer it if present
		select {
		case err := <-cmd.result:
			return err
		default:
			return ErrRoomClosed
		}
	}
}

func (r *Room) post(fn func()) bool {
	cmd := command{fn: func() error {
		fn()
		return nil
	}}
	if !r.running.Load() {
		return false
	}
	select {
	case r.inbox <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) loop() {
	defer close(r.done)
	for {
		cmd := <-r.inbox
		err := r.run(cmd.fn)
		if cmd.result != nil {
			cmd.result <- err
		}
		if r.closing {
			r.log.Info("closed")
			return
		}
	}
}

func (r *Room) run(fn func() error) (err error) {
	if !r.running.Load() {
		return ErrRoomClosed
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Errorf("command panicked: %v", p)
			err = fmt.Errorf("%w: %v", ErrInternal, p)
		}
	}()
	err = fn()
	r.settle()
	return err
}

// settle evicts every member whose delivery failed during the command, then
// closes the room if it became empty. Evictions may fail further deliveries;
// the loop runs until none are left.
func (r *Room) settle() {
	for len(r.pending) > 0 {
		c := r.pending[0]
		r.pending = r.pending[1:]
		r.removeMember(c, removeEvict)
	}
	r.autoCleanup()
}

// --- membership; loop goroutine only ---

func (r *Room) join(c *session.Session) error {
	if _, ok := r.members[c.ID]; ok {
		r.log.Infof("%s is already a member", c.DisplayName())
		return ErrAlreadyMember
	}
	r.members[c.ID] = c
	r.vacated = false
	r.order = append(r.order, c)
	r.count.Store(int32(len(r.members)))
	c.SetRoom(r.name)

	if !r.deliver(c, network.ResetMembers{Room: r.name}) {
		return nil
	}
	for _, m := range r.order {
		if m.ID == c.ID {
			continue
		}
		catchUp := network.ClientJoined{ClientID: m.ID, Name: m.Name(), Room: r.name, Quiet: true}
		if !r.deliver(c, catchUp) {
			return nil
		}
	}
	r.behavior.MemberAdded(c)
	if r.failed[c.ID] {
		return nil
	}

	r.announced[c.ID] = true
	r.broadcastLocked(network.ClientJoined{ClientID: c.ID, Name: c.Name(), Room: r.name}, nil)
	r.log.Infof("%s joined, members: %d", c.DisplayName(), len(r.members))
	return nil
}

// removeMember is the single exit path for a member. Others are told first,
// while the departing client can still be resolved by id and name.
func (r *Room) removeMember(c *session.Session, why removal) {
	if _, ok := r.members[c.ID]; !ok {
		return
	}

	if r.announced[c.ID] {
		var notice network.Payload = network.Disconnected{ClientID: c.ID}
		if why == removeLeave {
			notice = network.ClientLeft{ClientID: c.ID, Name: c.Name(), Room: r.name}
		}
		r.broadcastLocked(notice, broadcast.Except(c.ID))
	}

	delete(r.members, c.ID)
	delete(r.announced, c.ID)
	for i, m := range r.order {
		if m.ID == c.ID {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.count.Store(int32(len(r.members)))
	r.vacated = len(r.members) == 0
	c.LeaveRoom(r.name)

	r.behavior.MemberRemoved(c)

	switch why {
	case removeLeave:
		r.log.Infof("%s left, members: %d", c.DisplayName(), len(r.members))
	case removeEvict:
		r.log.Warnf("removing disconnected %s", c.DisplayName())
		r.manager.observer().IncEvictions()
		_ = c.Close()
	case removeDisconnect:
		if !r.failed[c.ID] {
			_ = c.Send(network.Disconnected{ClientID: c.ID})
		}
		r.log.Infof("%s disconnected", c.DisplayName())
		_ = c.Close()
	}
	delete(r.failed, c.ID)
}

// autoCleanup closes a non-lobby room whose last member just left. A room
// that was created but never joined stays open.
func (r *Room) autoCleanup() {
	if r.running.Load() && r.vacated && !r.IsLobby() && len(r.members) == 0 {
		r.shutdown()
	}
}

// shutdown stops the room. Stragglers are moved to the lobby on a best
// effort basis.
func (r *Room) shutdown() {
	if !r.running.Load() {
		return
	}

	// stop the game first so the removals below cannot restart it
	r.behavior.Close()

	var stragglers []*session.Session
	if len(r.members) > 0 {
		r.broadcastLocked(network.GameEvent{Text: "Room is shutting down, migrating to lobby"}, nil)
		r.log.Infof("migrating %d clients", len(r.members))
		for _, c := range r.snapshot() {
			if r.failed[c.ID] {
				r.manager.observer().IncEvictions()
				_ = c.Close()
				continue
			}
			stragglers = append(stragglers, c)
		}
		for _, c := range r.snapshot() {
			delete(r.members, c.ID)
			c.LeaveRoom(r.name)
			r.behavior.MemberRemoved(c)
		}
		r.order = nil
		r.announced = make(map[int64]bool)
		r.count.Store(0)
	}

	r.running.Store(false)
	r.closing = true
	r.pending = nil

	if r.manager == nil {
		return
	}
	r.manager.removeRoom(r)
	lobby := r.manager.Lobby()
	for _, c := range stragglers {
		if lobby == r {
			break
		}
		if err := lobby.Join(c); err != nil {
			r.log.Warnf("failed to migrate %s to lobby: %v", c.DisplayName(), err)
		}
	}
}

// --- delivery ---

func (r *Room) snapshot() []*session.Session {
	out := make([]*session.Session, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Room) markFailed(c *session.Session) {
	if r.failed[c.ID] {
		return
	}
	if _, ok := r.members[c.ID]; !ok {
		return
	}
	r.failed[c.ID] = true
	r.pending = append(r.pending, c)
}

func (r *Room) deliver(c *session.Session, p network.Payload) bool {
	if r.failed[c.ID] {
		return false
	}
	if err := c.Send(p); err != nil {
		r.log.Warnf("send %T to %s failed: %v", p, c.DisplayName(), err)
		r.markFailed(c)
		return false
	}
	return true
}

func (r *Room) broadcastLocked(p network.Payload, skip func(*session.Session) bool) {
	failed := broadcast.Fanout(r.snapshot(), p, func(c *session.Session) bool {
		return r.failed[c.ID] || (skip != nil && skip(c))
	})
	for _, c := range failed {
		r.markFailed(c)
	}
}

// host adapts Room to the Host interface handed to behaviors.
type host struct {
	r *Room
}

func (h host) Name() string                { return h.r.name }
func (h host) Members() []*session.Session { return h.r.snapshot() }
func (h host) Logger() *zap.SugaredLogger  { return h.r.log }
func (h host) Post(fn func()) bool         { return h.r.post(fn) }

func (h host) IsMember(id int64) bool {
	_, ok := h.r.members[id]
	return ok
}

func (h host) Broadcast(p network.Payload) {
	h.r.broadcastLocked(p, nil)
}

func (h host) Send(c *session.Session, p network.Payload) bool {
	return h.r.deliver(c, p)
}
