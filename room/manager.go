package room

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/session"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrDuplicateRoom = errors.New("room already exists")
	ErrEmptyRoomName = errors.New("room name cannot be empty")
	ErrRoomNameLong  = errors.New("room name is too long")
)

// MaxRoomNameLength caps room names, in runes.
const MaxRoomNameLength = 32

// Manager is the room directory: it maps room names to running rooms and
// moves clients between them. Names are compared case-insensitively.
type Manager struct {
	rooms   map[string]*Room
	mutex   sync.RWMutex
	factory BehaviorFactory
	metrics *monitor.Monitor
	lobby   *Room
}

// NewRoomManager creates the directory and its lobby. Every room, the lobby
// included, gets a behavior from factory. mon may be nil.
func NewRoomManager(factory BehaviorFactory, mon *monitor.Monitor) *Manager {
	m := &Manager{
		rooms:   make(map[string]*Room),
		factory: factory,
		metrics: mon,
	}
	m.lobby = NewRoom(LobbyName, m, factory)
	m.rooms[key(LobbyName)] = m.lobby
	m.metrics.SetActiveRooms(1)
	return m
}

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (m *Manager) observer() *monitor.Monitor {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Lobby is the room clients land in on connect and fall back to.
func (m *Manager) Lobby() *Room {
	return m.lobby
}

// CreateRoom starts an empty room under name. Names are unique ignoring case
// and surrounding space.
func (m *Manager) CreateRoom(name string) (*Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyRoomName
	}
	if utf8.RuneCountInString(name) > MaxRoomNameLength {
		return nil, ErrRoomNameLong
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[key(name)]; exists {
		return nil, ErrDuplicateRoom
	}
	room := NewRoom(name, m, m.factory)
	m.rooms[key(name)] = room
	m.metrics.SetActiveRooms(len(m.rooms))
	return room, nil
}

// GetRoom looks a room up by name, ignoring case.
func (m *Manager) GetRoom(name string) (*Room, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[key(name)]
	return room, exists
}

// removeRoom drops r from the directory, unless the name already belongs to
// a newer room.
func (m *Manager) removeRoom(r *Room) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if current, exists := m.rooms[key(r.name)]; exists && current == r {
		delete(m.rooms, key(r.name))
		m.metrics.SetActiveRooms(len(m.rooms))
	}
}

// Count is the number of rooms in the directory, lobby included.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// ListRooms returns up to limit room names containing query, sorted. An
// empty query matches every room; limit <= 0 means no limit.
func (m *Manager) ListRooms(query string, limit int) []string {
	query = key(query)

	m.mutex.RLock()
	names := make([]string, 0, len(m.rooms))
	for k, room := range m.rooms {
		if strings.Contains(k, query) {
			names = append(names, room.Name())
		}
	}
	m.mutex.RUnlock()

	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names
}

// Rooms returns a snapshot of every running room.
func (m *Manager) Rooms() []*Room {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return key(rooms[i].name) < key(rooms[j].name) })
	return rooms
}

// CurrentRoom resolves the room c is in.
func (m *Manager) CurrentRoom(c *session.Session) (*Room, error) {
	name := c.Room()
	if name == "" {
		return nil, ErrNotMember
	}
	room, ok := m.GetRoom(name)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// JoinRoom moves c out of its current room and into the named one. If the
// target closes in between, c lands in the lobby and ErrRoomNotFound is
// returned.
func (m *Manager) JoinRoom(name string, c *session.Session) error {
	target, ok := m.GetRoom(name)
	if !ok {
		return ErrRoomNotFound
	}

	if current, err := m.CurrentRoom(c); err == nil {
		if current == target {
			return ErrAlreadyMember
		}
		if err := current.Leave(c); err != nil && !errors.Is(err, ErrNotMember) && !errors.Is(err, ErrRoomClosed) {
			return err
		}
	}

	err := target.Join(c)
	if errors.Is(err, ErrRoomClosed) && target != m.lobby {
		if lerr := m.lobby.Join(c); lerr != nil {
			logger.Log.Warnf("failed to return %s to lobby: %v", c.DisplayName(), lerr)
		}
		return ErrRoomNotFound
	}
	return err
}

// CreateAndJoin creates a room and moves c into it.
func (m *Manager) CreateAndJoin(name string, c *session.Session) (*Room, error) {
	room, err := m.CreateRoom(name)
	if err != nil {
		return nil, err
	}
	if err := m.JoinRoom(room.Name(), c); err != nil {
		return nil, err
	}
	return room, nil
}

// LeaveRoom sends c back to the lobby.
func (m *Manager) LeaveRoom(c *session.Session) error {
	return m.JoinRoom(LobbyName, c)
}

// Handle forwards a game action to the room c is in.
func (m *Manager) Handle(c *session.Session, action network.Payload) error {
	room, err := m.CurrentRoom(c)
	if err != nil {
		return err
	}
	return room.Handle(c, action)
}

// Disconnect removes c from whatever room it is in.
func (m *Manager) Disconnect(c *session.Session) {
	room, err := m.CurrentRoom(c)
	if err != nil {
		return
	}
	if err := room.Disconnect(c); err != nil && !errors.Is(err, ErrNotMember) && !errors.Is(err, ErrRoomClosed) {
		logger.Log.Warnf("disconnect %s from %s: %v", c.DisplayName(), room.Name(), err)
	}
}

// Shutdown disconnects every client and closes every room, lobby last.
func (m *Manager) Shutdown() {
	for _, room := range m.Rooms() {
		if room == m.lobby {
			continue
		}
		if err := room.DisconnectAll(); err != nil && !errors.Is(err, ErrRoomClosed) {
			logger.Log.Warnf("shutdown %s: %v", room.Name(), err)
		}
		// rooms nobody ever joined are still running
		_ = room.Close()
	}
	if err := m.lobby.Close(); err != nil && !errors.Is(err, ErrRoomClosed) {
		logger.Log.Warnf("shutdown lobby: %v", err)
	}
}
