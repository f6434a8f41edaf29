// session/session.go
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wfunc/roomserver/network"
)

var ErrClosed = errors.New("session closed")

// Session is one connected, identified client. Rooms reference sessions but
// never own them; the connection layer decides when a session ends.
type Session struct {
	ID         int64
	TraceID    string
	Conn       network.Connection
	CreatedAt  time.Time
	lastActive time.Time
	name       string
	room       string
	closed     bool
	mutex      sync.RWMutex
}

func NewSession(id int64, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		name:       fmt.Sprintf("client-%d", id),
	}
}

// Name is the display name chosen on CONNECT, or a generated one.
func (s *Session) Name() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.name
}

func (s *Session) SetName(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.name = name
}

// DisplayName is the name plus id, used in server-side logs and announcements.
func (s *Session) DisplayName() string {
	return fmt.Sprintf("%s#%d", s.Name(), s.ID)
}

// Room returns the name of the room the session currently belongs to.
func (s *Session) Room() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.room
}

func (s *Session) SetRoom(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.room = name
}

// LeaveRoom clears the current room only if it is still name, so a late
// removal from an old room cannot erase a newer membership.
func (s *Session) LeaveRoom(name string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.room == name {
		s.room = ""
	}
}

// Send encodes and writes one payload. Any error means the peer is gone.
func (s *Session) Send(p network.Payload) error {
	s.mutex.RLock()
	closed := s.closed
	s.mutex.RUnlock()
	if closed {
		return ErrClosed
	}

	data, err := network.Encode(p)
	if err != nil {
		return fmt.Errorf("encode %T: %w", p, err)
	}
	return s.Conn.Send(p.MsgID(), data)
}

// Touch records inbound traffic from the client.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

// IdleSince reports how long the client has been silent at now.
func (s *Session) IdleSince(now time.Time) time.Duration {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return now.Sub(s.lastActive)
}

func (s *Session) Closed() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.closed
}

func (s *Session) Close() error {
	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()
	return s.Conn.Close()
}

// Manager tracks every connected session by id.
type Manager struct {
	sessions map[int64]*Session
	nextID   atomic.Int64
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[int64]*Session),
	}
}

// NextID hands out process-unique client ids starting at 1.
func (m *Manager) NextID() int64 {
	return m.nextID.Add(1)
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID int64) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every connected session.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		result = append(result, session)
	}
	return result
}
