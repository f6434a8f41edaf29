// broadcast/broadcast.go
package broadcast

import (
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/session"
)

// Fanout sends p to every recipient for which skip is false and returns the
// recipients whose send failed, in delivery order. The caller decides what a
// failure means; nothing is removed here.
func Fanout(recipients []*session.Session, p network.Payload, skip func(*session.Session) bool) []*session.Session {
	var failed []*session.Session
	for _, s := range recipients {
		if skip != nil && skip(s) {
			continue
		}
		if err := s.Send(p); err != nil {
			logger.Log.Warnf("send %T to %s failed: %v", p, s.DisplayName(), err)
			failed = append(failed, s)
		}
	}
	return failed
}

// Except builds a skip function that excludes one client id.
func Except(id int64) func(*session.Session) bool {
	return func(s *session.Session) bool { return s.ID == id }
}

// Broadcaster reaches clients outside of any room. It returns the clients
// whose send failed.
type Broadcaster interface {
	BroadcastToAll(p network.Payload) []*session.Session
}

// SessionBroadcaster reaches connected clients regardless of room, e.g. for
// shutdown notices.
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

// NewSessionBroadcaster reaches every session in sessionManager.
func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{sessionManager: sessionManager}
}

// BroadcastToAll sends p to every connected client.
func (b *SessionBroadcaster) BroadcastToAll(p network.Payload) []*session.Session {
	return Fanout(b.sessionManager.All(), p, nil)
}
