package server

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
)

// ErrQuit is returned when the client asked to disconnect.
var ErrQuit = errors.New("client quit")

var ErrMessageTooLong = errors.New("message is too long")

const (
	// MaxNameLength caps display names, in runes. Longer names are cut.
	MaxNameLength = 32
	// MaxMessageLength caps relayed chat text, in runes.
	MaxMessageLength = 1024
)

// Dispatcher routes a client's decoded actions to the room directory or the
// room the client is in.
type Dispatcher struct {
	rooms     *room.Manager
	sessions  *session.Manager
	metrics   *monitor.Monitor
	listLimit int
}

func NewDispatcher(rooms *room.Manager, sessions *session.Manager, metrics *monitor.Monitor, listLimit int) *Dispatcher {
	return &Dispatcher{
		rooms:     rooms,
		sessions:  sessions,
		metrics:   metrics,
		listLimit: listLimit,
	}
}

// Dispatch handles one action. Rejections go back to the sender as a
// private server message; only ErrQuit is returned to the caller.
func (d *Dispatcher) Dispatch(s *session.Session, action network.Payload) error {
	err := d.handle(s, action)
	if err == nil || errors.Is(err, ErrQuit) {
		return err
	}
	logger.Log.Debugf("%s: %T rejected: %v", s.DisplayName(), action, err)
	d.notify(s, err.Error())
	return nil
}

func (d *Dispatcher) handle(s *session.Session, action network.Payload) error {
	switch a := action.(type) {
	case network.Heartbeat:
		// the read loop already touched the session
		return nil
	case network.Connect:
		return d.connect(s, a.Name)
	case network.Disconnect:
		return ErrQuit
	case network.JoinRoom:
		return d.rooms.JoinRoom(a.Name, s)
	case network.LeaveRoom:
		return d.rooms.LeaveRoom(s)
	case network.CreateRoom:
		_, err := d.rooms.CreateAndJoin(a.Name, s)
		return err
	case network.ListRooms:
		names := d.rooms.ListRooms(a.Query, d.listLimit)
		if err := s.Send(network.RoomList{Rooms: names, Query: a.Query}); err != nil {
			logger.Log.Warnf("send room list to %s: %v", s.DisplayName(), err)
		}
		return nil
	case network.ListUsers:
		current, err := d.rooms.CurrentRoom(s)
		if err != nil {
			return err
		}
		info, err := current.Info()
		if err != nil {
			return err
		}
		if err := s.Send(network.UserList{Room: info.Name, Users: info.Members}); err != nil {
			logger.Log.Warnf("send user list to %s: %v", s.DisplayName(), err)
		}
		return nil
	case network.Message:
		if utf8.RuneCountInString(a.Text) > MaxMessageLength {
			return ErrMessageTooLong
		}
		current, err := d.rooms.CurrentRoom(s)
		if err != nil {
			return err
		}
		return current.Broadcast(network.Chat{SenderID: s.ID, Text: a.Text})
	default:
		return d.rooms.Handle(s, action)
	}
}

// connect names the client, tells it its id and puts it in the lobby.
func (d *Dispatcher) connect(s *session.Session, name string) error {
	if name = strings.TrimSpace(name); name != "" {
		if runes := []rune(name); len(runes) > MaxNameLength {
			name = strings.TrimSpace(string(runes[:MaxNameLength]))
		}
		s.SetName(name)
	}
	if err := s.Send(network.ClientID{ClientID: s.ID, Name: s.Name()}); err != nil {
		return err
	}
	if s.Room() != "" {
		return nil
	}
	return d.rooms.JoinRoom(room.LobbyName, s)
}

func (d *Dispatcher) notify(s *session.Session, text string) {
	if err := s.Send(network.Chat{SenderID: network.ServerID, Text: text}); err != nil {
		logger.Log.Warnf("notify %s: %v", s.DisplayName(), err)
	}
}

// Register tracks a new client.
func (d *Dispatcher) Register(s *session.Session) {
	d.sessions.Add(s)
	d.metrics.IncOnlinePlayers()
}

// Unregister removes a client from its room and from the session table.
func (d *Dispatcher) Unregister(s *session.Session) {
	d.rooms.Disconnect(s)
	d.sessions.Remove(s.ID)
	d.metrics.DecOnlinePlayers()
	_ = s.Close()
}
