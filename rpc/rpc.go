package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
)

// Server manages the operator RPC listener.
type Server struct {
	listener net.Listener
	address  string
	rpc      *rpc.Server
}

// NewServer listens on addr and registers every service.
func NewServer(addr string, services ...interface{}) (*Server, error) {
	srv := rpc.NewServer()
	for _, svc := range services {
		if err := srv.Register(svc); err != nil {
			return nil, err
		}
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		rpc:      srv,
	}, nil
}

func (s *Server) Addr() string {
	return s.address
}

// Serve accepts RPC connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return nil
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		_ = s.listener.Close()
	}
}

// RoomService exposes the room directory to operators.
type RoomService struct {
	rooms    *room.Manager
	sessions *session.Manager
}

func NewRoomService(rooms *room.Manager, sessions *session.Manager) *RoomService {
	return &RoomService{rooms: rooms, sessions: sessions}
}

// ListRooms follows the net/rpc signature: exported method, exported
// arguments, reply pointer, error result.
type ListRoomsArgs struct {
	Query string
	Limit int
}

type ListRoomsReply struct {
	Rooms []string
}

func (rs *RoomService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	reply.Rooms = rs.rooms.ListRooms(args.Query, args.Limit)
	return nil
}

type StatsArgs struct{}

type StatsReply struct {
	Online int
	Rooms  []room.Info
}

// Stats reports connected clients and the members of every running room.
func (rs *RoomService) Stats(args *StatsArgs, reply *StatsReply) error {
	reply.Online = rs.sessions.Count()
	for _, r := range rs.rooms.Rooms() {
		info, err := r.Info()
		if errors.Is(err, room.ErrRoomClosed) {
			continue
		}
		if err != nil {
			return err
		}
		reply.Rooms = append(reply.Rooms, info)
	}
	return nil
}
