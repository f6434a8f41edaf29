package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/roomserver/broadcast"
	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/network"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/session"
	"golang.org/x/time/rate"
)

// HeartbeatInterval is how often clients are expected to send something.
const HeartbeatInterval = 30 * time.Second

// IdleTimeout is how long a client may stay silent before it is dropped.
const IdleTimeout = 2 * HeartbeatInterval

type GameServer struct {
	cfg            config.ServerConfig
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	dispatcher     *Dispatcher
	broadcaster    broadcast.Broadcaster
	metrics        *monitor.Monitor
}

func NewGameServer(cfg config.ServerConfig, listLimit int, rooms *room.Manager, sessions *session.Manager, metrics *monitor.Monitor) *GameServer {
	return &GameServer{
		cfg:            cfg,
		roomManager:    rooms,
		sessionManager: sessions,
		dispatcher:     NewDispatcher(rooms, sessions, metrics, listLimit),
		broadcaster:    broadcast.NewSessionBroadcaster(sessions),
		metrics:        metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // any origin
			},
		},
	}
}

func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// ListenAndServe serves websocket clients until ctx is done.
func (s *GameServer) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTPAddress, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go s.reapIdleLoop(ctx)

	logger.Log.Infof("Game server listening on %s", s.cfg.HTTPAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *GameServer) reapIdleLoop(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.ReapIdle(now, IdleTimeout); n > 0 {
				logger.Log.Infof("Closed %d idle clients", n)
			}
		}
	}
}

// ReapIdle closes every client silent for longer than maxIdle at now and
// returns how many it closed. Their read loops then unregister them.
func (s *GameServer) ReapIdle(now time.Time, maxIdle time.Duration) int {
	closed := 0
	for _, sess := range s.sessionManager.All() {
		if sess.IdleSince(now) <= maxIdle || sess.Closed() {
			continue
		}
		logger.Log.Infof("Closing idle client %s", sess.DisplayName())
		_ = sess.Close()
		closed++
	}
	return closed
}

// Shutdown tells every client and closes every room.
func (s *GameServer) Shutdown() {
	s.broadcaster.BroadcastToAll(network.GameEvent{Text: "Server is shutting down"})
	s.roomManager.Shutdown()
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)
	wsConn.SetHeartbeat(HeartbeatInterval)
	s.Serve(wsConn)
}

func (s *GameServer) newLimiter() *rate.Limiter {
	if s.cfg.MessagesPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := s.cfg.MessageBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), burst)
}

// Serve runs one client until its connection fails or it quits.
func (s *GameServer) Serve(conn network.Connection) {
	sess := session.NewSession(s.sessionManager.NextID(), conn)
	sess.TraceID = uuid.NewString()
	s.dispatcher.Register(sess)
	log := logger.Log.With("client", sess.ID, "trace", sess.TraceID)
	log.Infof("New connection from %s", conn.RemoteAddr())

	defer func() {
		log.Infof("Connection closed from %s", conn.RemoteAddr())
		s.dispatcher.Unregister(sess)
	}()

	limiter := s.newLimiter()
	for {
		packet, err := conn.ReadPacket()
		if err != nil {
			return
		}
		sess.Touch()
		start := time.Now()
		s.metrics.IncMessagesReceived()

		if !limiter.Allow() {
			s.dispatcher.notify(sess, "Slow down, too many messages")
			continue
		}
		action, err := network.DecodeAction(packet)
		if err != nil {
			log.Infof("Bad message: %v", err)
			s.dispatcher.notify(sess, err.Error())
			continue
		}
		if err := s.dispatcher.Dispatch(sess, action); err != nil {
			return
		}
		s.metrics.ObserveMessageLatency(time.Since(start))
	}
}
