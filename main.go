package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wfunc/roomserver/config"
	"github.com/wfunc/roomserver/game"
	"github.com/wfunc/roomserver/logger"
	"github.com/wfunc/roomserver/monitor"
	"github.com/wfunc/roomserver/room"
	"github.com/wfunc/roomserver/rpc"
	"github.com/wfunc/roomserver/server"
	"github.com/wfunc/roomserver/session"
	"github.com/wfunc/roomserver/timer"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize logger
	logger.Init(false)
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.Log.Development {
		logger.Init(true)
	}

	metrics := monitor.NewMonitor("roomserver", prometheus.DefaultRegisterer)
	timers := timer.NewTimerManager(timer.DefaultResolution)
	defer timers.Stop()

	factory, err := game.NewFactory(cfg.Game, timers, metrics)
	if err != nil {
		logger.Log.Fatalf("Invalid game configuration: %v", err)
	}
	rooms := room.NewRoomManager(factory, metrics)
	sessions := session.NewManager()
	gameServer := server.NewGameServer(cfg.Server, cfg.Game.RoomListLimit, rooms, sessions, metrics)

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewRoomService(rooms, sessions))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return gameServer.ListenAndServe(ctx) })
	g.Go(func() error { return rpcServer.Serve(ctx) })
	g.Go(func() error { return serveMetrics(ctx, cfg.Server.MetricsAddress, metrics.Handler()) })

	logger.Log.Infof("Starting %s game server on %s", cfg.Game.Mode, cfg.Server.HTTPAddress)
	if err := g.Wait(); err != nil {
		logger.Log.Errorf("Server stopped: %v", err)
	}
	gameServer.Shutdown()
	logger.Log.Info("Server stopped")
}

func serveMetrics(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Log.Infof("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
