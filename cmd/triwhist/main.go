package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"triwhist/internal/config"
	"triwhist/internal/database"
	"triwhist/internal/engine"
	"triwhist/internal/game"
	"triwhist/internal/peer"
	sig "triwhist/internal/signal"
	"triwhist/internal/store"
	"triwhist/internal/transport"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatalf("redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("redis: %v", err)
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer st.Close()

	var stats game.Stats
	if cfg.PostgresDSN != "" {
		db, err := database.Connect(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			logger.Fatalf("database: %v", err)
		}
		defer db.Close()
		stats = db
	} else {
		logger.Warn("DATABASE_URL unset, score history disabled")
	}

	ws := transport.NewWS(cfg.Seat, cfg.AdvertiseAddr, cfg.ExtraAddrs, cfg.Table, []byte(cfg.Secret), logger)
	relay := sig.NewRelay(rdb, cfg.Seat, cfg.Table, logger)
	presence := sig.NewPresence(rdb, cfg.Seat, cfg.Table, logger)

	timeouts := peer.DefaultTimeouts()
	if cfg.Debug {
		timeouts = peer.DebugTimeouts()
	}
	manager := peer.NewManager(cfg.Seat, ws, relay, timeouts, logger)

	controller := game.NewController(game.Options{
		Local:         cfg.Seat,
		Send:          manager.Broadcast,
		Store:         st,
		Stats:         stats,
		Logger:        logger,
		GrabDelay:     2 * time.Second,
		SlowPokeDelay: 45 * time.Second,
	})

	manager.OnPeerUp = controller.SetPeerConnected
	ws.OnMessage = func(from engine.Seat, msg []byte) { controller.HandleMessage(msg) }
	ws.OnOpen = manager.HandleTransportOpen
	ws.OnConnectivity = manager.HandleConnectivity
	presence.OnChange = manager.SetPresence

	go func() {
		if err := presence.Announce(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("presence announcer stopped")
		}
	}()
	go func() {
		if err := presence.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("presence watcher stopped")
		}
	}()
	go func() {
		if err := relay.Listen(ctx, manager); err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("signal listener stopped")
		}
	}()

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: ws}
	go func() {
		logger.WithField("addr", cfg.ListenAddr).Info("transport listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("transport server")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	manager.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("transport shutdown")
	}
}
