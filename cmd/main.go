package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/velvetcast/session-service/internal/auth"
	"github.com/velvetcast/session-service/internal/client"
	"github.com/velvetcast/session-service/internal/config"
	"github.com/velvetcast/session-service/internal/database"
	"github.com/velvetcast/session-service/internal/handler"
	"github.com/velvetcast/session-service/internal/hub"
	"github.com/velvetcast/session-service/internal/kafka"
	"github.com/velvetcast/session-service/internal/log"
	"github.com/velvetcast/session-service/internal/pubsub"
	"github.com/velvetcast/session-service/internal/registry"
	"github.com/velvetcast/session-service/internal/repository"
	"github.com/velvetcast/session-service/internal/service"
	"github.com/velvetcast/session-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	log.Init(cfg.Log)
	l := log.L()
	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting session service")

	db, err := database.New(cfg.Database)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(&repository.ConversationModel{}); err != nil {
		l.Fatal().Err(err).Msg("failed to migrate database")
	}
	repo := repository.NewGormConversationRepository(db)

	streams, err := store.NewRedisStreamStore(cfg.Redis)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect stream store")
	}
	l.Info().Str("address", cfg.Redis.Address).Msg("connected to redis")

	bus, err := pubsub.NewRedisPubSub(cfg.Redis)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect event bus")
	}
	defer bus.Close()

	producer, err := kafka.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer producer.Close()
	l.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("connected to kafka")

	resolver, err := auth.NewJWTResolver(cfg.JWT)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create identity resolver")
	}

	gateway := client.NewHTTPGatewayClient(cfg.Gateway)
	rank := client.NewHTTPRankClient(cfg.Rank)

	reg := registry.NewMemoryRegistry()

	wsHub := hub.NewHub()
	go wsHub.Run()

	sessionSvc := service.NewSessionService(reg, repo, resolver, gateway, rank, wsHub)
	reconciler := service.NewCallbackReconciler(reg, repo, streams, gateway, producer, wsHub)
	disconnects := service.NewDisconnectListener(bus, reg, repo, streams, producer, wsHub)

	wsHandler := handler.NewWSHandler(wsHub, sessionSvc, bus, cfg.WebSocket)
	httpHandler := handler.NewHTTPHandler(sessionSvc, reconciler)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(log.GinMiddleware(l), gin.Recovery())
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		l.Info().Str("address", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := disconnects.Start(gctx); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		l.Info().Msg("shutting down session service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Error().Err(err).Msg("session service exited with error")
		return
	}
	l.Info().Msg("session service stopped")
}
