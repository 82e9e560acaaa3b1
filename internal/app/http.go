package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/adanyl0v/go-todo-live/internal/config"
	"github.com/adanyl0v/go-todo-live/internal/delivery/http/v1"
	"github.com/adanyl0v/go-todo-live/internal/delivery/ws"
	"github.com/adanyl0v/go-todo-live/internal/ordering"
	"github.com/adanyl0v/go-todo-live/internal/realtime"
	"github.com/adanyl0v/go-todo-live/internal/services"
	"github.com/adanyl0v/go-todo-live/internal/storage"
)

func MustListenAndServeHTTP() {
	cfg := config.Global()
	if cfg.Env != config.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}

	httpCfg := cfg.HTTP

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	useCORS(router, httpCfg.AllowedOrigins)
	registerRoutes(router)

	// Sockets are hijacked and outlive Shutdown, so they watch this
	// context instead.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	server := &http.Server{
		Addr:        net.JoinHostPort(httpCfg.Host, httpCfg.Port),
		Handler:     router,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	server.RegisterOnShutdown(cancelBase)

	go func() {
		globalLogger.Info().
			Str("host", httpCfg.Host).
			Str("port", httpCfg.Port).
			Msg("setting up http server")
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			globalLogger.Error().
				Err(err).
				Msg("failed to listen and serve http")
			panic(err)
		}
	}()

	// Wait for the interrupt signal to gracefully
	// shut down the server with a timeout.
	quit := make(chan os.Signal, 1)
	// kill (no params) by default sends syscall.SIGTERM
	// kill -2 is syscall.SIGINT
	// kill -9 is syscall.SIGKILL but can't be caught, so don't need to add it
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	globalLogger.Info().
		Msg("shutting down http server")

	ctx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()

	err := server.Shutdown(ctx)
	if err != nil {
		globalLogger.Error().
			Err(err).
			Msg("failed to shutdown http server")
		panic(err)
	}
	globalLogger.Info().Msg("shut down http server")
}

func registerRoutes(router gin.IRouter) {
	cfg := config.Global()
	jwtCfg := cfg.JWT

	hub := realtime.NewHub(componentLogger("hub"))

	authService := services.NewAuthService(
		componentLogger("auth"),
		storage.NewPostgresAccountStore(componentLogger("storage"), globalPostgresPool),
		jwtCfg.Issuer,
		[]byte(jwtCfg.SigningKey),
		jwtCfg.AccessTokenTTL,
		jwtCfg.RefreshTokenTTL,
	)
	taskService := services.NewTaskService(
		componentLogger("tasks"),
		storage.NewPostgresStore(componentLogger("storage"), globalPostgresPool),
		hub,
		ordering.NewKeySpace(cfg.Ordering.Gap),
		services.OrderingStrategy(cfg.Ordering.Strategy),
	)

	router = router.Group("/api/v1")
	v1.RegisterRoutes(router, v1.New(componentLogger("http"), authService, taskService))

	realtimeCfg := cfg.Realtime
	wsHandler := ws.New(componentLogger("ws"), authService, taskService, hub, ws.Config{
		SendBuffer:     realtimeCfg.SendBuffer,
		WriteTimeout:   realtimeCfg.WriteTimeout,
		PongTimeout:    realtimeCfg.PongTimeout,
		PingInterval:   realtimeCfg.PingInterval,
		MaxMessageSize: realtimeCfg.MaxMessageSize,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	router.GET("/ws", wsHandler.HandleConnect)
}
