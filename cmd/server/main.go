package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/artxchange/skillswap/internal/api"
	"github.com/artxchange/skillswap/internal/chat"
	"github.com/artxchange/skillswap/internal/config"
	"github.com/artxchange/skillswap/internal/database"
	"github.com/artxchange/skillswap/internal/gateway"
	"github.com/artxchange/skillswap/internal/identity"
	"github.com/artxchange/skillswap/internal/match"
	"github.com/artxchange/skillswap/internal/messaging"
	"github.com/artxchange/skillswap/internal/metrics"
	"github.com/artxchange/skillswap/internal/presence"
	"github.com/artxchange/skillswap/internal/profile"
	"github.com/artxchange/skillswap/internal/ratelimit"
	"github.com/artxchange/skillswap/internal/ws"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	log.Printf("skillswap server starting")
	cfg.LogSummary()

	ctx := context.Background()

	// --- PostgreSQL ---
	db, err := database.Open(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if cfg.RunMigrations {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	}

	// --- Redis ---
	rdb, err := presence.Dial(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = "skillswap-" + cfg.ServerName
	natsClient, err := messaging.NewNATSClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Services ---
	limiter := ratelimit.NewLimiter(rdb)
	verifier := identity.NewJWTVerifier(cfg.JWTSecret)
	presenceStore := presence.NewStore(rdb, cfg.ServerName)
	directory := profile.NewCachedDirectory(profile.NewPostgresDirectory(db), rdb)
	if err := natsClient.SubscribeProfileUpdates(func(userID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := directory.Invalidate(ctx, userID); err != nil {
			log.Printf("[profile] invalidate %s: %v", userID, err)
		}
	}); err != nil {
		log.Fatalf("failed to subscribe to profile updates: %v", err)
	}

	matchService := match.NewService(match.NewPostgresStore(db), directory, match.Policy{
		AdminOverride: cfg.AdminOverride,
		SuggestLimit:  cfg.SuggestLimit,
	})

	chatConfig := chat.DefaultServiceConfig()
	chatConfig.Lanes = cfg.ChatLanes
	chatService := chat.NewService(chat.NewPostgresStore(db), gateway.NewFanout(natsClient), chatConfig)

	// --- WebSocket gateway ---
	wsConfig := ws.DefaultServerConfig()
	wsConfig.WorkerPoolSize = cfg.WorkerPoolSize
	wsConfig.MaxConnections = cfg.MaxConnections
	wsConfig.ReadTimeout = cfg.ReadTimeout
	wsConfig.WriteTimeout = cfg.WriteTimeout
	wsConfig.AllowedOrigins = cfg.CORSOrigins

	dispatcher := ws.NewMessageDispatcher()
	wsServer := ws.NewServer(wsConfig, verifier, dispatcher.Dispatch)
	wsServer.SetLimiter(limiter)

	gw := gateway.New(wsServer, chatService, natsClient, presenceStore, limiter)
	gw.Attach(wsServer, dispatcher)

	if err := wsServer.Start(); err != nil {
		log.Fatalf("failed to start websocket server: %v", err)
	}

	// --- HTTP ---
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if !natsClient.Connected() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": status,
			"server": cfg.ServerName,
			"ws":     wsServer.Stats(),
		})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	router.Handle("/ws", wsServer).Methods(http.MethodGet)

	api.Register(router, api.Deps{
		Matches:  matchService,
		Chat:     chatService,
		Presence: presenceStore,
		Verifier: verifier,
		Limiter:  limiter,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("websocket shutdown error: %v", err)
	}
	// Drain queued chat events before the bus and the database go away.
	chatService.Close()
	natsClient.Close()
	if err := rdb.Close(); err != nil {
		log.Printf("redis close error: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("database close error: %v", err)
	}
	log.Printf("shutdown complete")
}
