package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mkieran/demesne/internal/auth"
	"github.com/mkieran/demesne/internal/catalog"
	"github.com/mkieran/demesne/internal/config"
	"github.com/mkieran/demesne/internal/handler"
	"github.com/mkieran/demesne/internal/logger"
	"github.com/mkieran/demesne/internal/middleware"
	"github.com/mkieran/demesne/internal/repository/postgres"
	redisrepo "github.com/mkieran/demesne/internal/repository/redis"
	"github.com/mkieran/demesne/internal/service"
)

func main() {
	logger.Init()
	cfg := config.Load()
	log.Info().Str("databaseURL", cfg.DatabaseURL).Msg("Config loaded")

	// Database
	db, err := postgres.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Enable Redis keyspace notifications for timer expiry events.
	if err := redisClient.Underlying().ConfigSet(context.Background(), "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to set Redis keyspace notifications (timer expiry may not work)")
	}

	// Repos
	userRepo := postgres.NewUserRepo(db)
	campaignRepo := postgres.NewCampaignRepo(db)
	turnRepo := postgres.NewTurnRepo(db)

	// Content catalogue
	records := catalog.Default()
	if cfg.CatalogPath != "" {
		if err := records.LoadFile(cfg.CatalogPath); err != nil {
			log.Fatal().Err(err).Str("path", cfg.CatalogPath).Msg("Failed to load content catalogue")
		}
	}

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret)
	googleOAuth := auth.NewGoogleOAuth(
		os.Getenv("GOOGLE_CLIENT_ID"),
		os.Getenv("GOOGLE_CLIENT_SECRET"),
		os.Getenv("GOOGLE_REDIRECT_URL"),
	)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	campaignSvc := service.NewCampaignService(campaignRepo, turnRepo, userRepo, redisClient)
	turnSvc := service.NewTurnService(campaignRepo, turnRepo, redisClient, wsHub)
	checkSvc := service.NewCheckService(turnSvc, turnRepo, redisClient, wsHub, records)

	// Timer listener (auto-advance on deadline expiry)
	timerListener := service.NewTimerListener(redisClient.Underlying(), turnSvc, turnRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(googleOAuth, jwtMgr, userRepo)
	userHandler := handler.NewUserHandler(userRepo)
	campaignHandler := handler.NewCampaignHandler(campaignSvc, wsHub)
	turnHandler := handler.NewTurnHandler(turnSvc, checkSvc, turnRepo)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth (public)
	mux.HandleFunc("GET /auth/google/login", authHandler.GoogleLogin)
	mux.HandleFunc("GET /auth/google/callback", authHandler.GoogleCallback)
	mux.HandleFunc("POST /auth/refresh", authHandler.RefreshToken)
	mux.HandleFunc("GET /auth/dev", authHandler.DevLogin)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /users/me", userHandler.GetMe)
	api.HandleFunc("PATCH /users/me", userHandler.UpdateMe)
	api.HandleFunc("GET /users/{id}", userHandler.GetUser)
	api.HandleFunc("POST /campaigns", campaignHandler.CreateCampaign)
	api.HandleFunc("GET /campaigns", campaignHandler.ListCampaigns)
	api.HandleFunc("GET /campaigns/{id}", campaignHandler.GetCampaign)
	api.HandleFunc("POST /campaigns/{id}/join", campaignHandler.JoinCampaign)
	api.HandleFunc("POST /campaigns/{id}/start", campaignHandler.StartCampaign)
	api.HandleFunc("POST /campaigns/{id}/finish", campaignHandler.FinishCampaign)
	api.HandleFunc("GET /campaigns/{id}/state", turnHandler.GetState)
	api.HandleFunc("POST /campaigns/{id}/steps/{index}/complete", turnHandler.CompleteStep)
	api.HandleFunc("POST /campaigns/{id}/phase/advance", turnHandler.AdvancePhase)
	api.HandleFunc("POST /campaigns/{id}/turn/advance", turnHandler.AdvanceTurn)
	api.HandleFunc("POST /campaigns/{id}/event-check", turnHandler.EventCheck)
	api.HandleFunc("POST /campaigns/{id}/checks", turnHandler.SubmitCheck)
	api.HandleFunc("POST /campaigns/{id}/checks/reroll", turnHandler.Reroll)
	api.HandleFunc("GET /campaigns/{id}/checks", turnHandler.ListChecks)
	api.HandleFunc("POST /campaigns/{id}/undo", turnHandler.Undo)
	api.HandleFunc("POST /campaigns/{id}/redo", turnHandler.Redo)
	api.HandleFunc("GET /campaigns/{id}/turns", turnHandler.ListTurns)
	api.HandleFunc("GET /campaigns/{id}/milestones", turnHandler.ListMilestones)
	api.HandleFunc("GET /campaigns/{id}/modifiers", turnHandler.ListModifiers)
	api.HandleFunc("GET /campaigns/{id}/doctrine", turnHandler.GetDoctrine)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.CORS("*"), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Recover active campaigns (rehydrate Redis from Postgres after restart)
	if err := turnSvc.RecoverActiveCampaigns(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to recover active campaigns (non-fatal)")
	}

	// Start timer listener
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go timerListener.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
