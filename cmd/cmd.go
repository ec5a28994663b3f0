package cmd

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-calendar-backend/internal/config"
	"family-calendar-backend/internal/handlers"
	"family-calendar-backend/internal/kvstore"
	"family-calendar-backend/internal/middleware"
	"family-calendar-backend/internal/ratelimit"
	"family-calendar-backend/internal/repository"
	"family-calendar-backend/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Database connection established")

	// Initialize repositories
	eventRepo := repository.NewEventRepository(db)
	eventFamilyRepo := repository.NewEventFamilyRepository(db)
	familyRepo := repository.NewFamilyRepository(db)
	memberRepo := repository.NewFamilyMemberRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	functionRepo := repository.NewFunctionRepository(db)

	probeFunctions(ctx, functionRepo)

	store, err := kvstore.Open(storagePath(cfg.Storage))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open preference store")
	}
	defer store.Close()

	// Initialize services
	sessionService := services.NewSessionService(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	wsHub := services.NewWSHub()
	preferenceService := services.NewPreferenceService(store, memberRepo)
	eventService := services.NewEventService(
		eventRepo,
		eventFamilyRepo,
		memberRepo,
		profileRepo,
		functionRepo,
		wsHub,
		preferenceService,
		services.RetryPolicy{
			MaxRetries:      cfg.Fetch.MaxRetries,
			InitialInterval: cfg.Fetch.InitialInterval,
			MaxInterval:     cfg.Fetch.MaxInterval,
		},
	)
	familyService := services.NewFamilyService(
		familyRepo,
		memberRepo,
		invitationRepo,
		functionRepo,
		services.RetryPolicy{
			MaxRetries:      cfg.Families.RecoveryAttempts - 1,
			InitialInterval: cfg.Families.RecoveryInterval,
			MaxInterval:     cfg.Families.RecoveryInterval,
		},
		cfg.Families.DefaultColor,
		ratelimit.New(cfg.Invitations.ResendInterval, cfg.Invitations.ResendBurst),
	)

	var exportService *services.ExportService
	if cfg.AWS.S3Bucket != "" {
		exportService, err = services.NewExportService(ctx, eventService, services.S3Options{
			Region:    cfg.AWS.Region,
			Bucket:    cfg.AWS.S3Bucket,
			AccessKey: cfg.AWS.AccessKey,
			SecretKey: cfg.AWS.SecretKey,
			Endpoint:  cfg.AWS.Endpoint,
			URLExpiry: cfg.AWS.URLExpiry,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create export service")
		}
	} else {
		log.Warn().Msg("No export bucket configured, calendar export disabled")
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(sessionService)
	eventHandler := handlers.NewEventHandler(eventService, exportService, preferenceService)
	familyHandler := handlers.NewFamilyHandler(familyService)
	preferenceHandler := handlers.NewPreferenceHandler(preferenceService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, sessionService)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(sessionService))

		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/signout", authHandler.SignOut)

		r.Get("/events", eventHandler.GetEvents)
		r.Post("/events", eventHandler.CreateEvent)
		r.Get("/events/cached", eventHandler.GetCachedEvents)
		r.Post("/events/export", eventHandler.ExportEvents)
		r.Put("/events/{event_id}", eventHandler.UpdateEvent)
		r.Delete("/events/{event_id}", eventHandler.DeleteEvent)

		r.Get("/families", familyHandler.GetFamilies)
		r.Post("/families", familyHandler.CreateFamily)
		r.Get("/families/members", familyHandler.GetMembers)
		r.Post("/families/{family_id}/invitations", familyHandler.InviteMembers)
		r.Post("/families/{family_id}/invitations/resend", familyHandler.ResendInvitation)

		r.Get("/preferences/active-family", preferenceHandler.GetActiveFamily)
		r.Put("/preferences/active-family", preferenceHandler.SetActiveFamily)
		r.Delete("/preferences/active-family", preferenceHandler.ClearActiveFamily)
	})

	r.Get("/ws", wsHandler.HandleWebSocket)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// probeFunctions logs which server-side functions are installed. Missing
// ones are not fatal; the services fall back to direct queries.
func probeFunctions(ctx context.Context, functions *repository.FunctionRepository) {
	for _, fn := range []repository.Function{
		repository.FuncAccessibleEvents,
		repository.FuncUserFamilies,
		repository.FuncCreateFamilySafely,
		repository.FuncCheckEventAccess,
	} {
		ok, err := functions.Exists(ctx, fn)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("function", string(fn)).Msg("Failed to probe database function")
		case !ok:
			log.Warn().Str("function", string(fn)).Msg("Database function missing, falling back to direct queries")
		default:
			log.Debug().Str("function", string(fn)).Msg("Database function available")
		}
	}
}

func storagePath(cfg config.StorageConfig) string {
	if cfg.InMemory {
		return ""
	}
	return cfg.Path
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
