package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"room-web/internal/apispec"
	"room-web/internal/backend"
	"room-web/internal/config"
	"room-web/internal/domain"
	"room-web/internal/handler"
	"room-web/internal/messaging"
	"room-web/internal/middleware"
	"room-web/internal/observability"
	"room-web/internal/repository/memory"
	"room-web/internal/repository/postgres"
	"room-web/internal/security"
	"room-web/internal/session"
	"room-web/internal/view"
	"room-web/internal/web"
)

func main() {
	cfg := config.Load()
	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting room web", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sealer, err := security.NewSealer(cfg.SessionSecret)
	if err != nil {
		slog.Error("failed to derive session key", slog.String("error", err.Error()))
		os.Exit(1)
	}

	db, repo, closeRepo := openSessionStore(ctx, cfg, sealer)
	defer closeRepo()

	authClient, err := backend.NewAuthClient(cfg.AuthURL, cfg.AuthAnonKey, cfg.BackendTimeout)
	if err != nil {
		slog.Error("failed to create auth client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	listingsClient, err := backend.NewListingsClient(cfg.APIURL, cfg.BackendTimeout)
	if err != nil {
		slog.Error("failed to create listings client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	broker := session.NewBroker()
	opts := []session.Option{session.WithBroker(broker), session.WithTTL(cfg.SessionTTL)}

	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err = messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := messaging.NewEventConsumer(rmq, broker).Start(ctx); err != nil {
			slog.Error("failed to start auth event consumer", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts = append(opts, session.WithPublisher(messaging.NewFanoutPublisher(broker, rmq)))
		slog.Info("auth events shared over rabbitmq", slog.String("instance_id", rmq.InstanceID()))
	} else {
		slog.Info("RABBITMQ_URL not set, auth events stay in process")
	}

	provider := session.NewProvider(authClient, repo, opts...)
	provider.Start(ctx)
	defer provider.Close()

	renderer, err := web.NewRenderer()
	if err != nil {
		slog.Error("failed to parse templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	doc, err := apispec.Load()
	if err != nil {
		slog.Error("failed to load openapi document", slog.String("error", err.Error()))
		os.Exit(1)
	}
	validator, err := middleware.OpenAPIValidator(doc, middleware.DefaultOpenAPIValidatorConfig(cfg.IsProduction()))
	if err != nil {
		slog.Error("failed to build openapi validator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	authLimiter := middleware.NewRateLimiter(1, 10)
	defer authLimiter.Stop()

	r := newRouter(routerDeps{
		Config:      cfg,
		Provider:    provider,
		Listings:    listingsClient,
		Renderer:    renderer,
		AuthLimiter: authLimiter,
		Validator:   validator,
		Checks: []handler.Dependency{
			handler.DatabaseCheck(db),
			handler.RabbitMQCheck(rmq),
			handler.BackendCheck("auth", authClient),
			handler.BackendCheck("listings_api", listingsClient),
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("room web listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	slog.Info("server stopped gracefully")
}

// openSessionStore uses Postgres when DATABASE_URL is set and an in-memory
// store otherwise. The returned db is nil in memory mode.
func openSessionStore(ctx context.Context, cfg *config.Config, sealer *security.Sealer) (*sql.DB, domain.SessionRepository, func()) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			slog.Warn("DATABASE_URL not set, sessions are lost on restart and not shared between instances")
		}
		return nil, memory.NewSessionRepository(), func() {}
	}

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("connected to postgresql")

	if err := postgres.EnsureSchema(connCtx, postgres.NewTxManager(db)); err != nil {
		slog.Error("failed to create session schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := postgres.NewSessionRepository(db, sealer)
	if err != nil {
		slog.Error("failed to prepare session statements", slog.String("error", err.Error()))
		os.Exit(1)
	}

	return db, repo, func() {
		repo.Close()
		db.Close()
	}
}

type routerDeps struct {
	Config      *config.Config
	Provider    *session.Provider
	Listings    view.ListingService
	Renderer    handler.Renderer
	AuthLimiter *middleware.RateLimiter
	Validator   func(http.Handler) http.Handler
	Checks      []handler.Dependency
}

func newRouter(d routerDeps) http.Handler {
	controller := view.NewController(d.Provider, d.Listings)

	authHandler := handler.NewAuthHandler(d.Provider, d.Renderer, handler.CookieOptions{
		Secure: d.Config.CookieSecure,
		MaxAge: d.Config.SessionTTL,
	})
	listingHandler := handler.NewListingHandler(controller, d.Renderer)
	apiHandler := handler.NewAPIHandler(d.Provider, d.Listings)
	wsHandler := handler.NewWebSocketHandler(d.Provider, middleware.ParseOrigins(d.Config.AllowedOrigins))

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(middleware.ParseOrigins(d.Config.AllowedOrigins)))
	r.Use(middleware.SessionToken)

	r.NotFound(handler.NotFound(d.Renderer))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(d.Checks...))
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", web.Static())

	r.Get("/", authHandler.Home)
	r.Get("/login", authHandler.LoginForm)
	r.Get("/signup", authHandler.SignupForm)
	r.Group(func(r chi.Router) {
		r.Use(d.AuthLimiter.Middleware())
		r.Post("/login", authHandler.Login)
		r.Post("/signup", authHandler.Signup)
	})

	r.Get("/listings", listingHandler.Index)
	r.Get("/listings/{id}", listingHandler.Detail)

	// Auth is resolved inside the handler so the upgrade can answer 401
	r.Get("/ws/session", wsHandler.HandleConnection)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(d.Validator)
		r.Get("/session", apiHandler.Session)
		r.Get("/listings", apiHandler.Listings)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveSession(d.Provider))
		r.Use(middleware.RequireSession)
		r.Use(middleware.CSRF)

		r.Get("/dashboard", authHandler.Dashboard)
		r.Post("/listings", listingHandler.Create)
		r.Post("/listings/{id}/contact", listingHandler.Contact)
	})

	// A stale cookie must still be able to sign out
	r.Group(func(r chi.Router) {
		r.Use(middleware.ResolveSession(d.Provider))
		r.Use(middleware.CSRFIfSession)

		r.Post("/logout", authHandler.Logout)
	})

	return r
}
