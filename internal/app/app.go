package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"stocklab/internal/config"
	apierrors "stocklab/internal/errors"
	"stocklab/internal/infrastructure"
	customMiddleware "stocklab/internal/middleware"
	"stocklab/internal/services"
	"stocklab/internal/session"
	handlers "stocklab/internal/transport/http"
	ws "stocklab/internal/websocket"
)

const (
	Version = "1.0.0"
	AppName = "StockLab - Stock Price Prediction"
)

// Application is the main application container
type Application struct {
	Config          *config.Config
	Router          *chi.Mux
	Server          *http.Server
	WebSocketHub    *ws.Hub
	PipelineService *services.PipelineService
	Logger          *slog.Logger
	FrontendFS      fs.FS
}

// NewApplication creates an application instance with all dependencies wired
func NewApplication(frontendFS fs.FS) (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	app := &Application{
		Config:     cfg,
		Logger:     logger,
		FrontendFS: frontendFS,
	}

	app.initializeServices()
	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices wires the websocket hub and pipeline service
func (a *Application) initializeServices() {
	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	a.PipelineService = services.NewPipelineService(session.NewManager(), hub, a.Logger)
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware first so it does not wrap the websocket upgrade
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.HandleFunc("/ws", a.handleWebSocket)

	// Prometheus endpoint stays outside the API middleware group
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)

		if a.FrontendFS != nil {
			a.setupFrontend(r)
		}
	})

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.ActionTimeout, a.Logger))

		healthHandler := handlers.NewHealthHandler(Version)
		r.Mount("/health", healthHandler.Routes())

		errorHandler := apierrors.NewErrorHandler(a.Logger, false)
		sessionHandler := handlers.NewSessionHandler(
			a.PipelineService, a.Logger, errorHandler, a.Config.Upload)
		r.Mount("/session", sessionHandler.Routes())
	})
}

// setupFrontend serves the embedded single page app
func (a *Application) setupFrontend(r chi.Router) {
	r.With(customMiddleware.Compress(5)).Get("/", func(w http.ResponseWriter, req *http.Request) {
		file, err := a.FrontendFS.Open("index.html")
		if err != nil {
			a.Logger.ErrorContext(req.Context(), "failed to open index.html",
				slog.String("error", err.Error()))
			http.Error(w, "Frontend not available", http.StatusServiceUnavailable)
			return
		}
		defer file.Close()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		io.Copy(w, file)
	})
}

// getCORSConfig returns the CORS configuration
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	a.WebSocketHub.Stop()
	infrastructure.CloseLogFile()

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

// run serves until ctx is cancelled, then shuts down gracefully. The
// server goroutine and the shutdown watcher share one errgroup so a
// listen failure and an interrupt take the same path out.
func (a *Application) run(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(ctx, "application started",
			slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// handleWebSocket upgrades the connection and attaches it to the hub
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	a.Logger.InfoContext(r.Context(), "websocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")))

	if err := ws.ServeWS(a.WebSocketHub, w, r); err != nil {
		a.Logger.ErrorContext(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()))
	}
}
