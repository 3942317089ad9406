package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/ai"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/audit"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/consent"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/interpretation"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/kurrentdb"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/labs"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/auth"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/database"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/events"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/logging"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/metrics"
	secmiddleware "github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/middleware"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/tracing"
)

const maxBodyBytes = 64 << 10

// App holds all application dependencies
type App struct {
	Config    *config.Config
	Log       zerolog.Logger
	DB        *database.DB
	KurrentDB *kurrentdb.Client
}

func runServer(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logging.New(cfg.Log)
	app := &App{Config: cfg, Log: log}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	app.DB = db

	if err := database.Migrate(ctx, db.Pool, log); err != nil {
		return err
	}

	if cfg.KurrentDB.Enabled {
		client, err := kurrentdb.NewClient(cfg.KurrentDB)
		if err != nil {
			return err
		}
		if err := client.Connect(ctx); err != nil {
			return err
		}
		defer client.Close()
		app.KurrentDB = client
		log.Info().Str("host", cfg.KurrentDB.Host).Int("port", cfg.KurrentDB.Port).Msg("KurrentDB connected")
	}

	router, err := newRouter(ctx, app)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AI.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Str("env", cfg.Server.Env).
			Str("audit_backend", cfg.Audit.Backend).
			Str("ai_model", cfg.AI.Model).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info().Msg("server stopped")
	return nil
}

func newRouter(ctx context.Context, app *App) (chi.Router, error) {
	cfg := app.Config
	log := app.Log

	cors := secmiddleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.Server.CORSOrigins
	}

	r := chi.NewRouter()

	// Global middleware. CORS answers preflight before auth runs.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(secmiddleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.AI.Timeout + 10*time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(secmiddleware.CORS(cors))
	r.Use(secmiddleware.BodyLimit(maxBodyBytes))

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	results := labs.NewRepository(app.DB.Pool)
	gate := consent.NewGate(consent.NewRepository(app.DB.Pool), log)
	aiClient := ai.NewClient(cfg.AI, log)

	auditRepo, err := newAuditRepository(app)
	if err != nil {
		return nil, err
	}
	if err := auditRepo.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("audit initialization: %w", err)
	}
	recorder := audit.NewRecorder(auditRepo, log)

	var publisher events.Publisher = events.NopPublisher{}
	if app.KurrentDB != nil {
		publisher = events.NewBus(app.KurrentDB)
	}

	service := interpretation.NewService(gate, results, aiClient, recorder, publisher, interpretation.Options{
		SummaryMaxTokens: cfg.AI.SummaryMaxTokens,
		RiskMaxTokens:    cfg.AI.RiskMaxTokens,
	}, log)

	limiter := secmiddleware.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		r.With(limiter.Middleware).Mount("/interpretation", interpretation.NewHandler(service).Routes())
		r.Mount("/audit", audit.NewHandler(auditRepo, results).Routes())
		r.Mount("/ai", ai.NewHandler(aiClient).Routes())
	})

	return r, nil
}

func newAuditRepository(app *App) (audit.Repository, error) {
	switch app.Config.Audit.Backend {
	case "kurrentdb":
		if app.KurrentDB == nil {
			return nil, fmt.Errorf("audit backend kurrentdb requires a KurrentDB connection")
		}
		return audit.NewKurrentDBRepository(app.KurrentDB), nil
	default:
		return audit.NewPostgresRepository(app.DB.Pool), nil
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}

		if err := app.DB.Health(r.Context()); err != nil {
			app.Log.Warn().Err(err).Msg("database not ready")
			checks["database"] = "not ready"
		} else {
			checks["database"] = "ready"
		}

		if app.KurrentDB != nil {
			if err := app.KurrentDB.HealthCheck(r.Context()); err != nil {
				app.Log.Warn().Err(err).Msg("kurrentdb not ready")
				checks["kurrentdb"] = "not ready"
			} else {
				checks["kurrentdb"] = "ready"
			}
		} else {
			checks["kurrentdb"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status == "not ready" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		state := "ready"
		if !allReady {
			status = http.StatusServiceUnavailable
			state = "not ready"
		}

		writeJSON(w, status, map[string]any{
			"status": state,
			"checks": checks,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
