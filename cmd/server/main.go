// Package main is the entry point for the feedback ingestion server.
//
// Startup sequence: load configuration from the environment, open the SQLite
// store, build the two ingestion pipelines (plain and AI-enhanced), wire the
// HTTP routes, and serve.
package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/driftboard/feedback/internal/config"
	"github.com/driftboard/feedback/internal/enhance"
	"github.com/driftboard/feedback/internal/handler"
	"github.com/driftboard/feedback/internal/ingest"
	"github.com/driftboard/feedback/internal/ratelimit"
	"github.com/driftboard/feedback/internal/repository"
)

func main() {
	// A missing .env is fine: production sets real environment variables.
	_ = godotenv.Load()

	logger := setupLogger()
	slog.SetDefault(logger)

	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("FEEDBACK_DB_PATH", "feedback.db")
	defaultTier := config.TierID(envOrDefault("FEEDBACK_TIER", string(config.TierBasic)))

	// Deployment-level config overrides, as a JSON object matching the
	// overrides shape (e.g. {"ai":{"provider":"openai"}}).
	var overrides *config.Overrides
	if raw := os.Getenv("FEEDBACK_CONFIG_OVERRIDES"); raw != "" {
		overrides = &config.Overrides{}
		if err := json.Unmarshal([]byte(raw), overrides); err != nil {
			logger.Error("invalid FEEDBACK_CONFIG_OVERRIDES", "error", err)
			os.Exit(1)
		}
	}

	// Fail fast on deployment misconfiguration: a tier+overrides combination
	// that cannot resolve (AI on with no provider) is an operator error and
	// should never be discovered one request at a time.
	if _, err := config.Resolve(defaultTier, overrides); err != nil {
		logger.Error("invalid deployment configuration", "tier", defaultTier, "error", err)
		os.Exit(1)
	}

	repo, err := repository.New(dbPath)
	if err != nil {
		logger.Error("failed to initialize database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	enhancer := enhance.New(enhance.NewClient(enhance.ProviderConfig{
		APIKey:  os.Getenv("AI_API_KEY"),
		BaseURL: envOrDefault("AI_BASE_URL", "https://api.openai.com/v1"),
		Model:   envOrDefault("AI_MODEL", "gpt-4o-mini"),
		Timeout: envDuration("AI_TIMEOUT", enhance.DefaultTimeout),
	}), logger)

	// The two submission endpoints share validation and identity logic but
	// differ in AI policy and rate cap. Every accepted AI submission costs an
	// external call, so the enhanced endpoint gets the lower cap.
	window := envDuration("RATE_LIMIT_WINDOW", ratelimit.DefaultWindow)
	plainLimiter := ratelimit.New(envInt("RATE_LIMIT_PLAIN", 50), window)
	enhancedLimiter := ratelimit.New(envInt("RATE_LIMIT_ENHANCED", 20), window)

	plain := ingest.NewService(repo, plainLimiter, enhancer,
		ingest.WithOverrides(overrides), ingest.WithAIDisabled(), ingest.WithLogger(logger))
	enhanced := ingest.NewService(repo, enhancedLimiter, enhancer,
		ingest.WithOverrides(overrides), ingest.WithLogger(logger))

	feedbackHandler := handler.New(handler.Config{
		Plain:       plain,
		Enhanced:    enhanced,
		Repo:        repo,
		DefaultTier: defaultTier,
		Overrides:   overrides,
		Logger:      logger,
		TemplateFS:  os.DirFS(envOrDefault("FEEDBACK_TEMPLATES", "templates")),
	})

	mux := http.NewServeMux()

	// System routes.
	mux.HandleFunc("GET /", handleRoot)
	mux.HandleFunc("GET /health", handleHealth)

	// Submission API. Plain and enhanced differ only in AI policy and cap.
	mux.HandleFunc("POST /api/feedback", feedbackHandler.HandleSubmit)
	mux.HandleFunc("POST /api/feedback/enhanced", feedbackHandler.HandleSubmitEnhanced)

	// Admin API.
	mux.HandleFunc("GET /api/feedback", feedbackHandler.HandleList)
	mux.HandleFunc("GET /api/feedback/stats", feedbackHandler.HandleStats)
	mux.HandleFunc("GET /api/feedback/{id}", feedbackHandler.HandleGet)
	mux.HandleFunc("PATCH /api/feedback/{id}/status", feedbackHandler.HandleUpdateStatus)

	// Admin pages.
	mux.HandleFunc("GET /feedback", feedbackHandler.HandleFeedbackList)
	mux.HandleFunc("GET /feedback/{id}", feedbackHandler.HandleFeedbackDetail)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           loggingMiddleware(logger, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server", "port", port, "db", dbPath, "tier", defaultTier)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// setupLogger configures slog from LOG_LEVEL and LOG_FORMAT.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if os.Getenv("LOG_FORMAT") == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "feedback",
		"version": "0.2.0",
		"status":  "ok",
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// loggingMiddleware records method, path, and duration for every request.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
