package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/m-tsaryk/InvestTax.Calculator/src/config"
	"github.com/m-tsaryk/InvestTax.Calculator/src/database"
	"github.com/m-tsaryk/InvestTax.Calculator/src/handlers"
	"github.com/m-tsaryk/InvestTax.Calculator/src/logger"
	"github.com/m-tsaryk/InvestTax.Calculator/src/nbp"
	"github.com/m-tsaryk/InvestTax.Calculator/src/parsers"
	"github.com/m-tsaryk/InvestTax.Calculator/src/processors"
	"github.com/m-tsaryk/InvestTax.Calculator/src/services"
	"github.com/m-tsaryk/InvestTax.Calculator/src/validation"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("InvestTax Calculator server starting...")

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing summary cache...")
	summaryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	logger.L.Info("Summary cache initialized.")

	logger.L.Info("Initializing services and handlers...")
	validator, err := validation.NewValidator()
	if err != nil {
		stdlog.Fatalf("Failed to initialize validator: %v", err)
	}
	normalizer, err := parsers.NewNormalizer()
	if err != nil {
		stdlog.Fatalf("Failed to initialize normalizer: %v", err)
	}

	nbpClient := nbp.NewClient(config.Cfg.NBPAPIBaseURL, config.Cfg.NBPHTTPTimeout)
	rateBuilder := processors.NewRateMapBuilder(nbpClient, config.Cfg.RateFetchConcurrency)

	jobRepository := database.NewSQLJobRepository(database.DB)
	emailService := services.NewEmailService()
	calculationService := services.NewCalculationService(
		jobRepository, validator, normalizer, rateBuilder, emailService, summaryCache,
	)
	calculationHandler := handlers.NewCalculationHandler(calculationService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	apiRouter.HandleFunc("POST /api/calculations", calculationHandler.HandleSubmit)
	apiRouter.HandleFunc("GET /api/calculations/{id}", calculationHandler.HandleGetJob)
	apiRouter.HandleFunc("GET /api/calculations/{id}/report", calculationHandler.HandleGetReport)
	apiRouter.HandleFunc("GET /api/calculations/{id}/summary", calculationHandler.HandleGetSummary)

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "InvestTax Calculator backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
