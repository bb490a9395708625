package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/aliasimcoskun/phishguard"
	"github.com/aliasimcoskun/phishguard/api"
	"github.com/aliasimcoskun/phishguard/db"
	"github.com/aliasimcoskun/phishguard/internal/metrics"
	"github.com/aliasimcoskun/phishguard/internal/tracing"
	"github.com/aliasimcoskun/phishguard/scorer"
	"github.com/aliasimcoskun/phishguard/storage"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	_ = godotenv.Load()

	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("phishguard service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("phishguard")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultStoragePath := getEnv("STORAGE_BASE_PATH", "./storage")
	defaultScorerURL := getEnv("SCORER_URL", scorer.DefaultBaseURL)
	defaultScorerModel := getEnv("SCORER_MODEL", scorer.DefaultModel)
	defaultMaxHops := getEnv("MAX_REDIRECT_HOPS", "3")

	maxHops, err := strconv.Atoi(defaultMaxHops)
	if err != nil || maxHops < 0 {
		logger.Warn("invalid MAX_REDIRECT_HOPS value, using default",
			"provided", defaultMaxHops,
			"default", phishguard.DefaultMaxHops,
		)
		maxHops = phishguard.DefaultMaxHops
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	scorerURL := flag.String("scorer-url", defaultScorerURL, "Model inference server base URL")
	scorerModel := flag.String("scorer-model", defaultScorerModel, "Served model name")
	redirectHops := flag.Int("max-redirect-hops", maxHops, "Maximum redirect hops to follow per analysis")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	disableTitles := flag.Bool("disable-page-titles", false, "Disable landing page title fetches")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "phishguard")
	dbPassword := getEnv("DB_PASSWORD", "phishguard_dev_pass")
	dbName := getEnv("DB_NAME", "phishguard")

	dbConfig := db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	}
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// S3-compatible report archive is optional; unset bucket keeps reports on
	// the local filesystem.
	var s3Config *storage.S3Config
	if bucket := getEnv("S3_BUCKET", ""); bucket != "" {
		s3Config = &storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          bucket,
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getEnv("S3_USE_PATH_STYLE", "") == "true",
		}
		logger.Info("using S3 report archive", "bucket", bucket, "region", s3Config.Region)
	}

	analysisMetrics := metrics.NewAnalysisMetrics("phishguard")

	analyzerConfig := phishguard.DefaultConfig()
	analyzerConfig.MaxRedirectHops = *redirectHops
	analyzerConfig.ScorerBaseURL = *scorerURL
	analyzerConfig.ScorerModel = *scorerModel
	analyzerConfig.FetchPageTitle = !*disableTitles

	config := api.Config{
		Addr:           ":" + *port,
		DBConfig:       dbConfig,
		AnalyzerConfig: analyzerConfig,
		StorageConfig: storage.Config{
			BasePath: defaultStoragePath,
		},
		S3Config:    s3Config,
		CORSEnabled: !*disableCORS,
		Metrics:     analysisMetrics,
	}

	// Create server
	server, err := api.NewServer(config)
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Initialize database metrics
	dbMetrics := metrics.NewDatabaseMetrics("phishguard")
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			dbMetrics.UpdateDBStats(server.DB())
		}
	}()
	logger.Info("database metrics initialized")

	// Initialize stored-analysis metrics updater
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			server.UpdateStoredMetrics()
		}
	}()
	logger.Info("analysis metrics initialized")

	// Start server in a goroutine
	go func() {
		logger.Info("phishguard service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"storage_path", defaultStoragePath,
			"scorer_url", *scorerURL,
			"scorer_model", *scorerModel,
			"max_redirect_hops", *redirectHops,
			"page_titles_enabled", !*disableTitles,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
