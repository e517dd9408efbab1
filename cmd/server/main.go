package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CesarGoto1/SecurityEye/internal/config"
	"github.com/CesarGoto1/SecurityEye/internal/database"
	"github.com/CesarGoto1/SecurityEye/internal/handlers"
	"github.com/CesarGoto1/SecurityEye/internal/live"
	"github.com/CesarGoto1/SecurityEye/internal/logging"
	"github.com/CesarGoto1/SecurityEye/internal/services"
	"github.com/CesarGoto1/SecurityEye/internal/storage"
)

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	skipMigrations := flag.Bool("skip-migrations", false, "skip running database migrations on startup")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = strings.TrimPrefix(*httpPort, ":")
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting...")
	logger.Infof("HTTP port: %s", cfg.HTTPPort)
	logger.Infof("Environment: %s", cfg.Environment)
	logger.Infof("Database: %s", cfg.DSNForLog())
	logger.Infof("Diagnosis webhook: %s", cfg.WebhookURL)

	if !*skipMigrations {
		if err := database.Migrate(cfg); err != nil {
			logger.Fatalf("migrations failed: %v", err)
		}
		logger.Info("Migrations up to date")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := database.Connect(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	store := storage.NewPostgresStore(pool, logger)
	hub := live.NewHub(logger)
	metrics := services.NewMetrics()
	diagnoser := services.NewDiagnosisClient(cfg.WebhookURL, logger)

	auth := services.NewAuthService(store, logger)
	sessions := services.NewSessionService(store, diagnoser, hub, metrics, logger)
	history := services.NewHistoryService(store, logger)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(handlers.RequestID())
	engine.Use(handlers.CORS(cfg.CORSOrigins))

	h := handlers.New(auth, sessions, history, metrics, hub, logger)
	h.Routes(engine)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second, // diagnosis webhook may take up to a minute
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Infof("HTTP server listening on port %s", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("failed to serve HTTP: %v", err)
		}
	}()

	<-done
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("error shutting down HTTP server: %v", err)
	} else {
		logger.Info("HTTP server gracefully stopped")
	}

	logger.Info("Closing WebSocket connections...")
	hub.Close()

	logger.Info("Goodbye!")
}
