package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/swasthyasetu/appointment-service/internal/api"
	"github.com/swasthyasetu/appointment-service/internal/appointment"
	"github.com/swasthyasetu/appointment-service/internal/archive"
	"github.com/swasthyasetu/appointment-service/internal/audit"
	"github.com/swasthyasetu/appointment-service/internal/auth"
	"github.com/swasthyasetu/appointment-service/internal/config"
	"github.com/swasthyasetu/appointment-service/internal/database"
	"github.com/swasthyasetu/appointment-service/internal/encryption"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	ctx := context.Background()

	// Primary document store.
	mongoClient, err := database.NewMongoClient(ctx, database.MongoConfig{
		URI:            cfg.Mongo.URI,
		Database:       cfg.Mongo.Database,
		MaxPoolSize:    cfg.Mongo.MaxPoolSize,
		MinPoolSize:    cfg.Mongo.MinPoolSize,
		ConnectTimeout: cfg.Mongo.Timeout,
		TLSEnabled:     cfg.Mongo.TLS.Enabled,
		TLSCAFile:      cfg.Mongo.TLS.CAFile,
		TLSCertFile:    cfg.Mongo.TLS.CertFile,
		TLSKeyFile:     cfg.Mongo.TLS.KeyFile,
	})
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)

	db := mongoClient.Database(cfg.Mongo.Database)
	if err := appointment.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal("Failed to ensure appointment indexes", zap.Error(err))
	}

	// Terminal-appointment archive.
	pgPool, err := database.Connect(ctx, database.PostgresConfig{
		Host:        cfg.Archive.Host,
		Port:        cfg.Archive.Port,
		Database:    cfg.Archive.Name,
		User:        cfg.Archive.User,
		Password:    cfg.Archive.Password,
		SSLMode:     cfg.Archive.SSLMode,
		MaxPoolSize: 10,
		ConnTimeout: 5 * time.Second,
	})
	if err != nil {
		logger.Fatal("Failed to connect to archive database", zap.Error(err))
	}
	defer database.Disconnect(pgPool)

	archiveService := archive.NewService(pgPool)
	if err := archiveService.Initialize(ctx); err != nil {
		logger.Fatal("Failed to initialize archive schema", zap.Error(err))
	}

	// Audit event sink.
	esClient, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Elasticsearch.URL},
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
	})
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", zap.Error(err))
	}
	auditService := audit.NewService(esClient)

	encryptService, err := encryption.NewService()
	if err != nil {
		logger.Fatal("Failed to initialize encryption service", zap.Error(err))
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("JWT secret is required; set auth.jwt_secret or JWT_SECRET")
	}
	authService := auth.NewService(cfg.Auth.JWTSecret)

	store := appointment.NewMongoStore(db)
	appointmentService := appointment.NewService(store, encryptService, auditService, archiveService, logger)

	handler := api.NewHandler(appointmentService, auditService)
	router := api.NewRouter(handler, authService)
	engine := router.SetupRouter(logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("Starting appointment service",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
		)
		if cfg.Server.TLS.Enabled {
			if err := srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		} else {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start server: %v", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
