package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/repairdesk-api/config"
	"github.com/kendall-kelly/repairdesk-api/events"
	"github.com/kendall-kelly/repairdesk-api/logger"
	"github.com/kendall-kelly/repairdesk-api/routes"
	"github.com/kendall-kelly/repairdesk-api/services"
	"github.com/kendall-kelly/repairdesk-api/stores"
	"github.com/kendall-kelly/repairdesk-api/tracing"
	"github.com/nats-io/nats.go"
)

const serviceName = "repairdesk-api"

func main() {
	// Load configuration from .env files and the environment
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", map[string]interface{}{"error": err.Error()})
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithComponent("main")
	log.WithField("env", cfg.GoEnv).Info("Starting Repair Desk API server...")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Tracing is a no-op without an OTLP endpoint
	ctx := context.Background()
	shutdownTracing, err := tracing.InitTracerProvider(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize tracing")
	}

	// Connect to database
	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	// Auto-migrate database models
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		log.WithError(err).Fatal("Failed to migrate database")
	}
	log.Info("Database migration completed successfully")

	// Stores
	identities := stores.NewIdentityStore(db, stores.TokenConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.SessionTTL,
	})
	profiles := stores.NewProfileStore(db)
	requestStore := stores.NewRequestStore(db)
	vendorStore := stores.NewVendorStore(db)

	attachments, uploadDir := attachmentStorage(ctx, cfg)

	natsConn, subscriber := connectEvents(cfg, requestStore)

	// Create seed users so the first admin exists
	userAdmin := services.NewUserAdminService(identities, profiles)
	if cfg.SeedUsersPath != "" {
		seedUsers(ctx, userAdmin, cfg.SeedUsersPath)
	}

	// Initialize Gin router
	router := routes.NewRouter(routes.Dependencies{
		Config:     cfg,
		Identities: identities,
		Profiles:   profiles,
		Requests:   services.NewRequestService(requestStore, profiles, vendorStore, attachments, cfg.EnforceStatusTransitions),
		UserAdmin:  userAdmin,
		Vendors:    services.NewVendorService(vendorStore),
		Reports:    services.NewReportService(requestStore),
		UploadDir:  uploadDir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Server is running on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for an interrupt, then drain open requests
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	if subscriber != nil {
		if err := subscriber.Close(); err != nil {
			log.WithError(err).Warn("Failed to close event subscription")
		}
	}
	if natsConn != nil {
		natsConn.Close()
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to flush traces")
	}
	log.Info("Server exited")
}

// attachmentStorage picks S3 when a bucket is configured and local disk otherwise.
// The returned directory is empty unless files are served locally.
func attachmentStorage(ctx context.Context, cfg *config.Config) (services.AttachmentService, string) {
	log := logger.WithComponent("main")
	if cfg.UsesS3() {
		s3Service, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize S3 service")
		}
		log.WithField("bucket", cfg.AWSS3Bucket).Info("Storing attachments in S3")
		return services.NewS3AttachmentService(s3Service), ""
	}

	log.WithField("dir", cfg.UploadDir).Info("Storing attachments on local disk")
	return services.NewLocalAttachmentService(cfg.UploadDir), cfg.UploadDir
}

// connectEvents shares request changes with other instances over NATS when configured
func connectEvents(cfg *config.Config, requestStore *stores.RequestStore) (*nats.Conn, *events.ChangeSubscriber) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	log := logger.WithComponent("main")

	conn, err := events.Connect(cfg.NATSURL)
	if err != nil {
		log.WithError(err).Warn("NATS unavailable, request changes stay local to this instance")
		return nil, nil
	}

	origin := uuid.NewString()
	requestStore.SetPublisher(events.NewNatsPublisher(conn, origin))
	subscriber, err := events.NewChangeSubscriber(conn, origin, requestStore.Hub())
	if err != nil {
		log.WithError(err).Warn("Failed to subscribe to request changes")
		return conn, nil
	}
	log.WithField("origin", origin).Info("Sharing request changes over NATS")
	return conn, subscriber
}

func seedUsers(ctx context.Context, userAdmin *services.UserAdminService, path string) {
	log := logger.WithComponent("seed")
	file, err := services.LoadSeedFile(path)
	if err != nil {
		log.WithError(err).Fatal("Failed to read seed file")
	}
	created, err := userAdmin.Seed(ctx, file)
	if err != nil {
		log.WithError(err).Fatal("Failed to seed users")
	}
	log.WithField("created", created).Info("Seeded users")
}
