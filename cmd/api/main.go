package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/cache"
	"github.com/GTDGit/catalog_api/internal/catalog"
	"github.com/GTDGit/catalog_api/internal/config"
	"github.com/GTDGit/catalog_api/internal/database"
	"github.com/GTDGit/catalog_api/internal/handler"
	"github.com/GTDGit/catalog_api/internal/importer"
	"github.com/GTDGit/catalog_api/internal/middleware"
	"github.com/GTDGit/catalog_api/internal/repository"
	"github.com/GTDGit/catalog_api/internal/service"
	"github.com/GTDGit/catalog_api/internal/sse"
	"github.com/GTDGit/catalog_api/internal/utils"
	"github.com/GTDGit/catalog_api/internal/worker"
)

// main is the application entrypoint for the catalog API.
func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Setup logger
	setupLogger(cfg.Env)
	log.Info().Str("env", cfg.Env).Msg("starting catalog api")
	utils.SetJWTSecret(cfg.JWTSecret, cfg.JWTTTL)

	// Context for startup and graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connect database
	db, err := database.Connect(ctx, &cfg.DB)
	if err != nil {
		fatal("database connection failed", err)
	}
	defer db.Close()

	// 3a. Run migrations
	if err := database.RunMigrations(db.DB, cfg.DB.MigrationsDir); err != nil {
		fatal("migration failed", err)
	}
	log.Info().Msg("migrations completed successfully")

	// 3b. Connect to Redis
	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		fatal("redis connection failed", err)
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected successfully")

	// 4. Load static baseline catalog
	baseline, err := catalog.LoadBaseline(cfg.Catalog.BaselinePath)
	if err != nil {
		fatal("baseline catalog invalid", err)
	}
	log.Info().Int("products", len(baseline)).Msg("baseline catalog loaded")

	// 5. Initialize repositories
	productRepo := repository.NewProductRepository(db)
	adminRepo := repository.NewAdminUserRepository(db)

	// 6. Initialize services and the catalog cache
	productSvc := service.NewProductService(productRepo)
	catalogCache := cache.NewCatalogCache(productSvc, cache.NewRedisSnapshotStore(redisClient), baseline, cfg.Catalog.CacheTTL)
	productSvc.SetCatalogCache(catalogCache)

	productMgmtSvc := service.NewProductManagementService(productRepo, catalogCache)

	adminAuthSvc := service.NewAdminAuthService(adminRepo)
	if err := adminAuthSvc.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.Name); err != nil {
		log.Warn().Err(err).Msg("bootstrap admin could not be created")
	}

	// 6a. Image storage; imports without images keep working when S3 is not configured
	var imageUploader importer.ImageUploader
	s3Svc, err := service.NewS3Service(ctx, &cfg.S3)
	switch {
	case err == nil:
		imageUploader = s3Svc
	case errors.Is(err, service.ErrImageStorageDisabled):
		log.Warn().Msg("S3_BUCKET not set - image uploads are disabled")
		imageUploader = service.DisabledImageUploader{}
	default:
		log.Warn().Err(err).Msg("S3 service initialization failed - image uploads are disabled")
		imageUploader = service.DisabledImageUploader{}
	}
	batchUploader := importer.NewBatchUploader(imageUploader, cfg.Catalog.UploadBatchSize)
	log.Info().Int("batch_size", batchUploader.BatchSize()).Msg("image uploader ready")

	// 6b. Import pipeline with SSE progress
	hub := sse.NewHub()
	notifier := sse.NewHubNotifier(hub)

	importSvc := service.NewImportService(productRepo, catalogCache, batchUploader)
	coordinator := importer.NewCoordinator(batchUploader, importSvc, catalogCache, catalogCache)
	coordinator.SetProgressReporter(notifier)
	coordinator.SetInvalidationNotifier(notifier)
	productMgmtSvc.SetNotifier(notifier)

	// 7. Initialize middleware
	authLimiter := middleware.NewInvalidAuthRateLimiter(middleware.DefaultAuthAttempts, middleware.DefaultAuthWindow)
	defer authLimiter.Stop()
	jwtMw := middleware.NewJWTMiddleware(authLimiter)

	// 8. Initialize handlers
	handlers := &Handlers{
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": db,
			"redis":    handler.PingFunc(redisClient.Ping),
		}),
		Product:           handler.NewProductHandler(productSvc),
		ProductManagement: handler.NewProductManagementHandler(productMgmtSvc, productSvc, notifier),
		Import:            handler.NewImportHandler(coordinator, cfg.Catalog.MaxImportBytes),
		Auth:              handler.NewAuthHandler(adminAuthSvc, authLimiter),
		SSE:               handler.NewSSEHandler(hub),
	}

	// 9. Setup router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = 32 << 20
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSAllowedHosts))
	router.Use(middleware.LoggingMiddleware())
	setupRoutes(router, handlers, jwtMw)

	// 10. Start workers
	go worker.NewCatalogRefreshWorker(catalogCache, cfg.Catalog.RefreshInterval).Start(ctx)

	// 11. Start HTTP server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// 12. Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// 13. Cancel context to stop workers
	cancel()

	// 14. Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}

// Handlers groups all HTTP handlers used by the server.
type Handlers struct {
	Health            *handler.HealthHandler
	Product           *handler.ProductHandler
	ProductManagement *handler.ProductManagementHandler
	Import            *handler.ImportHandler
	Auth              *handler.AuthHandler
	SSE               *handler.SSEHandler
}

// setupRoutes registers all routes.
func setupRoutes(router *gin.Engine, handlers *Handlers, jwtMiddleware *middleware.JWTMiddleware) {
	router.GET("/v1/health", handlers.Health.GetHealth)

	// Public catalog
	router.GET("/v1/products", handlers.Product.GetProducts)
	router.GET("/v1/products/:id", handlers.Product.GetProduct)

	// Admin routes
	admin := router.Group("/v1/admin")
	admin.POST("/auth/login", handlers.Auth.Login)
	// EventSource cannot send headers; the stream checks ?token= itself.
	admin.GET("/sse", handlers.SSE.Stream)
	admin.Use(jwtMiddleware.Handle())
	{
		// Product Management
		admin.GET("/products", handlers.ProductManagement.ListProducts)
		admin.POST("/products", handlers.ProductManagement.CreateProduct)
		admin.PUT("/products/:id", handlers.ProductManagement.UpdateProduct)
		admin.DELETE("/products/:id", handlers.ProductManagement.DeleteProduct)
		admin.POST("/products/cache/invalidate", handlers.ProductManagement.InvalidateCache)

		// Bulk import
		admin.POST("/products/import", handlers.Import.Import)
		admin.GET("/products/import/template", handlers.Import.Template)
	}
}

func fatal(msg string, err error) {
	log.Error().Err(err).Msg(msg)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func setupLogger(env string) {
	if env == "production" {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}
