package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"

	"github.com/AnTengye/contractgraph/graph"
	"github.com/AnTengye/contractgraph/handler"
	"github.com/AnTengye/contractgraph/middleware"
	"github.com/AnTengye/contractgraph/service"
)

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(cfg, os.Stdout)
	slog.Info("configuration loaded successfully")

	ctx := c.Context

	minioSvc, err := service.NewMinioService(&cfg.Minio)
	if err != nil {
		return fmt.Errorf("failed to initialize MINIO service: %w", err)
	}
	if err := minioSvc.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("failed to ensure MINIO bucket: %w", err)
	}

	mineruSvc := service.NewMineruService(&cfg.Mineru)

	deps := service.ExtractionDeps{
		Orchestrator: newOrchestrator(cfg),
		Store:        service.NewContractStore(&cfg.Store),
		Converter:    mineruSvc,
		Artifacts:    minioSvc,
		PollInterval: time.Duration(cfg.Server.PollSeconds) * time.Second,
	}

	if cfg.Archive.Path != "" {
		archive, err := service.OpenArchive(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer archive.Close()
		deps.Archive = archive
	}

	if cfg.Neo4j.Enabled {
		client, err := graph.NewClient(ctx, &cfg.Neo4j, slog.Default())
		if err != nil {
			return err
		}
		defer client.Close(context.Background())
		deps.Graph = client.Writer()
	}

	extraction := service.NewExtractionService(deps)

	var verifier handler.ChecksumVerifier
	if cfg.Mineru.Seed != "" && cfg.Mineru.UID != "" {
		verifier = mineruSvc
	}

	authHandler := handler.NewAuthHandler(cfg)
	contractHandler := handler.NewContractHandler(extraction, minioSvc, &cfg.Server)
	callbackHandler := handler.NewCallbackHandler(extraction, verifier, cfg.Mineru.UID)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(noCacheMiddleware())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, time.Minute))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"contracts": extraction.Store().Count(),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/mineru/callback", callbackHandler.HandleCallback)
	}

	// Uploads and extractions share one budget per tenant
	tenantLimit := middleware.RateLimitBy(cfg.Server.UploadLimit, time.Minute, "tenant", middleware.ByTenant)

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/contracts/upload", tenantLimit, contractHandler.Upload)
		protected.POST("/contracts/extract", tenantLimit, contractHandler.Extract)
		protected.GET("/contracts", contractHandler.List)
		protected.GET("/contracts/:id", contractHandler.Get)
		protected.GET("/contracts/:id/status", contractHandler.GetStatus)
		protected.GET("/contracts/:id/graph", contractHandler.Graph)
		protected.GET("/contracts/:id/summary", contractHandler.Summary)
		protected.GET("/contracts/:id/export", contractHandler.Export)
		protected.DELETE("/contracts/:id", contractHandler.Delete)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server exited gracefully")
	return nil
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// noCacheMiddleware keeps clients from caching API responses, which change
// as contracts move through conversion.
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
