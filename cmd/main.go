package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"echograph/internal/auth"
	"echograph/internal/config"
	"echograph/internal/embeddings"
	"echograph/internal/logger"
	"echograph/internal/queue"
	"echograph/internal/search"
	"echograph/internal/storage"
	"echograph/internal/store"
	"echograph/internal/telemetry"
	"echograph/internal/vectorstore"
	"echograph/middleware"
	"echograph/models"
	"echograph/routes"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, "echograph-api")
	if err != nil {
		log.Fatal("Failed to init tracing:", err)
	}
	defer shutdownTracer()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := config.NewPostgresPool(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	blob, err := storage.New(cfg)
	if err != nil {
		log.Fatal("Failed to connect to blob store:", err)
	}

	vectors, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatal("Failed to connect to vector index:", err)
	}
	defer vectors.Close()
	if err := vectors.Init(ctx, cfg.EmbeddingDim); err != nil {
		log.Fatal("Failed to init vector collections:", err)
	}

	provider, err := embeddings.NewProvider(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init embeddings provider:", err)
	}

	verifier, err := auth.NewVerifier(cfg)
	if err != nil {
		log.Fatal("Failed to init token verifier:", err)
	}

	st := store.New(pool)
	searchSvc := search.NewService(provider, vectors, st.Chunks, st.Documents)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient, cfg)

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware("echograph-api"))
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	authMW := middleware.NewAuthMiddleware(verifier, rdb,
		func(ctx context.Context, user *models.User) error {
			return st.Users.UpsertBySubject(ctx, user)
		})
	roleMW := middleware.NewRoleMiddleware()

	extraHealth := map[string]routes.HealthCheck{}
	if local, ok := provider.(*embeddings.LocalProvider); ok {
		extraHealth["embeddings"] = func(ctx context.Context) error {
			healthy, err := local.IsHealthy(ctx)
			if err != nil {
				return err
			}
			if !healthy {
				return errors.New("embeddings service reported unhealthy")
			}
			return nil
		}
	}

	routes.SetupHealthRoutes(router, pool, rdb, vectors, extraHealth)
	routes.SetupDocumentRoutes(router, cfg, st, blob, vectors, enqueuer, authMW, roleMW)
	routes.SetupSearchRoutes(router, searchSvc, authMW)
	routes.SetupRelationshipRoutes(router, cfg, st, enqueuer, authMW, roleMW)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
