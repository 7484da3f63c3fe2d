package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"echograph/internal/vectorstore"
)

// HealthCheck probes one optional dependency, keyed by component name.
type HealthCheck func(ctx context.Context) error

// SetupHealthRoutes exposes liveness and dependency health. /health reports
// per-component status and returns 503 when any required dependency is down.
func SetupHealthRoutes(router *gin.Engine, pool *pgxpool.Pool, rdb *redis.Client,
	vectors *vectorstore.Store, extra map[string]HealthCheck) {

	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		components := gin.H{}
		healthy := true

		report := func(name string, err error) {
			if err != nil {
				components[name] = gin.H{"status": "down", "error": err.Error()}
				healthy = false
				return
			}
			components[name] = gin.H{"status": "up"}
		}

		report("postgres", pool.Ping(ctx))
		report("redis", rdb.Ping(ctx).Err())
		report("vector_index", vectors.Health(ctx))
		for name, check := range extra {
			report(name, check(ctx))
		}

		status := http.StatusOK
		overall := "healthy"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		c.JSON(status, gin.H{
			"status":     overall,
			"components": components,
		})
	})
}
