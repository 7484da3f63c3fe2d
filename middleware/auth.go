package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"echograph/internal/auth"
	"echograph/internal/logger"
	"echograph/models"
)

// userSyncTTL bounds how often a subject's row is refreshed from its token
// claims.
const userSyncTTL = time.Hour

// UserSyncFunc mirrors identity-provider claims into a local user row.
type UserSyncFunc func(ctx context.Context, user *models.User) error

type AuthMiddleware struct {
	verifier *auth.Verifier
	rdb      *redis.Client
	syncUser UserSyncFunc
}

func NewAuthMiddleware(verifier *auth.Verifier, rdb *redis.Client, syncUser UserSyncFunc) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		rdb:      rdb,
		syncUser: syncUser,
	}
}

// RequireAuth validates the bearer token and stores the asserted identity in
// the request context. Tokens are issued by the external OIDC provider; there
// is no cookie or refresh flow here. On success the claims are mirrored into
// the users table, throttled per subject through Redis.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := auth.ExtractBearer(c.GetHeader("Authorization"))
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Authentication token is required",
			})
			c.Abort()
			return
		}

		claims, err := a.verifier.Verify(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_token",
				"message":    "Authentication token is invalid or expired",
				"details":    gin.H{"error": err.Error()},
			})
			c.Abort()
			return
		}

		c.Set("subject", claims.Subject)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("claims", claims)

		a.maybeSyncUser(c.Request.Context(), claims)

		c.Next()
	}
}

// maybeSyncUser upserts the user row at most once per subject per hour. When
// Redis is unreachable the sync runs anyway; a failed upsert never fails the
// request.
func (a *AuthMiddleware) maybeSyncUser(ctx context.Context, claims *auth.Claims) {
	if a.syncUser == nil {
		return
	}

	if a.rdb != nil {
		set, err := a.rdb.SetNX(ctx, "usersync:"+claims.Subject, "1", userSyncTTL).Result()
		if err == nil && !set {
			return
		}
	}

	user := &models.User{
		Subject:  claims.Subject,
		Email:    claims.Email,
		FullName: claims.Name,
		Role:     claims.Role,
		IsActive: true,
	}
	if err := a.syncUser(ctx, user); err != nil {
		logger.Warn("User sync failed", "subject", claims.Subject, "error", err)
	}
}

// GetSubject returns the authenticated subject, or "" when unauthenticated.
func GetSubject(c *gin.Context) string {
	if subject, exists := c.Get("subject"); exists {
		if s, ok := subject.(string); ok {
			return s
		}
	}
	return ""
}

// GetRole returns the authenticated role, or "" when unauthenticated.
func GetRole(c *gin.Context) string {
	if role, exists := c.Get("role"); exists {
		if r, ok := role.(string); ok {
			return r
		}
	}
	return ""
}
