// Package api implements the REST API server for MCPulse, exposing the
// query engine, watchlist, and history over HTTP with token-based
// role-based access control (RBAC).
package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mcpulse-project/mcpulse/internal/config"
	"github.com/mcpulse-project/mcpulse/internal/db"
)

// Permission levels for RBAC (3-tier model).
const (
	PermMonitor   = "monitor"   // View watchlist, history, system stats
	PermControl   = "control"   // Run queries, manage the watchlist
	PermConfigure = "configure" // Modify configuration, manage tokens
)

// tokenCacheTTL bounds how long a verified token is trusted before the
// database is consulted again (so revocation takes effect).
const tokenCacheTTL = 20 * time.Minute

type cachedToken struct {
	role      string
	expiresAt time.Time
}

// AuthMiddleware verifies bearer tokens against the auth database and
// enforces RBAC permissions. Verified tokens are cached for 20 minutes.
type AuthMiddleware struct {
	auth *db.AuthDatabase
	cfg  *config.Config

	mu    sync.Mutex
	cache map[string]cachedToken
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(auth *db.AuthDatabase, cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{
		auth:  auth,
		cfg:   cfg,
		cache: make(map[string]cachedToken),
	}
}

// RequireAuth returns a Gin middleware that verifies bearer tokens.
// When auth_disabled is true in config, all requests are treated as a local admin.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bypass auth when disabled (local/dashboard mode)
		if am.cfg.GetSecurity().AuthDisabled {
			c.Set("token_role", "admin")
			c.Next()
			return
		}

		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "missing or invalid authorization header",
			})
			c.Abort()
			return
		}

		role, ok := am.verifyToken(token)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or revoked token",
			})
			c.Abort()
			return
		}

		c.Set("token", token)
		c.Set("token_role", role)

		c.Next()
	}
}

// verifyToken resolves a token to its role, serving repeat requests from
// the in-process cache.
func (am *AuthMiddleware) verifyToken(token string) (string, bool) {
	am.mu.Lock()
	entry, cached := am.cache[token]
	am.mu.Unlock()
	if cached && time.Now().Before(entry.expiresAt) {
		return entry.role, true
	}

	role, exists, err := am.auth.TokenRole(token)
	if err != nil {
		log.Error().Err(err).Msg("token verification failed")
		return "", false
	}
	if !exists {
		return "", false
	}

	am.auth.TouchToken(token)

	am.mu.Lock()
	am.cache[token] = cachedToken{role: role, expiresAt: time.Now().Add(tokenCacheTTL)}
	am.mu.Unlock()

	return role, true
}

// Invalidate drops a token from the verification cache, used after
// revocation so deletion takes effect immediately.
func (am *AuthMiddleware) Invalidate() {
	am.mu.Lock()
	am.cache = make(map[string]cachedToken)
	am.mu.Unlock()
}

// RequirePermission returns a middleware that checks RBAC permissions.
// When auth_disabled is true in config, all permissions are granted.
func (am *AuthMiddleware) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bypass permission check when auth is disabled (local/dashboard mode)
		if am.cfg.GetSecurity().AuthDisabled {
			c.Next()
			return
		}

		tokenVal, exists := c.Get("token")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			c.Abort()
			return
		}

		token := tokenVal.(string)

		hasPermission, err := am.auth.TokenHasPermission(token, permission)
		if err != nil {
			log.Error().Err(err).Str("perm", permission).
				Msg("permission check failed")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "permission check failed",
			})
			c.Abort()
			return
		}

		if !hasPermission {
			c.JSON(http.StatusForbidden, gin.H{
				"error":    "insufficient permissions",
				"required": permission,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// IPWhitelist returns a middleware that restricts access to whitelisted IPs.
func (am *AuthMiddleware) IPWhitelist() gin.HandlerFunc {
	whitelist := am.cfg.GetSecurity().IPWhitelist

	return func(c *gin.Context) {
		if len(whitelist) == 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		for _, ip := range whitelist {
			if clientIP == ip {
				c.Next()
				return
			}
			// Check CIDR
			if _, cidr, err := net.ParseCIDR(ip); err == nil {
				if cidr.Contains(net.ParseIP(clientIP)) {
					c.Next()
					return
				}
			}
		}

		c.JSON(http.StatusForbidden, gin.H{
			"error": "access denied: IP not whitelisted",
		})
		c.Abort()
	}
}

// RateLimiter implements a simple token bucket rate limiter.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    int
	burst   int
}

type clientBucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewRateLimiter creates a rate limiter with the specified requests per second.
func NewRateLimiter(rps int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientBucket),
		rate:    rps,
		burst:   rps * 2, // Allow burst of 2x rate
	}
}

// Middleware returns a Gin middleware that rate limits by client IP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}

		clientIP := c.ClientIP()

		rl.mu.Lock()
		bucket, exists := rl.clients[clientIP]
		if !exists {
			bucket = &clientBucket{
				tokens:    float64(rl.burst),
				lastCheck: time.Now(),
			}
			rl.clients[clientIP] = bucket
		}

		// Refill tokens
		now := time.Now()
		elapsed := now.Sub(bucket.lastCheck).Seconds()
		bucket.tokens += elapsed * float64(rl.rate)
		if bucket.tokens > float64(rl.burst) {
			bucket.tokens = float64(rl.burst)
		}
		bucket.lastCheck = now

		if bucket.tokens < 1 {
			rl.mu.Unlock()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			c.Abort()
			return
		}

		bucket.tokens--
		rl.mu.Unlock()

		c.Next()
	}
}

// SecurityHeaders adds security-related HTTP headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Server", "MCPulse")

		// Only apply strict security headers to API routes.
		// The dashboard is a local management tool and needs permissive policies
		// for fonts, inline styles, module scripts, etc.
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Header("X-Frame-Options", "DENY")
			c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		c.Next()
	}
}

// RequestLogger logs incoming HTTP requests.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start)
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("api request")
	}
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
