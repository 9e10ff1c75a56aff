package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"course-payment-service/internal/redisclient"
	"course-payment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	userIDKey   = "userID"
	tokenCookie = "token"
)

// RateLimiter counts requests against a window
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*redisclient.RateLimitResult, error)
}

// authMiddleware accepts an HS256 token from the token cookie or a bearer
// header and stores the userId claim on the context.
func authMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, login again"})
			return
		}

		userID, err := parseUserID(raw, secret)
		if err != nil {
			util.GetLogger().Debug("Rejected token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authorized, login again"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if cookie, err := c.Cookie(tokenCookie); err == nil && cookie != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func parseUserID(raw string, secret []byte) (uuid.UUID, error) {
	if len(secret) == 0 {
		return uuid.Nil, errors.New("jwt secret not configured")
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("unexpected claims type")
	}
	sub, _ := claims["userId"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid userId claim: %w", err)
	}
	return userID, nil
}

func currentUser(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

// rateLimitMiddleware applies a per-IP fixed window. Limiter errors let the
// request through.
func rateLimitMiddleware(limiter RateLimiter, limit int, window time.Duration, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(exempt))
	for _, path := range exempt {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 || skip[c.FullPath()] {
			c.Next()
			return
		}

		result, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP(), limit, window)
		if err != nil {
			util.GetLogger().Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("RateLimit-Limit", strconv.Itoa(limit))
		c.Header("RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("RateLimit-Reset", strconv.Itoa(int(result.ResetIn.Seconds())))

		if !result.Allowed {
			util.RateLimitedTotal.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later",
			})
			return
		}
		c.Next()
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
