package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cygirat-cmd/kiki-server/cache"
	"github.com/cygirat-cmd/kiki-server/config"
	"github.com/gin-gonic/gin"
)

const AccountIDKey = "account_id"
const DeviceIDKey = "device_id"

// DeviceIDHeader carries the client's durable device/install ID. It
// keys the guest session and survives sign-in.
const DeviceIDHeader = "X-Device-ID"

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		// Check session still valid in cache.
		sessionKey := "session:" + tokenStr
		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, sessionKey)
		if err != nil || !exists {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Next()
	}
}

// OptionalAuth resolves the account ID when a valid Bearer token with
// a live session is present and falls through as a guest otherwise.
// Routes that serve both modes use it instead of Auth.
func OptionalAuth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			ctx.Next()
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")

		claims, err := ParseToken(tokenStr, sec.JWTSecret)
		if err != nil {
			ctx.Next()
			return
		}

		cacheCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()
		exists, err := c.Exists(cacheCtx, "session:"+tokenStr)
		if err != nil || !exists {
			ctx.Next()
			return
		}

		ctx.Set(AccountIDKey, claims.AccountID)
		ctx.Next()
	}
}

// Device requires the device ID header on every request and stores it
// in the context. Both guest and account endpoints need it: guest
// state and the migration trigger are keyed by device.
func Device() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		deviceID := ctx.GetHeader(DeviceIDHeader)
		if deviceID == "" {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing device id"})
			return
		}
		ctx.Set(DeviceIDKey, deviceID)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// GetDeviceID retrieves the device ID from the Gin context.
func GetDeviceID(c *gin.Context) string {
	if v, exists := c.Get(DeviceIDKey); exists {
		return v.(string)
	}
	return ""
}
