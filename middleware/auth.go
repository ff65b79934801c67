package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quickpost/quickpost/config"
	"github.com/quickpost/quickpost/utils"
)

const (
	// ContextUserIDKey is the key used to store the authenticated user ID in
	// the Gin context.
	ContextUserIDKey = "user_id"
	// ContextEmailKey stores the principal's email inside the Gin context.
	ContextEmailKey = "email"
)

// AuthRequired ensures the request carries a valid JWT and makes the
// principal explicit in the request context.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextEmailKey, claims.Email)
		ctx.Next()
	}
}

// PrincipalID returns the authenticated user ID from the context.
func PrincipalID(ctx *gin.Context) (uint, bool) {
	v, ok := ctx.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// IsAdmin reports whether the principal's email is in the configured admin
// list. Administrators may moderate (delete) any post.
func IsAdmin(ctx *gin.Context) bool {
	v, ok := ctx.Get(ContextEmailKey)
	if !ok {
		return false
	}
	email, ok := v.(string)
	if !ok {
		return false
	}
	for _, admin := range config.Get().AdminEmails {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}
