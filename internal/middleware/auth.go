package middleware

import (
	"net/http"
	"strings"

	"dmcore-backend/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const userIDKey = "user_id"

// TokenValidator resolves a bearer credential to a user id.
type TokenValidator interface {
	ValidateToken(token string) (uuid.UUID, error)
}

// AuthMiddleware rejects requests without a valid credential and stores the
// caller's id on the gin context.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := tokens.ValidateToken(ExtractToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": apperr.Message(err),
				"code":  apperr.CodeUnauthenticated,
			})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

// ExtractToken reads the credential from the Authorization header, falling
// back to the token query parameter used by browser websocket clients.
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return c.Query("token")
}

// UserID returns the id stored by AuthMiddleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
