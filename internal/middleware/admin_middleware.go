package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/looma/see-practice-api/internal/pkg/errors"
	"github.com/looma/see-practice-api/pkg/auth"
)

const adminClaimsKey = "admin_claims"

// AdminMiddleware защищает админские маршруты bearer токеном
type AdminMiddleware struct {
	tokens *auth.AdminTokenService
}

func NewAdminMiddleware(tokens *auth.AdminTokenService) *AdminMiddleware {
	return &AdminMiddleware{tokens: tokens}
}

// RequireAdmin отклоняет запросы без валидного токена админа
func (m *AdminMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required", "error_type": "token_missing"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}", "error_type": "token_format"})
			return
		}

		claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			errorType := "token_invalid"
			if errors.Is(err, apperrors.ErrExpiredToken) {
				errorType = "token_expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "error_type": errorType})
			return
		}

		c.Set(adminClaimsKey, claims)
		c.Next()
	}
}

// AdminClaims возвращает claims, сохраненные RequireAdmin
func AdminClaims(c *gin.Context) (*auth.AdminClaims, bool) {
	v, ok := c.Get(adminClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.AdminClaims)
	return claims, ok
}
