package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/routecast/pkg/utils"
)

const (
	userKey   = "user"
	userIDKey = "user_id"
)

// Middleware аутентификация запросов к маршрутам пользователя
type Middleware struct {
	validator TokenValidator
	logger    *utils.Logger
}

// NewMiddleware создает middleware аутентификации
func NewMiddleware(validator TokenValidator, logger *utils.Logger) *Middleware {
	return &Middleware{
		validator: validator,
		logger:    logger,
	}
}

// Authenticate требует валидный токен
func (m *Middleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			m.logger.WithField("ip", c.ClientIP()).Warn("Missing authentication token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "MISSING_TOKEN",
				"message": "Missing authentication token",
			})
			return
		}

		user, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			m.logger.WithFields(map[string]interface{}{
				"ip":           c.ClientIP(),
				"token_prefix": tokenPrefix(token),
				"error":        err.Error(),
			}).Warn("Token validation failed")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "INVALID_TOKEN",
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(userKey, user)
		c.Set(userIDKey, user.ID)

		m.logger.WithFields(map[string]interface{}{
			"user_id": user.ID,
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
		}).Debug("Authenticated request")

		c.Next()
	}
}

// OptionalAuthenticate определяет пользователя, если токен передан, но не требует его
func (m *Middleware) OptionalAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.Next()
			return
		}

		user, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			m.logger.WithField("error", err.Error()).Debug("Optional token validation failed")
			c.Next()
			return
		}

		c.Set(userKey, user)
		c.Set(userIDKey, user.ID)
		c.Next()
	}
}

// extractToken токен из заголовка Authorization, query параметра или cookie
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Fields(authHeader)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	if token := c.Query("token"); token != "" {
		return token
	}

	if token, err := c.Cookie("token"); err == nil && token != "" {
		return token
	}

	return ""
}

// GetUser пользователь из контекста gin
func GetUser(c *gin.Context) (*User, bool) {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*User); ok {
			return u, true
		}
	}
	return nil, false
}

// GetUserID ID пользователя из контекста gin
func GetUserID(c *gin.Context) (int, bool) {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(int); ok {
			return id, true
		}
	}
	return 0, false
}
