package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"bookmarket_go/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// AuthMiddleware 校验 Bearer JWT，并把声明写入上下文
// WebSocket 握手无法携带请求头，因此同时接受 ?token= 参数
func AuthMiddleware(jwtService *config.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 40100, "message": "missing token"})
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			DebugLogger("token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 40100, "message": "invalid token"})
			return
		}

		c.Set(claimsKey, claims)
		c.Set("user_key", strconv.FormatInt(claims.UserID, 10))
		c.Next()
	}
}

// RequireAdmin 仅允许管理员访问，必须放在 AuthMiddleware 之后
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil || !claims.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": 40300, "message": "admin only"})
			return
		}
		c.Next()
	}
}

// CurrentClaims 获取当前请求的JWT声明
func CurrentClaims(c *gin.Context) *config.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*config.Claims)
	return claims
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
