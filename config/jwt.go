package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin 管理员角色（可审核人工录入申请）
const RoleAdmin = "admin"

// JWTConfig JWT配置结构
type JWTConfig struct {
	SecretKey      string
	ExpirationTime time.Duration
	Issuer         string
}

// GetJWTConfig 获取JWT配置
func GetJWTConfig() *JWTConfig {
	return &JWTConfig{
		SecretKey:      GetEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		ExpirationTime: GetEnvDuration("JWT_TTL", time.Hour*24),
		Issuer:         "bookmarket",
	}
}

// Claims JWT声明结构
type Claims struct {
	UserID   int64    `json:"user_id"`
	ChatID   int64    `json:"chat_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// IsAdmin 是否拥有管理员角色
func (c *Claims) IsAdmin() bool {
	return slices.Contains(c.Roles, RoleAdmin)
}

// JWTService JWT服务
type JWTService struct {
	config *JWTConfig
}

// NewJWTService 创建JWT服务实例
func NewJWTService(cfg *JWTConfig) *JWTService {
	if cfg == nil {
		cfg = GetJWTConfig()
	}
	return &JWTService{
		config: cfg,
	}
}

// GenerateToken 生成JWT token
func (s *JWTService) GenerateToken(userID, chatID int64, username string, roles []string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		ChatID:   chatID,
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.ExpirationTime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.config.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.SecretKey))
}

// ValidateToken 验证JWT token
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.SecretKey), nil
	}, jwt.WithIssuer(s.config.Issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// RolesFor 根据管理员ID列表计算用户角色
func RolesFor(userID int64, adminIDs []int64) []string {
	roles := []string{"user"}
	if slices.Contains(adminIDs, userID) {
		roles = append(roles, RoleAdmin)
	}
	return roles
}

// GetJWTService 获取JWT服务实例（全局单例）
var jwtService *JWTService

func GetJWTService() *JWTService {
	if jwtService == nil {
		jwtService = NewJWTService(nil)
	}
	return jwtService
}
